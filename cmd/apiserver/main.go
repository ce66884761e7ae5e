package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"friendfeed/internal/auth"
	"friendfeed/internal/config"
	"friendfeed/internal/handlers/apiserver"
	appKafka "friendfeed/internal/kafka"
	appRedis "friendfeed/internal/redis"
	"friendfeed/internal/services"
	"friendfeed/internal/storage"

	"github.com/gorilla/handlers"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config/config.yaml or ./config.yaml)")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Printf("%s %s 配置加载成功。", cfg.AppName, cfg.AppVersion)

	// 2. 初始化数据库连接并迁移表结构
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}

	// 3. Token 黑名单：优先 Redis，连不上时退回进程内实现
	var blacklist auth.TokenBlacklist
	redisCtx, cancelRedis := context.WithTimeout(context.Background(), 5*time.Second)
	redisClient, err := appRedis.NewClient(redisCtx, cfg.Redis)
	cancelRedis()
	if err != nil {
		log.Printf("警告：%v，登出吊销仅在本进程内生效", err)
		blacklist = auth.NewMemoryBlacklist()
	} else {
		defer redisClient.Close()
		blacklist = appRedis.NewRedisTokenBlacklist(redisClient)
		log.Println("成功连接到 Redis")
	}

	// 4. 活动事件：配置了 Kafka 才发布
	var producer appKafka.MessageProducer
	if cfg.Kafka.Enabled() {
		producer, err = appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatalf("无法创建 Kafka 生产者: %v", err)
		}
		defer producer.Close()
		log.Printf("Kafka 生产者初始化成功，topic: %s", cfg.Kafka.ActivityTopic)
	} else {
		log.Println("未配置 Kafka brokers，活动事件不会发布。")
	}
	activity := services.NewActivityPublisher(producer, cfg.Kafka.ActivityTopic)
	defer activity.Wait() // 先于 producer.Close 执行

	// 5. 本地文件存储
	blobs, err := storage.NewLocalBlobStore(cfg.Storage)
	if err != nil {
		log.Fatalf("无法初始化本地存储服务: %v", err)
	}

	// 6. 初始化 Repositories 和 Services
	userRepo := storage.NewGormUserRepository(db)
	friendshipRepo := storage.NewGormFriendshipRepository(db)
	postRepo := storage.NewGormPostRepository(db)
	commentRepo := storage.NewGormCommentRepository(db)

	userService := services.NewUserService(userRepo, blobs, cfg.Policy)
	router := apiserver.NewRouter(apiserver.RouterDeps{
		DB:                db,
		Auth:              cfg.Auth,
		Policy:            cfg.Policy,
		Storage:           cfg.Storage,
		Blacklist:         blacklist,
		AuthService:       services.NewAuthService(userRepo, cfg.Auth, blacklist),
		UserService:       userService,
		FriendshipService: services.NewFriendshipService(db, friendshipRepo, userService, activity, cfg.Policy),
		PostService:       services.NewPostService(db, postRepo, commentRepo, userService, blobs, activity, cfg.Policy, nil),
		FeedService:       services.NewFeedService(friendshipRepo, postRepo, commentRepo, userService, blobs, cfg.Policy),
	})

	// 7. CORS
	corsCfg := cfg.APIServer.CORS
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(corsCfg.AllowedOrigins),
		handlers.AllowedMethods(corsCfg.AllowedMethods),
		handlers.AllowedHeaders(corsCfg.AllowedHeaders),
		handlers.ExposedHeaders(corsCfg.ExposedHeaders),
		handlers.MaxAge(corsCfg.MaxAge),
	}
	if corsCfg.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	handler := handlers.CombinedLoggingHandler(os.Stdout, handlers.CORS(corsOptions...)(router))

	// 8. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.APIServer.ReadTimeout,
		WriteTimeout: cfg.APIServer.WriteTimeout,
		IdleTimeout:  cfg.APIServer.IdleTimeout,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("API 服务器强制关闭: %v", err)
	}
	log.Println("API 服务器已成功关闭")
}
