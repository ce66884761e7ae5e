package apiserver

import (
	"net/http"
	"strings"

	"friendfeed/internal/auth"
	"friendfeed/internal/config"
	"friendfeed/internal/middleware"
	"friendfeed/internal/services"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// RouterDeps 是构建路由所需的全部依赖。
type RouterDeps struct {
	DB                *gorm.DB
	Auth              config.AuthConfig
	Policy            config.PolicyConfig
	Storage           config.StorageConfig
	Blacklist         auth.TokenBlacklist
	AuthService       services.AuthService
	UserService       services.UserService
	FriendshipService services.FriendshipService
	PostService       services.PostService
	FeedService       services.FeedService
}

// NewRouter 注册所有 HTTP 路由。/auth 和 /health 是公开的，/api/v1 下的路由需要认证。
func NewRouter(deps RouterDeps) *mux.Router {
	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService, deps.Policy)
	friendshipHandler := NewFriendshipHandler(deps.FriendshipService, deps.UserService)
	postHandler := NewPostHandler(deps.PostService, deps.FeedService, deps.Policy)
	healthHandler := NewHealthHandler(deps.DB)

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler.HealthCheckHandler).Methods(http.MethodGet)

	// 认证路由
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.AuthMiddleware(deps.Auth.JWTSecretKey, deps.Blacklist))
	apiRouter.HandleFunc("/auth/logout", authHandler.LogoutHandler).Methods(http.MethodPost)

	// 用户资料
	apiRouter.HandleFunc("/users/search", userHandler.SearchUsersHandler).Methods(http.MethodGet)
	profiles := apiRouter.PathPrefix("/profiles").Subrouter()
	profiles.HandleFunc("/me", userHandler.GetMyProfileHandler).Methods(http.MethodGet)
	profiles.HandleFunc("/me", userHandler.UpdateMyProfileHandler).Methods(http.MethodPut, http.MethodPatch)
	profiles.HandleFunc("/picture", userHandler.UploadProfilePictureHandler).Methods(http.MethodPost)
	profiles.HandleFunc("/picture/{username}", userHandler.GetProfilePictureHandler).Methods(http.MethodGet)
	profiles.HandleFunc("/{username}", userHandler.GetUserProfileHandler).Methods(http.MethodGet)

	// 好友关系
	friendships := apiRouter.PathPrefix("/friendships").Subrouter()
	friendships.HandleFunc("", friendshipHandler.ListFriendsHandler).Methods(http.MethodGet)
	friendships.HandleFunc("/requests", friendshipHandler.ListIncomingRequestsHandler).Methods(http.MethodGet)
	friendships.HandleFunc("/sent", friendshipHandler.ListSentRequestsHandler).Methods(http.MethodGet)
	friendships.HandleFunc("/request", friendshipHandler.SendFriendRequestHandler).Methods(http.MethodPost)
	friendships.HandleFunc("/accept/{friendshipID:[0-9]+}", friendshipHandler.AcceptFriendRequestHandler).Methods(http.MethodPost)
	friendships.HandleFunc("/decline/{friendshipID:[0-9]+}", friendshipHandler.DeclineFriendRequestHandler).Methods(http.MethodPost)
	friendships.HandleFunc("/cancel/{friendshipID:[0-9]+}", friendshipHandler.CancelFriendRequestHandler).Methods(http.MethodPost)
	friendships.HandleFunc("/status/{username}", friendshipHandler.FriendshipStatusHandler).Methods(http.MethodGet)
	friendships.HandleFunc("/{friendshipID:[0-9]+}", friendshipHandler.RemoveFriendHandler).Methods(http.MethodDelete)

	// 帖子、评论、动态流
	posts := apiRouter.PathPrefix("/posts").Subrouter()
	posts.HandleFunc("/feed", postHandler.GetFeedHandler).Methods(http.MethodGet)
	posts.HandleFunc("", postHandler.CreatePostHandler).Methods(http.MethodPost)
	posts.HandleFunc("/me", postHandler.ListMyPostsHandler).Methods(http.MethodGet)
	posts.HandleFunc("/user/{username}", postHandler.ListUserPostsHandler).Methods(http.MethodGet)
	posts.HandleFunc("/comments/{commentID:[0-9]+}", postHandler.DeleteCommentHandler).Methods(http.MethodDelete)
	posts.HandleFunc("/{postID:[0-9]+}", postHandler.GetPostHandler).Methods(http.MethodGet)
	posts.HandleFunc("/{postID:[0-9]+}", postHandler.UpdatePostHandler).Methods(http.MethodPut, http.MethodPatch)
	posts.HandleFunc("/{postID:[0-9]+}", postHandler.DeletePostHandler).Methods(http.MethodDelete)
	posts.HandleFunc("/{postID:[0-9]+}/comments", postHandler.ListCommentsHandler).Methods(http.MethodGet)
	posts.HandleFunc("/{postID:[0-9]+}/comments", postHandler.CreateCommentHandler).Methods(http.MethodPost)

	// 上传文件的静态服务
	staticPath := strings.TrimSuffix(deps.Storage.BaseURL, "/") + "/"
	if deps.Storage.Type == "local" && deps.Storage.LocalPath != "" && staticPath != "/" && strings.HasPrefix(staticPath, "/") {
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(http.Dir(deps.Storage.LocalPath))))
	}
	return r
}
