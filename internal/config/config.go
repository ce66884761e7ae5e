package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIServerConfig 保存 API 服务器特有的配置。
type APIServerConfig struct {
	Host         string        `mapstructure:"HOST"`
	Port         string        `mapstructure:"PORT"`
	ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	CORS         CORSConfig    `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName    string          `mapstructure:"APP_NAME"`
	AppVersion string          `mapstructure:"APP_VERSION"`
	LogLevel   string          `mapstructure:"LOG_LEVEL"`
	APIServer  APIServerConfig `mapstructure:"API_SERVER"`
	Kafka      KafkaConfig     `mapstructure:"KAFKA"`
	Database   DatabaseConfig  `mapstructure:"DATABASE"`
	Storage    StorageConfig   `mapstructure:"STORAGE"`
	Auth       AuthConfig      `mapstructure:"AUTH"`
	Redis      RedisConfig     `mapstructure:"REDIS"`
	Policy     PolicyConfig    `mapstructure:"POLICY"`
}

// KafkaConfig holds configuration for Kafka.
// An empty Brokers list disables activity publishing.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"BROKERS"`
	ClientID      string   `mapstructure:"CLIENT_ID"`
	ActivityTopic string   `mapstructure:"ACTIVITY_TOPIC"` // friendship / post lifecycle events
	ConsumerGroup string   `mapstructure:"CONSUMER_GROUP"` // used by the admin events tail command
	Protocol      string   `mapstructure:"PROTOCOL"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Brokers[0] != ""
}

// DatabaseConfig holds configuration for the database.
type DatabaseConfig struct {
	Type       string `mapstructure:"TYPE"` // "postgres", "mysql", "sqlite"
	Host       string `mapstructure:"HOST"`
	Port       int    `mapstructure:"PORT"`
	User       string `mapstructure:"USER"`
	Password   string `mapstructure:"PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	SSLMode    string `mapstructure:"SSL_MODE"`
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	LogLevel   string `mapstructure:"LOG_LEVEL"` // silent, error, warn, info
}

// StorageConfig holds configuration for blob storage (post images, profile pictures).
type StorageConfig struct {
	Type      string `mapstructure:"TYPE"` // only "local" for now
	LocalPath string `mapstructure:"LOCAL_PATH"`
	BaseURL   string `mapstructure:"BASE_URL"`
}

// AuthConfig holds configuration for authentication (e.g., JWT).
type AuthConfig struct {
	JWTSecretKey string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
}

// PolicyConfig holds the business limits enforced by the friendship and post services.
type PolicyConfig struct {
	MaxFriends             int64         `mapstructure:"MAX_FRIENDS"`
	MaxPosts               int64         `mapstructure:"MAX_POSTS"`
	PostCooldown           time.Duration `mapstructure:"POST_COOLDOWN"`
	FeedPageSize           int           `mapstructure:"FEED_PAGE_SIZE"`
	FeedMaxPageSize        int           `mapstructure:"FEED_MAX_PAGE_SIZE"`
	MaxCaptionLength       int           `mapstructure:"MAX_CAPTION_LENGTH"`
	MaxPostImageBytes      int64         `mapstructure:"MAX_POST_IMAGE_BYTES"`
	MaxProfilePictureBytes int64         `mapstructure:"MAX_PROFILE_PICTURE_BYTES"`
}

// DefaultPolicy returns the limits used when nothing is configured.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		MaxFriends:             5000,
		MaxPosts:               1000,
		PostCooldown:           5 * time.Minute,
		FeedPageSize:           10,
		FeedMaxPageSize:        50,
		MaxCaptionLength:       255,
		MaxPostImageBytes:      2 << 20,
		MaxProfilePictureBytes: 500 << 10,
	}
}

// Validate rejects limits that would make the services misbehave.
func (p PolicyConfig) Validate() error {
	switch {
	case p.MaxFriends <= 0:
		return fmt.Errorf("POLICY.MAX_FRIENDS must be positive, got %d", p.MaxFriends)
	case p.MaxPosts <= 0:
		return fmt.Errorf("POLICY.MAX_POSTS must be positive, got %d", p.MaxPosts)
	case p.PostCooldown < 0:
		return fmt.Errorf("POLICY.POST_COOLDOWN must not be negative, got %s", p.PostCooldown)
	case p.FeedPageSize <= 0 || p.FeedMaxPageSize <= 0:
		return fmt.Errorf("POLICY feed page sizes must be positive")
	case p.FeedPageSize > p.FeedMaxPageSize:
		return fmt.Errorf("POLICY.FEED_PAGE_SIZE (%d) exceeds FEED_MAX_PAGE_SIZE (%d)", p.FeedPageSize, p.FeedMaxPageSize)
	case p.MaxCaptionLength <= 0:
		return fmt.Errorf("POLICY.MAX_CAPTION_LENGTH must be positive")
	case p.MaxPostImageBytes <= 0 || p.MaxProfilePictureBytes <= 0:
		return fmt.Errorf("POLICY image size limits must be positive")
	}
	return nil
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "friendfeed")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8081")
	v.SetDefault("API_SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300)

	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "friendfeed")
	v.SetDefault("KAFKA.ACTIVITY_TOPIC", "friendfeed-activity")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "friendfeed-admin")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "friendfeed")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.SQLITE_PATH", "friendfeed.db")
	v.SetDefault("DATABASE.LOG_LEVEL", "warn")

	v.SetDefault("STORAGE.TYPE", "local")
	v.SetDefault("STORAGE.LOCAL_PATH", "./uploads")
	v.SetDefault("STORAGE.BASE_URL", "/uploads")

	v.SetDefault("AUTH.JWT_SECRET_KEY", "a_very_secret_key_that_should_be_changed")
	v.SetDefault("AUTH.JWT_EXPIRY", 15*time.Minute)

	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	policy := DefaultPolicy()
	v.SetDefault("POLICY.MAX_FRIENDS", policy.MaxFriends)
	v.SetDefault("POLICY.MAX_POSTS", policy.MaxPosts)
	v.SetDefault("POLICY.POST_COOLDOWN", policy.PostCooldown)
	v.SetDefault("POLICY.FEED_PAGE_SIZE", policy.FeedPageSize)
	v.SetDefault("POLICY.FEED_MAX_PAGE_SIZE", policy.FeedMaxPageSize)
	v.SetDefault("POLICY.MAX_CAPTION_LENGTH", policy.MaxCaptionLength)
	v.SetDefault("POLICY.MAX_POST_IMAGE_BYTES", policy.MaxPostImageBytes)
	v.SetDefault("POLICY.MAX_PROFILE_PICTURE_BYTES", policy.MaxProfilePictureBytes)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// POLICY_MAX_FRIENDS overrides POLICY.MAX_FRIENDS, and so on.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// Defaults are enough to boot.
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Policy.Validate()
	return
}
