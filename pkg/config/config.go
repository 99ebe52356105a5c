package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugh/easy-diagrams/pkg/util"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Render     RenderConfig
	OAuth      OAuthConfig
	Storage    StorageConfig
	CORS       CORSConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// EncryptionConfig holds the age identity used to seal login state cookies.
type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// RenderConfig controls how diagram code is turned into images.
type RenderConfig struct {
	UseLocal       bool   // run the plantuml wrapper from PATH instead of java -jar
	JarPath        string
	LimitSize      int    // PLANTUML_LIMIT_SIZE
	TimeoutSeconds int
	Async          bool   // enqueue renders on the worker instead of rendering in-request
	SweepCron      string
	SweepBatch     int
}

type OAuthConfig struct {
	Provider     string // google, dummy
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// StorageConfig configures the optional mirror for public diagram images.
type StorageConfig struct {
	Backend         string // none, s3, gcs
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (r *RenderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "diagrams")
	v.SetDefault("DATABASE_PASSWORD", "diagrams_secret")
	v.SetDefault("DATABASE_NAME", "diagrams")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("PLANTUML_USE_LOCAL", false)
	v.SetDefault("PLANTUML_JAR", "/plantuml/plantuml.jar")
	v.SetDefault("PLANTUML_LIMIT_SIZE", 8192)
	v.SetDefault("RENDER_TIMEOUT_SECONDS", 30)
	v.SetDefault("RENDER_ASYNC", false)
	v.SetDefault("RENDER_SWEEP_CRON", "*/10 * * * *")
	v.SetDefault("RENDER_SWEEP_BATCH", 50)
	v.SetDefault("OAUTH_PROVIDER", "dummy")
	v.SetDefault("STORAGE_BACKEND", "none")
	v.SetDefault("STORAGE_PREFIX", "diagrams/")
	v.SetDefault("STORAGE_REGION", "us-east-1")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Render: RenderConfig{
			UseLocal:       v.GetBool("PLANTUML_USE_LOCAL"),
			JarPath:        v.GetString("PLANTUML_JAR"),
			LimitSize:      v.GetInt("PLANTUML_LIMIT_SIZE"),
			TimeoutSeconds: v.GetInt("RENDER_TIMEOUT_SECONDS"),
			Async:          v.GetBool("RENDER_ASYNC"),
			SweepCron:      v.GetString("RENDER_SWEEP_CRON"),
			SweepBatch:     v.GetInt("RENDER_SWEEP_BATCH"),
		},
		OAuth: OAuthConfig{
			Provider:     v.GetString("OAUTH_PROVIDER"),
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
		Storage: StorageConfig{
			Backend:         v.GetString("STORAGE_BACKEND"),
			Bucket:          v.GetString("STORAGE_BUCKET"),
			Prefix:          v.GetString("STORAGE_PREFIX"),
			Region:          v.GetString("STORAGE_REGION"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := util.ValidateCronExpr(c.Render.SweepCron); err != nil {
		return fmt.Errorf("RENDER_SWEEP_CRON: %w", err)
	}

	switch c.OAuth.Provider {
	case "dummy":
	case "google":
		if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
			return fmt.Errorf("google oauth requires GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
		}
	default:
		return fmt.Errorf("unknown OAUTH_PROVIDER %q", c.OAuth.Provider)
	}

	switch c.Storage.Backend {
	case "none", "":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required for backend %q", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
