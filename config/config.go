package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling; keys double as environment variable names.
type ServerConfig struct {
	HTTPPort         string `mapstructure:"HTTP_PORT"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	LogPretty        bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	OtelTracesStdout bool   `mapstructure:"OTEL_TRACES_STDOUT"`

	// STORE_BACKEND is "mongodb" or "memory".
	StoreBackend          string `mapstructure:"STORE_BACKEND"`
	MongoURI              string `mapstructure:"MONGO_URI"`
	MongoUsersDB          string `mapstructure:"MONGO_USERS_DB"`
	MongoProductsDB       string `mapstructure:"MONGO_PRODUCTS_DB"`
	MongoMaxPoolSize      uint64 `mapstructure:"MONGO_MAX_POOL_SIZE"`
	MongoMinPoolSize      uint64 `mapstructure:"MONGO_MIN_POOL_SIZE"`
	MongoConnectTimeout   int    `mapstructure:"MONGO_CONNECT_TIMEOUT"`   // seconds
	MongoOperationTimeout int    `mapstructure:"MONGO_OPERATION_TIMEOUT"` // seconds

	// CACHE_BACKEND is "redis" or "memory".
	CacheBackend       string `mapstructure:"CACHE_BACKEND"`
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisUsername      string `mapstructure:"REDIS_USERNAME"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int    `mapstructure:"REDIS_DB"`
	RedisTimeout       int    `mapstructure:"REDIS_TIMEOUT"` // seconds
	CacheExpireMinutes int    `mapstructure:"CACHE_EXPIRE_MINUTES"`

	JWTExpireMinutes int `mapstructure:"JWT_EXPIRE_MINUTES"`
	// Without a key file every restart invalidates all outstanding tokens.
	JWTPrivateKeyFile string `mapstructure:"JWT_PRIVATE_KEY_FILE"`

	// Requests per minute; 0 disables the limit.
	RateLimitAnonymous int `mapstructure:"RATE_LIMIT_ANONYMOUS"`
	RateLimitCustomers int `mapstructure:"RATE_LIMIT_CUSTOMERS"`
	RateLimitSellers   int `mapstructure:"RATE_LIMIT_SELLERS"`
	RateLimitAdmins    int `mapstructure:"RATE_LIMIT_ADMINS"`

	GoogleClientID         string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret     string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL      string `mapstructure:"GOOGLE_REDIRECT_URL"`
	GoogleFrontendRedirect string `mapstructure:"GOOGLE_FRONTEND_REDIRECT"`

	// Comma separated list of allowed origins.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *ServerConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// AllowedOrigins splits CORS_ORIGINS.
func (c *ServerConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *ServerConfig) validate() error {
	switch c.StoreBackend {
	case "mongodb", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.CacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.JWTExpireMinutes <= 0 {
		return errors.New("JWT_EXPIRE_MINUTES must be positive")
	}
	if c.CacheExpireMinutes <= 0 {
		return errors.New("CACHE_EXPIRE_MINUTES must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "market")
	v.SetDefault("OTEL_TRACES_STDOUT", false)

	v.SetDefault("STORE_BACKEND", "mongodb")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("MONGO_USERS_DB", "users")
	v.SetDefault("MONGO_PRODUCTS_DB", "products")
	v.SetDefault("MONGO_MAX_POOL_SIZE", 100)
	v.SetDefault("MONGO_MIN_POOL_SIZE", 0)
	v.SetDefault("MONGO_CONNECT_TIMEOUT", 10)
	v.SetDefault("MONGO_OPERATION_TIMEOUT", 5)

	v.SetDefault("CACHE_BACKEND", "redis")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_USERNAME", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TIMEOUT", 3)
	v.SetDefault("CACHE_EXPIRE_MINUTES", 60)

	v.SetDefault("JWT_EXPIRE_MINUTES", 60)
	v.SetDefault("JWT_PRIVATE_KEY_FILE", "")

	v.SetDefault("RATE_LIMIT_ANONYMOUS", 30)
	v.SetDefault("RATE_LIMIT_CUSTOMERS", 120)
	v.SetDefault("RATE_LIMIT_SELLERS", 240)
	v.SetDefault("RATE_LIMIT_ADMINS", 0)

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "")
	v.SetDefault("GOOGLE_FRONTEND_REDIRECT", "http://localhost:3000")

	v.SetDefault("CORS_ORIGINS", "")
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	// Set configuration file name and type
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Set search paths for the configuration file
	v.AddConfigPath("/etc/market/")
	v.AddConfigPath("$HOME/.market")
	v.AddConfigPath(".")

	return load(v)
}

func load(v *viper.Viper) (*ServerConfig, error) {
	// Read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
