package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "TASKTRAIL"

// keys without defaults still need to be known to viper so that
// environment variables are picked up by Unmarshal.
var envOnlyKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"redis.password",
	"smtp.username",
	"smtp.password",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct validation plus the cross-field rules validator tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Cache.Driver == "redis" && cfg.Redis.Addr == "" {
		return fmt.Errorf("config validation failed: redis.addr is required when cache.driver is redis")
	}
	if cfg.Queue.Driver == "nats" && cfg.NATS.URL == "" {
		return fmt.Errorf("config validation failed: nats.url is required when queue.driver is nats")
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.From == "" {
		return fmt.Errorf("config validation failed: smtp.from is required when smtp.host is set")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.log_max_size_mb", 100)
	v.SetDefault("server.log_max_backups", 5)
	v.SetDefault("server.log_max_age_days", 28)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", 60*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("pagination.default_limit", 25)
	v.SetDefault("pagination.max_limit", 100)

	v.SetDefault("queue.driver", "local")
	v.SetDefault("queue.worker_count", 2)
	v.SetDefault("queue.queue_size", 100)
	v.SetDefault("queue.stuck_job_age_minutes", 30)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.stream", "JOBS")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "")

	v.SetDefault("notifications.attempts", 3)
	v.SetDefault("notifications.backoff", 5*time.Second)
}
