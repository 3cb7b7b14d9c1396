package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Auth          AuthConfig          `mapstructure:"auth" validate:"required"`
	Cache         CacheConfig         `mapstructure:"cache" validate:"required"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Pagination    PaginationConfig    `mapstructure:"pagination" validate:"required"`
	Queue         QueueConfig         `mapstructure:"queue" validate:"required"`
	NATS          NATSConfig          `mapstructure:"nats"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	Notifications NotificationsConfig `mapstructure:"notifications" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFile, when set, receives a rotated copy of every log line.
	LogFile         string        `mapstructure:"log_file"`
	LogMaxSizeMB    int           `mapstructure:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups   int           `mapstructure:"log_max_backups" validate:"gte=0"`
	LogMaxAgeDays   int           `mapstructure:"log_max_age_days" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// CacheConfig selects the pagination cache backend.
type CacheConfig struct {
	Driver string        `mapstructure:"driver" validate:"required,oneof=memory redis"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// RedisConfig is used when Cache.Driver is "redis".
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"gte=0"`
	PoolSize     int           `mapstructure:"pool_size" validate:"gte=0"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PaginationConfig bounds page sizes.
type PaginationConfig struct {
	DefaultLimit int `mapstructure:"default_limit" validate:"required,gt=0,ltefield=MaxLimit"`
	MaxLimit     int `mapstructure:"max_limit" validate:"required,gt=0"`
}

// QueueConfig selects and sizes the background job queue.
type QueueConfig struct {
	Driver             string `mapstructure:"driver" validate:"required,oneof=local nats"`
	WorkerCount        int    `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize          int    `mapstructure:"queue_size" validate:"gt=0"`
	StuckJobAgeMinutes int    `mapstructure:"stuck_job_age_minutes" validate:"gt=0"`
}

// NATSConfig is used when Queue.Driver is "nats".
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
}

// SMTPConfig configures outbound email. An empty Host logs emails instead of sending them.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
}

// NotificationsConfig controls retry behaviour of assignment emails.
type NotificationsConfig struct {
	Attempts int           `mapstructure:"attempts" validate:"required,gt=0"`
	Backoff  time.Duration `mapstructure:"backoff" validate:"gte=0"`
}
