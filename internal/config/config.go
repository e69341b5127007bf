package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Queues         QueuesConfig         `mapstructure:"queues"`
	Runtime        RuntimeConfig        `mapstructure:"runtime"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Payment        PaymentConfig        `mapstructure:"payment"`
	Inventory      InventoryConfig      `mapstructure:"inventory"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Monitor        MonitorConfig        `mapstructure:"monitor"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BrokerConfig struct {
	Type string    `mapstructure:"type"` // "memory" or "sqs"
	SQS  SQSConfig `mapstructure:"sqs"`
}

type SQSConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // custom endpoint for localstack
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type QueuesConfig struct {
	Prefix        string    `mapstructure:"prefix"`
	Orders        QueueSpec `mapstructure:"orders"`
	Payments      QueueSpec `mapstructure:"payments"`
	Inventory     QueueSpec `mapstructure:"inventory"`
	Notifications QueueSpec `mapstructure:"notifications"`
}

type QueueSpec struct {
	Name                     string `mapstructure:"name"`
	VisibilityTimeoutSeconds int    `mapstructure:"visibility_timeout_seconds"`
	MaxReceiveCount          int    `mapstructure:"max_receive_count"`
}

type RuntimeConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`
	WaitTimeSeconds     int           `mapstructure:"wait_time_seconds"`
	HandlerTimeout      time.Duration `mapstructure:"handler_timeout"`
	StopGrace           time.Duration `mapstructure:"stop_grace"`
	IdempotencyStore    string        `mapstructure:"idempotency_store"` // "memory" or "redis"
	IdempotencyCapacity int           `mapstructure:"idempotency_capacity"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PaymentConfig struct {
	FailureRate      float64       `mapstructure:"failure_rate"`
	FailureMarker    string        `mapstructure:"failure_marker"`
	MinLatency       time.Duration `mapstructure:"min_latency"`
	MaxLatency       time.Duration `mapstructure:"max_latency"`
	EmitResultEvents bool          `mapstructure:"emit_result_events"`
}

type InventoryConfig struct {
	Stock          []StockSeed   `mapstructure:"stock"`
	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type StockSeed struct {
	ProductID string `mapstructure:"product_id"`
	SKU       string `mapstructure:"sku"`
	Available int    `mapstructure:"available"`
}

type NotificationConfig struct {
	RateLimitPerHour int `mapstructure:"rate_limit_per_hour"`
}

type MonitorConfig struct {
	WaitTimeSeconds int             `mapstructure:"wait_time_seconds"`
	AdminRateLimit  RateLimitConfig `mapstructure:"admin_rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
