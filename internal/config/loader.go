package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.sqs.region", "BROKER_SQS_REGION")
	viper.BindEnv("broker.sqs.endpoint", "BROKER_SQS_ENDPOINT")
	viper.BindEnv("broker.sqs.access_key_id", "BROKER_SQS_ACCESS_KEY_ID")
	viper.BindEnv("broker.sqs.secret_access_key", "BROKER_SQS_SECRET_ACCESS_KEY")

	viper.BindEnv("queues.prefix", "QUEUES_PREFIX")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func setDefaults() {
	viper.SetDefault("broker.type", "memory")

	viper.SetDefault("queues.orders.name", "orders")
	viper.SetDefault("queues.orders.visibility_timeout_seconds", 60)
	viper.SetDefault("queues.orders.max_receive_count", 3)

	viper.SetDefault("queues.payments.name", "payments")
	viper.SetDefault("queues.payments.visibility_timeout_seconds", 120)
	// payments gets more retries due to the flaky external dependency
	viper.SetDefault("queues.payments.max_receive_count", 5)

	viper.SetDefault("queues.inventory.name", "inventory")
	viper.SetDefault("queues.inventory.visibility_timeout_seconds", 30)
	viper.SetDefault("queues.inventory.max_receive_count", 3)

	viper.SetDefault("queues.notifications.name", "notifications")
	viper.SetDefault("queues.notifications.visibility_timeout_seconds", 30)
	viper.SetDefault("queues.notifications.max_receive_count", 3)

	viper.SetDefault("runtime.batch_size", 10)
	viper.SetDefault("runtime.wait_time_seconds", 20)
	viper.SetDefault("runtime.handler_timeout", "25s")
	viper.SetDefault("runtime.stop_grace", "30s")
	viper.SetDefault("runtime.idempotency_store", "memory")
	viper.SetDefault("runtime.idempotency_capacity", 10000)
	viper.SetDefault("runtime.idempotency_ttl", "1h")

	viper.SetDefault("payment.failure_rate", 0.1)
	viper.SetDefault("payment.failure_marker", "FAIL")
	viper.SetDefault("payment.min_latency", "100ms")
	viper.SetDefault("payment.max_latency", "400ms")
	viper.SetDefault("payment.emit_result_events", true)

	viper.SetDefault("inventory.reservation_ttl", "30m")
	viper.SetDefault("inventory.sweep_interval", "1m")

	viper.SetDefault("notification.rate_limit_per_hour", 10)

	viper.SetDefault("monitor.wait_time_seconds", 10)
}
