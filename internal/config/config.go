package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	GatewayMock = "mock"
	GatewayHTTP = "http"
)

// Config holds all settings for the mobile-money service. Values come from
// environment variables, optionally seeded from a .env file.
type Config struct {
	Port        string `mapstructure:"PORT"`
	ServiceName string `mapstructure:"SERVICE_NAME"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	KafkaBrokers      string `mapstructure:"KAFKA_BROKERS"`
	KafkaStatusTopic  string `mapstructure:"KAFKA_STATUS_TOPIC"`
	NatsURL           string `mapstructure:"NATS_URL"`
	NatsSubjectPrefix string `mapstructure:"NATS_SUBJECT_PREFIX"`
	JaegerEndpoint    string `mapstructure:"JAEGER_ENDPOINT"`

	GatewayProvider        string        `mapstructure:"GATEWAY_PROVIDER"`
	GatewayBaseURL         string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayAPIKey          string        `mapstructure:"GATEWAY_API_KEY"`
	GatewayTimeout         time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	MockGatewaySuccessRate float64       `mapstructure:"MOCK_GATEWAY_SUCCESS_RATE"`
	MockGatewayLatency     time.Duration `mapstructure:"MOCK_GATEWAY_LATENCY"`

	PublicBaseURL      string        `mapstructure:"PUBLIC_BASE_URL"`
	CORSAllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	IdempotencyTTL     time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	VerificationInterval        time.Duration `mapstructure:"VERIFICATION_INTERVAL"`
	VerificationFirstCheckDelay time.Duration `mapstructure:"VERIFICATION_FIRST_CHECK_DELAY"`
	VerificationRecheckInterval time.Duration `mapstructure:"VERIFICATION_RECHECK_INTERVAL"`
	PaymentExpiry               time.Duration `mapstructure:"PAYMENT_EXPIRY"`
	VerificationBatchSize       int           `mapstructure:"VERIFICATION_BATCH_SIZE"`
	VerificationBatchPause      time.Duration `mapstructure:"VERIFICATION_BATCH_PAUSE"`
	VerificationTimeout         time.Duration `mapstructure:"VERIFICATION_TIMEOUT"`
	VerificationLockTTL         time.Duration `mapstructure:"VERIFICATION_LOCK_TTL"`
	VerificationStartDelay      time.Duration `mapstructure:"VERIFICATION_START_DELAY"`
}

var keys = []string{
	"PORT", "SERVICE_NAME",
	"STORE_DRIVER", "DATABASE_URL", "REDIS_URL",
	"KAFKA_BROKERS", "KAFKA_STATUS_TOPIC", "NATS_URL", "NATS_SUBJECT_PREFIX", "JAEGER_ENDPOINT",
	"GATEWAY_PROVIDER", "GATEWAY_BASE_URL", "GATEWAY_API_KEY", "GATEWAY_TIMEOUT",
	"MOCK_GATEWAY_SUCCESS_RATE", "MOCK_GATEWAY_LATENCY",
	"PUBLIC_BASE_URL", "CORS_ALLOWED_ORIGINS", "IDEMPOTENCY_TTL",
	"VERIFICATION_INTERVAL", "VERIFICATION_FIRST_CHECK_DELAY", "VERIFICATION_RECHECK_INTERVAL",
	"PAYMENT_EXPIRY", "VERIFICATION_BATCH_SIZE", "VERIFICATION_BATCH_PAUSE",
	"VERIFICATION_TIMEOUT", "VERIFICATION_LOCK_TTL", "VERIFICATION_START_DELAY",
}

// LoadConfig reads configuration from the environment and an optional .env
// file in path, then validates it.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8085")
	viper.SetDefault("SERVICE_NAME", "mobile-money-service")
	viper.SetDefault("STORE_DRIVER", StoreMemory)
	viper.SetDefault("KAFKA_STATUS_TOPIC", "mobile_money.payment.status_changed")
	viper.SetDefault("NATS_SUBJECT_PREFIX", "mobile_money.payments")
	viper.SetDefault("GATEWAY_PROVIDER", GatewayMock)
	viper.SetDefault("GATEWAY_TIMEOUT", "30s")
	viper.SetDefault("MOCK_GATEWAY_SUCCESS_RATE", 0.9)
	viper.SetDefault("MOCK_GATEWAY_LATENCY", "0s")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:8085")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("IDEMPOTENCY_TTL", "24h")
	viper.SetDefault("VERIFICATION_INTERVAL", "2m")
	viper.SetDefault("VERIFICATION_FIRST_CHECK_DELAY", "5m")
	viper.SetDefault("VERIFICATION_RECHECK_INTERVAL", "2m")
	viper.SetDefault("PAYMENT_EXPIRY", "24h")
	viper.SetDefault("VERIFICATION_BATCH_SIZE", 10)
	viper.SetDefault("VERIFICATION_BATCH_PAUSE", "1s")
	viper.SetDefault("VERIFICATION_TIMEOUT", "30s")
	viper.SetDefault("VERIFICATION_LOCK_TTL", "1m")
	viper.SetDefault("VERIFICATION_START_DELAY", "0s")

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	config.GatewayProvider = strings.ToLower(strings.TrimSpace(config.GatewayProvider))
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")

	err = config.Validate()
	return config, err
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.GatewayProvider {
	case GatewayMock:
		if c.MockGatewaySuccessRate < 0 || c.MockGatewaySuccessRate > 1 {
			return fmt.Errorf("MOCK_GATEWAY_SUCCESS_RATE must be within [0,1], got %v", c.MockGatewaySuccessRate)
		}
	case GatewayHTTP:
		if c.GatewayBaseURL == "" {
			return errors.New("GATEWAY_BASE_URL is required when GATEWAY_PROVIDER=http")
		}
	default:
		return fmt.Errorf("unsupported GATEWAY_PROVIDER %q", c.GatewayProvider)
	}

	if c.VerificationBatchSize <= 0 {
		return errors.New("VERIFICATION_BATCH_SIZE must be positive")
	}
	positive := map[string]time.Duration{
		"VERIFICATION_INTERVAL":         c.VerificationInterval,
		"VERIFICATION_RECHECK_INTERVAL": c.VerificationRecheckInterval,
		"PAYMENT_EXPIRY":                c.PaymentExpiry,
		"VERIFICATION_TIMEOUT":          c.VerificationTimeout,
		"GATEWAY_TIMEOUT":               c.GatewayTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// KafkaBrokerList splits KAFKA_BROKERS on commas.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
