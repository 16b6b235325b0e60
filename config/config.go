package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Database configuration
	DBDriver string
	DBDSN    string

	// Redis configuration
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	AvailabilityTTL time.Duration

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubCipherKey    string
	PubNubUUID         string
	BankChannel        string

	// Kafka configuration
	KafkaBrokers         []string
	KafkaGroupID         string
	KafkaPaymentTopic    string
	KafkaMockMode        bool
	KafkaConsumePayments bool

	// Stripe configuration
	StripeWebhookSecret string

	// Policy configuration
	ReservationWindow             time.Duration
	TransferCommissionRate        decimal.Decimal
	TransferVenueApprovalWindow   time.Duration
	TransferBuyerAcceptanceWindow time.Duration
	TransferPaymentWindow         time.Duration
	GeofenceRadiusMeters          float64
	RefundFeeRate                 decimal.Decimal

	// Sweeper configuration
	SweepInterval  time.Duration
	SweepBatchSize int

	// Scan throttle configuration
	ScanThrottleLimit  int
	ScanThrottleWindow time.Duration

	// Notification circuit breaker
	NotifyBreakerTimeout time.Duration

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads the environment, after merging a local .env file when present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Database
		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "file:eventgram.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"),

		// Redis
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		AvailabilityTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", "30s"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubCipherKey:    getEnv("PUBNUB_CIPHER_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "eventgram-api"),
		BankChannel:        getEnv("BANK_NOTIFICATION_CHANNEL", "bank-payment-notifications"),

		// Kafka
		KafkaBrokers:         getEnvAsList("KAFKA_BROKERS", "localhost:9092"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "eventgram-payments"),
		KafkaPaymentTopic:    getEnv("KAFKA_PAYMENT_TOPIC", "payment-callbacks"),
		KafkaMockMode:        getEnvAsBool("KAFKA_MOCK_MODE", true),
		KafkaConsumePayments: getEnvAsBool("KAFKA_CONSUME_PAYMENTS", false),

		// Stripe
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Policy
		ReservationWindow:             getEnvAsDuration("RESERVATION_WINDOW", "15m"),
		TransferCommissionRate:        getEnvAsDecimal("TRANSFER_COMMISSION_RATE", "0.15"),
		TransferVenueApprovalWindow:   getEnvAsDuration("TRANSFER_VENUE_APPROVAL_WINDOW", "48h"),
		TransferBuyerAcceptanceWindow: getEnvAsDuration("TRANSFER_BUYER_ACCEPTANCE_WINDOW", "72h"),
		TransferPaymentWindow:         getEnvAsDuration("TRANSFER_PAYMENT_WINDOW", "10m"),
		GeofenceRadiusMeters:          getEnvAsFloat("GEOFENCE_RADIUS_METERS", 100),
		RefundFeeRate:                 getEnvAsDecimal("REFUND_FEE_RATE", "0.10"),

		// Sweeper
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", "1m"),
		SweepBatchSize: getEnvAsInt("SWEEP_BATCH_SIZE", 100),

		// Scan throttle
		ScanThrottleLimit:  getEnvAsInt("SCAN_THROTTLE_LIMIT", 60),
		ScanThrottleWindow: getEnvAsDuration("SCAN_THROTTLE_WINDOW", "1m"),

		NotifyBreakerTimeout: getEnvAsDuration("NOTIFY_BREAKER_TIMEOUT", "30s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	if value, err := decimal.NewFromString(getEnv(key, defaultValue)); err == nil {
		return value
	}
	return decimal.RequireFromString(defaultValue)
}

func getEnvAsList(key string, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
