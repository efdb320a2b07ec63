package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stripe   StripeConfig
	Pricing  PricingConfig
	Booking  BookingConfig
	Auth     AuthConfig
}

type AuthConfig struct {
	// OIDCIssuer empty means unverified dev tokens.
	OIDCIssuer string
	// QRSecret keys the AES encryption of ticket QR payloads.
	QRSecret string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
	// SeatHoldTTL bounds the advisory redis hold taken in front of the
	// ledger CAS; expiry is harmless because the ledger is authoritative.
	SeatHoldTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// PricingConfig carries the pricing constants. PointValue (currency saved
// per point redeemed) and AwardRate (fraction of a paid amount awarded
// back as points) are deliberately independent knobs.
type PricingConfig struct {
	PremiumMultiplier  float64
	StandardMultiplier float64
	EconomyMultiplier  float64
	PointValue         float64
	AwardRate          float64
	Currency           string
}

type BookingConfig struct {
	SeatsPerBookingCap int
	PaymentTimeout     time.Duration
	MaxPaymentRetries  int
	ClaimMaxRetries    int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "cinebook"),
			Password:     getEnv("DB_PASSWORD", "cinebook"),
			Database:     getEnv("DB_NAME", "cinebook"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			SeatHoldTTL: time.Duration(getEnvInt("SEAT_HOLD_TTL_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Topic:   getEnv("KAFKA_TOPIC_BOOKINGS", "booking-events"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/loading/my-bookings"),
			CancelURL:     getEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/my-bookings"),
		},
		Pricing: PricingConfig{
			PremiumMultiplier:  getEnvFloat("TIER_MULTIPLIER_PREMIUM", 1.5),
			StandardMultiplier: getEnvFloat("TIER_MULTIPLIER_STANDARD", 1.0),
			EconomyMultiplier:  getEnvFloat("TIER_MULTIPLIER_ECONOMY", 0.8),
			PointValue:         getEnvFloat("LOYALTY_POINT_VALUE", 0.01),
			AwardRate:          getEnvFloat("LOYALTY_AWARD_RATE", 0.01),
			Currency:           getEnv("PRICING_CURRENCY", "usd"),
		},
		Booking: BookingConfig{
			SeatsPerBookingCap: getEnvInt("SEATS_PER_BOOKING_CAP", 5),
			PaymentTimeout:     time.Duration(getEnvInt("PAYMENT_TIMEOUT_MINUTES", 30)) * time.Minute,
			MaxPaymentRetries:  getEnvInt("PAYMENT_MAX_RETRIES", 3),
			ClaimMaxRetries:    getEnvInt("CLAIM_MAX_RETRIES", 5),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			QRSecret:   getEnv("QR_SECRET", "cinebook-dev-secret"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
