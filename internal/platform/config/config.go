package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full service configuration.
type Config struct {
	Server       Server
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Gateway      GatewayConfig
	Registration RegistrationConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	AdminToken     string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	AllowedOrigins []string
	BcryptCost     int
}

// DatabaseConfig selects Postgres when URL is set; otherwise in-memory stores are used.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the distributed reaper lock when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the outbox relay and notification publishing when Brokers is set.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	AuditTopic        string
	NotificationTopic string
	RelayInterval     time.Duration
	RelayBatchSize    int
	TopicPartitions   int32
	ReplicationFactor int16
}

// GatewayConfig points at the hosted-checkout provider. UseFake swaps in the
// in-process fake for local development.
type GatewayConfig struct {
	BaseURL          string
	SecretKey        string
	WebhookHash      string
	RedirectURL      string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	UseFake          bool
}

// RegistrationConfig holds workflow parameters.
type RegistrationConfig struct {
	Price             decimal.Decimal
	Currency          string
	ValidityDays      int
	ReaperInterval    time.Duration
	ReaperBatchSize   int
	NotifyConcurrency int
	ReaperLockTTL     time.Duration
}

// IsProduction reports whether the service runs with production safeguards.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// FromEnv builds the config from environment variables, loading an optional
// .env file first so main stays lean.
func FromEnv() (Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	price, err := decimal.NewFromString(getEnv("SUBSCRIPTION_PRICE", "20000"))
	if err != nil {
		return Config{}, fmt.Errorf("SUBSCRIPTION_PRICE: %w", err)
	}
	if !price.IsPositive() {
		return Config{}, fmt.Errorf("SUBSCRIPTION_PRICE must be positive")
	}

	cfg := Config{
		Server: Server{
			Addr:           getEnv("BRIGHTPATH_ADDR", ":8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AdminToken:     os.Getenv("ADMIN_API_TOKEN"),
			JWTSigningKey:  getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:      getEnv("JWT_ISSUER", "brightpath"),
			JWTAudience:    getEnv("JWT_AUDIENCE", "brightpath-api"),
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			BcryptCost:     getInt("BCRYPT_COST", 10),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           getList("KAFKA_BROKERS", nil),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "brightpath"),
			AuditTopic:        getEnv("KAFKA_AUDIT_TOPIC", "brightpath.audit"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "brightpath.notifications"),
			RelayInterval:     getDuration("OUTBOX_RELAY_INTERVAL", time.Second),
			RelayBatchSize:    getInt("OUTBOX_RELAY_BATCH_SIZE", 100),
			TopicPartitions:   int32(getInt("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(getInt("KAFKA_REPLICATION_FACTOR", 1)),
		},
		Gateway: GatewayConfig{
			BaseURL:          getEnv("GATEWAY_BASE_URL", "https://api.flutterwave.com"),
			SecretKey:        os.Getenv("GATEWAY_SECRET_KEY"),
			WebhookHash:      os.Getenv("GATEWAY_WEBHOOK_HASH"),
			RedirectURL:      getEnv("GATEWAY_REDIRECT_URL", "http://localhost:8080/v1/payments/callback"),
			Timeout:          getDuration("GATEWAY_TIMEOUT", 10*time.Second),
			FailureThreshold: getInt("GATEWAY_FAILURE_THRESHOLD", 5),
			Cooldown:         getDuration("GATEWAY_COOLDOWN", 30*time.Second),
			UseFake:          getBool("GATEWAY_USE_FAKE", false),
		},
		Registration: RegistrationConfig{
			Price:             price,
			Currency:          strings.ToUpper(getEnv("SUBSCRIPTION_CURRENCY", "RWF")),
			ValidityDays:      getInt("SUBSCRIPTION_VALIDITY_DAYS", 30),
			ReaperInterval:    getDuration("REAPER_INTERVAL", time.Hour),
			ReaperBatchSize:   getInt("REAPER_BATCH_SIZE", 200),
			NotifyConcurrency: getInt("REAPER_NOTIFY_CONCURRENCY", 8),
			ReaperLockTTL:     getDuration("REAPER_LOCK_TTL", 10*time.Minute),
		},
	}

	if cfg.IsProduction() {
		if err := cfg.validateProduction(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func (c Config) validateProduction() error {
	switch {
	case c.Server.JWTSigningKey == "dev-secret-key-change-in-production":
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	case c.Server.AdminToken == "":
		return fmt.Errorf("ADMIN_API_TOKEN must be set in production")
	case c.Gateway.UseFake:
		return fmt.Errorf("GATEWAY_USE_FAKE is not allowed in production")
	case c.Gateway.SecretKey == "" || c.Gateway.WebhookHash == "":
		return fmt.Errorf("GATEWAY_SECRET_KEY and GATEWAY_WEBHOOK_HASH must be set in production")
	case c.Database.URL == "":
		return fmt.Errorf("DATABASE_URL must be set in production")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
