package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string

	// TimeZone is the hospital's business day boundary used by reconciliation.
	TimeZone string

	OTLPEndpoint string
	OTLPProtocol string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Metrics MetricsPushConfig

	Gateways GatewayConfig

	Scheduler SchedulerConfig

	RateLimit RateLimitConfig

	// SeedCatalog creates the starter service catalog on boot.
	SeedCatalog bool

	SnowflakeNode int64
}

// MetricsPushConfig configures the outbound metrics pusher used by batch deployments.
type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// GatewayConfig holds webhook secrets for payment gateways. An empty secret
// disables the gateway.
type GatewayConfig struct {
	PaystackSecretKey     string
	FlutterwaveSecretHash string
}

// RateLimitConfig bounds webhook intake per gateway and client address.
// It needs REDIS_ADDR.
type RateLimitConfig struct {
	Enabled      bool
	WebhookRate  float64
	WebhookBurst int
}

type SchedulerConfig struct {
	Enabled                bool
	LeakSweepInterval      time.Duration
	ReconciliationInterval time.Duration
	JobTimeout             time.Duration
	CloseOpenEncounters    bool
	// EnabledJobs limits which jobs run; empty runs all of them.
	EnabledJobs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "carebill"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPPort:     getenv("HTTP_PORT", "8080"),
		TimeZone:     getenv("BILLING_TIMEZONE", "Africa/Lagos"),
		OTLPEndpoint: strings.TrimSpace(getenv("OTLP_ENDPOINT", "")),
		OTLPProtocol: strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "carebill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "carebill.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Metrics: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "pushgateway")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", 30*time.Second),
		},

		Gateways: GatewayConfig{
			PaystackSecretKey:     strings.TrimSpace(getenv("PAYSTACK_SECRET_KEY", "")),
			FlutterwaveSecretHash: strings.TrimSpace(getenv("FLUTTERWAVE_SECRET_HASH", "")),
		},

		Scheduler: SchedulerConfig{
			Enabled:                getenvBool("SCHEDULER_ENABLED", true),
			LeakSweepInterval:      getenvDuration("SCHEDULER_LEAK_SWEEP_INTERVAL", 15*time.Minute),
			ReconciliationInterval: getenvDuration("SCHEDULER_RECONCILIATION_INTERVAL", time.Hour),
			JobTimeout:             getenvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
			CloseOpenEncounters:    getenvBool("RECONCILIATION_CLOSE_OPEN_ENCOUNTERS", false),
			EnabledJobs:            getenvList("SCHEDULER_JOBS"),
		},

		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			WebhookRate:  getenvFloat("RATE_LIMIT_WEBHOOK_RPS", 20),
			WebhookBurst: getenvInt("RATE_LIMIT_WEBHOOK_BURST", 40),
		},

		SeedCatalog: getenvBool("SEED_CATALOG", false),

		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location resolves the configured business time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.TimeZone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
