// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/dealer-syndication/internal/logging"
)

// Config holds the process-wide settings.
type Config struct {
	Env       string
	Port      string
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	JWTSecret string // shared with the identity provider (HS256)

	// IngestAPIKey is the static bearer token of the automated intake
	// channel; IngestPartnerID is the partner it writes for.
	IngestAPIKey    string
	IngestPartnerID uint64

	AnalysisWebhookURL     string // empty disables the call
	AnalysisWebhookTimeout time.Duration
	RabbitMQURL            string // empty disables events
	AuditLogPath           string
	MigrateOnStart         bool
}

// Load reads a .env file when present and then the environment.  A
// missing required variable is fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Msg("could not read .env file")
	}
	return Config{
		Env:                    must("APP_ENV"),
		Port:                   must("APP_PORT"),
		DBUser:                 must("DB_USER"),
		DBPass:                 os.Getenv("DB_PASS"),
		DBHost:                 must("DB_HOST"),
		DBPort:                 must("DB_PORT"),
		DBName:                 must("DB_NAME"),
		JWTSecret:              must("JWT_SECRET"),
		IngestAPIKey:           os.Getenv("INGEST_API_KEY"),
		IngestPartnerID:        uint64(max(envInt("INGEST_PARTNER_ID", 0), 0)),
		AnalysisWebhookURL:     os.Getenv("ANALYSIS_WEBHOOK_URL"),
		AnalysisWebhookTimeout: envDur("ANALYSIS_WEBHOOK_TIMEOUT", 5*time.Second),
		RabbitMQURL:            envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		AuditLogPath:           envStr("AUDIT_LOG_PATH", "logs/marketplace.log"),
		MigrateOnStart:         envBool("DB_MIGRATE", false),
	}
}

// IngestionEnabled reports whether a complete ingestion credential is set.
func (c Config) IngestionEnabled() bool {
	return c.IngestAPIKey != "" && c.IngestPartnerID != 0
}

func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logging.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}
