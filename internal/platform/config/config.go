package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	Addr                  string
	AppBaseURL            string
	DatabaseURL           string
	JWTSecret             string
	DataEncryptionKey     string
	FrontendDir           string
	MigrationsDir         string
	Environment           string
	LogLevel              string
	LogFormat             string
	SeedAdminEmail        string
	SeedAdminPassword     string
	EmailFrom             string
	EmailEnabled          bool
	SMTPHost              string
	SMTPPort              int
	SMTPUser              string
	SMTPPassword          string
	SMTPUseTLS            bool
	RunMigrations         bool
	RunSeed               bool
	MaxBodyBytes          int64
	MaxUploadBytes        int64
	RateLimitPerMinute    int
	PublicLookupPerMinute int
	TokenTTL              time.Duration
	ExpiryDigestCron      string
	SessionCleanupCron    string
	StorageBackend        string
	StorageDir            string
	S3Bucket              string
	AWSRegion             string
	AWSEndpointURL        string
	PresignTTL            time.Duration
	MetricsEnabled        bool
	Timezone              string
}

// Load reads .env (when present) and then the process environment. Values
// already set in the environment win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv load failed", "err", err)
	}
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:                  getEnv("APP_ADDR", ":8080"),
		AppBaseURL:            strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		DataEncryptionKey:     getEnv("DATA_ENCRYPTION_KEY", ""),
		FrontendDir:           getEnv("FRONTEND_DIR", "frontend/dist"),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", "migrations"),
		Environment:           getEnv("APP_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
		SeedAdminEmail:        getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:     getEnv("SEED_ADMIN_PASSWORD", ""),
		EmailFrom:             getEnv("EMAIL_FROM", "no-reply@notifycsc.local"),
		EmailEnabled:          getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              getEnvInt("SMTP_PORT", 587),
		SMTPUser:              getEnv("SMTP_USER", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:            getEnvBool("SMTP_USE_TLS", true),
		RunMigrations:         getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:               getEnvBool("RUN_SEED", true),
		MaxBodyBytes:          int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		MaxUploadBytes:        int64(getEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		PublicLookupPerMinute: getEnvInt("PUBLIC_LOOKUP_PER_MINUTE", 20),
		TokenTTL:              getEnvDuration("TOKEN_TTL", 8*time.Hour),
		ExpiryDigestCron:      getEnv("EXPIRY_DIGEST_CRON", "0 7 * * *"),
		SessionCleanupCron:    getEnv("SESSION_CLEANUP_CRON", "@hourly"),
		StorageBackend:        strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		StorageDir:            getEnv("STORAGE_DIR", "storage/documents"),
		S3Bucket:              getEnv("S3_BUCKET", ""),
		AWSRegion:             getEnv("AWS_REGION", "ap-south-1"),
		AWSEndpointURL:        getEnv("AWS_ENDPOINT_URL", ""),
		PresignTTL:            getEnvDuration("PRESIGN_TTL", 15*time.Minute),
		MetricsEnabled:        getEnvBool("METRICS_ENABLED", true),
		Timezone:              getEnv("APP_TIMEZONE", "Asia/Kolkata"),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed or RUN_SEED disabled in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.MaxUploadBytes < c.MaxBodyBytes {
		return fmt.Errorf("MAX_UPLOAD_BYTES must not be smaller than MAX_BODY_BYTES")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.PublicLookupPerMinute <= 0 {
		return fmt.Errorf("PUBLIC_LOOKUP_PER_MINUTE must be positive")
	}
	if c.TokenTTL < time.Minute {
		return fmt.Errorf("TOKEN_TTL must be at least 1m")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE is not a known location: %w", err)
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	switch c.StorageBackend {
	case StorageLocal:
		if strings.TrimSpace(c.StorageDir) == "" {
			return fmt.Errorf("STORAGE_DIR must be set for local storage")
		}
	case StorageS3:
		if strings.TrimSpace(c.S3Bucket) == "" {
			return fmt.Errorf("S3_BUCKET must be set when STORAGE_BACKEND is s3")
		}
		if c.PresignTTL <= 0 {
			return fmt.Errorf("PRESIGN_TTL must be positive")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q", StorageLocal, StorageS3)
	}
	for key, spec := range map[string]string{
		"EXPIRY_DIGEST_CRON":   c.ExpiryDigestCron,
		"SESSION_CLEANUP_CRON": c.SessionCleanupCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s is not a valid cron spec: %w", key, err)
		}
	}
	return nil
}
