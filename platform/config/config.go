// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides redis connection settings for the idempotency guard,
// the poll cursor, and the task queue.
type RedisConfig interface {
	GetRedisURL() string
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SMTPConfig provides settings for outbound mail.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetEmailEnabled() bool
}

// IMAPConfig provides settings for inbox reply polling.
type IMAPConfig interface {
	GetIMAPHost() string
	GetIMAPPort() int
	GetIMAPUsername() string
	GetIMAPPassword() string
	GetIMAPFolder() string
	IsIMAPEnabled() bool
}

// CalendarConfig provides settings for the calendar booking service.
type CalendarConfig interface {
	GetCalendarURL() string
	GetCalendarAPIKey() string
	IsCalendarEnabled() bool
}

// AIConfig provides settings for the language-model backend.
type AIConfig interface {
	GetKimiAPIKey() string
	GetKimiBaseURL() string
	GetKimiModel() string
	IsAIEnabled() bool
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinIOBucketTranscripts() string
	IsMinIOEnabled() bool
}

// AuthConfig provides settings for operator authentication and signed
// approval links.
type AuthConfig interface {
	GetOperatorKeyHash() string
	GetOperatorEmail() string
	GetApprovalLinkSecret() string
	GetApprovalLinkTTL() time.Duration
	GetAppBaseURL() string
}

// WorkflowConfig provides the orchestration policy.
type WorkflowConfig interface {
	GetWorkflowPolicy() Policy
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	MigrationsDir          string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueue             string
	AsynqConcurrency       int
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	AppBaseURL             string
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	EmailFromName          string
	EmailFromAddress       string
	EmailEnabled           bool
	IMAPHost               string
	IMAPPort               int
	IMAPUsername           string
	IMAPPassword           string
	IMAPFolder             string
	CalendarURL            string
	CalendarAPIKey         string
	KimiAPIKey             string
	KimiBaseURL            string
	KimiModel              string
	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOUseSSL            bool
	MinIOMaxFileSize       int64
	MinIOBucketTranscripts string
	OperatorKeyHash        string
	OperatorEmail          string
	ApprovalLinkSecret     string
	ApprovalLinkTTL        time.Duration
	Workflow               Policy
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// SchedulerConfig implementation
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueue }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }

// IMAPConfig implementation
func (c *Config) GetIMAPHost() string     { return c.IMAPHost }
func (c *Config) GetIMAPPort() int        { return c.IMAPPort }
func (c *Config) GetIMAPUsername() string { return c.IMAPUsername }
func (c *Config) GetIMAPPassword() string { return c.IMAPPassword }
func (c *Config) GetIMAPFolder() string   { return c.IMAPFolder }
func (c *Config) IsIMAPEnabled() bool     { return c.IMAPHost != "" }

// CalendarConfig implementation
func (c *Config) GetCalendarURL() string    { return c.CalendarURL }
func (c *Config) GetCalendarAPIKey() string { return c.CalendarAPIKey }
func (c *Config) IsCalendarEnabled() bool   { return c.CalendarURL != "" }

// AIConfig implementation
func (c *Config) GetKimiAPIKey() string  { return c.KimiAPIKey }
func (c *Config) GetKimiBaseURL() string { return c.KimiBaseURL }
func (c *Config) GetKimiModel() string   { return c.KimiModel }
func (c *Config) IsAIEnabled() bool      { return c.KimiAPIKey != "" }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) GetMinIOBucketTranscripts() string {
	return c.MinIOBucketTranscripts
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// AuthConfig implementation
func (c *Config) GetOperatorKeyHash() string        { return c.OperatorKeyHash }
func (c *Config) GetOperatorEmail() string          { return c.OperatorEmail }
func (c *Config) GetApprovalLinkSecret() string     { return c.ApprovalLinkSecret }
func (c *Config) GetApprovalLinkTTL() time.Duration { return c.ApprovalLinkTTL }
func (c *Config) GetAppBaseURL() string             { return c.AppBaseURL }

// WorkflowConfig implementation
func (c *Config) GetWorkflowPolicy() Policy { return c.Workflow }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	policy, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		MigrationsDir:          getEnv("MIGRATIONS_DIR", "migrations"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueue:             getEnv("ASYNQ_QUEUE", "acquisition"),
		AsynqConcurrency:       int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:             getEnv("APP_BASE_URL", "http://localhost:4200"),
		SMTPHost:               smtpHost,
		SMTPPort:               int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		EmailFromName:          getEnv("EMAIL_FROM_NAME", "Acquisition"),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailEnabled:           emailEnabled && smtpHost != "",
		IMAPHost:               getEnv("IMAP_HOST", ""),
		IMAPPort:               int(mustInt64(getEnv("IMAP_PORT", "993"))),
		IMAPUsername:           getEnv("IMAP_USERNAME", ""),
		IMAPPassword:           getEnv("IMAP_PASSWORD", ""),
		IMAPFolder:             getEnv("IMAP_FOLDER", "INBOX"),
		CalendarURL:            getEnv("CALENDAR_URL", ""),
		CalendarAPIKey:         getEnv("CALENDAR_API_KEY", ""),
		KimiAPIKey:             getEnv("KIMI_API_KEY", ""),
		KimiBaseURL:            getEnv("KIMI_BASE_URL", "https://api.moonshot.ai/v1"),
		KimiModel:              getEnv("KIMI_MODEL", "kimi-k2-0710-preview"),
		MinIOEndpoint:          getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:            strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:       mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "104857600")),
		MinIOBucketTranscripts: getEnv("MINIO_BUCKET_TRANSCRIPTS", "call-transcripts"),
		OperatorKeyHash:        getEnv("OPERATOR_API_KEY_HASH", ""),
		OperatorEmail:          getEnv("OPERATOR_EMAIL", ""),
		ApprovalLinkSecret:     getEnv("APPROVAL_LINK_SECRET", ""),
		ApprovalLinkTTL:        mustDuration(getEnv("APPROVAL_LINK_TTL", "72h")),
		Workflow:               policy,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ApprovalLinkSecret == "" {
		return nil, fmt.Errorf("APPROVAL_LINK_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
