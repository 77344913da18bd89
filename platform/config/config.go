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

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetWebhookRateLimit() float64
	GetWebhookRateBurst() int
}

// SMSConfig provides settings for the outbound messaging provider.
type SMSConfig interface {
	GetSMSBaseURL() string
	GetSMSAccountSID() string
	GetSMSAuthToken() string
	GetSMSFromNumber() string
}

// VoiceConfig provides settings for the outbound voice-call provider.
type VoiceConfig interface {
	GetVoiceBaseURL() string
	GetVoiceAPIKey() string
	GetVoiceAssistantID() string
	GetVoicePhoneNumberID() string
	GetVoiceCallbackURL() string
	GetStoreManagerPhone() string
}

// AIConfig provides settings for the OpenAI-compatible classifier model.
type AIConfig interface {
	GetAIAPIKey() string
	GetAIBaseURL() string
	GetAIModel() string
}

// SchedulerConfig provides settings for the redis-backed follow-up scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// StaffAlertConfig provides settings for store staff alerts.
type StaffAlertConfig interface {
	GetStaffPhone() string
	GetStaffEmail() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromAddress() string
	GetSMTPFromName() string
	IsStaffEmailEnabled() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketCallTranscripts() string
	IsMinIOEnabled() bool
}

// AMQPConfig provides settings for the optional AMQP event observer.
type AMQPConfig interface {
	GetAMQPURL() string
	GetAMQPExchange() string
	IsAMQPEnabled() bool
}

// RelayConfig provides business settings for the conversation workflow.
type RelayConfig interface {
	GetBrandName() string
	GetReviewURL() string
	GetOptInWindow() time.Duration
	GetResolutionAlertDelay() time.Duration
	GetReviewRequestDelay() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	JWTAccessSecret            string
	CORSAllowAll               bool
	CORSOrigins                []string
	CORSAllowCreds             bool
	WebhookRateLimit           float64
	WebhookRateBurst           int
	SMSBaseURL                 string
	SMSAccountSID              string
	SMSAuthToken               string
	SMSFromNumber              string
	VoiceBaseURL               string
	VoiceAPIKey                string
	VoiceAssistantID           string
	VoicePhoneNumberID         string
	VoiceCallbackURL           string
	StoreManagerPhone          string
	AIAPIKey                   string
	AIBaseURL                  string
	AIModel                    string
	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqConcurrency           int
	StaffPhone                 string
	StaffEmail                 string
	SMTPHost                   string
	SMTPPort                   int
	SMTPUsername               string
	SMTPPassword               string
	SMTPFromAddress            string
	SMTPFromName               string
	MinIOEndpoint              string
	MinIOAccessKey             string
	MinIOSecretKey             string
	MinIOUseSSL                bool
	MinioBucketCallTranscripts string
	AMQPURL                    string
	AMQPExchange               string
	BrandName                  string
	ReviewURL                  string
	OptInWindow                time.Duration
	ResolutionAlertDelay       time.Duration
	ReviewRequestDelay         time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string          { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool        { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string     { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool      { return c.CORSAllowCreds }
func (c *Config) GetWebhookRateLimit() float64 { return c.WebhookRateLimit }
func (c *Config) GetWebhookRateBurst() int     { return c.WebhookRateBurst }

// SMSConfig implementation
func (c *Config) GetSMSBaseURL() string    { return c.SMSBaseURL }
func (c *Config) GetSMSAccountSID() string { return c.SMSAccountSID }
func (c *Config) GetSMSAuthToken() string  { return c.SMSAuthToken }
func (c *Config) GetSMSFromNumber() string { return c.SMSFromNumber }

// VoiceConfig implementation
func (c *Config) GetVoiceBaseURL() string       { return c.VoiceBaseURL }
func (c *Config) GetVoiceAPIKey() string        { return c.VoiceAPIKey }
func (c *Config) GetVoiceAssistantID() string   { return c.VoiceAssistantID }
func (c *Config) GetVoicePhoneNumberID() string { return c.VoicePhoneNumberID }
func (c *Config) GetVoiceCallbackURL() string   { return c.VoiceCallbackURL }
func (c *Config) GetStoreManagerPhone() string  { return c.StoreManagerPhone }

// AIConfig implementation
func (c *Config) GetAIAPIKey() string  { return c.AIAPIKey }
func (c *Config) GetAIBaseURL() string { return c.AIBaseURL }
func (c *Config) GetAIModel() string   { return c.AIModel }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// StaffAlertConfig implementation
func (c *Config) GetStaffPhone() string       { return c.StaffPhone }
func (c *Config) GetStaffEmail() string       { return c.StaffEmail }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetSMTPFromAddress() string  { return c.SMTPFromAddress }
func (c *Config) GetSMTPFromName() string     { return c.SMTPFromName }
func (c *Config) IsStaffEmailEnabled() bool {
	return c.SMTPHost != "" && c.StaffEmail != "" && c.SMTPFromAddress != ""
}

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketCallTranscripts() string {
	return c.MinioBucketCallTranscripts
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// AMQPConfig implementation
func (c *Config) GetAMQPURL() string      { return c.AMQPURL }
func (c *Config) GetAMQPExchange() string { return c.AMQPExchange }
func (c *Config) IsAMQPEnabled() bool     { return c.AMQPURL != "" }

// RelayConfig implementation
func (c *Config) GetBrandName() string                   { return c.BrandName }
func (c *Config) GetReviewURL() string                   { return c.ReviewURL }
func (c *Config) GetOptInWindow() time.Duration          { return c.OptInWindow }
func (c *Config) GetResolutionAlertDelay() time.Duration { return c.ResolutionAlertDelay }
func (c *Config) GetReviewRequestDelay() time.Duration   { return c.ReviewRequestDelay }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "*"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                        getEnv("APP_ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":3001"),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		JWTAccessSecret:            getEnv("API_JWT_SECRET", ""),
		CORSAllowAll:               corsAllowAll,
		CORSOrigins:                corsOrigins,
		CORSAllowCreds:             strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		WebhookRateLimit:           mustFloat64(getEnv("WEBHOOK_RATE_LIMIT", "5")),
		WebhookRateBurst:           mustInt(getEnv("WEBHOOK_RATE_BURST", "20")),
		SMSBaseURL:                 getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		SMSAccountSID:              getEnv("TWILIO_ACCOUNT_SID", ""),
		SMSAuthToken:               getEnv("TWILIO_AUTH_TOKEN", ""),
		SMSFromNumber:              getEnv("TWILIO_PHONE", ""),
		VoiceBaseURL:               getEnv("VAPI_BASE_URL", "https://api.vapi.ai"),
		VoiceAPIKey:                getEnv("VAPI_PRIVATE_KEY", ""),
		VoiceAssistantID:           getEnv("VAPI_STORE_MANAGER_ASSISTANT_ID", ""),
		VoicePhoneNumberID:         getEnv("VAPI_PHONE_NUMBER_ID", ""),
		VoiceCallbackURL:           getEnv("VAPI_CALLBACK_URL", ""),
		StoreManagerPhone:          getEnv("STORE_MANAGER_PHONE", ""),
		AIAPIKey:                   getEnv("OPENAI_API_KEY", ""),
		AIBaseURL:                  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AIModel:                    getEnv("OPENAI_MODEL", "gpt-4.1"),
		RedisURL:                   getEnv("REDIS_URL", ""),
		RedisTLSInsecure:           strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency:           mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		StaffPhone:                 getEnv("STAFF_PHONE", ""),
		StaffEmail:                 getEnv("STAFF_EMAIL", ""),
		SMTPHost:                   getEnv("SMTP_HOST", ""),
		SMTPPort:                   mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:               getEnv("SMTP_USERNAME", ""),
		SMTPPassword:               getEnv("SMTP_PASSWORD", ""),
		SMTPFromAddress:            getEnv("SMTP_FROM_ADDRESS", ""),
		SMTPFromName:               getEnv("SMTP_FROM_NAME", "Curbside Relay"),
		MinIOEndpoint:              getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:             getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:             getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketCallTranscripts: getEnv("MINIO_BUCKET_CALL_TRANSCRIPTS", "call-transcripts"),
		AMQPURL:                    getEnv("AMQP_URL", ""),
		AMQPExchange:               getEnv("AMQP_EXCHANGE", "curbside.events"),
		BrandName:                  getEnv("BRAND_NAME", "Rural King"),
		ReviewURL:                  getEnv("REVIEW_URL", "http://bit.ly/3VE1Nx0"),
		OptInWindow:                mustDuration(getEnv("OPT_IN_WINDOW", "24h")),
		ResolutionAlertDelay:       mustDuration(getEnv("RESOLUTION_ALERT_DELAY", "10s")),
		ReviewRequestDelay:         mustDuration(getEnv("REVIEW_REQUEST_DELAY", "15s")),
	}

	// Staff alerts default to the store manager's line.
	if cfg.StaffPhone == "" {
		cfg.StaffPhone = cfg.StoreManagerPhone
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SMSAccountSID == "" || cfg.SMSAuthToken == "" || cfg.SMSFromNumber == "" {
		return nil, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE are required")
	}
	if cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.OptInWindow <= 0 {
		return nil, fmt.Errorf("OPT_IN_WINDOW must be a positive duration")
	}
	if cfg.ResolutionAlertDelay <= 0 || cfg.ReviewRequestDelay <= 0 {
		return nil, fmt.Errorf("RESOLUTION_ALERT_DELAY and REVIEW_REQUEST_DELAY must be positive durations")
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

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat64(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
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
