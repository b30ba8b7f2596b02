package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Scheduling grid constants. The working day runs 09:00-17:00 in the clinic's
// local time, divided into 15-minute blocks numbered 0..31. Block 0 starts at
// 09:00; block 31 ends at 17:00.
const (
	DayStartHour = 9
	DayEndHour   = 17
	SlotMinutes  = 15
	SlotsPerDay  = (DayEndHour - DayStartHour) * 60 / SlotMinutes

	// BufferSlots is the cleanup/transition gap inserted between the consult
	// and treatment legs of a same-day combo visit.
	BufferSlots = 1

	// LookaheadDays bounds the scheduling search window, starting tomorrow.
	LookaheadDays = 14
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	UseMemoryQueue bool
	WorkerCount    int

	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string
	LLMTimeout     time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	TriageQueueURL      string
	TriageJobsTable     string
	AuditArchiveBucket  string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret string
	JWTExpiry time.Duration

	ChatRatePerUserHour  int
	ChatRatePerTenantDay int
	BookingRatePerUserHr int
	DashboardCacheTTL    time.Duration
	FrontendOrigin       string
	DemoTenantID         string

	EmailProvider       string
	EmailFromAddress    string
	EmailFromName       string
	SendGridAPIKey      string
	SESConfigurationSet string
	OpsAlertEmail       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "auto"))),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		TriageQueueURL:      getEnv("TRIAGE_QUEUE_URL", ""),
		TriageJobsTable:     getEnv("TRIAGE_JOBS_TABLE", "triage_jobs"),
		AuditArchiveBucket:  getEnv("AUDIT_ARCHIVE_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTExpiry: getEnvAsDuration("JWT_EXPIRY", 8*time.Hour),

		ChatRatePerUserHour:  getEnvAsInt("CHAT_RATE_PER_USER_HOUR", 20),
		ChatRatePerTenantDay: getEnvAsInt("CHAT_RATE_PER_TENANT_DAY", 500),
		BookingRatePerUserHr: getEnvAsInt("BOOKING_RATE_PER_USER_HOUR", 50),
		DashboardCacheTTL:    getEnvAsDuration("DASHBOARD_CACHE_TTL", 60*time.Second),
		FrontendOrigin:       getEnv("FRONTEND_ORIGIN", "http://localhost:3000"),
		DemoTenantID:         getEnv("DEMO_TENANT_ID", ""),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "DentalBridge"),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		OpsAlertEmail:       getEnv("OPS_ALERT_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
