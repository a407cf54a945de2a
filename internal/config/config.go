// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// LLM settings
	LLMProvider       string
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	LLMBaseURL        string
	LLMModel          string
	LLMTimeout        time.Duration
	LLMRetries        int
	LLMBackoffInitial time.Duration
	LLMBackoffMax     time.Duration
	LLMMaxTokens      int
	LLMTemperature    float64

	// Orchestration
	SystemPromptFile string
	MaxToolRounds    int
	MaxCorrections   int
	HistoryWindow    int
	ToolTimeout      time.Duration

	// Sessions
	SessionIdleTimeout time.Duration
	SessionSweep       string

	// Store
	StoreDriver       string
	StoreDSN          string
	StoreSeedFile     string
	StoreGenerateSeed bool
	StoreSeedValue    int64

	// Knowledge base
	KnowledgeDir      string
	KnowledgeMinScore float64
	KnowledgeTTL      time.Duration

	// Business hours
	BusinessOpenHour  int
	BusinessCloseHour int
	BusinessSlot      time.Duration
	BusinessTimezone  string

	// Meeting invites
	CalendarWebhookURL string
	CalendarToken      string
	ResendAPIKey       string
	ResendEndpoint     string
	EmailFrom          string
	EmailFromName      string
	InviteOrganizer    string
	InviteTopic        string
	InviteLocation     string
	NotifyTimeout      time.Duration
	NotifyRetries      int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TurnRateLimit     int

	// Logging
	Environment string
	LogLevel    string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS"),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// LLM
		LLMProvider:       getEnv("LLM_PROVIDER", "anthropic"),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		LLMModel:          getEnv("LLM_MODEL", ""),
		LLMTimeout:        getDurationEnv("LLM_TIMEOUT", 30*time.Second),
		LLMRetries:        getIntEnv("LLM_RETRIES", 3),
		LLMBackoffInitial: getDurationEnv("LLM_BACKOFF_INITIAL", 500*time.Millisecond),
		LLMBackoffMax:     getDurationEnv("LLM_BACKOFF_MAX", 5*time.Second),
		LLMMaxTokens:      getIntEnv("LLM_MAX_TOKENS", 1024),
		LLMTemperature:    getFloatEnv("LLM_TEMPERATURE", 0.3),

		// Orchestration
		SystemPromptFile: getEnv("SYSTEM_PROMPT_FILE", ""),
		MaxToolRounds:    getIntEnv("MAX_TOOL_ROUNDS", 5),
		MaxCorrections:   getIntEnv("MAX_CORRECTIONS", 2),
		HistoryWindow:    getIntEnv("HISTORY_WINDOW", 40),
		ToolTimeout:      getDurationEnv("TOOL_TIMEOUT", 15*time.Second),

		// Sessions
		SessionIdleTimeout: getDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweep:       getEnv("SESSION_SWEEP_SCHEDULE", "@every 1m"),

		// Store
		StoreDriver:       getEnv("STORE_DRIVER", "sqlite"),
		StoreDSN:          getEnv("STORE_DSN", "data/leads.db"),
		StoreSeedFile:     getEnv("STORE_SEED_FILE", "data/seed.json"),
		StoreGenerateSeed: getBoolEnv("STORE_GENERATE_SEED", false),
		StoreSeedValue:    int64(getIntEnv("STORE_SEED_VALUE", 42)),

		// Knowledge base
		KnowledgeDir:      getEnv("KNOWLEDGE_DIR", "knowledge"),
		KnowledgeMinScore: getFloatEnv("KNOWLEDGE_MIN_SCORE", 1.0),
		KnowledgeTTL:      getDurationEnv("KNOWLEDGE_TTL", 5*time.Minute),

		// Business hours
		BusinessOpenHour:  getIntEnv("BUSINESS_OPEN_HOUR", 9),
		BusinessCloseHour: getIntEnv("BUSINESS_CLOSE_HOUR", 17),
		BusinessSlot:      getDurationEnv("BUSINESS_SLOT", time.Hour),
		BusinessTimezone:  getEnv("BUSINESS_TIMEZONE", "UTC"),

		// Meeting invites
		CalendarWebhookURL: getEnv("CALENDAR_WEBHOOK_URL", ""),
		CalendarToken:      getEnv("CALENDAR_TOKEN", ""),
		ResendAPIKey:       getEnv("RESEND_API_KEY", ""),
		ResendEndpoint:     getEnv("RESEND_ENDPOINT", ""),
		EmailFrom:          getEnv("EMAIL_FROM", ""),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Coffee Business Solutions"),
		InviteOrganizer:    getEnv("INVITE_ORGANIZER", ""),
		InviteTopic:        getEnv("INVITE_TOPIC", ""),
		InviteLocation:     getEnv("INVITE_LOCATION", ""),
		NotifyTimeout:      getDurationEnv("NOTIFY_TIMEOUT", 10*time.Second),
		NotifyRetries:      getIntEnv("NOTIFY_RETRIES", 2),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		TurnRateLimit:     getIntEnv("TURN_RATE_LIMIT", 20),

		// Logging
		Environment: getEnv("ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.LLMProvider {
	case "anthropic":
		check(c.AnthropicAPIKey != "", "ANTHROPIC_API_KEY is required for the anthropic provider")
	case "openai":
		check(c.OpenAIAPIKey != "", "OPENAI_API_KEY is required for the openai provider")
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	check(c.JWTSecret != "", "JWT_SECRET is required")
	check(c.MaxToolRounds > 0, "MAX_TOOL_ROUNDS must be positive")
	check(c.MaxCorrections > 0, "MAX_CORRECTIONS must be positive")
	check(c.HistoryWindow > 0, "HISTORY_WINDOW must be positive")
	check(c.ToolTimeout > 0, "TOOL_TIMEOUT must be positive")
	check(c.LLMRetries >= 0, "LLM_RETRIES must not be negative")
	check(c.LLMTemperature >= 0 && c.LLMTemperature <= 2, "LLM_TEMPERATURE must be between 0 and 2")
	check(c.SessionIdleTimeout > 0, "SESSION_IDLE_TIMEOUT must be positive")
	check(c.BusinessOpenHour >= 0 && c.BusinessOpenHour < c.BusinessCloseHour && c.BusinessCloseHour <= 24,
		"business hours %d-%d are invalid", c.BusinessOpenHour, c.BusinessCloseHour)
	check(c.BusinessSlot > 0 && c.BusinessSlot <= time.Duration(c.BusinessCloseHour-c.BusinessOpenHour)*time.Hour,
		"BUSINESS_SLOT %s does not fit the business day", c.BusinessSlot)
	if _, err := time.LoadLocation(c.BusinessTimezone); err != nil {
		errs = append(errs, fmt.Errorf("BUSINESS_TIMEZONE: %w", err))
	}
	check(c.RateLimitRequests > 0 && c.RateLimitWindow > 0, "rate limit must be positive")
	if c.ResendAPIKey != "" {
		check(c.EmailFrom != "", "EMAIL_FROM is required when RESEND_API_KEY is set")
	}

	return errors.Join(errs...)
}

// Location returns the business time zone. Validate must have passed.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
