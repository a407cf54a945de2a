package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("MAX_TOOL_ROUNDS", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")

	cfg := Load()

	if cfg.LLMProvider != "anthropic" {
		t.Errorf("LLMProvider = %q, want anthropic", cfg.LLMProvider)
	}
	if cfg.MaxToolRounds != 5 || cfg.MaxCorrections != 2 || cfg.HistoryWindow != 40 {
		t.Errorf("orchestration defaults = %d/%d/%d", cfg.MaxToolRounds, cfg.MaxCorrections, cfg.HistoryWindow)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute || cfg.SessionSweep != "@every 1m" {
		t.Errorf("session defaults = %s %q", cfg.SessionIdleTimeout, cfg.SessionSweep)
	}
	if cfg.ToolTimeout != 15*time.Second || cfg.NotifyTimeout != 10*time.Second {
		t.Errorf("timeouts = %s %s", cfg.ToolTimeout, cfg.NotifyTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("MAX_TOOL_ROUNDS", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("STORE_GENERATE_SEED", "true")
	t.Setenv("BUSINESS_SLOT", "30m")

	cfg := Load()

	if cfg.LLMProvider != "openai" || cfg.LLMTemperature != 0.7 || cfg.MaxToolRounds != 3 {
		t.Errorf("overrides = %q %v %d", cfg.LLMProvider, cfg.LLMTemperature, cfg.MaxToolRounds)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.StoreGenerateSeed || cfg.BusinessSlot != 30*time.Minute {
		t.Errorf("store/hours overrides = %v %s", cfg.StoreGenerateSeed, cfg.BusinessSlot)
	}
}

func validConfig() *Config {
	return &Config{
		LLMProvider:        "anthropic",
		AnthropicAPIKey:    "key",
		StoreDriver:        "sqlite",
		JWTSecret:          "secret",
		MaxToolRounds:      5,
		MaxCorrections:     2,
		HistoryWindow:      40,
		ToolTimeout:        time.Second,
		LLMTemperature:     0.3,
		SessionIdleTimeout: time.Minute,
		BusinessOpenHour:   9,
		BusinessCloseHour:  17,
		BusinessSlot:       time.Hour,
		BusinessTimezone:   "UTC",
		RateLimitRequests:  10,
		RateLimitWindow:    time.Minute,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing key", mutate: func(c *Config) { c.AnthropicAPIKey = "" }, wantErr: "ANTHROPIC_API_KEY"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLMProvider = "llama" }, wantErr: "LLM_PROVIDER"},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "mysql" }, wantErr: "STORE_DRIVER"},
		{name: "inverted hours", mutate: func(c *Config) { c.BusinessOpenHour = 18 }, wantErr: "business hours"},
		{name: "slot too long", mutate: func(c *Config) { c.BusinessSlot = 9 * time.Hour }, wantErr: "BUSINESS_SLOT"},
		{name: "bad timezone", mutate: func(c *Config) { c.BusinessTimezone = "Mars/Olympus" }, wantErr: "BUSINESS_TIMEZONE"},
		{name: "zero rounds", mutate: func(c *Config) { c.MaxToolRounds = 0 }, wantErr: "MAX_TOOL_ROUNDS"},
		{name: "resend without sender", mutate: func(c *Config) { c.ResendAPIKey = "re_123" }, wantErr: "EMAIL_FROM"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
