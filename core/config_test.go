package core

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.BaseURL)
	}
	if cfg.MaxConcurrency != 3 {
		t.Fatalf("expected default concurrency 3, got %d", cfg.MaxConcurrency)
	}
	if cfg.Webhook.Tolerance() != 5*time.Minute {
		t.Fatalf("expected five minute tolerance, got %s", cfg.Webhook.Tolerance())
	}
	if cfg.Retry.MaxDelay() != 30*time.Minute {
		t.Fatalf("expected thirty minute delay cap, got %s", cfg.Retry.MaxDelay())
	}
}

func TestConfigValidate_RejectsInvalidValues(t *testing.T) {
	cases := map[string]func(*Config){
		"base url":    func(c *Config) { c.BaseURL = "not a url" },
		"concurrency": func(c *Config) { c.MaxConcurrency = 0 },
		"strategy":    func(c *Config) { c.Retry.Strategy = "linear" },
		"delays":      func(c *Config) { c.Retry.InitialDelayMS = 10; c.Retry.MaxDelayMS = 5 },
		"tolerance":   func(c *Config) { c.Webhook.ToleranceSeconds = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestConfig_MethodURL(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.MethodURL("chat.postMessage"); got != "https://slack.com/api/chat.postMessage" {
		t.Fatalf("unexpected url %q", got)
	}
	cfg.BaseURL = "http://localhost:9000/api"
	if got := cfg.MethodURL("/auth.test"); got != "http://localhost:9000/api/auth.test" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestRetryConfig_AttemptLimit(t *testing.T) {
	cfg := DefaultConfig().Retry
	if cfg.AttemptLimit() != 11 {
		t.Fatalf("expected bounded attempt limit, got %d", cfg.AttemptLimit())
	}
	cfg.Unbounded = true
	if cfg.AttemptLimit() != 0 {
		t.Fatalf("expected unbounded attempt limit, got %d", cfg.AttemptLimit())
	}
}

func TestConfig_RedactedHidesCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token = "xoxb-secret"
	cfg.Webhook.SigningSecret = "shh"

	redacted := cfg.Redacted()
	if strings.Contains(redacted.Token, "xoxb") || redacted.Webhook.SigningSecret != RedactedValue {
		t.Fatalf("expected credentials to be redacted, got %#v", redacted)
	}
	if cfg.Token != "xoxb-secret" {
		t.Fatalf("redaction must not mutate the source config")
	}
}
