package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL          = "https://slack.com/api/"
	DefaultMaxConcurrency   = 3
	DefaultToleranceSeconds = 300
	DefaultMaxBodyBytes     = 1 << 20

	RetryStrategyFixed       = "fixed"
	RetryStrategyExponential = "exponential"
	RetryStrategyJittered    = "jittered"
)

type RetryConfig struct {
	Strategy string `koanf:"strategy" mapstructure:"strategy"`
	// Unbounded retries retryable failures forever and ignores MaxAttempts.
	Unbounded bool `koanf:"unbounded" mapstructure:"unbounded"`
	// MaxAttempts counts every attempt, the first included.
	MaxAttempts         int      `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialDelayMS      int      `koanf:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	MaxDelayMS          int      `koanf:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier          float64  `koanf:"multiplier" mapstructure:"multiplier"`
	RetryableErrorCodes []string `koanf:"retryable_error_codes" mapstructure:"retryable_error_codes"`
}

type WebhookConfig struct {
	SigningSecret    string `koanf:"signing_secret" mapstructure:"signing_secret"`
	ToleranceSeconds int    `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
	VerboseErrors    bool   `koanf:"verbose_errors" mapstructure:"verbose_errors"`
	MaxBodyBytes     int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type Config struct {
	ServiceName    string        `koanf:"service_name" mapstructure:"service_name"`
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	Token          string        `koanf:"token" mapstructure:"token"`
	MaxConcurrency int           `koanf:"max_concurrency" mapstructure:"max_concurrency"`
	Retry          RetryConfig   `koanf:"retry" mapstructure:"retry"`
	Webhook        WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "slack",
		BaseURL:        DefaultBaseURL,
		MaxConcurrency: DefaultMaxConcurrency,
		Retry: RetryConfig{
			Strategy:       RetryStrategyJittered,
			MaxAttempts:    11,
			InitialDelayMS: 1000,
			MaxDelayMS:     30 * 60 * 1000,
			Multiplier:     2,
		},
		Webhook: WebhookConfig{
			ToleranceSeconds: DefaultToleranceSeconds,
			MaxBodyBytes:     DefaultMaxBodyBytes,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("core: base_url is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: base_url %q is invalid", c.BaseURL)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("core: max_concurrency must be positive")
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.Webhook.ToleranceSeconds < 0 {
		return fmt.Errorf("core: webhook.tolerance_seconds must not be negative")
	}
	if c.Webhook.MaxBodyBytes < 0 {
		return fmt.Errorf("core: webhook.max_body_bytes must not be negative")
	}
	return nil
}

func (c RetryConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Strategy)) {
	case RetryStrategyFixed, RetryStrategyExponential, RetryStrategyJittered:
	default:
		return fmt.Errorf("core: retry.strategy %q is not supported", c.Strategy)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must not be negative")
	}
	if c.InitialDelayMS < 0 || c.MaxDelayMS < 0 {
		return fmt.Errorf("core: retry delays must not be negative")
	}
	if c.MaxDelayMS > 0 && c.InitialDelayMS > c.MaxDelayMS {
		return fmt.Errorf("core: retry.initial_delay_ms exceeds retry.max_delay_ms")
	}
	if c.Multiplier < 0 {
		return fmt.Errorf("core: retry.multiplier must not be negative")
	}
	return nil
}

// AttemptLimit is the bounded attempt count, or zero for unbounded mode.
func (c RetryConfig) AttemptLimit() int {
	if c.Unbounded {
		return 0
	}
	return c.MaxAttempts
}

func (c RetryConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMS) * time.Millisecond
}

func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

func (c WebhookConfig) Tolerance() time.Duration {
	if c.ToleranceSeconds <= 0 {
		return DefaultToleranceSeconds * time.Second
	}
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// MethodURL joins the base url and an API method name.
func (c Config) MethodURL(method string) string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(strings.TrimSpace(method), "/")
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	out := c
	if out.Token != "" {
		out.Token = RedactedValue
	}
	if out.Webhook.SigningSecret != "" {
		out.Webhook.SigningSecret = RedactedValue
	}
	out.Retry.RetryableErrorCodes = append([]string(nil), c.Retry.RetryableErrorCodes...)
	return out
}
