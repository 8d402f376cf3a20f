package core

import (
	"context"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envSettings mirrors Config as environment variables. Pointer fields stay
// nil when the variable is unset so that only explicit values reach the
// raw layer.
type envSettings struct {
	ServiceName    string `envconfig:"SLACK_SERVICE_NAME"`
	BaseURL        string `envconfig:"SLACK_API_URL"`
	Token          string `envconfig:"SLACK_TOKEN"`
	MaxConcurrency *int   `envconfig:"SLACK_MAX_CONCURRENCY"`

	RetryStrategy       string   `envconfig:"SLACK_RETRY_STRATEGY"`
	RetryUnbounded      *bool    `envconfig:"SLACK_RETRY_UNBOUNDED"`
	RetryMaxAttempts    *int     `envconfig:"SLACK_RETRY_MAX_ATTEMPTS"`
	RetryInitialDelayMS *int     `envconfig:"SLACK_RETRY_INITIAL_DELAY_MS"`
	RetryMaxDelayMS     *int     `envconfig:"SLACK_RETRY_MAX_DELAY_MS"`
	RetryMultiplier     *float64 `envconfig:"SLACK_RETRY_MULTIPLIER"`
	RetryableCodes      []string `envconfig:"SLACK_RETRY_ERROR_CODES"`

	SigningSecret    string `envconfig:"SLACK_SIGNING_SECRET"`
	ToleranceSeconds *int   `envconfig:"SLACK_TOLERANCE_SECONDS"`
	VerboseErrors    *bool  `envconfig:"SLACK_VERBOSE_ERRORS"`
	MaxBodyBytes     *int64 `envconfig:"SLACK_MAX_BODY_BYTES"`
}

// EnvConfigLoader reads SLACK_* environment variables into a raw config map
// consumable by CfgxConfigProvider.
type EnvConfigLoader struct{}

func NewEnvConfigLoader() EnvConfigLoader {
	return EnvConfigLoader{}
}

func (EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	var env envSettings
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}
	return env.toRaw(), nil
}

func (e envSettings) toRaw() map[string]any {
	raw := map[string]any{}
	putString(raw, "service_name", e.ServiceName)
	putString(raw, "base_url", e.BaseURL)
	putString(raw, "token", e.Token)
	if e.MaxConcurrency != nil {
		raw["max_concurrency"] = *e.MaxConcurrency
	}

	retry := map[string]any{}
	putString(retry, "strategy", e.RetryStrategy)
	if e.RetryUnbounded != nil {
		retry["unbounded"] = *e.RetryUnbounded
	}
	if e.RetryMaxAttempts != nil {
		retry["max_attempts"] = *e.RetryMaxAttempts
	}
	if e.RetryInitialDelayMS != nil {
		retry["initial_delay_ms"] = *e.RetryInitialDelayMS
	}
	if e.RetryMaxDelayMS != nil {
		retry["max_delay_ms"] = *e.RetryMaxDelayMS
	}
	if e.RetryMultiplier != nil {
		retry["multiplier"] = *e.RetryMultiplier
	}
	if len(e.RetryableCodes) > 0 {
		codes := make([]string, 0, len(e.RetryableCodes))
		for _, code := range e.RetryableCodes {
			if code = strings.TrimSpace(code); code != "" {
				codes = append(codes, code)
			}
		}
		retry["retryable_error_codes"] = codes
	}
	if len(retry) > 0 {
		raw["retry"] = retry
	}

	webhook := map[string]any{}
	putString(webhook, "signing_secret", e.SigningSecret)
	if e.ToleranceSeconds != nil {
		webhook["tolerance_seconds"] = *e.ToleranceSeconds
	}
	if e.VerboseErrors != nil {
		webhook["verbose_errors"] = *e.VerboseErrors
	}
	if e.MaxBodyBytes != nil {
		webhook["max_body_bytes"] = *e.MaxBodyBytes
	}
	if len(webhook) > 0 {
		raw["webhook"] = webhook
	}
	return raw
}

func putString(target map[string]any, key string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		target[key] = value
	}
}
