package slack

import "github.com/goliatone/go-slack/core"

type Config = core.Config

type RetryConfig = core.RetryConfig

type WebhookConfig = core.WebhookConfig

type Option = core.Option

type CallOption = core.CallOption

type CallResult = core.CallResult

type Event = core.Event

type EventResponse = core.EventResponse

type EventConsumer = core.EventConsumer

type EventConsumerFunc = core.EventConsumerFunc

type DeliveryLedger = core.DeliveryLedger

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithHTTPClient      = core.WithHTTPClient
	WithTransport       = core.WithTransport
	WithBackoffPolicy   = core.WithBackoffPolicy
	WithRateLimiter     = core.WithRateLimiter
	WithThrottlePolicy  = core.WithThrottlePolicy
	WithEventConsumer   = core.WithEventConsumer
	WithDeliveryLedger  = core.WithDeliveryLedger
	WithClock           = core.WithClock

	WithCallToken   = core.WithCallToken
	WithJSONBody    = core.WithJSONBody
	WithCallHeader  = core.WithCallHeader
	WithCallTimeout = core.WithCallTimeout
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// EnvConfig loads configuration from SLACK_* environment variables.
func EnvConfig() Option {
	return core.WithConfigProvider(core.NewCfgxConfigProvider(core.NewEnvConfigLoader()))
}
