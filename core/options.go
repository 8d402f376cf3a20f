package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	"github.com/goliatone/go-slack/adapters/gologger"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// Dependencies holds the collaborators a client is assembled from.
type Dependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	HTTPClient      HTTPDoer
	Transport       TransportAdapter
	BackoffPolicy   BackoffPolicy
	RateLimiter     RateLimiter
	ThrottlePolicy  ThrottlePolicy
	EventConsumer   EventConsumer
	DeliveryLedger  DeliveryLedger
	Now             func() time.Time
}

type Option func(*Dependencies)

func WithLogger(logger Logger) Option {
	return func(d *Dependencies) {
		d.Logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(d *Dependencies) {
		d.LoggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(d *Dependencies) {
		d.MetricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(d *Dependencies) {
		d.ConfigProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(d *Dependencies) {
		d.OptionsResolver = resolver
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(d *Dependencies) {
		d.HTTPClient = client
	}
}

func WithTransport(transport TransportAdapter) Option {
	return func(d *Dependencies) {
		d.Transport = transport
	}
}

func WithBackoffPolicy(policy BackoffPolicy) Option {
	return func(d *Dependencies) {
		d.BackoffPolicy = policy
	}
}

func WithRateLimiter(limiter RateLimiter) Option {
	return func(d *Dependencies) {
		d.RateLimiter = limiter
	}
}

func WithThrottlePolicy(policy ThrottlePolicy) Option {
	return func(d *Dependencies) {
		d.ThrottlePolicy = policy
	}
}

func WithEventConsumer(consumer EventConsumer) Option {
	return func(d *Dependencies) {
		d.EventConsumer = consumer
	}
}

func WithDeliveryLedger(ledger DeliveryLedger) Option {
	return func(d *Dependencies) {
		d.DeliveryLedger = ledger
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dependencies) {
		d.Now = now
	}
}

// BuildDependencies applies options over the defaults. Logger resolution
// follows provider > logger > nop.
func BuildDependencies(name string, options ...Option) Dependencies {
	deps := Dependencies{
		MetricsRecorder: NopMetricsRecorder{},
		ConfigProvider:  NewCfgxConfigProvider(nil),
		OptionsResolver: GoOptionsResolver{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&deps)
	}
	if strings.TrimSpace(name) == "" {
		name = "slack"
	}
	deps.LoggerProvider, deps.Logger = gologger.Resolve(name, deps.LoggerProvider, deps.Logger)
	if deps.MetricsRecorder == nil {
		deps.MetricsRecorder = NopMetricsRecorder{}
	}
	if deps.OptionsResolver == nil {
		deps.OptionsResolver = GoOptionsResolver{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return deps
}

// ResolveConfig loads config through the provider and merges defaults,
// loaded values and runtime values in that precedence order.
func ResolveConfig(ctx context.Context, runtime Config, deps Dependencies) (Config, error) {
	defaults := DefaultConfig()
	loaded := defaults
	if deps.ConfigProvider != nil {
		cfg, err := deps.ConfigProvider.Load(ctx, defaults)
		if err != nil {
			return Config{}, fmt.Errorf("core: load config: %w", err)
		}
		loaded = cfg
	}
	resolver := deps.OptionsResolver
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw map, mostly for tests and embedding.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setInt := func(target map[string]any, key string, value int) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}

	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "base_url", cfg.BaseURL)
	setString(layer, "token", cfg.Token)
	setInt(layer, "max_concurrency", cfg.MaxConcurrency)

	retry := map[string]any{}
	setString(retry, "strategy", cfg.Retry.Strategy)
	if includeZero || cfg.Retry.Unbounded {
		retry["unbounded"] = cfg.Retry.Unbounded
	}
	setInt(retry, "max_attempts", cfg.Retry.MaxAttempts)
	setInt(retry, "initial_delay_ms", cfg.Retry.InitialDelayMS)
	setInt(retry, "max_delay_ms", cfg.Retry.MaxDelayMS)
	if includeZero || cfg.Retry.Multiplier != 0 {
		retry["multiplier"] = cfg.Retry.Multiplier
	}
	if includeZero || len(cfg.Retry.RetryableErrorCodes) > 0 {
		retry["retryable_error_codes"] = append([]string(nil), cfg.Retry.RetryableErrorCodes...)
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	webhook := map[string]any{}
	setString(webhook, "signing_secret", cfg.Webhook.SigningSecret)
	setInt(webhook, "tolerance_seconds", cfg.Webhook.ToleranceSeconds)
	if includeZero || cfg.Webhook.VerboseErrors {
		webhook["verbose_errors"] = cfg.Webhook.VerboseErrors
	}
	if includeZero || cfg.Webhook.MaxBodyBytes != 0 {
		webhook["max_body_bytes"] = cfg.Webhook.MaxBodyBytes
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}
	return layer
}
