package slack

import (
	"context"
	"net/http"
	"strings"
	"sync"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-slack/adapters/gocommand"
	"github.com/goliatone/go-slack/adapters/gologger"
	slackcommand "github.com/goliatone/go-slack/command"
	"github.com/goliatone/go-slack/core"
	"github.com/goliatone/go-slack/identity"
	"github.com/goliatone/go-slack/outbound"
	"github.com/goliatone/go-slack/query"
	"github.com/goliatone/go-slack/webhooks"
)

// Client pairs the outbound dispatcher with the inbound webhook handler over
// one resolved configuration.
type Client struct {
	config     core.Config
	deps       core.Dependencies
	dispatcher *outbound.Dispatcher
	commands   Commands
	queries    Queries
	identities *identity.Resolver

	webhookOnce sync.Once
	webhook     *webhooks.Handler
	webhookErr  error
}

// Commands are go-command handlers bound to a client.
type Commands struct {
	Call *slackcommand.CallCommand
}

// Queries are go-command queriers bound to a client. Delivery is nil unless
// the configured ledger can be read back.
type Queries struct {
	Stats    *query.DispatcherStatsQuery
	Delivery *query.GetDeliveryQuery
}

// New resolves configuration from defaults, the configured provider and cfg
// (highest precedence) and builds the outbound dispatcher.
func New(cfg Config, opts ...Option) (*Client, error) {
	return Setup(context.Background(), cfg, opts...)
}

func Setup(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	name := strings.TrimSpace(cfg.ServiceName)
	deps := core.BuildDependencies(name, opts...)
	resolved, err := core.ResolveConfig(ctx, cfg, deps)
	if err != nil {
		return nil, core.ToServiceError(err)
	}

	outboundDeps := deps
	outboundDeps.Logger = componentLogger(deps, resolved.ServiceName, "outbound")
	dispatcher, err := outbound.New(resolved, outboundDeps)
	if err != nil {
		return nil, err
	}

	client := &Client{
		config:     resolved,
		deps:       deps,
		dispatcher: dispatcher,
	}
	client.commands = Commands{
		Call: slackcommand.NewCallCommand(client),
	}
	identities, err := identity.NewResolver(client)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}
	client.identities = identities
	client.queries = Queries{
		Stats: query.NewDispatcherStatsQuery(client),
	}
	if reader, ok := deps.DeliveryLedger.(query.DeliveryReader); ok {
		client.queries.Delivery = query.NewGetDeliveryQuery(reader)
	}
	componentLogger(deps, resolved.ServiceName, "client").Info("slack client ready",
		"base_url", resolved.BaseURL,
		"max_concurrency", resolved.MaxConcurrency,
		"retry_strategy", resolved.Retry.Strategy,
	)
	return client, nil
}

// Config returns the resolved configuration with secrets redacted.
func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config.Redacted()
}

func (c *Client) Commands() Commands {
	if c == nil {
		return Commands{}
	}
	return c.commands
}

func (c *Client) Queries() Queries {
	if c == nil {
		return Queries{}
	}
	return c.queries
}

// Bind subscribes the client's commands and queries on the go-command
// dispatcher, so CallMessage, DispatcherStatsMessage and GetDeliveryMessage
// can be sent with gocommand.Dispatch and gocommand.Query. registry may be
// nil. Close the returned bindings to unsubscribe.
func (c *Client) Bind(registry *gocmd.Registry) (*gocommand.Bindings, error) {
	if c == nil {
		return nil, core.NewInternalError("slack: client is not configured", nil)
	}
	bindings := gocommand.NewBindings(registry)
	if err := gocommand.BindCommand[slackcommand.CallMessage](bindings, c.commands.Call); err != nil {
		bindings.Close()
		return nil, err
	}
	if err := gocommand.BindQuery[query.DispatcherStatsMessage, outbound.Stats](bindings, c.queries.Stats); err != nil {
		bindings.Close()
		return nil, err
	}
	if c.queries.Delivery != nil {
		if err := gocommand.BindQuery[query.GetDeliveryMessage, core.DeliveryRecord](bindings, c.queries.Delivery); err != nil {
			bindings.Close()
			return nil, err
		}
	}
	return bindings, nil
}

// Identity resolves the workspace and principal behind token through
// auth.test. An empty token uses the configured one. Answers are cached.
func (c *Client) Identity(ctx context.Context, token string) (identity.Identity, error) {
	if c == nil || c.identities == nil {
		return identity.Identity{}, core.NewInternalError("slack: client is not configured", nil)
	}
	return c.identities.Resolve(ctx, token)
}

func (c *Client) Call(ctx context.Context, method string, params map[string]any, opts ...CallOption) (CallResult, error) {
	if c == nil || c.dispatcher == nil {
		return CallResult{}, core.NewInternalError("slack: client is not configured", nil)
	}
	return c.dispatcher.Call(ctx, method, params, opts...)
}

// CallAsync invokes callback exactly once with either a result or an error.
func (c *Client) CallAsync(
	ctx context.Context,
	method string,
	params map[string]any,
	callback func(CallResult, error),
	opts ...CallOption,
) {
	if c == nil || c.dispatcher == nil {
		if callback != nil {
			go callback(CallResult{}, core.NewInternalError("slack: client is not configured", nil))
		}
		return
	}
	c.dispatcher.CallAsync(ctx, method, params, callback, opts...)
}

// WebhookHandler returns the Events API handler. It needs a signing secret
// and an event consumer; the first call builds it.
func (c *Client) WebhookHandler() (http.Handler, error) {
	handler, err := c.webhookHandler()
	if err != nil {
		return nil, err
	}
	return handler, nil
}

// HandleEvent runs an already read inbound request through the webhook
// pipeline.
func (c *Client) HandleEvent(ctx context.Context, req core.InboundRequest) (webhooks.Response, error) {
	handler, err := c.webhookHandler()
	if err != nil {
		return webhooks.Response{}, err
	}
	return handler.Handle(ctx, req), nil
}

func (c *Client) webhookHandler() (*webhooks.Handler, error) {
	if c == nil {
		return nil, core.NewInternalError("slack: client is not configured", nil)
	}
	c.webhookOnce.Do(func() {
		deps := c.deps
		deps.Logger = componentLogger(c.deps, c.config.ServiceName, "webhooks")
		c.webhook, c.webhookErr = webhooks.New(c.config, deps)
	})
	return c.webhook, c.webhookErr
}

func (c *Client) Stats() outbound.Stats {
	if c == nil || c.dispatcher == nil {
		return outbound.Stats{}
	}
	return c.dispatcher.Stats()
}

// Close stops admitting outbound calls. In-flight calls are not cancelled.
func (c *Client) Close() {
	if c == nil || c.dispatcher == nil {
		return
	}
	c.dispatcher.Close()
}

// Shutdown closes the client and waits for queued calls to drain.
func (c *Client) Shutdown(ctx context.Context) error {
	if c == nil || c.dispatcher == nil {
		return nil
	}
	return c.dispatcher.Shutdown(ctx)
}

func componentLogger(deps core.Dependencies, serviceName string, component string) core.Logger {
	if deps.LoggerProvider == nil {
		return deps.Logger
	}
	return gologger.Named(deps.LoggerProvider, serviceName+"."+component)
}

// WithCommandDispatch routes verified events to go-command subscribers of
// command.EventMessage.
func WithCommandDispatch() Option {
	return core.WithEventConsumer(slackcommand.NewDispatchConsumer())
}
