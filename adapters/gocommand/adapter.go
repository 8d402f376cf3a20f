package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

type validator interface {
	Validate() error
}

// ValidateMessageContract requires a non-empty Type() and runs Validate()
// when the message has one. Validation errors are returned unchanged.
func ValidateMessageContract(msg any) error {
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if v, ok := msg.(validator); ok {
		return v.Validate()
	}
	return nil
}

// Bindings holds the dispatcher subscriptions made for one client.
// Registry is optional; when set every bound handler is registered too.
type Bindings struct {
	registry *command.Registry

	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
}

func NewBindings(registry *command.Registry) *Bindings {
	return &Bindings{registry: registry}
}

func (b *Bindings) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// Close unsubscribes everything bound so far. It is safe to call twice.
func (b *Bindings) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := b.subscriptions
	b.subscriptions = nil
	b.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

func (b *Bindings) track(sub commanddispatcher.Subscription, handler any) error {
	if b.registry != nil {
		if err := b.registry.RegisterCommand(handler); err != nil {
			if sub != nil {
				sub.Unsubscribe()
			}
			return err
		}
	}
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()
	return nil
}

// BindCommand subscribes cmd on the dispatcher and records the subscription.
func BindCommand[T any](b *Bindings, cmd command.Commander[T], runnerOpts ...runner.Option) error {
	if b == nil {
		return fmt.Errorf("gocommand: bindings are required")
	}
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	return b.track(commanddispatcher.SubscribeCommand(cmd, runnerOpts...), cmd)
}

// BindQuery subscribes qry on the dispatcher and records the subscription.
func BindQuery[T any, R any](b *Bindings, qry command.Querier[T, R], runnerOpts ...runner.Option) error {
	if b == nil {
		return fmt.Errorf("gocommand: bindings are required")
	}
	if qry == nil {
		return fmt.Errorf("gocommand: query is required")
	}
	return b.track(commanddispatcher.SubscribeQuery(qry, runnerOpts...), qry)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}
