package command

import (
	"context"
	"net/http"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-slack/adapters/gocommand"
	"github.com/goliatone/go-slack/core"
)

type Caller interface {
	Call(ctx context.Context, method string, params map[string]any, opts ...core.CallOption) (core.CallResult, error)
}

type CallCommand struct {
	caller Caller
}

func NewCallCommand(caller Caller) *CallCommand {
	return &CallCommand{caller: caller}
}

func (c *CallCommand) Execute(ctx context.Context, msg CallMessage) error {
	if c == nil || c.caller == nil {
		return commandDependencyError("command: api caller is required")
	}
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return err
	}
	out, err := c.caller.Call(ctx, msg.Method, msg.Params, msg.options()...)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// DispatchConsumer hands verified events to go-command subscribers of
// EventMessage. A subscriber may store a core.EventResponse in the result
// collector carried by the context; otherwise the event is acknowledged with
// 200.
type DispatchConsumer struct {
	dispatch func(ctx context.Context, msg EventMessage) error
}

func NewDispatchConsumer() *DispatchConsumer {
	return &DispatchConsumer{dispatch: gocommand.Dispatch[EventMessage]}
}

func (c *DispatchConsumer) HandleEvent(ctx context.Context, event core.Event) (core.EventResponse, error) {
	if c == nil || c.dispatch == nil {
		return core.EventResponse{}, commandDependencyError("command: dispatcher is required")
	}
	msg := EventMessage{Event: event}
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return core.EventResponse{}, err
	}
	collector := gocmd.NewResult[core.EventResponse]()
	if err := c.dispatch(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return core.EventResponse{}, err
	}
	if res, ok := collector.Load(); ok {
		return res, nil
	}
	return core.EventResponse{StatusCode: http.StatusOK}, nil
}

// RespondWith stores the HTTP answer for the event being dispatched.
func RespondWith(ctx context.Context, res core.EventResponse) {
	storeResult(ctx, res)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
