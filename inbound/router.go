package inbound

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-slack/core"
)

// Router is a core.EventConsumer that dispatches on the inner event type,
// falling back to the envelope type for payloads without one.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]core.EventConsumer
	fallback core.EventConsumer
}

func NewRouter() *Router {
	return &Router{handlers: map[string]core.EventConsumer{}}
}

func (r *Router) Register(eventType string, handler core.EventConsumer) error {
	if r == nil {
		return inboundInternal("inbound: router is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	eventType = normalizeEventType(eventType)
	if eventType == "" {
		return inboundBadInput("inbound: event type is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[string]core.EventConsumer{}
	}
	if _, exists := r.handlers[eventType]; exists {
		return inboundConflict(
			fmt.Sprintf("inbound: handler already registered for event type %q", eventType),
			map[string]any{"event_type": eventType},
		)
	}
	r.handlers[eventType] = handler
	return nil
}

func (r *Router) RegisterFunc(
	eventType string,
	fn func(ctx context.Context, event core.Event) (core.EventResponse, error),
) error {
	if fn == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	return r.Register(eventType, core.EventConsumerFunc(fn))
}

// Fallback handles events no registered type matches. Without one those
// events are acknowledged with 200.
func (r *Router) Fallback(handler core.EventConsumer) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.fallback = handler
	r.mu.Unlock()
}

func (r *Router) Types() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

func (r *Router) HandleEvent(ctx context.Context, event core.Event) (core.EventResponse, error) {
	if r == nil {
		return core.EventResponse{}, inboundInternal("inbound: router is nil", nil)
	}
	handler := r.handlerFor(event)
	if handler == nil {
		return core.EventResponse{StatusCode: http.StatusOK}, nil
	}
	return handler.HandleEvent(ctx, event)
}

func (r *Router) handlerFor(event core.Event) core.EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range []string{event.EventType, event.Type} {
		key = normalizeEventType(key)
		if key == "" {
			continue
		}
		if handler, ok := r.handlers[key]; ok {
			return handler
		}
	}
	return r.fallback
}

func normalizeEventType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}
