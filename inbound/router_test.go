package inbound

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack/core"
)

func respondWith(status int, calls *[]string, name string) core.EventConsumerFunc {
	return func(_ context.Context, _ core.Event) (core.EventResponse, error) {
		*calls = append(*calls, name)
		return core.EventResponse{StatusCode: status}, nil
	}
}

func TestRouter_RoutesByInnerEventType(t *testing.T) {
	var calls []string
	router := NewRouter()
	if err := router.Register("reaction_added", respondWith(http.StatusOK, &calls, "reaction")); err != nil {
		t.Fatalf("register reaction handler: %v", err)
	}
	if err := router.Register("event_callback", respondWith(http.StatusAccepted, &calls, "envelope")); err != nil {
		t.Fatalf("register envelope handler: %v", err)
	}

	res, err := router.HandleEvent(context.Background(), core.Event{Type: "event_callback", EventType: "reaction_added"})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	res, err = router.HandleEvent(context.Background(), core.Event{Type: "event_callback", EventType: "app_mention"})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected envelope handler status, got %d", res.StatusCode)
	}
	if !reflect.DeepEqual(calls, []string{"reaction", "envelope"}) {
		t.Fatalf("unexpected call order %v", calls)
	}
	if !reflect.DeepEqual(router.Types(), []string{"event_callback", "reaction_added"}) {
		t.Fatalf("unexpected types %v", router.Types())
	}
}

func TestRouter_FallbackAndDefaultAcknowledge(t *testing.T) {
	router := NewRouter()
	res, err := router.HandleEvent(context.Background(), core.Event{Type: "app_rate_limited"})
	if err != nil {
		t.Fatalf("handle unrouted event: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected unrouted events acknowledged, got %d", res.StatusCode)
	}

	var calls []string
	router.Fallback(respondWith(http.StatusNoContent, &calls, "fallback"))
	res, _ = router.HandleEvent(context.Background(), core.Event{Type: "app_rate_limited"})
	if res.StatusCode != http.StatusNoContent || len(calls) != 1 {
		t.Fatalf("expected fallback to handle event, got %d %v", res.StatusCode, calls)
	}
}

func TestRouter_RegisterConflictReturnsRichError(t *testing.T) {
	var calls []string
	router := NewRouter()
	if err := router.Register("app_mention", respondWith(http.StatusOK, &calls, "a")); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	err := router.Register(" APP_MENTION ", respondWith(http.StatusOK, &calls, "b"))
	if err == nil {
		t.Fatalf("expected conflict error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorTextConflict {
		t.Fatalf("expected %q text code, got %q", core.ErrorTextConflict, rich.TextCode)
	}
	if rich.Code != http.StatusConflict {
		t.Fatalf("expected %d code, got %d", http.StatusConflict, rich.Code)
	}
}

func TestRouter_RegisterValidatesInput(t *testing.T) {
	router := NewRouter()
	if err := router.Register("", core.EventConsumerFunc(func(context.Context, core.Event) (core.EventResponse, error) {
		return core.EventResponse{}, nil
	})); err == nil {
		t.Fatalf("expected event type required error")
	}
	if err := router.Register("app_mention", nil); err == nil {
		t.Fatalf("expected nil handler error")
	}
	if err := router.RegisterFunc("app_mention", nil); err == nil {
		t.Fatalf("expected nil func error")
	}
	var rich *goerrors.Error
	err := router.Register("app_mention", nil)
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorTextBadInput {
		t.Fatalf("expected bad input envelope, got %v", err)
	}
}
