package core

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// CallOptions are per-call overrides applied on top of the client config.
type CallOptions struct {
	Token   string
	JSON    bool
	Headers map[string]string
	Timeout time.Duration
}

type CallOption func(*CallOptions)

func WithCallToken(token string) CallOption {
	return func(o *CallOptions) { o.Token = token }
}

func WithJSONBody() CallOption {
	return func(o *CallOptions) { o.JSON = true }
}

func WithCallHeader(key string, value string) CallOption {
	return func(o *CallOptions) {
		if o.Headers == nil {
			o.Headers = map[string]string{}
		}
		o.Headers[key] = value
	}
}

func WithCallTimeout(timeout time.Duration) CallOption {
	return func(o *CallOptions) { o.Timeout = timeout }
}

// CallRequest is a single logical API call. It is not mutated after submission.
type CallRequest struct {
	Method  string
	Params  map[string]any
	Options CallOptions
}

func NewCallRequest(method string, params map[string]any, opts ...CallOption) CallRequest {
	req := CallRequest{
		Method: method,
		Params: cloneParams(params),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&req.Options)
	}
	return req
}

// CallResult is either a success payload (OK true) or a platform failure
// carrying ErrorCode (OK false).
type CallResult struct {
	OK         bool
	Payload    map[string]any
	ErrorCode  string
	Warning    string
	StatusCode int
	Attempts   int
}

type RetryAttempt struct {
	Attempt int
	Delay   time.Duration
	Cause   error
}

type TransportRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	Timeout  time.Duration
	Metadata map[string]any
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportAdapter sends one HTTP request. It is opaque to the dispatcher.
type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// InboundRequest is what the webhook handler verifies. RawBody must be the
// exact bytes received.
type InboundRequest struct {
	RawBody     []byte
	Timestamp   string
	Signature   string
	RetryNum    int
	RetryReason string
	Headers     map[string]string
}

// Event is a verified Events API payload.
type Event struct {
	Type        string
	EventType   string
	EventID     string
	EventTime   int64
	TeamID      string
	APIAppID    string
	RetryNum    int
	RetryReason string
	Payload     map[string]any
	Raw         json.RawMessage
}

// InnerEvent returns the nested "event" object for event_callback payloads.
func (e Event) InnerEvent() map[string]any {
	if e.Payload == nil {
		return nil
	}
	inner, _ := e.Payload["event"].(map[string]any)
	return inner
}

// EventResponse is what a consumer wants written back. A zero StatusCode
// means 200. Body may be []byte, string or any JSON-encodable value.
type EventResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       any
}

type EventConsumer interface {
	HandleEvent(ctx context.Context, event Event) (EventResponse, error)
}

type EventConsumerFunc func(ctx context.Context, event Event) (EventResponse, error)

func (f EventConsumerFunc) HandleEvent(ctx context.Context, event Event) (EventResponse, error) {
	return f(ctx, event)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func cloneParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		out[key] = value
	}
	return out
}

// BackoffPolicy is the retry schedule consulted between attempts.
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
	Exhausted(attempt int) bool
}

// RateLimiter blocks until a request may be sent.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// ThrottlePolicy tracks server throttling per API method.
type ThrottlePolicy interface {
	BeforeCall(ctx context.Context, method string) error
	AfterCall(ctx context.Context, method string, res ResponseMeta) error
}

type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
}

const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusProcessed  = "processed"
)

type DeliveryRecord struct {
	ID        string
	ClaimID   string
	EventID   string
	Status    string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeliveryLedger suppresses re-emission of events the platform redelivers.
// Claim returns claimed=false when the event is already processed or in flight.
type DeliveryLedger interface {
	Claim(ctx context.Context, eventID string, lease time.Duration) (record DeliveryRecord, claimed bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error) error
}
