package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-slack/core"
)

const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"

	contentTypeText = "text/plain; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

type DispatchDecision string

const (
	DecisionRespondChallenge       DispatchDecision = "respond_challenge"
	DecisionEmitEvent              DispatchDecision = "emit_event"
	DecisionAcknowledgeDuplicate   DispatchDecision = "acknowledge_duplicate"
	DecisionRejectStale            DispatchDecision = "reject_stale"
	DecisionRejectInvalidSignature DispatchDecision = "reject_invalid_signature"
	DecisionRejectMalformed        DispatchDecision = "reject_malformed"
)

type State string

const (
	StateStart              State = "start"
	StateBodyRead           State = "body_read"
	StateVerified           State = "verified"
	StateRejected           State = "rejected"
	StateChallengeResponded State = "challenge_responded"
	StateEventEmitted       State = "event_emitted"
	StateDuplicateAcked     State = "duplicate_acknowledged"
	StateDone               State = "done"
)

var transitions = map[State][]State{
	StateStart:              {StateBodyRead, StateRejected},
	StateBodyRead:           {StateVerified, StateRejected},
	StateVerified:           {StateChallengeResponded, StateEventEmitted, StateDuplicateAcked, StateRejected},
	StateRejected:           {StateDone},
	StateChallengeResponded: {StateDone},
	StateEventEmitted:       {StateDone},
	StateDuplicateAcked:     {StateDone},
}

// CanTransition reports whether the request lifecycle allows from -> to.
func CanTransition(from State, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Response is the outcome of handling one inbound request. Headers always
// include the powered-by header.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Decision   DispatchDecision
	// Path lists every state visited, ending in StateDone.
	Path []State
	Err  error
}

type preparsedKey struct{}

type preparsedBody struct {
	parsed any
	raw    []byte
}

// WithPreparsedBody marks a request whose body was already consumed by
// upstream middleware. raw must be the exact bytes received; a nil raw makes
// the request unverifiable.
func WithPreparsedBody(ctx context.Context, parsed any, raw []byte) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, preparsedKey{}, preparsedBody{parsed: parsed, raw: raw})
}

// PreparsedBody returns what WithPreparsedBody attached.
func PreparsedBody(ctx context.Context) (parsed any, raw []byte, ok bool) {
	if ctx == nil {
		return nil, nil, false
	}
	body, ok := ctx.Value(preparsedKey{}).(preparsedBody)
	if !ok {
		return nil, nil, false
	}
	return body.parsed, body.raw, true
}

type envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	EventID   string `json:"event_id"`
	EventTime int64  `json:"event_time"`
	TeamID    string `json:"team_id"`
	APIAppID  string `json:"api_app_id"`
	Event     struct {
		Type string `json:"type"`
	} `json:"event"`
}

// Handler receives Events API requests. It never lets a failure escape as a
// panic; every outcome becomes an HTTP response.
type Handler struct {
	verifier     Verifier
	consumer     core.EventConsumer
	ledger       core.DeliveryLedger
	verbose      bool
	maxBodyBytes int64
	claimLease   time.Duration
	observer     core.Observer
}

func NewHandler(cfg core.Config, opts ...core.Option) (*Handler, error) {
	return New(cfg, core.BuildDependencies(cfg.ServiceName, opts...))
}

func New(cfg core.Config, deps core.Dependencies) (*Handler, error) {
	secret := strings.TrimSpace(cfg.Webhook.SigningSecret)
	if secret == "" {
		return nil, webhookBadInput(core.ErrSigningSecretUnset.Error(), map[string]any{"component": "webhooks"})
	}
	if deps.EventConsumer == nil {
		return nil, webhookBadInput("webhooks: event consumer is required", map[string]any{"component": "webhooks"})
	}
	maxBody := cfg.Webhook.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = core.DefaultMaxBodyBytes
	}
	return &Handler{
		verifier: Verifier{
			Secret:    cfg.Webhook.SigningSecret,
			Tolerance: cfg.Webhook.Tolerance(),
			Now:       deps.Now,
		},
		consumer:     deps.EventConsumer,
		ledger:       deps.DeliveryLedger,
		verbose:      cfg.Webhook.VerboseErrors,
		maxBodyBytes: maxBody,
		claimLease:   DefaultClaimLease,
		observer:     core.NewObserver(deps.Logger, deps.MetricsRecorder),
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := h.readRequest(r)
	var res Response
	if err != nil {
		startedAt := time.Now()
		res = h.reject(ctx, []State{StateStart}, DecisionRejectMalformed, err)
		h.observe(ctx, startedAt, res, core.Event{})
	} else {
		res = h.Handle(ctx, req)
	}
	writeResponse(w, res)
}

// Handle runs the verification and dispatch steps over an already read
// request.
func (h *Handler) Handle(ctx context.Context, req core.InboundRequest) (res Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	path := []State{StateStart, StateBodyRead}
	var event core.Event

	defer func() {
		if recovered := recover(); recovered != nil {
			res = h.reject(ctx, path, DecisionRejectMalformed, webhookInternal(
				fmt.Errorf("panic: %v", recovered),
				"webhooks: handler panicked",
				nil,
			))
		}
		h.observe(ctx, startedAt, res, event)
	}()

	if req.RawBody == nil {
		return h.reject(ctx, path, DecisionRejectMalformed, core.ErrBodyUnverifiable)
	}

	if err := h.verifier.Verify(ctx, req); err != nil {
		var verification *core.VerificationError
		if !errors.As(err, &verification) {
			return h.reject(ctx, path, DecisionRejectMalformed, webhookInternal(err, "webhooks: verification failed", nil))
		}
		if verification.Reason == core.ReasonStaleTimestamp {
			return h.reject(ctx, path, DecisionRejectStale, err)
		}
		return h.reject(ctx, path, DecisionRejectInvalidSignature, err)
	}
	path = append(path, StateVerified)

	parsed, payload, err := decodeEnvelope(req.RawBody)
	if err != nil {
		return h.reject(ctx, path, DecisionRejectMalformed, err)
	}

	if parsed.Type == TypeURLVerification {
		path = append(path, StateChallengeResponded, StateDone)
		return Response{
			StatusCode: http.StatusOK,
			Headers:    responseHeaders(map[string]string{"Content-Type": contentTypeText}),
			Body:       []byte(parsed.Challenge),
			Decision:   DecisionRespondChallenge,
			Path:       path,
		}
	}

	event = core.Event{
		Type:        parsed.Type,
		EventType:   parsed.Event.Type,
		EventID:     parsed.EventID,
		EventTime:   parsed.EventTime,
		TeamID:      parsed.TeamID,
		APIAppID:    parsed.APIAppID,
		RetryNum:    req.RetryNum,
		RetryReason: req.RetryReason,
		Payload:     payload,
		Raw:         json.RawMessage(append([]byte(nil), req.RawBody...)),
	}

	claimID := ""
	if h.ledger != nil && strings.TrimSpace(event.EventID) != "" {
		record, claimed, claimErr := h.ledger.Claim(ctx, event.EventID, h.claimLease)
		if claimErr != nil {
			return h.reject(ctx, path, DecisionRejectMalformed, webhookInternal(
				claimErr,
				"webhooks: claim delivery",
				map[string]any{"event_id": event.EventID},
			))
		}
		if !claimed {
			path = append(path, StateDuplicateAcked, StateDone)
			return Response{
				StatusCode: http.StatusOK,
				Headers:    responseHeaders(nil),
				Decision:   DecisionAcknowledgeDuplicate,
				Path:       path,
			}
		}
		claimID = record.ClaimID
	}

	consumerRes, consumerErr := h.emit(ctx, event)
	if consumerErr != nil {
		if claimID != "" {
			h.settle(ctx, claimID, consumerErr)
		}
		return h.reject(ctx, path, DecisionEmitEvent, consumerErr)
	}
	// A 5xx answered without an error is passed through, but the claim is
	// failed so that Slack's retry is processed again.
	if consumerRes.StatusCode >= http.StatusInternalServerError {
		consumerErr = fmt.Errorf("webhooks: consumer answered %d", consumerRes.StatusCode)
	}
	if claimID != "" {
		h.settle(ctx, claimID, consumerErr)
	}

	body, contentType, err := encodeBody(consumerRes.Body)
	if err != nil {
		return h.reject(ctx, path, DecisionEmitEvent, webhookInternal(err, "webhooks: encode consumer response", nil))
	}
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	for key, value := range consumerRes.Headers {
		headers[key] = value
	}
	status := consumerRes.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	path = append(path, StateEventEmitted, StateDone)
	return Response{
		StatusCode: status,
		Headers:    responseHeaders(headers),
		Body:       body,
		Decision:   DecisionEmitEvent,
		Path:       path,
		Err:        consumerErr,
	}
}

func (h *Handler) emit(ctx context.Context, event core.Event) (res core.EventResponse, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			res = core.EventResponse{}
			err = fmt.Errorf("webhooks: event consumer panicked: %v", recovered)
		}
	}()
	return h.consumer.HandleEvent(ctx, event)
}

func (h *Handler) settle(ctx context.Context, claimID string, cause error) {
	var err error
	if cause != nil {
		err = h.ledger.Fail(ctx, claimID, cause)
	} else {
		err = h.ledger.Complete(ctx, claimID)
	}
	if err != nil {
		h.observer.Warn(ctx, "webhooks: settle delivery claim failed", map[string]any{
			"claim_id": claimID,
			"error":    err.Error(),
		})
	}
}

// reject maps a failure to its response. Verification failures answer 404
// and carry no body; anything else answers 500.
func (h *Handler) reject(ctx context.Context, path []State, decision DispatchDecision, cause error) Response {
	path = append(append([]State(nil), path...), StateRejected, StateDone)
	res := Response{
		Headers:  responseHeaders(nil),
		Decision: decision,
		Path:     path,
		Err:      cause,
	}
	switch decision {
	case DecisionRejectStale, DecisionRejectInvalidSignature:
		res.StatusCode = http.StatusNotFound
		return res
	}
	res.StatusCode = http.StatusInternalServerError
	if h != nil && h.verbose && cause != nil {
		res.Headers["Content-Type"] = contentTypeText
		res.Body = []byte(cause.Error())
	}
	return res
}

func (h *Handler) observe(ctx context.Context, startedAt time.Time, res Response, event core.Event) {
	fields := map[string]any{
		"decision":    string(res.Decision),
		"status_code": res.StatusCode,
	}
	if event.EventID != "" {
		fields["event_id"] = event.EventID
	}
	if event.Type != "" {
		fields["event_type"] = event.Type
	}
	if event.EventType != "" {
		fields["inner_event_type"] = event.EventType
	}
	if event.TeamID != "" {
		fields["team_id"] = event.TeamID
	}
	if event.RetryNum > 0 {
		fields["retry_num"] = event.RetryNum
		fields["retry_reason"] = event.RetryReason
	}
	var verification *core.VerificationError
	if errors.As(res.Err, &verification) {
		fields["reason"] = string(verification.Reason)
		h.observer.Observe(ctx, startedAt, "webhook.verify", res.Err, fields)
		return
	}
	h.observer.Observe(ctx, startedAt, "webhook.handle", res.Err, fields)
}

func (h *Handler) readRequest(r *http.Request) (core.InboundRequest, error) {
	req := core.InboundRequest{
		Timestamp:   r.Header.Get(HeaderTimestamp),
		Signature:   r.Header.Get(HeaderSignature),
		RetryReason: r.Header.Get(HeaderRetryReason),
		Headers:     flattenHeaders(r.Header),
	}
	if value := strings.TrimSpace(r.Header.Get(HeaderRetryNum)); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			req.RetryNum = n
		}
	}

	if _, raw, ok := PreparsedBody(r.Context()); ok {
		if raw == nil {
			return req, core.ErrBodyUnverifiable
		}
		req.RawBody = raw
		return req, nil
	}

	if r.Body == nil {
		req.RawBody = []byte{}
		return req, nil
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		return req, webhookInternal(err, "webhooks: read request body", nil)
	}
	if int64(len(raw)) > h.maxBodyBytes {
		return req, webhookInternal(nil, "webhooks: request body too large", map[string]any{
			"max_body_bytes": h.maxBodyBytes,
		})
	}
	req.RawBody = raw
	return req, nil
}

func decodeEnvelope(raw []byte) (envelope, map[string]any, error) {
	var parsed envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		return parsed, nil, webhookMalformed(nil, "webhooks: request body is empty")
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsed, nil, webhookMalformed(err, "webhooks: decode event payload")
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return parsed, nil, webhookMalformed(err, "webhooks: decode event payload")
	}
	return parsed, payload, nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch value := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return value, "", nil
	case string:
		return []byte(value), contentTypeText, nil
	case json.RawMessage:
		return value, contentTypeJSON, nil
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, "", err
		}
		return encoded, contentTypeJSON, nil
	}
}

func responseHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for key, value := range headers {
		out[key] = value
	}
	out[core.PoweredByHeader] = core.PoweredByValue()
	return out
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}

func writeResponse(w http.ResponseWriter, res Response) {
	header := w.Header()
	for key, value := range res.Headers {
		header.Set(key, value)
	}
	header.Set(core.PoweredByHeader, core.PoweredByValue())
	status := res.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	if len(res.Body) > 0 {
		_, _ = w.Write(res.Body)
	}
}
