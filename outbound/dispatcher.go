// Package outbound calls Web API methods through a concurrency limited queue
// and a retry controller.
package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-slack/backoff"
	"github.com/goliatone/go-slack/core"
	"github.com/goliatone/go-slack/queue"
	"github.com/goliatone/go-slack/ratelimit"
	"github.com/goliatone/go-slack/retry"
	"github.com/goliatone/go-slack/transport"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json; charset=utf-8"
)

// Callback receives either a result or an error, never both.
type Callback func(result core.CallResult, err error)

type Stats struct {
	Calls       uint64
	Attempts    uint64
	Retries     uint64
	Succeeded   uint64
	Failed      uint64
	RateLimited uint64
}

type reducer interface {
	Reduce()
}

type closer interface {
	Close()
}

// Dispatcher is safe for concurrent use. Every call is queued independently.
type Dispatcher struct {
	config    core.Config
	transport core.TransportAdapter
	queue     *queue.Queue
	policy    core.BackoffPolicy
	limiter   core.RateLimiter
	throttle  core.ThrottlePolicy
	retryable map[string]bool
	observer  core.Observer
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	calls       atomic.Uint64
	attempts    atomic.Uint64
	retries     atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	rateLimited atomic.Uint64
}

// NewDispatcher validates cfg and applies options over the defaults.
func NewDispatcher(cfg core.Config, opts ...core.Option) (*Dispatcher, error) {
	return New(cfg, core.BuildDependencies(cfg.ServiceName, opts...))
}

func New(cfg core.Config, deps core.Dependencies) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.NewBadInputError(err.Error(), map[string]any{"component": "outbound"})
	}
	adapter := deps.Transport
	if adapter == nil {
		adapter = transport.NewRESTAdapter(deps.HTTPClient)
	}
	policy := deps.BackoffPolicy
	if policy == nil {
		policy = backoff.FromConfig(cfg.Retry)
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	retryable := make(map[string]bool, len(cfg.Retry.RetryableErrorCodes))
	for _, code := range cfg.Retry.RetryableErrorCodes {
		if code = strings.TrimSpace(code); code != "" {
			retryable[code] = true
		}
	}
	return &Dispatcher{
		config:    cfg,
		transport: adapter,
		queue:     queue.New(cfg.MaxConcurrency),
		policy:    policy,
		limiter:   deps.RateLimiter,
		throttle:  deps.ThrottlePolicy,
		retryable: retryable,
		observer:  core.NewObserver(deps.Logger, deps.MetricsRecorder),
		now:       now,
		sleep:     retry.Sleep,
	}, nil
}

func (d *Dispatcher) Config() core.Config {
	return d.config
}

// Call runs method through the queue and the retry controller and waits for
// the final outcome. A platform rejection returns a result with ErrorCode set
// together with a *core.PlatformError.
func (d *Dispatcher) Call(
	ctx context.Context,
	method string,
	params map[string]any,
	opts ...core.CallOption,
) (core.CallResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method = strings.TrimPrefix(strings.TrimSpace(method), "/")
	if method == "" {
		return core.CallResult{}, core.NewBadInputError("outbound: method is required", nil)
	}
	req := core.NewCallRequest(method, params, opts...)
	d.calls.Add(1)
	startedAt := time.Now()

	var result, out core.CallResult
	handle, err := d.queue.Submit(ctx, func(ctx context.Context) error {
		res, execErr := d.execute(ctx, req)
		out = res
		return execErr
	})
	if err == nil {
		err = handle.Wait(ctx)
		select {
		case <-handle.Done():
			result = out
		default:
			// the caller gave up while the work is still queued or running
		}
	}

	fields := map[string]any{"method": method, "attempts": result.Attempts}
	if result.ErrorCode != "" {
		fields["error_code"] = result.ErrorCode
	}
	d.observer.Observe(ctx, startedAt, "api_call", err, fields)
	if err != nil {
		d.failed.Add(1)
		return result, err
	}
	d.succeeded.Add(1)
	return result, nil
}

// CallAsync runs the same pipeline as Call and invokes callback exactly once
// on its own goroutine. It never calls back on the caller's stack.
func (d *Dispatcher) CallAsync(
	ctx context.Context,
	method string,
	params map[string]any,
	callback Callback,
	opts ...core.CallOption,
) {
	go func() {
		result, err := d.Call(ctx, method, params, opts...)
		if callback == nil {
			return
		}
		defer func() {
			if recovered := recover(); recovered != nil {
				d.observer.Error(ctx, "api call callback panicked", map[string]any{
					"method": method,
					"panic":  fmt.Sprint(recovered),
				})
			}
		}()
		if err != nil {
			callback(core.CallResult{}, err)
			return
		}
		callback(result, nil)
	}()
}

// Close stops admitting calls. Calls already queued or in flight complete.
func (d *Dispatcher) Close() {
	d.queue.Close()
	if c, ok := d.limiter.(closer); ok {
		c.Close()
	}
}

// Shutdown closes the dispatcher and waits for queued calls to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Close()
	return d.queue.Drain(ctx)
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Calls:       d.calls.Load(),
		Attempts:    d.attempts.Load(),
		Retries:     d.retries.Load(),
		Succeeded:   d.succeeded.Load(),
		Failed:      d.failed.Load(),
		RateLimited: d.rateLimited.Load(),
	}
}

func (d *Dispatcher) execute(ctx context.Context, req core.CallRequest) (core.CallResult, error) {
	var last core.CallResult
	controller := &retry.Controller{
		Policy:      d.policy,
		IsRetryable: retry.DefaultRetryable,
		Sleep:       d.sleep,
		OnRetry: func(ctx context.Context, attempt core.RetryAttempt) {
			d.retries.Add(1)
			d.observer.Warn(ctx, "api call retry scheduled", map[string]any{
				"method":   req.Method,
				"attempt":  attempt.Attempt,
				"delay_ms": attempt.Delay.Milliseconds(),
				"cause":    attempt.Cause.Error(),
			})
		},
	}
	attempts, err := controller.Run(ctx, func(ctx context.Context, _ int) error {
		res, attemptErr := d.attempt(ctx, req)
		last = res
		return attemptErr
	})
	last.Attempts = attempts
	return last, err
}

func (d *Dispatcher) attempt(ctx context.Context, req core.CallRequest) (core.CallResult, error) {
	d.attempts.Add(1)
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return core.CallResult{}, err
		}
	}
	if d.throttle != nil {
		if err := d.throttle.BeforeCall(ctx, req.Method); err != nil {
			d.rateLimited.Add(1)
			return core.CallResult{}, err
		}
	}

	body, contentType, err := encodeParams(req.Params, req.Options.JSON)
	if err != nil {
		return core.CallResult{}, core.NewBadInputError(fmt.Sprintf("outbound: encode params: %v", err),
			map[string]any{"method": req.Method})
	}
	headers := map[string]string{
		"Content-Type": contentType,
		"Accept":       "application/json",
	}
	token := strings.TrimSpace(req.Options.Token)
	if token == "" {
		token = strings.TrimSpace(d.config.Token)
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	for key, value := range req.Options.Headers {
		headers[key] = value
	}

	res, err := d.transport.Do(ctx, core.TransportRequest{
		Method:   http.MethodPost,
		URL:      d.config.MethodURL(req.Method),
		Headers:  headers,
		Body:     body,
		Timeout:  req.Options.Timeout,
		Metadata: map[string]any{transport.MetadataAPIMethod: req.Method},
	})
	if err != nil {
		return core.CallResult{}, err
	}

	retryAfter := ratelimit.ParseRetryAfter(transport.HeaderValue(res.Headers, "Retry-After"), d.now())
	if d.throttle != nil {
		meta := core.ResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}
		if retryAfter > 0 {
			meta.RetryAfter = &retryAfter
		}
		if throttleErr := d.throttle.AfterCall(ctx, req.Method, meta); throttleErr != nil {
			d.observer.Warn(ctx, "throttle state update failed", map[string]any{
				"method": req.Method,
				"error":  throttleErr.Error(),
			})
		}
	}
	return d.classify(req.Method, res, retryAfter)
}

func (d *Dispatcher) classify(method string, res core.TransportResponse, retryAfter time.Duration) (core.CallResult, error) {
	result := core.CallResult{StatusCode: res.StatusCode}
	if res.StatusCode == http.StatusTooManyRequests {
		return result, d.rateLimitedError(method, retryAfter)
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return result, &core.TransportError{Method: method, StatusCode: res.StatusCode}
	}

	var payload map[string]any
	if err := json.Unmarshal(res.Body, &payload); err != nil || payload == nil {
		result.ErrorCode = core.ErrorCodeInvalidResponse
		return result, &core.PlatformError{
			Method:     method,
			Code:       core.ErrorCodeInvalidResponse,
			StatusCode: res.StatusCode,
		}
	}
	result.Payload = payload
	result.Warning, _ = payload["warning"].(string)

	if ok, _ := payload["ok"].(bool); ok {
		result.OK = true
		return result, nil
	}

	code, _ := payload["error"].(string)
	code = strings.TrimSpace(code)
	if code == "" {
		code = core.ErrorCodeInvalidResponse
	}
	result.ErrorCode = code
	if code == core.ErrorCodeRateLimited {
		return result, d.rateLimitedError(method, retryAfter)
	}
	return result, &core.PlatformError{
		Method:     method,
		Code:       code,
		StatusCode: res.StatusCode,
		Warning:    result.Warning,
		Retryable:  d.retryable[code],
	}
}

func (d *Dispatcher) rateLimitedError(method string, retryAfter time.Duration) error {
	d.rateLimited.Add(1)
	if r, ok := d.limiter.(reducer); ok {
		r.Reduce()
	}
	return &core.RateLimitedError{Method: method, After: retryAfter}
}

// encodeParams form-encodes params by default. Nested values are JSON
// encoded inside the form field, as the Web API expects for blocks and
// attachments.
func encodeParams(params map[string]any, asJSON bool) ([]byte, string, error) {
	if asJSON {
		if params == nil {
			params = map[string]any{}
		}
		body, err := json.Marshal(params)
		if err != nil {
			return nil, "", err
		}
		return body, contentTypeJSON, nil
	}

	values := url.Values{}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		encoded, skip, err := formValue(params[key])
		if err != nil {
			return nil, "", fmt.Errorf("param %q: %w", key, err)
		}
		if skip {
			continue
		}
		values.Set(key, encoded)
	}
	return []byte(values.Encode()), contentTypeForm, nil
}

func formValue(value any) (string, bool, error) {
	switch typed := value.(type) {
	case nil:
		return "", true, nil
	case string:
		return typed, false, nil
	case bool:
		return strconv.FormatBool(typed), false, nil
	case int:
		return strconv.Itoa(typed), false, nil
	case int64:
		return strconv.FormatInt(typed, 10), false, nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), false, nil
	case fmt.Stringer:
		return typed.String(), false, nil
	case json.RawMessage:
		return string(typed), false, nil
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return "", false, err
		}
		return string(raw), false, nil
	}
}
