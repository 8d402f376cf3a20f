package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorTextBadInput         = "SLACK_BAD_INPUT"
	ErrorTextTransportFailure = "SLACK_TRANSPORT_FAILURE"
	ErrorTextRateLimited      = "SLACK_RATE_LIMITED"
	ErrorTextPlatformError    = "SLACK_PLATFORM_ERROR"
	ErrorTextRetriesExhausted = "SLACK_RETRIES_EXHAUSTED"
	ErrorTextSignatureInvalid = "SLACK_SIGNATURE_INVALID"
	ErrorTextTimestampStale   = "SLACK_TIMESTAMP_STALE"
	ErrorTextBodyUnverifiable = "SLACK_BODY_UNVERIFIABLE"
	ErrorTextQueueClosed      = "SLACK_QUEUE_CLOSED"
	ErrorTextConflict         = "SLACK_CONFLICT"
	ErrorTextNotFound         = "SLACK_NOT_FOUND"
	ErrorTextInternal         = "SLACK_INTERNAL_ERROR"
)

// Platform error codes with special handling.
const (
	ErrorCodeInvalidResponse = "invalid_response"
	ErrorCodeRateLimited     = "ratelimited"
)

const defaultInternalMessage = "An unexpected error occurred"

var (
	ErrQueueClosed        = errors.New("slack: queue closed")
	ErrSignatureInvalid   = errors.New("slack: request signature invalid")
	ErrTimestampStale     = errors.New("slack: request timestamp outside tolerance")
	ErrBodyUnverifiable   = errors.New("slack: raw request body unavailable for verification")
	ErrRetriesExhausted   = errors.New("slack: retries exhausted")
	ErrMissingSignature   = errors.New("slack: signature headers are required")
	ErrSigningSecretUnset = errors.New("slack: signing secret is required")
)

// TransportError is a network level failure or a 5xx answer. Retryable.
type TransportError struct {
	Method     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("slack: %s transport failure (HTTP %d): %v", e.Method, e.StatusCode, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("slack: %s transport failure (HTTP %d)", e.Method, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("slack: %s transport failure: %v", e.Method, e.Err)
	default:
		return fmt.Sprintf("slack: %s transport failure", e.Method)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"method": e.Method}
	if e.StatusCode > 0 {
		metadata["status_code"] = e.StatusCode
	}
	return wrapOrNew(e.Err, e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorTextTransportFailure).
		WithMetadata(metadata)
}

// RateLimitedError carries the server suggested minimum delay.
type RateLimitedError struct {
	Method string
	After  time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("slack: %s rate limited, retry after %s", e.Method, e.After)
	}
	return fmt.Sprintf("slack: %s rate limited", e.Method)
}

// RetryAfter is the floor the retry controller applies to its own delay.
func (e *RateLimitedError) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.After
}

func (e *RateLimitedError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"method": e.Method}
	if e.After > 0 {
		metadata["retry_after_ms"] = e.After.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ErrorTextRateLimited).
		WithMetadata(metadata)
}

// PlatformError is an application level rejection ("ok": false).
type PlatformError struct {
	Method     string
	Code       string
	StatusCode int
	Warning    string
	Retryable  bool
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("slack: %s failed: %s", e.Method, e.Code)
}

func (e *PlatformError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"method":     e.Method,
		"error_code": e.Code,
	}
	if e.Warning != "" {
		metadata["warning"] = e.Warning
	}
	code := e.StatusCode
	if code < http.StatusBadRequest {
		code = http.StatusUnprocessableEntity
	}
	return goerrors.New(e.Error(), goerrors.CategoryOperation).
		WithCode(code).
		WithTextCode(ErrorTextPlatformError).
		WithMetadata(metadata)
}

type RetriesExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("slack: retries exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Cause}
}

func (e *RetriesExhaustedError) ToServiceError() *goerrors.Error {
	return wrapOrNew(e.Cause, e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ErrorTextRetriesExhausted).
		WithMetadata(map[string]any{"attempts": e.Attempts})
}

type VerificationReason string

const (
	ReasonMissingHeader     VerificationReason = "missing_header"
	ReasonMalformedHeader   VerificationReason = "malformed_header"
	ReasonStaleTimestamp    VerificationReason = "stale_timestamp"
	ReasonSignatureMismatch VerificationReason = "signature_mismatch"
)

// VerificationError keeps the reason for diagnostics. The remote peer only
// ever sees a 404.
type VerificationError struct {
	Reason VerificationReason
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("slack: request verification failed (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("slack: request verification failed (%s)", e.Reason)
}

func (e *VerificationError) Is(target error) bool {
	switch target {
	case ErrTimestampStale:
		return e.Reason == ReasonStaleTimestamp
	case ErrMissingSignature:
		return e.Reason == ReasonMissingHeader
	case ErrSignatureInvalid:
		return e.Reason != ReasonStaleTimestamp
	}
	return false
}

func (e *VerificationError) ToServiceError() *goerrors.Error {
	text := ErrorTextSignatureInvalid
	if e.Reason == ReasonStaleTimestamp {
		text = ErrorTextTimestampStale
	}
	return goerrors.New(e.Error(), goerrors.CategoryAuth).
		WithCode(http.StatusNotFound).
		WithTextCode(text).
		WithMetadata(map[string]any{"reason": string(e.Reason)})
}

// IsRetryable is the default retryability predicate: transport failures,
// rate limited answers and platform codes configured as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetriesExhausted) || errors.Is(err, ErrQueueClosed) {
		return false
	}
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return true
	}
	var platform *PlatformError
	if errors.As(err, &platform) {
		return platform.Retryable
	}
	var transport *TransportError
	return errors.As(err, &transport)
}

func NewBadInputError(message string, metadata map[string]any) error {
	return serviceError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorTextBadInput, metadata)
}

func NewInternalError(message string, metadata map[string]any) error {
	return serviceError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorTextInternal, metadata)
}

func NewConflictError(message string, metadata map[string]any) error {
	return serviceError(message, goerrors.CategoryConflict, http.StatusConflict, ErrorTextConflict, metadata)
}

func WrapInternalError(source error, message string, metadata map[string]any) error {
	err := wrapOrNew(source, message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorTextInternal)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// ToServiceError maps any error into a go-errors envelope.
func ToServiceError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.ToServiceError()
	}
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return rateLimited.ToServiceError()
	}
	var platform *PlatformError
	if errors.As(err, &platform) {
		return platform.ToServiceError()
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.ToServiceError()
	}
	var verification *VerificationError
	if errors.As(err, &verification) {
		return verification.ToServiceError()
	}
	if errors.Is(err, ErrQueueClosed) {
		return goerrors.New(err.Error(), goerrors.CategoryOperation).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(ErrorTextQueueClosed)
	}
	if errors.Is(err, ErrBodyUnverifiable) {
		return goerrors.New(err.Error(), goerrors.CategoryBadInput).
			WithCode(http.StatusInternalServerError).
			WithTextCode(ErrorTextBodyUnverifiable)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func serviceError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapOrNew(source error, message string, category goerrors.Category) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, category)
	}
	return goerrors.Wrap(source, category, message)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = defaultInternalMessage
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorTextBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorTextSignatureInvalid
	case goerrors.CategoryConflict:
		return ErrorTextConflict
	case goerrors.CategoryNotFound:
		return ErrorTextNotFound
	case goerrors.CategoryRateLimit:
		return ErrorTextRateLimited
	case goerrors.CategoryExternal:
		return ErrorTextTransportFailure
	case goerrors.CategoryOperation:
		return ErrorTextPlatformError
	default:
		return ErrorTextInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
