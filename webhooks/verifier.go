package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-slack/core"
)

const (
	SignatureVersion = "v0"

	HeaderTimestamp   = "X-Slack-Request-Timestamp"
	HeaderSignature   = "X-Slack-Signature"
	HeaderRetryNum    = "X-Slack-Retry-Num"
	HeaderRetryReason = "X-Slack-Retry-Reason"

	DefaultTolerance = 5 * time.Minute
)

// Sign computes the signature header value for timestamp and body.
func Sign(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(SignatureVersion + ":" + timestamp + ":"))
	_, _ = mac.Write(body)
	return SignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a request signature. The timestamp window is
// enforced before any HMAC work. It returns nil or a *core.VerificationError.
func VerifySignature(
	secret string,
	timestamp string,
	signature string,
	body []byte,
	now time.Time,
	tolerance time.Duration,
) error {
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if timestamp == "" {
		return &core.VerificationError{Reason: core.ReasonMissingHeader, Detail: HeaderTimestamp}
	}
	if signature == "" {
		return &core.VerificationError{Reason: core.ReasonMissingHeader, Detail: HeaderSignature}
	}
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return &core.VerificationError{Reason: core.ReasonMalformedHeader, Detail: HeaderTimestamp}
	}
	if !strings.HasPrefix(signature, SignatureVersion+"=") {
		return &core.VerificationError{Reason: core.ReasonMalformedHeader, Detail: HeaderSignature}
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	// Compared in whole seconds as bounds on the timestamp so that extreme
	// values cannot overflow a duration.
	current := now.Unix()
	window := int64(tolerance / time.Second)
	if seconds < current-window || seconds > current+window {
		return &core.VerificationError{Reason: core.ReasonStaleTimestamp}
	}

	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &core.VerificationError{Reason: core.ReasonSignatureMismatch}
	}
	return nil
}

// Verifier binds a signing secret and clock to VerifySignature.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) Verifier {
	return Verifier{Secret: secret, Tolerance: tolerance}
}

func (v Verifier) Verify(_ context.Context, req core.InboundRequest) error {
	if strings.TrimSpace(v.Secret) == "" {
		return core.ErrSigningSecretUnset
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	return VerifySignature(v.Secret, req.Timestamp, req.Signature, req.RawBody, now, v.Tolerance)
}
