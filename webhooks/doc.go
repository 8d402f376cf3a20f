// Package webhooks verifies and dispatches Events API requests.
//
// A request moves through start -> body_read -> verified|rejected ->
// challenge_responded|event_emitted -> done. Signature and timestamp
// failures answer 404 so a prober cannot tell verification from routing.
// Redelivered events are suppressed through an optional delivery ledger
// keyed by event id: processing -> processed|retry_ready.
package webhooks
