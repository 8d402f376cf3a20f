// Package slack is a client for the Slack Web API and Events API.
//
// Outbound calls are queued with bounded concurrency and retried with
// backoff. Inbound event requests are verified with the app signing secret
// before they reach the application's event consumer.
package slack
