// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations (spec §5 "Cancellation & timeouts").
const (
	// ToolCallTimeout bounds a single tool invocation (C4).
	ToolCallTimeout = 30 * time.Second

	// ModelCallTimeout bounds a single ModelClient.Chat call, before retry (C5).
	ModelCallTimeout = 90 * time.Second

	// ModelCallMaxRetries is the number of retries after a failed model call
	// before surfacing ModelUnavailable.
	ModelCallMaxRetries = 2

	// SocketWriteTimeout bounds a single WS/SSE write before the connection
	// is declared dead (C3).
	SocketWriteTimeout = 5 * time.Second

	// HeartbeatInterval is the maximum period between WS pings / SSE comment
	// heartbeats (C3).
	HeartbeatInterval = 30 * time.Second

	// WebhookMaxBodyBytes is the pre-HMAC body size cap for trigger ingest (C8).
	WebhookMaxBodyBytes = 128 * 1024

	// WatchRenewalCheckPeriod is how often the email trigger ingest checks
	// whether a Gmail watch needs renewal (C8).
	WatchRenewalCheckPeriod = 60 * time.Second

	// WatchRenewalThreshold triggers a renewal when less than this remains
	// before watch_expiry.
	WatchRenewalThreshold = 24 * time.Hour

	// RunSummaryMaxRunes is the Unicode-scalar cap on Run.summary (C1/C6).
	RunSummaryMaxRunes = 500

	// RunErrorMaxRunes is the cap on the short error string stored on a
	// failed Run (§7).
	RunErrorMaxRunes = 500
)
