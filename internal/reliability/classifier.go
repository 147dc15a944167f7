package reliability

import (
	"math/rand/v2"
	"strings"
	"time"
)

// terminalReasonSubstrings mark a disconnect as permanently unrecoverable.
// Matching is by substring so wrapped error text still classifies.
var terminalReasonSubstrings = []string{
	"session_invalidated",
	"session_superseded",
	"account_suspended",
	"entitlement_revoked",
	"stale_session",
	"expired_session",
}

// IsTerminalReason reports whether a server-reported reason must bypass the
// retry path and drive the lifecycle straight to TERMINAL_ERROR.
func IsTerminalReason(reason string) bool {
	for _, sub := range terminalReasonSubstrings {
		if strings.Contains(reason, sub) {
			return true
		}
	}
	return false
}

// IsRetryableHTTPStatus classifies upgrade-rejection status codes worth
// retrying.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// BackoffDelay is ExponentialBackoff with a bounded random jitter fraction
// applied in both directions, so simultaneous clients do not reconnect in
// lockstep.
func BackoffDelay(attempt int, initial, max time.Duration, jitterFrac float64) time.Duration {
	base := ExponentialBackoff(attempt, initial, max)
	if jitterFrac <= 0 {
		return base
	}
	if jitterFrac > 1 {
		jitterFrac = 1
	}
	span := time.Duration(float64(base) * jitterFrac)
	if span <= 0 {
		return base
	}
	delay := base + time.Duration(rand.Int64N(int64(2*span)+1)) - span
	if delay < 0 {
		return 0
	}
	return delay
}
