package reliability

import (
	"testing"
	"time"
)

func TestIsTerminalReason(t *testing.T) {
	cases := []struct {
		reason string
		want   bool
	}{
		{"session_invalidated", true},
		{"session_superseded", true},
		{"account_suspended", true},
		{"entitlement_revoked", true},
		{"upgrade rejected (401): stale_session", true},
		{"server reported expired_session, closing", true},
		{"network timeout", false},
		{"read tcp 10.0.0.1:443: connection reset by peer", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsTerminalReason(tc.reason); got != tc.want {
			t.Fatalf("IsTerminalReason(%q) = %v, want %v", tc.reason, got, tc.want)
		}
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestBackoffDelayJitterBand(t *testing.T) {
	initial := time.Second
	max := 30 * time.Second
	const jitter = 0.25

	for i := 0; i < 200; i++ {
		got := BackoffDelay(0, initial, max, jitter)
		lo := time.Duration(float64(initial) * (1 - jitter))
		hi := time.Duration(float64(initial)*(1+jitter)) + time.Nanosecond
		if got < lo || got > hi {
			t.Fatalf("attempt 0 delay %v outside [%v, %v]", got, lo, hi)
		}
	}
	for i := 0; i < 200; i++ {
		got := BackoffDelay(20, initial, max, jitter)
		lo := time.Duration(float64(max) * (1 - jitter))
		hi := time.Duration(float64(max)*(1+jitter)) + time.Nanosecond
		if got < lo || got > hi {
			t.Fatalf("large attempt delay %v outside [%v, %v]", got, lo, hi)
		}
	}
}

func TestBackoffDelayNoJitterDeterministic(t *testing.T) {
	if got := BackoffDelay(3, time.Second, time.Minute, 0); got != 8*time.Second {
		t.Fatalf("BackoffDelay(3, 1s, 1m, 0) = %v, want 8s", got)
	}
}
