package reliability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Pollis22/voicecore/internal/lifecycle"
)

func connectedMachine(t *testing.T) *lifecycle.Machine {
	t.Helper()
	m := lifecycle.NewMachine()
	if err := m.RequestConnect(); err != nil {
		t.Fatalf("RequestConnect error = %v", err)
	}
	if err := m.NotifySessionCreated(); err != nil {
		t.Fatalf("NotifySessionCreated error = %v", err)
	}
	if err := m.NotifyConnected(); err != nil {
		t.Fatalf("NotifyConnected error = %v", err)
	}
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fastConfig() SupervisorConfig {
	return SupervisorConfig{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		MaxAttempts:  5,
		JitterFrac:   0,
	}
}

func TestSupervisorRetriesUntilSuccess(t *testing.T) {
	m := connectedMachine(t)
	var dials atomic.Int32
	dial := func(ctx context.Context) error {
		if dials.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	s := NewSupervisor(fastConfig(), m, dial)
	defer s.Stop()

	s.HandleDisconnect("network_drop")
	waitFor(t, "reconnect success", func() bool { return m.State() == lifecycle.StateConnected })
	if got := dials.Load(); got != 3 {
		t.Fatalf("dial count = %d, want 3", got)
	}
	if got := s.Attempts(); got != 0 {
		t.Fatalf("Attempts() after success = %d, want 0", got)
	}
}

func TestSupervisorTerminalReasonSkipsRetry(t *testing.T) {
	m := connectedMachine(t)
	var dials atomic.Int32
	s := NewSupervisor(fastConfig(), m, func(ctx context.Context) error {
		dials.Add(1)
		return nil
	})
	defer s.Stop()

	s.HandleDisconnect("session_invalidated")
	if got := m.State(); got != lifecycle.StateTerminalError {
		t.Fatalf("state = %s, want %s", got, lifecycle.StateTerminalError)
	}
	if s.PendingRetry() {
		t.Fatalf("PendingRetry() = true after terminal disconnect")
	}
	time.Sleep(50 * time.Millisecond)
	if got := dials.Load(); got != 0 {
		t.Fatalf("dial count = %d, want 0", got)
	}
}

func TestSupervisorExhaustsAttempts(t *testing.T) {
	m := connectedMachine(t)
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	var dials atomic.Int32
	s := NewSupervisor(cfg, m, func(ctx context.Context) error {
		dials.Add(1)
		return errors.New("connection refused")
	})
	defer s.Stop()

	s.HandleDisconnect("network_drop")
	waitFor(t, "terminal after exhaustion", func() bool { return m.State() == lifecycle.StateTerminalError })
	if got := dials.Load(); got != 2 {
		t.Fatalf("dial count = %d, want 2", got)
	}
	if got := m.LastReason(); got != "reconnect_exhausted" {
		t.Fatalf("LastReason = %q, want %q", got, "reconnect_exhausted")
	}
	if s.PendingRetry() {
		t.Fatalf("PendingRetry() = true after exhaustion")
	}
}

func TestSupervisorResetClearsCounter(t *testing.T) {
	m := connectedMachine(t)
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	s := NewSupervisor(cfg, m, func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	defer s.Stop()

	s.HandleDisconnect("network_drop")
	waitFor(t, "terminal", func() bool { return m.State() == lifecycle.StateTerminalError })
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := m.State(); got != lifecycle.StateIdle {
		t.Fatalf("state after reset = %s, want %s", got, lifecycle.StateIdle)
	}
	if got := s.Attempts(); got != 0 {
		t.Fatalf("Attempts() after reset = %d, want 0", got)
	}
}

func TestTerminalCancelsPendingTimer(t *testing.T) {
	m := connectedMachine(t)
	cfg := fastConfig()
	cfg.InitialDelay = 300 * time.Millisecond
	var dials atomic.Int32
	s := NewSupervisor(cfg, m, func(ctx context.Context) error {
		dials.Add(1)
		return nil
	})
	defer s.Stop()

	s.HandleDisconnect("network_drop")
	if !s.PendingRetry() {
		t.Fatalf("PendingRetry() = false, want armed timer")
	}
	if err := m.Fail("account_suspended"); err != nil {
		t.Fatalf("Fail error = %v", err)
	}
	if s.PendingRetry() {
		t.Fatalf("PendingRetry() = true after TERMINAL_ERROR")
	}
	time.Sleep(400 * time.Millisecond)
	if got := dials.Load(); got != 0 {
		t.Fatalf("dial count = %d, want 0 after cancellation", got)
	}
}

func TestSupervisorSecondDisconnectDoesNotDoubleSchedule(t *testing.T) {
	m := connectedMachine(t)
	cfg := fastConfig()
	cfg.InitialDelay = 50 * time.Millisecond
	var dials atomic.Int32
	s := NewSupervisor(cfg, m, func(ctx context.Context) error {
		dials.Add(1)
		return nil
	})
	defer s.Stop()

	s.HandleDisconnect("network_drop")
	s.HandleDisconnect("network_drop")
	waitFor(t, "reconnect", func() bool { return m.State() == lifecycle.StateConnected })
	time.Sleep(100 * time.Millisecond)
	if got := dials.Load(); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
}
