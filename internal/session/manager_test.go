package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute, TakeoverSupersede)
	s, superseded, err := m.Create("u1", "sid-1", "3-5", "math")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if superseded != nil {
		t.Fatalf("first Create() superseded = %+v, want nil", superseded)
	}
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.GradeBand != "3-5" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}
	if got.Transport != "websocket" {
		t.Fatalf("Transport = %q, want websocket", got.Transport)
	}

	ended, err := m.End(s.ID, EndReasonClientRequest)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded || ended.EndReason != EndReasonClientRequest {
		t.Fatalf("ended session = %+v, want ended/client_request", ended)
	}
}

func TestManagerSupersedesSecondSession(t *testing.T) {
	m := NewManager(time.Minute, TakeoverSupersede)
	var hookCalls []*Session
	m.SetExpireHook(func(s *Session) { hookCalls = append(hookCalls, s) })

	first, _, err := m.Create("u1", "sid-1", "3-5", "")
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	second, superseded, err := m.Create("u1", "sid-1", "3-5", "")
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	if superseded == nil || superseded.ID != first.ID {
		t.Fatalf("superseded = %+v, want snapshot of %s", superseded, first.ID)
	}
	if superseded.EndReason != EndReasonSuperseded {
		t.Fatalf("superseded EndReason = %q, want %q", superseded.EndReason, EndReasonSuperseded)
	}
	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", got)
	}
	live, err := m.GetByUser("u1")
	if err != nil {
		t.Fatalf("GetByUser() error = %v", err)
	}
	if live.ID != second.ID {
		t.Fatalf("live session = %s, want %s", live.ID, second.ID)
	}
	if len(hookCalls) != 1 || hookCalls[0].ID != first.ID {
		t.Fatalf("expire hook calls = %v, want one for %s", hookCalls, first.ID)
	}
}

func TestManagerRejectPolicy(t *testing.T) {
	m := NewManager(time.Minute, TakeoverReject)
	first, _, err := m.Create("u1", "sid-1", "3-5", "")
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, _, err := m.Create("u1", "sid-1", "3-5", ""); !errors.Is(err, ErrUserBusy) {
		t.Fatalf("second Create() error = %v, want ErrUserBusy", err)
	}
	live, err := m.GetByUser("u1")
	if err != nil || live.ID != first.ID {
		t.Fatalf("GetByUser() = %v, %v, want original session", live, err)
	}
}

func TestManagerConcurrentCreatesLeaveOneLive(t *testing.T) {
	m := NewManager(time.Minute, TakeoverSupersede)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Create("u1", "sid-1", "3-5", "")
		}()
	}
	wg.Wait()
	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want exactly 1 live session", got)
	}
	if _, err := m.GetByUser("u1"); err != nil {
		t.Fatalf("GetByUser() error = %v", err)
	}
}

func TestManagerInterruptClearsTurn(t *testing.T) {
	m := NewManager(time.Minute, TakeoverSupersede)
	s, _, _ := m.Create("u1", "sid-1", "3-5", "")
	if err := m.StartTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if err := m.Interrupt(s.ID); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ActiveTurnID != "" {
		t.Fatalf("ActiveTurnID = %q, want empty", got.ActiveTurnID)
	}
	if got.InterruptionCount != 1 {
		t.Fatalf("InterruptionCount = %d, want 1", got.InterruptionCount)
	}
	if got.TurnCount != 1 {
		t.Fatalf("TurnCount = %d, want 1", got.TurnCount)
	}
}

func TestManagerEndIdempotent(t *testing.T) {
	m := NewManager(time.Minute, TakeoverSupersede)
	s, _, _ := m.Create("u1", "sid-1", "3-5", "")
	if _, err := m.End(s.ID, EndReasonGoodbye); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	again, err := m.End(s.ID, EndReasonClientRequest)
	if err != nil {
		t.Fatalf("second End() error = %v", err)
	}
	if again.EndReason != EndReasonGoodbye {
		t.Fatalf("EndReason = %q, want first reason preserved", again.EndReason)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30*time.Millisecond, TakeoverSupersede)
	s, _, _ := m.Create("u1", "sid-1", "3-5", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
	if got.EndReason != EndReasonInactivity {
		t.Fatalf("EndReason = %q, want %q", got.EndReason, EndReasonInactivity)
	}
	if _, err := m.GetByUser("u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByUser() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestManagerEndByAuthSession(t *testing.T) {
	m := NewManager(time.Minute, TakeoverSupersede)
	s1, _, _ := m.Create("u1", "sid-shared", "3-5", "")
	s2, _, _ := m.Create("u2", "sid-shared", "6-8", "")
	s3, _, _ := m.Create("u3", "sid-other", "9-12", "")

	ended := m.EndByAuthSession("sid-shared", EndReasonInvalidated)
	if len(ended) != 2 {
		t.Fatalf("len(ended) = %d, want 2", len(ended))
	}
	for _, id := range []string{s1.ID, s2.ID} {
		got, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if got.Status != StatusEnded || got.EndReason != EndReasonInvalidated {
			t.Fatalf("session %s = %q/%q, want ended/%q", id, got.Status, got.EndReason, EndReasonInvalidated)
		}
	}
	got, err := m.Get(s3.ID)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", s3.ID, err)
	}
	if got.Status != StatusActive {
		t.Fatalf("unrelated session status = %q, want active", got.Status)
	}
}

func TestManagerSetSubject(t *testing.T) {
	m := NewManager(time.Minute, TakeoverSupersede)
	s, _, _ := m.Create("u1", "sid-1", "3-5", "fractions")

	if err := m.SetSubject(s.ID, "long division"); err != nil {
		t.Fatalf("SetSubject() error = %v", err)
	}
	got, _ := m.Get(s.ID)
	if got.Subject != "long division" {
		t.Fatalf("Subject = %q, want %q", got.Subject, "long division")
	}

	m.End(s.ID, EndReasonClientRequest)
	if err := m.SetSubject(s.ID, "fractions"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetSubject() on ended session error = %v, want ErrNotFound", err)
	}
}
