package reliability

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Pollis22/voicecore/internal/lifecycle"
)

// DialFunc attempts one transport connection. It must respect ctx
// cancellation.
type DialFunc func(ctx context.Context) error

// SupervisorConfig tunes the reconnect backoff schedule.
type SupervisorConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	JitterFrac   float64
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Supervisor schedules reconnect attempts after transport loss. At most one
// timer is pending at a time; entering TERMINAL_ERROR cancels it through
// the machine's terminal hook.
type Supervisor struct {
	cfg     SupervisorConfig
	machine *lifecycle.Machine
	dial    DialFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	attempt int
	stopped bool
}

// NewSupervisor wires a supervisor to its lifecycle machine. The supervisor
// installs itself as the machine's terminal hook.
func NewSupervisor(cfg SupervisorConfig, machine *lifecycle.Machine, dial DialFunc) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:     cfg.withDefaults(),
		machine: machine,
		dial:    dial,
		ctx:     ctx,
		cancel:  cancel,
	}
	machine.SetTerminalHook(s.CancelPending)
	return s
}

// HandleDisconnect reacts to a transport loss. Terminal reasons go straight
// to TERMINAL_ERROR; transient ones settle the machine in IDLE and schedule
// the next attempt.
func (s *Supervisor) HandleDisconnect(reason string) {
	if IsTerminalReason(reason) {
		log.Printf("reliability: terminal disconnect: %s", reason)
		s.machine.Fail(reason)
		return
	}
	if err := s.machine.NotifyDisconnected(reason); err != nil {
		return
	}
	s.scheduleRetry()
}

func (s *Supervisor) scheduleRetry() {
	s.mu.Lock()
	if s.stopped || s.timer != nil {
		s.mu.Unlock()
		return
	}
	if s.attempt >= s.cfg.MaxAttempts {
		s.mu.Unlock()
		log.Printf("reliability: giving up after %d reconnect attempts", s.cfg.MaxAttempts)
		s.machine.Fail("reconnect_exhausted")
		return
	}
	attempt := s.attempt
	delay := BackoffDelay(attempt, s.cfg.InitialDelay, s.cfg.MaxDelay, s.cfg.JitterFrac)
	s.timer = time.AfterFunc(delay, s.runAttempt)
	s.mu.Unlock()
	log.Printf("reliability: reconnect attempt %d scheduled in %s", attempt+1, delay)
}

func (s *Supervisor) runAttempt() {
	s.mu.Lock()
	s.timer = nil
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	if err := s.machine.RequestReconnect(); err != nil {
		return
	}
	if err := s.dial(s.ctx); err != nil {
		log.Printf("reliability: reconnect attempt %d failed: %v", attempt, err)
		s.HandleDisconnect(err.Error())
		return
	}
	if err := s.machine.NotifyConnected(); err != nil {
		return
	}
	s.NotifySuccess()
}

// NotifySuccess zeroes the attempt counter after a successful connection.
func (s *Supervisor) NotifySuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = 0
}

// CancelPending stops the pending reconnect timer, if any.
func (s *Supervisor) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Reset clears the attempt counter and resets the machine out of
// TERMINAL_ERROR. Manual recovery path.
func (s *Supervisor) Reset() error {
	s.CancelPending()
	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
	return s.machine.Reset()
}

// Stop cancels the pending timer and any in-flight dial.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.CancelPending()
	s.cancel()
}

// Attempts returns the number of completed reconnect attempts since the
// last success or reset.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// PendingRetry reports whether a reconnect timer is armed.
func (s *Supervisor) PendingRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
