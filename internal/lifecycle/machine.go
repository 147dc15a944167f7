package lifecycle

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// State is a connection lifecycle state.
type State string

const (
	StateIdle            State = "IDLE"
	StateCreatingSession State = "CREATING_SESSION"
	StateConnectingWS    State = "CONNECTING_WS"
	StateConnected       State = "CONNECTED"
	StateDisconnecting   State = "DISCONNECTING"
	StateTerminalError   State = "TERMINAL_ERROR"
)

// ErrInvalidTransition marks a programming-contract violation: the caller
// asked for a state change the machine does not permit. The state is left
// unchanged.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

var transitions = map[State]map[State]bool{
	StateIdle:            {StateCreatingSession: true, StateConnectingWS: true, StateTerminalError: true},
	StateCreatingSession: {StateConnectingWS: true, StateDisconnecting: true, StateTerminalError: true},
	StateConnectingWS:    {StateConnected: true, StateDisconnecting: true, StateTerminalError: true},
	StateConnected:       {StateDisconnecting: true, StateTerminalError: true},
	StateDisconnecting:   {StateIdle: true, StateTerminalError: true},
	StateTerminalError:   {StateIdle: true},
}

// Observer is invoked after every accepted transition, outside the machine
// lock.
type Observer func(from, to State, reason string)

// Machine owns one connection's lifecycle. TERMINAL_ERROR is sticky: only
// Reset leaves it.
type Machine struct {
	mu           sync.Mutex
	state        State
	lastReason   string
	observer     Observer
	terminalHook func()
}

// NewMachine returns a machine in IDLE.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// SetObserver registers the transition observer. Call before first use.
func (m *Machine) SetObserver(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// SetTerminalHook registers a hook fired on entry to TERMINAL_ERROR; the
// reconnection supervisor uses it to cancel any pending retry timer.
func (m *Machine) SetTerminalHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminalHook = fn
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastReason returns the reason attached to the most recent disconnect or
// failure.
func (m *Machine) LastReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReason
}

// RequestConnect starts a fresh connection attempt from IDLE.
func (m *Machine) RequestConnect() error {
	return m.apply(StateCreatingSession, "connect_requested")
}

// RequestReconnect dials again for an already-created session, skipping
// session creation.
func (m *Machine) RequestReconnect() error {
	return m.apply(StateConnectingWS, "reconnect_requested")
}

// NotifySessionCreated advances past session creation to the transport dial.
func (m *Machine) NotifySessionCreated() error {
	return m.apply(StateConnectingWS, "session_created")
}

// NotifyConnected marks the transport live.
func (m *Machine) NotifyConnected() error {
	return m.apply(StateConnected, "connected")
}

// NotifyDisconnected tears the connection down and settles back in IDLE.
// The DISCONNECTING hop is observable.
func (m *Machine) NotifyDisconnected(reason string) error {
	if err := m.apply(StateDisconnecting, reason); err != nil {
		return err
	}
	return m.apply(StateIdle, reason)
}

// Fail drives the machine to TERMINAL_ERROR from any state. Idempotent.
func (m *Machine) Fail(reason string) error {
	m.mu.Lock()
	if m.state == StateTerminalError {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.apply(StateTerminalError, reason)
}

// Reset returns the machine to IDLE. It is the only exit from
// TERMINAL_ERROR and a no-op in IDLE; resetting an active connection is a
// contract violation.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.apply(StateIdle, "reset")
}

func (m *Machine) apply(to State, reason string) error {
	m.mu.Lock()
	from := m.state
	if !transitions[from][to] {
		m.mu.Unlock()
		log.Printf("lifecycle: rejected transition %s -> %s (%s)", from, to, reason)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	if reason != "" {
		m.lastReason = reason
	}
	observer := m.observer
	terminalHook := m.terminalHook
	m.mu.Unlock()

	if to == StateTerminalError && terminalHook != nil {
		terminalHook()
	}
	if observer != nil {
		observer(from, to, reason)
	}
	return nil
}
