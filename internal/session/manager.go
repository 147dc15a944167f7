package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrUserBusy is returned under the reject policy when the user already
	// has a live session.
	ErrUserBusy = errors.New("user already has a live session")
)

// Session is one live voice conversation. At most one non-ended session
// exists per user; Create enforces that under the manager lock.
type Session struct {
	ID                string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	AuthSessionID     string    `json:"auth_session_id"`
	Status            Status    `json:"status"`
	GradeBand         string    `json:"grade_band"`
	Subject           string    `json:"subject,omitempty"`
	Transport         string    `json:"transport"`
	ActiveTurnID      string    `json:"active_turn_id"`
	TurnCount         int       `json:"turn_count"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	RotatedAt         time.Time `json:"rotated_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	EndReason         string    `json:"end_reason,omitempty"`
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByUser     map[string]string
	inactivityTimeout time.Duration
	takeover          TakeoverPolicy
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration, takeover TakeoverPolicy) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	if takeover != TakeoverReject {
		takeover = TakeoverSupersede
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByUser:     make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		takeover:          takeover,
	}
}

// SetExpireHook registers a callback fired for sessions the janitor or a
// supersede tears down. Called outside the manager lock.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a new live session for userID. When the user already has
// one, the takeover policy decides: supersede ends the old session and
// returns its snapshot, reject returns ErrUserBusy. Either way exactly one
// live session per user remains.
func (m *Manager) Create(userID, authSessionID, gradeBand, subject string) (*Session, *Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		AuthSessionID:  authSessionID,
		GradeBand:      gradeBand,
		Subject:        subject,
		Transport:      "websocket",
		Status:         StatusActive,
		StartedAt:      now,
		RotatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	var superseded *Session
	if oldID, exists := m.sessionByUser[userID]; exists {
		old, ok := m.sessions[oldID]
		if ok && old.Status == StatusActive {
			if m.takeover == TakeoverReject {
				m.mu.Unlock()
				return nil, nil, ErrUserBusy
			}
			old.Status = StatusEnded
			old.EndReason = EndReasonSuperseded
			old.ActiveTurnID = ""
			old.LastActivityAt = now
			superseded = clone(old)
		}
	}
	m.sessions[s.ID] = s
	m.sessionByUser[userID] = s.ID
	hook := m.onExpire
	m.mu.Unlock()

	if superseded != nil && hook != nil {
		hook(superseded)
	}
	return clone(s), superseded, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// GetByUser returns the user's live session, if any.
func (m *Manager) GetByUser(userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessionByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusActive {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// StartTurn records the active turn and bumps the monotonic turn counter.
func (m *Manager) StartTurn(sessionID, turnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.ActiveTurnID = turnID
	s.TurnCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Interrupt records a confirmed barge-in and clears the active turn.
func (m *Manager) Interrupt(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.InterruptionCount++
	s.ActiveTurnID = ""
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// SetSubject updates the lesson subject on a live session.
func (m *Manager) SetSubject(sessionID, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != StatusActive {
		return ErrNotFound
	}
	s.Subject = subject
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// EndByAuthSession terminates every live session bound to the given auth
// session and returns their snapshots. Used when a signed-in session is
// invalidated out-of-band.
func (m *Manager) EndByAuthSession(authSessionID, reason string) []*Session {
	now := time.Now().UTC()
	var ended []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive || s.AuthSessionID != authSessionID {
			continue
		}
		s.Status = StatusEnded
		s.EndReason = reason
		s.ActiveTurnID = ""
		s.LastActivityAt = now
		if s.UserID != "" && m.sessionByUser[s.UserID] == s.ID {
			delete(m.sessionByUser, s.UserID)
		}
		ended = append(ended, clone(s))
	}
	m.mu.Unlock()

	return ended
}

// End terminates the session with a reason. Ending an already-ended session
// returns its snapshot unchanged.
func (m *Manager) End(sessionID, reason string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status == StatusEnded {
		return clone(s), nil
	}
	s.Status = StatusEnded
	s.EndReason = reason
	s.ActiveTurnID = ""
	s.LastActivityAt = time.Now().UTC()
	if s.UserID != "" && m.sessionByUser[s.UserID] == s.ID {
		delete(m.sessionByUser, s.UserID)
	}
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.EndReason = EndReasonInactivity
		s.ActiveTurnID = ""
		s.LastActivityAt = now
		expired = append(expired, clone(s))
		if s.UserID != "" && m.sessionByUser[s.UserID] == s.ID {
			delete(m.sessionByUser, s.UserID)
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
