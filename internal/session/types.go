package session

import "time"

// End reasons surfaced to clients and telemetry. session_superseded and
// inactivity_timeout also drive the client's terminal classification.
const (
	EndReasonSuperseded    = "session_superseded"
	EndReasonInactivity    = "inactivity_timeout"
	EndReasonGoodbye       = "goodbye_detected"
	EndReasonClientRequest = "client_request"
	EndReasonInvalidated   = "session_invalidated"
	EndReasonShutdown      = "server_shutdown"
)

// TakeoverPolicy decides what happens when a user with a live session opens
// a second connection.
type TakeoverPolicy string

const (
	// TakeoverSupersede ends the old session and accepts the new one.
	TakeoverSupersede TakeoverPolicy = "supersede"
	// TakeoverReject refuses the new connection.
	TakeoverReject TakeoverPolicy = "reject"
)

// SessionView is the wire representation of a session snapshot.
type SessionView struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	Status            Status    `json:"status"`
	GradeBand         string    `json:"grade_band"`
	Subject           string    `json:"subject,omitempty"`
	Transport         string    `json:"transport"`
	TurnCount         int       `json:"turn_count"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	EndReason         string    `json:"end_reason,omitempty"`
}

// View converts a session snapshot for the wire.
func View(s *Session) SessionView {
	return SessionView{
		SessionID:         s.ID,
		UserID:            s.UserID,
		Status:            s.Status,
		GradeBand:         s.GradeBand,
		Subject:           s.Subject,
		Transport:         s.Transport,
		TurnCount:         s.TurnCount,
		InterruptionCount: s.InterruptionCount,
		StartedAt:         s.StartedAt,
		LastActivityAt:    s.LastActivityAt,
		EndReason:         s.EndReason,
	}
}
