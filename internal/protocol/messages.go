package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Pollis22/voicecore/internal/session"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientTranscript MessageType = "client_transcript"
	TypeClientControl    MessageType = "client_control"

	TypeSessionReady      MessageType = "session.ready"
	TypeSessionUpdated    MessageType = "session.updated"
	TypeSessionEnding     MessageType = "session.ending"
	TypeTurnStarted       MessageType = "turn.started"
	TypeTurnEnded         MessageType = "turn.ended"
	TypeTutorDuck         MessageType = "tutor.duck"
	TypeTutorUnduck       MessageType = "tutor.unduck"
	TypeCoherenceRejected MessageType = "coherence.rejected"
	TypeServerError       MessageType = "server_error"
)

// Client control actions. Tutor playback runs on the client, which reports
// start and completion so the server can arbitrate barge-in against it.
const (
	ActionEndSession   = "end_session"
	ActionConfigure    = "configure"
	ActionTutorStarted = "tutor_started"
	ActionTutorDone    = "tutor_done"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientTranscript struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Final      bool        `json:"final"`
	TSMs       int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Subject   string      `json:"subject,omitempty"`
	Text      string      `json:"text,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type SessionReady struct {
	Type    MessageType         `json:"type"`
	Session session.SessionView `json:"session"`
}

type SessionUpdated struct {
	Type    MessageType         `json:"type"`
	Session session.SessionView `json:"session"`
}

type SessionEnding struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason"`
}

// TurnEvent covers turn.started and turn.ended.
type TurnEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Speaker   string      `json:"speaker"`
	Text      string      `json:"text,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

type TutorDuck struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Gain      float64     `json:"gain"`
	FadeMS    int64       `json:"fade_ms"`
}

type TutorUnduck struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	FadeMS    int64       `json:"fade_ms"`
}

type CoherenceRejected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
}

// ServerError carries a machine-readable code. A fixed subset of codes is
// terminal for the client's reconnection supervisor; everything else is
// transient.
type ServerError struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

// ParseClientMessage validates and decodes an inbound client frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientTranscript:
		var msg ClientTranscript
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_transcript")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionEndSession, ActionConfigure, ActionTutorStarted, ActionTutorDone:
		default:
			return nil, fmt.Errorf("unknown client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
