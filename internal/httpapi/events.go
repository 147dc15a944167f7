package httpapi

import (
	"time"

	"github.com/Pollis22/voicecore/internal/coherence"
	"github.com/Pollis22/voicecore/internal/observability"
	"github.com/Pollis22/voicecore/internal/policy"
	"github.com/Pollis22/voicecore/internal/protocol"
	"github.com/Pollis22/voicecore/internal/session"
	"github.com/Pollis22/voicecore/internal/voice"
)

// connEvents bridges arbiter decisions onto one websocket connection. All
// callbacks arrive on the connection's read goroutine, so duckAt needs no
// lock.
type connEvents struct {
	srv    *Server
	sess   *session.Session
	out    *wsConn
	duckAt time.Time
}

func (e *connEvents) TurnStarted(turnID string, speaker voice.Speaker) {
	e.srv.sessions.StartTurn(e.sess.ID, turnID)
	e.srv.enqueue(e.out, protocol.TurnEvent{
		Type:      protocol.TypeTurnStarted,
		SessionID: e.sess.ID,
		TurnID:    turnID,
		Speaker:   string(speaker),
	})
}

func (e *connEvents) TurnEnded(turnID string, speaker voice.Speaker, text, reason string) {
	e.srv.enqueue(e.out, protocol.TurnEvent{
		Type:      protocol.TypeTurnEnded,
		SessionID: e.sess.ID,
		TurnID:    turnID,
		Speaker:   string(speaker),
		Text:      text,
		Reason:    reason,
	})
	if reason == voice.EndGhostDiscarded {
		e.srv.metrics.ObserveIndicator("ghost_turn")
		return
	}
	if speaker == voice.SpeakerStudent && text != "" {
		e.srv.telemetry.Emit(observability.Event{
			Kind:      "turn.committed",
			SessionID: e.sess.ID,
			UserID:    e.sess.UserID,
			TurnID:    turnID,
			Reason:    reason,
			Text:      policy.RedactTranscript(text),
		})
	}
}

func (e *connEvents) DuckStarted(gain float64, fade time.Duration) {
	e.duckAt = time.Now()
	e.srv.enqueue(e.out, protocol.TutorDuck{
		Type:      protocol.TypeTutorDuck,
		SessionID: e.sess.ID,
		Gain:      gain,
		FadeMS:    fade.Milliseconds(),
	})
}

func (e *connEvents) DuckReleased(fade time.Duration) {
	e.srv.metrics.BargeIns.WithLabelValues("cancelled").Inc()
	if !e.duckAt.IsZero() {
		e.srv.metrics.ObserveStage(observability.StageDuckToRelease, time.Since(e.duckAt))
		e.duckAt = time.Time{}
	}
	e.srv.enqueue(e.out, protocol.TutorUnduck{
		Type:      protocol.TypeTutorUnduck,
		SessionID: e.sess.ID,
		FadeMS:    fade.Milliseconds(),
	})
}

func (e *connEvents) BargeInConfirmed(turnID string, sustained time.Duration) {
	e.srv.metrics.BargeIns.WithLabelValues("confirmed").Inc()
	if !e.duckAt.IsZero() {
		e.srv.metrics.ObserveBargeInConfirm(time.Since(e.duckAt))
		e.duckAt = time.Time{}
	}
	e.srv.sessions.Interrupt(e.sess.ID)
	e.srv.telemetry.Emit(observability.Event{
		Kind:       "barge_in.confirmed",
		SessionID:  e.sess.ID,
		UserID:     e.sess.UserID,
		TurnID:     turnID,
		DurationMS: float64(sustained.Milliseconds()),
	})
}

func (e *connEvents) CoherenceRejected(verdict coherence.Verdict, fragment string) {
	e.srv.metrics.CoherenceVerdicts.WithLabelValues(verdict.Reason).Inc()
	e.srv.enqueue(e.out, protocol.CoherenceRejected{
		Type:      protocol.TypeCoherenceRejected,
		SessionID: e.sess.ID,
		Message:   verdict.Clarification,
	})
	e.srv.telemetry.Emit(observability.Event{
		Kind:      "coherence.rejected",
		SessionID: e.sess.ID,
		UserID:    e.sess.UserID,
		Reason:    verdict.Reason,
		Text:      policy.RedactTranscript(fragment),
	})
}

func (e *connEvents) SessionEndIntent(reason string) {
	e.srv.endSession(e.sess.ID, reason)
}
