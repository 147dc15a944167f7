package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Pollis22/voicecore/internal/auth"
	"github.com/Pollis22/voicecore/internal/coherence"
	"github.com/Pollis22/voicecore/internal/config"
	"github.com/Pollis22/voicecore/internal/farewell"
	"github.com/Pollis22/voicecore/internal/gradeband"
	"github.com/Pollis22/voicecore/internal/observability"
	"github.com/Pollis22/voicecore/internal/protocol"
	"github.com/Pollis22/voicecore/internal/session"
	"github.com/Pollis22/voicecore/internal/voice"
)

// closeGrace is how long the writer gets to flush a session.ending frame
// before the connection context is cancelled.
const closeGrace = 150 * time.Millisecond

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	auth      *auth.Authenticator
	bands     *gradeband.Table
	gate      *coherence.Gate
	goodbye   *farewell.Detector
	metrics   *observability.Metrics
	telemetry *observability.Telemetry
	upgrader  websocket.Upgrader

	conns sync.Map // session id -> *wsConn
}

type wsConn struct {
	sessionID string
	outbound  chan any
	cancel    context.CancelFunc
}

func New(cfg config.Config, sessions *session.Manager, authn *auth.Authenticator, bands *gradeband.Table, gate *coherence.Gate, goodbye *farewell.Detector, metrics *observability.Metrics, telemetry *observability.Telemetry) *Server {
	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		auth:      authn,
		bands:     bands,
		gate:      gate,
		goodbye:   goodbye,
		metrics:   metrics,
		telemetry: telemetry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin. Another site must not be able to drive a student's
				// mic session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	sessions.SetExpireHook(s.onSessionTornDown)
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Post("/v1/perf/latency/reset", s.handlePerfReset)

	r.Get("/v1/voice/session/ws", s.handleSessionWS)
	r.Post("/v1/voice/session/{id}/end", s.handleEndSession)
	r.Delete("/v1/auth/session/{sid}", s.handleInvalidateAuthSession)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"auth_store": s.authStoreMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

// handleSessionWS authenticates, registers the session, and only then
// upgrades. Rejections are plain-text HTTP responses closed before any
// handshake, so the client never holds a half-open socket and the reason
// token reaches its reconnect classifier verbatim.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	authStart := time.Now()
	res := s.auth.Authenticate(r.Context(), r)
	s.metrics.ObserveStage(observability.StageAuthCheck, time.Since(authStart))
	if !res.Valid {
		s.metrics.AuthRejections.WithLabelValues(res.Reason).Inc()
		s.telemetry.Emit(observability.Event{Kind: "auth.rejected", Reason: res.Reason})
		http.Error(w, res.Reason, res.StatusCode)
		return
	}

	band := strings.TrimSpace(r.URL.Query().Get("grade_band"))
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	profile, known := s.bands.Lookup(band)
	if !known && band != "" {
		log.Printf("httpapi: unknown grade band %q, falling back to %q", band, profile.Band)
	}

	sess, _, err := s.sessions.Create(res.UserID, res.SessionID, string(profile.Band), subject)
	if err != nil {
		if errors.Is(err, session.ErrUserBusy) {
			http.Error(w, "session_exists", http.StatusConflict)
			return
		}
		http.Error(w, "internal_error", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.sessions.End(sess.ID, "upgrade_failed")
		return
	}
	defer conn.Close()

	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	s.telemetry.Emit(observability.Event{
		Kind:      "session.created",
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Reason:    string(profile.Band),
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	wc := &wsConn{
		sessionID: sess.ID,
		outbound:  make(chan any, 256),
		cancel:    cancel,
	}
	s.conns.Store(sess.ID, wc)
	defer s.conns.Delete(sess.ID)

	convo := coherence.NewContext(0, 0)
	if subject != "" {
		convo.SetSubject(subject)
	}
	arb, err := voice.NewArbiter(voice.ArbiterConfig{
		Profile:      profile,
		Mode:         voice.DetectionMode(s.cfg.SpeechDetectionMode),
		Gate:         s.gate,
		Goodbye:      s.goodbye,
		Conversation: convo,
		MinTurnChars: s.cfg.MinTurnChars,
		Events: &connEvents{
			srv:  s,
			sess: sess,
			out:  wc,
		},
	})
	if err != nil {
		log.Printf("httpapi: arbiter setup for session %s: %v", sess.ID, err)
		s.sessions.End(sess.ID, "arbiter_setup_failed")
		return
	}
	defer arb.Close()

	s.enqueue(wc, protocol.SessionReady{Type: protocol.TypeSessionReady, Session: session.View(sess)})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing the conn here unblocks the read loop below.
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				drainOutbound(conn, wc)
				return
			case msg, ok := <-wc.outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(wc, protocol.ServerError{
				Type:      protocol.TypeServerError,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		default:
		}
		if done := s.dispatch(arb, sess, wc, parsed); done {
			break
		}
	}

	cancel()
	<-writerDone
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	// The session itself stays live briefly so a reconnecting client can
	// supersede it; the janitor reclaims it otherwise.
}

// dispatch routes one parsed client message. A panic in handling one frame
// must not take down the connection.
func (s *Server) dispatch(arb *voice.Arbiter, sess *session.Session, wc *wsConn, msg any) (done bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("httpapi: panic handling frame for session %s: %v", sess.ID, rec)
			s.enqueue(wc, protocol.ServerError{
				Type:      protocol.TypeServerError,
				SessionID: sess.ID,
				Code:      "internal_error",
			})
		}
	}()

	switch m := msg.(type) {
	case protocol.ClientAudioChunk:
		pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
		if err != nil {
			s.enqueue(wc, protocol.ServerError{
				Type:      protocol.TypeServerError,
				SessionID: sess.ID,
				Code:      "invalid_audio_chunk",
				Detail:    "pcm16_base64 does not decode",
			})
			return false
		}
		arb.ProcessAudioChunk(pcm, m.SampleRate)
		s.sessions.Touch(sess.ID)
	case protocol.ClientTranscript:
		start := time.Now()
		arb.ProcessTranscript(m.Text, m.Final)
		if m.Final {
			s.metrics.ObserveStage(observability.StageTranscriptCommit, time.Since(start))
		}
		s.sessions.Touch(sess.ID)
	case protocol.ClientControl:
		s.sessions.Touch(sess.ID)
		switch m.Action {
		case protocol.ActionEndSession:
			s.endSession(sess.ID, session.EndReasonClientRequest)
			return true
		case protocol.ActionConfigure:
			if m.Subject != "" {
				arb.SetSubject(m.Subject)
				if err := s.sessions.SetSubject(sess.ID, m.Subject); err == nil {
					if updated, err := s.sessions.Get(sess.ID); err == nil {
						s.enqueue(wc, protocol.SessionUpdated{Type: protocol.TypeSessionUpdated, Session: session.View(updated)})
					}
				}
			}
		case protocol.ActionTutorStarted:
			arb.StartTutorTurn(m.Text)
		case protocol.ActionTutorDone:
			arb.FinishTutorTurn()
		}
	}
	return false
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	res := s.auth.Authenticate(r.Context(), r)
	if !res.Valid {
		s.metrics.AuthRejections.WithLabelValues(res.Reason).Inc()
		respondError(w, res.StatusCode, res.Reason, "session validation failed")
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.UserID != res.UserID {
		respondError(w, http.StatusForbidden, "not_owner", "session belongs to another user")
		return
	}

	start := time.Now()
	ended, err := s.endSession(id, session.EndReasonClientRequest)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ObserveStage(observability.StageEndToClosed, time.Since(start))
	respondJSON(w, http.StatusOK, session.View(ended))
}

// handleInvalidateAuthSession is the back-channel for account systems:
// destroy the signed-in session and tear down any live voice sessions
// riding on it.
func (s *Server) handleInvalidateAuthSession(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSpace(chi.URLParam(r, "sid"))
	if sid == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing auth session id")
		return
	}
	if err := s.auth.Invalidate(r.Context(), sid); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	ended := s.sessions.EndByAuthSession(sid, session.EndReasonInvalidated)
	for _, es := range ended {
		s.metrics.SessionEvents.WithLabelValues(es.EndReason).Inc()
		s.telemetry.Emit(observability.Event{
			Kind:      "session.ended",
			SessionID: es.ID,
			UserID:    es.UserID,
			Reason:    es.EndReason,
		})
		s.notifyEnding(es.ID, es.EndReason)
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	respondJSON(w, http.StatusOK, map[string]any{
		"invalidated":    sid,
		"sessions_ended": len(ended),
	})
}

// endSession ends a live session and notifies its connection, if any.
func (s *Server) endSession(sessionID, reason string) (*session.Session, error) {
	ended, err := s.sessions.End(sessionID, reason)
	if err != nil {
		return nil, err
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues(reason).Inc()
	s.telemetry.Emit(observability.Event{
		Kind:      "session.ended",
		SessionID: ended.ID,
		UserID:    ended.UserID,
		Reason:    reason,
	})
	s.notifyEnding(sessionID, reason)
	return ended, nil
}

// onSessionTornDown handles sessions the manager ends on its own: janitor
// expiry and supersede.
func (s *Server) onSessionTornDown(sess *session.Session) {
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues(sess.EndReason).Inc()
	s.telemetry.Emit(observability.Event{
		Kind:      "session.ended",
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Reason:    sess.EndReason,
	})
	s.notifyEnding(sess.ID, sess.EndReason)
}

// notifyEnding sends session.ending and closes the connection once the
// writer has had a chance to flush it.
func (s *Server) notifyEnding(sessionID, reason string) {
	v, ok := s.conns.Load(sessionID)
	if !ok {
		return
	}
	wc := v.(*wsConn)
	s.enqueue(wc, protocol.SessionEnding{
		Type:      protocol.TypeSessionEnding,
		SessionID: sessionID,
		Reason:    reason,
	})
	time.AfterFunc(closeGrace, wc.cancel)
}

// drainOutbound flushes frames already queued when shutdown was signalled,
// then says goodbye at the protocol level. A session.ending notice must
// still reach the client when the close races the write.
func drainOutbound(conn *websocket.Conn, wc *wsConn) {
	for {
		select {
		case msg := <-wc.outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			_ = conn.WriteJSON(msg)
		default:
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

// enqueue keeps websocket writes single-threaded; drop if the outbound
// queue is saturated.
func (s *Server) enqueue(wc *wsConn, msg any) {
	select {
	case wc.outbound <- msg:
	default:
		log.Printf("httpapi: outbound queue full, dropping %T for session %s", msg, wc.sessionID)
	}
}

func (s *Server) authStoreMode() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		return "postgres"
	}
	return "memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientTranscript:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SessionReady:
		return m.Type, true
	case protocol.SessionUpdated:
		return m.Type, true
	case protocol.SessionEnding:
		return m.Type, true
	case protocol.TurnEvent:
		return m.Type, true
	case protocol.TutorDuck:
		return m.Type, true
	case protocol.TutorUnduck:
		return m.Type, true
	case protocol.CoherenceRejected:
		return m.Type, true
	case protocol.ServerError:
		return m.Type, true
	default:
		return "", false
	}
}
