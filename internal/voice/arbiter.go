package voice

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Pollis22/voicecore/internal/audio"
	"github.com/Pollis22/voicecore/internal/coherence"
	"github.com/Pollis22/voicecore/internal/farewell"
	"github.com/Pollis22/voicecore/internal/gradeband"
)

// Speaker identifies who holds the floor.
type Speaker string

const (
	SpeakerNone    Speaker = "none"
	SpeakerTutor   Speaker = "tutor"
	SpeakerStudent Speaker = "student"
)

// Turn end reasons reported through Events.TurnEnded.
const (
	EndCompleted       = "completed"
	EndBargeIn         = "barge_in"
	EndFinalTranscript = "final_transcript"
	EndEndpointSilence = "endpoint_silence"
	EndGhostDiscarded  = "ghost_discarded"
	EndPreempted       = "preempted"
)

const (
	// silenceHangoverChunks is how many consecutive unflagged chunks close
	// a barge-in candidate. A one-chunk dropout mid-word must not unduck.
	silenceHangoverChunks = 3
	// studentEndpointHold is the trailing silence that commits a student
	// turn when the recognizer never sends a final fragment.
	studentEndpointHold = 800 * time.Millisecond

	defaultMinTurnChars = 3
)

var errNoEvents = errors.New("voice: arbiter requires an event sink")

// Events receives arbiter decisions. Callbacks run on the arbiter's calling
// goroutine while its lock is held and must not re-enter the Arbiter.
type Events interface {
	TurnStarted(turnID string, speaker Speaker)
	TurnEnded(turnID string, speaker Speaker, text, reason string)
	DuckStarted(gain float64, fade time.Duration)
	DuckReleased(fade time.Duration)
	BargeInConfirmed(turnID string, sustained time.Duration)
	CoherenceRejected(verdict coherence.Verdict, fragment string)
	SessionEndIntent(reason string)
}

// TurnState is a point-in-time view of the floor. Timestamps are offsets on
// the session's audio timeline, which advances with received chunks rather
// than wall time.
type TurnState struct {
	Speaker   Speaker
	TurnID    string
	StartedAt time.Duration
	Sustained time.Duration
	Ducked    bool
	Immune    bool
}

// ArbiterConfig assembles the per-session collaborators.
type ArbiterConfig struct {
	Profile      gradeband.Profile
	Mode         DetectionMode
	Gate         *coherence.Gate
	Goodbye      *farewell.Detector
	Conversation *coherence.Context
	MinTurnChars int
	Events       Events
}

// Arbiter decides who holds the floor for one session. It consumes the
// student's audio energy and transcript fragments, tracks tutor turns, and
// runs the duck/confirm/transfer barge-in protocol. All entry points
// serialize on one lock so exactly one state mutation is in flight.
type Arbiter struct {
	mu       sync.Mutex
	profile  gradeband.Profile
	events   Events
	gate     *coherence.Gate
	goodbye  *farewell.Detector
	convo    *coherence.Context
	detector *energyDetector
	fader    *Fader
	minChars int

	clock   time.Duration
	speaker Speaker
	turnSeq int64
	turnID  string
	startAt time.Duration

	candidate      bool
	candidateStart time.Duration
	sustained      time.Duration
	silenceRun     int
	immuneUntil    time.Duration
	lastSpeechAt   time.Duration

	buffer      strings.Builder
	bufferChars int
	closed      bool
}

// NewArbiter builds an arbiter for one session.
func NewArbiter(cfg ArbiterConfig) (*Arbiter, error) {
	if cfg.Events == nil {
		return nil, errNoEvents
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}
	if cfg.Gate == nil {
		return nil, errors.New("voice: arbiter requires a coherence gate")
	}
	if cfg.Goodbye == nil {
		return nil, errors.New("voice: arbiter requires a farewell detector")
	}
	if cfg.Conversation == nil {
		cfg.Conversation = coherence.NewContext(0, 0)
	}
	if cfg.MinTurnChars <= 0 {
		cfg.MinTurnChars = defaultMinTurnChars
	}
	return &Arbiter{
		profile:  cfg.Profile,
		events:   cfg.Events,
		gate:     cfg.Gate,
		goodbye:  cfg.Goodbye,
		convo:    cfg.Conversation,
		detector: newEnergyDetector(cfg.Mode, cfg.Profile),
		fader:    NewFader(),
		minChars: cfg.MinTurnChars,
		speaker:  SpeakerNone,
	}, nil
}

// SetSubject updates the lesson subject used for coherence scoring.
func (a *Arbiter) SetSubject(subject string) {
	a.convo.SetSubject(subject)
}

// ProcessAudioChunk ingests one chunk of student microphone audio. The
// chunk's duration advances the session's audio timeline.
func (a *Arbiter) ProcessAudioChunk(pcm []byte, sampleRate int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || len(pcm) == 0 {
		return
	}
	rms, peak := audio.Measure(pcm)
	dur := audio.ChunkDuration(len(pcm), sampleRate)
	a.clock += dur
	flagged := a.detector.flag(rms, peak)
	if flagged {
		a.lastSpeechAt = a.clock
	}

	switch a.speaker {
	case SpeakerTutor:
		a.handleBargeChunk(flagged, dur)
	case SpeakerStudent:
		if a.bufferChars > 0 && a.clock-a.lastSpeechAt >= studentEndpointHold {
			a.commitStudentTurn(EndEndpointSilence)
		}
	}
}

// ProcessTranscript ingests one recognized fragment of student speech.
// Fragments failing the coherence gate are reported and never reach the
// turn buffer.
func (a *Arbiter) ProcessTranscript(text string, final bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	verdict := a.gate.Score(text, a.convo)
	if !verdict.Coherent {
		a.events.CoherenceRejected(verdict, text)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	switch a.speaker {
	case SpeakerTutor:
		// Speech over tutor playback: hold the text until the barge-in
		// either confirms or collapses.
		a.appendBuffer(text)
	case SpeakerStudent:
		a.appendBuffer(text)
		a.lastSpeechAt = a.clock
		if final {
			a.commitStudentTurn(EndFinalTranscript)
		}
	default:
		a.appendBuffer(text)
		a.startStudentTurn()
		if final {
			a.commitStudentTurn(EndFinalTranscript)
		}
	}
}

// StartTutorTurn hands the floor to the tutor. Any open student turn is
// committed first. The immunity window opens so playback onset echo cannot
// immediately re-trigger a barge-in.
func (a *Arbiter) StartTutorTurn(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ""
	}
	if a.speaker == SpeakerStudent {
		a.commitStudentTurn(EndPreempted)
	}
	a.turnSeq++
	a.turnID = fmt.Sprintf("turn-%d", a.turnSeq)
	a.speaker = SpeakerTutor
	a.startAt = a.clock
	a.immuneUntil = a.clock + a.profile.ImmunityWindow
	a.resetCandidate()
	a.fader.Reset()
	if text != "" {
		a.convo.AddTutorUtterance(text)
	}
	a.events.TurnStarted(a.turnID, SpeakerTutor)
	return a.turnID
}

// FinishTutorTurn marks the tutor's playback complete and releases the
// floor. A pending barge-in candidate collapses and the duck is released.
func (a *Arbiter) FinishTutorTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.speaker != SpeakerTutor {
		return
	}
	if a.candidate {
		a.cancelCandidate()
	}
	id := a.turnID
	a.speaker = SpeakerNone
	a.events.TurnEnded(id, SpeakerTutor, "", EndCompleted)
}

// Snapshot returns the current floor state.
func (a *Arbiter) Snapshot() TurnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return TurnState{
		Speaker:   a.speaker,
		TurnID:    a.turnID,
		StartedAt: a.startAt,
		Sustained: a.sustained,
		Ducked:    a.candidate,
		Immune:    a.clock < a.immuneUntil,
	}
}

// Gain exposes the current tutor output gain.
func (a *Arbiter) Gain() float64 {
	return a.fader.Gain()
}

// Close cancels any fade in flight and drops further input.
func (a *Arbiter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.fader.Cancel()
}

func (a *Arbiter) handleBargeChunk(flagged bool, dur time.Duration) {
	if a.candidate {
		if flagged {
			a.silenceRun = 0
			a.sustained += dur
			if a.sustained >= a.profile.MinSpeechDuration {
				a.confirmBargeIn()
				return
			}
		} else {
			a.silenceRun++
			if a.silenceRun >= silenceHangoverChunks {
				a.cancelCandidate()
				return
			}
		}
		if a.clock-a.candidateStart > a.profile.ConfirmWindow {
			a.cancelCandidate()
		}
		return
	}
	if !flagged || a.clock < a.immuneUntil {
		return
	}
	a.candidate = true
	a.candidateStart = a.clock
	a.sustained = dur
	a.silenceRun = 0
	a.fader.FadeTo(a.profile.DuckGain, a.profile.DuckFade)
	a.events.DuckStarted(a.profile.DuckGain, a.profile.DuckFade)
}

func (a *Arbiter) confirmBargeIn() {
	sustained := a.sustained
	a.resetCandidate()
	a.fader.Cancel()
	a.events.TurnEnded(a.turnID, SpeakerTutor, "", EndBargeIn)
	a.turnSeq++
	a.turnID = fmt.Sprintf("turn-%d", a.turnSeq)
	a.speaker = SpeakerStudent
	a.startAt = a.clock
	a.immuneUntil = a.clock + a.profile.ImmunityWindow
	a.lastSpeechAt = a.clock
	a.events.BargeInConfirmed(a.turnID, sustained)
	a.events.TurnStarted(a.turnID, SpeakerStudent)
}

func (a *Arbiter) cancelCandidate() {
	a.resetCandidate()
	a.buffer.Reset()
	a.bufferChars = 0
	a.fader.FadeTo(1.0, a.profile.DuckFade)
	a.events.DuckReleased(a.profile.DuckFade)
}

func (a *Arbiter) resetCandidate() {
	a.candidate = false
	a.sustained = 0
	a.silenceRun = 0
}

func (a *Arbiter) startStudentTurn() {
	a.turnSeq++
	a.turnID = fmt.Sprintf("turn-%d", a.turnSeq)
	a.speaker = SpeakerStudent
	a.startAt = a.clock
	a.lastSpeechAt = a.clock
	a.events.TurnStarted(a.turnID, SpeakerStudent)
}

func (a *Arbiter) commitStudentTurn(reason string) {
	text := strings.TrimSpace(a.buffer.String())
	a.buffer.Reset()
	a.bufferChars = 0
	id := a.turnID
	a.speaker = SpeakerNone
	if countTurnChars(text) < a.minChars {
		a.events.TurnEnded(id, SpeakerStudent, "", EndGhostDiscarded)
		return
	}
	a.convo.AddStudentUtterance(text)
	a.events.TurnEnded(id, SpeakerStudent, text, reason)
	if a.goodbye.DetectGoodbye(text) {
		a.events.SessionEndIntent("goodbye_detected")
	}
}

func (a *Arbiter) appendBuffer(text string) {
	if a.buffer.Len() > 0 {
		a.buffer.WriteByte(' ')
	}
	a.buffer.WriteString(text)
	a.bufferChars += countTurnChars(text)
}

// countTurnChars counts non-space runes, the unit of the ghost-turn guard.
func countTurnChars(text string) int {
	return utf8.RuneCountInString(strings.Join(strings.Fields(text), ""))
}
