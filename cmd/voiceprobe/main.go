package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pollis22/voicecore/internal/auth"
	"github.com/Pollis22/voicecore/internal/gradeband"
	"github.com/Pollis22/voicecore/internal/lifecycle"
	"github.com/Pollis22/voicecore/internal/observability"
	"github.com/Pollis22/voicecore/internal/protocol"
	"github.com/Pollis22/voicecore/internal/reliability"
)

type options struct {
	baseURL     string
	cookieName  string
	secret      string
	authSession string
	databaseURL string
	userID      string
	gradeBand   string
	subject     string
	turns       int
	chunkMS     int
	realtime    float64
	bargeIn     bool
	goodbye     bool
	loginTTL    time.Duration
	turnTimeout time.Duration
	interTurn   time.Duration
	retryDelay  time.Duration
	maxAttempts int
	texts       []string
	verbose     bool
}

var defaultUtterances = []string{
	"i think the answer is twelve",
	"wait can you explain that step again",
	"so i multiply the numerator first",
	"okay i solved the practice problem",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var turnTimeoutMS int
	var interTurnMS int
	var retryDelayMS int
	var loginTTLMin int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "voicecore base URL")
	flag.StringVar(&cfg.cookieName, "cookie-name", "connect.sid", "session cookie name the server expects")
	flag.StringVar(&cfg.secret, "session-secret", os.Getenv("SESSION_SECRET"), "shared cookie signing secret")
	flag.StringVar(&cfg.authSession, "auth-session", "", "login session id to present (default: random)")
	flag.StringVar(&cfg.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "when set, seed the login session row before dialing")
	flag.StringVar(&cfg.userID, "user-id", "probe-user", "user id carried by the seeded login session")
	flag.StringVar(&cfg.gradeBand, "grade-band", "3-5", "grade band requested for the voice session")
	flag.StringVar(&cfg.subject, "subject", "multiplying fractions", "lesson subject sent on connect")
	flag.IntVar(&cfg.turns, "turns", 4, "number of student turns to replay")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 20, "audio chunk size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 4.0, "chunk pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.BoolVar(&cfg.bargeIn, "barge-in", true, "interrupt a simulated tutor turn mid-script")
	flag.BoolVar(&cfg.goodbye, "goodbye", true, "end the session with a spoken farewell instead of a control frame")
	flag.IntVar(&loginTTLMin, "login-ttl-min", 60, "seeded login session lifetime in minutes")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 10000, "timeout waiting for each server event in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 120, "delay between turns in milliseconds")
	flag.IntVar(&retryDelayMS, "retry-delay-ms", 500, "initial reconnect backoff in milliseconds")
	flag.IntVar(&cfg.maxAttempts, "retry-attempts", 5, "reconnect attempts before giving up")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(cfg.secret) == "" {
		return options{}, fmt.Errorf("session-secret is required (flag or SESSION_SECRET)")
	}
	if strings.TrimSpace(cfg.authSession) == "" {
		cfg.authSession = "probe-" + uuid.NewString()
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 200 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,200]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	if _, known := gradeband.DefaultTable().Lookup(cfg.gradeBand); !known {
		return options{}, fmt.Errorf("unknown grade-band %q", cfg.gradeBand)
	}
	if loginTTLMin <= 0 {
		loginTTLMin = 60
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if retryDelayMS < 50 {
		retryDelayMS = 50
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = 5
	}
	cfg.loginTTL = time.Duration(loginTTLMin) * time.Minute
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	cfg.interTurn = time.Duration(interTurnMS) * time.Millisecond
	cfg.retryDelay = time.Duration(retryDelayMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 30 * time.Second}

	if strings.TrimSpace(cfg.databaseURL) != "" {
		if err := seedLogin(ctx, cfg); err != nil {
			return fmt.Errorf("seed login session: %w", err)
		}
		if cfg.verbose {
			fmt.Printf("voiceprobe: seeded login session %s for user %s\n", cfg.authSession, cfg.userID)
		}
		defer func() {
			_ = invalidateLogin(context.Background(), httpClient, cfg.baseURL, cfg.authSession)
		}()
	}

	wsURL, err := wsSessionURL(cfg.baseURL, cfg.gradeBand, cfg.subject)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}

	p := newProber(cfg, wsURL)
	defer p.sup.Stop()

	pc, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer pc.close()

	if err := p.runScript(ctx, pc); err != nil {
		return err
	}

	if err := printLatency(ctx, httpClient, cfg.baseURL); err != nil {
		return fmt.Errorf("fetch latency snapshot: %w", err)
	}
	if cfg.verbose {
		fmt.Printf("voiceprobe: done, lifecycle settled in %s\n", p.machine.State())
	}
	return nil
}

// prober owns the lifecycle machine and reconnect supervisor for one
// scripted conversation.
type prober struct {
	opts       options
	client     *reliability.Client
	machine    *lifecycle.Machine
	sup        *reliability.Supervisor
	connCh     chan *websocket.Conn
	terminalCh chan struct{}
	seq        int
}

func newProber(cfg options, wsURL string) *prober {
	p := &prober{
		opts: cfg,
		client: &reliability.Client{
			URL: wsURL,
			Cookie: &http.Cookie{
				Name:  cfg.cookieName,
				Value: auth.SignCookieValue(cfg.authSession, cfg.secret),
			},
		},
		machine:    lifecycle.NewMachine(),
		connCh:     make(chan *websocket.Conn, 1),
		terminalCh: make(chan struct{}, 1),
	}
	p.machine.SetObserver(func(from, to lifecycle.State, reason string) {
		if cfg.verbose {
			fmt.Printf("voiceprobe: lifecycle %s -> %s (%s)\n", from, to, reason)
		}
		if to == lifecycle.StateTerminalError {
			select {
			case p.terminalCh <- struct{}{}:
			default:
			}
		}
	})
	p.sup = reliability.NewSupervisor(reliability.SupervisorConfig{
		InitialDelay: cfg.retryDelay,
		MaxDelay:     10 * cfg.retryDelay,
		MaxAttempts:  cfg.maxAttempts,
		JitterFrac:   0.2,
	}, p.machine, p.dialOnce)
	return p
}

func (p *prober) dialOnce(ctx context.Context) error {
	conn, err := p.client.Dial(ctx)
	if err != nil {
		return err
	}
	select {
	case p.connCh <- conn:
	default:
		conn.Close()
	}
	return nil
}

// connect performs the first dial by hand so the CREATING_SESSION hop is
// observable; failures after that are the supervisor's problem.
func (p *prober) connect(ctx context.Context) (*probeConn, error) {
	_ = p.machine.RequestConnect()
	_ = p.machine.NotifySessionCreated()
	if err := p.dialOnce(ctx); err != nil {
		p.sup.HandleDisconnect(err.Error())
	} else {
		_ = p.machine.NotifyConnected()
		p.sup.NotifySuccess()
	}
	return p.awaitConn(ctx)
}

func (p *prober) reconnect(ctx context.Context, cause error) (*probeConn, error) {
	fmt.Printf("voiceprobe: transport lost: %v\n", cause)
	p.sup.HandleDisconnect(cause.Error())
	return p.awaitConn(ctx)
}

func (p *prober) awaitConn(ctx context.Context) (*probeConn, error) {
	select {
	case conn := <-p.connCh:
		return newProbeConn(conn, p.opts.verbose), nil
	case <-p.terminalCh:
		return nil, fmt.Errorf("connection abandoned: %s", p.machine.LastReason())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *prober) runScript(ctx context.Context, pc *probeConn) error {
	ready, err := pc.await(string(protocol.TypeSessionReady), p.opts.turnTimeout)
	if err != nil {
		return fmt.Errorf("await session.ready: %w", err)
	}
	sessionID := ready.Session.ID
	if p.opts.verbose {
		fmt.Printf("voiceprobe: session=%s band=%s subject=%q\n", sessionID, ready.Session.GradeBand, ready.Session.Subject)
	}

	turnsDone := 0
	for turnsDone < p.opts.turns {
		text := p.opts.texts[turnsDone%len(p.opts.texts)]
		if p.opts.verbose {
			fmt.Printf("voiceprobe: turn %d/%d text=%q\n", turnsDone+1, p.opts.turns, text)
		}
		err := p.playTurn(pc, sessionID, text)
		if err == nil {
			turnsDone++
			if p.opts.interTurn > 0 && turnsDone < p.opts.turns {
				time.Sleep(p.opts.interTurn)
			}
			continue
		}
		if !isTransportLoss(err) {
			return fmt.Errorf("turn %d: %w", turnsDone+1, err)
		}
		pc.close()
		next, rerr := p.reconnect(ctx, err)
		if rerr != nil {
			return rerr
		}
		*pc = *next
		ready, err = pc.await(string(protocol.TypeSessionReady), p.opts.turnTimeout)
		if err != nil {
			return fmt.Errorf("await session.ready after reconnect: %w", err)
		}
		sessionID = ready.Session.ID
		fmt.Printf("voiceprobe: resumed on session %s\n", sessionID)
	}

	if p.opts.bargeIn {
		if err := p.playBargeIn(pc, sessionID); err != nil {
			return fmt.Errorf("barge-in exercise: %w", err)
		}
	}

	return p.endConversation(pc, sessionID)
}

// playTurn replays one student turn: a short breath of quiet audio, then
// the final transcript, then waits for the server to commit the turn.
func (p *prober) playTurn(pc *probeConn, sessionID, text string) error {
	if err := p.sendTone(pc, sessionID, 3, 0.0); err != nil {
		return err
	}
	if err := pc.send(protocol.ClientTranscript{
		Type:       protocol.TypeClientTranscript,
		SessionID:  sessionID,
		Text:       text,
		Confidence: 0.92,
		Final:      true,
		TSMs:       time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	frame, err := pc.await(string(protocol.TypeTurnEnded), p.opts.turnTimeout)
	if err != nil {
		return err
	}
	if frame.Type == string(protocol.TypeCoherenceRejected) {
		fmt.Printf("voiceprobe: clarification prompt: %s\n", frame.Message)
	}
	return nil
}

// playBargeIn announces a client-side tutor turn, clears the immunity
// window with silence, then speaks over the tutor until the server ducks
// and hands the floor to the student.
func (p *prober) playBargeIn(pc *probeConn, sessionID string) error {
	profile, _ := gradeband.DefaultTable().Lookup(p.opts.gradeBand)
	chunk := time.Duration(p.opts.chunkMS) * time.Millisecond
	silenceChunks := int(profile.ImmunityWindow/chunk) + 5
	loudChunks := int(profile.MinSpeechDuration/chunk) + 4

	if err := pc.send(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    protocol.ActionTutorStarted,
		Text:      "Let me walk through this step once more.",
		TSMs:      time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	if _, err := pc.await(string(protocol.TypeTurnStarted), p.opts.turnTimeout); err != nil {
		return fmt.Errorf("await tutor turn: %w", err)
	}

	if err := p.sendTone(pc, sessionID, silenceChunks, 0.0); err != nil {
		return err
	}
	if err := p.sendTone(pc, sessionID, loudChunks, 0.5); err != nil {
		return err
	}

	duck, err := pc.await(string(protocol.TypeTutorDuck), p.opts.turnTimeout)
	if err != nil {
		return fmt.Errorf("await tutor.duck: %w", err)
	}
	if p.opts.verbose {
		fmt.Printf("voiceprobe: tutor ducked to gain %.2f\n", duck.Gain)
	}
	if _, err := pc.await(string(protocol.TypeTurnStarted), p.opts.turnTimeout); err != nil {
		return fmt.Errorf("await student turn after barge-in: %w", err)
	}

	if err := pc.send(protocol.ClientTranscript{
		Type:       protocol.TypeClientTranscript,
		SessionID:  sessionID,
		Text:       "wait i do not understand that step",
		Confidence: 0.9,
		Final:      true,
		TSMs:       time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	if _, err := pc.await(string(protocol.TypeTurnEnded), p.opts.turnTimeout); err != nil {
		return fmt.Errorf("await interrupted turn commit: %w", err)
	}
	fmt.Printf("voiceprobe: barge-in confirmed\n")
	return nil
}

// endConversation closes the session the polite way: a spoken goodbye when
// enabled, an end_session control frame otherwise. Either way the server
// owes us a session.ending notice before it hangs up.
func (p *prober) endConversation(pc *probeConn, sessionID string) error {
	if p.opts.goodbye {
		if err := pc.send(protocol.ClientTranscript{
			Type:       protocol.TypeClientTranscript,
			SessionID:  sessionID,
			Text:       "okay goodbye",
			Confidence: 0.95,
			Final:      true,
			TSMs:       time.Now().UnixMilli(),
		}); err != nil {
			return err
		}
	} else {
		if err := pc.send(protocol.ClientControl{
			Type:      protocol.TypeClientControl,
			SessionID: sessionID,
			Action:    protocol.ActionEndSession,
			TSMs:      time.Now().UnixMilli(),
		}); err != nil {
			return err
		}
	}
	ending, err := pc.awaitEnding(p.opts.turnTimeout)
	if err != nil {
		return fmt.Errorf("await session.ending: %w", err)
	}
	fmt.Printf("voiceprobe: session ended (%s)\n", ending.Reason)
	_ = p.machine.NotifyDisconnected("session_complete")
	return nil
}

func (p *prober) sendTone(pc *probeConn, sessionID string, chunks int, amplitude float64) error {
	const sampleRate = 16000
	pcm := tonePCM16(sampleRate, time.Duration(p.opts.chunkMS)*time.Millisecond, amplitude)
	pace := time.Duration(float64(p.opts.chunkMS)*float64(time.Millisecond) / p.opts.realtime)
	for i := 0; i < chunks; i++ {
		p.seq++
		if err := pc.send(protocol.ClientAudioChunk{
			Type:        protocol.TypeClientAudioChunk,
			SessionID:   sessionID,
			Seq:         p.seq,
			PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
			SampleRate:  sampleRate,
			TSMs:        time.Now().UnixMilli(),
		}); err != nil {
			return err
		}
		if pace > 0 {
			time.Sleep(pace)
		}
	}
	return nil
}

// wsFrame is the superset of server frame fields the probe cares about.
type wsFrame struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	TurnID    string  `json:"turn_id"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Reason    string  `json:"reason"`
	Code      string  `json:"code"`
	Detail    string  `json:"detail"`
	Message   string  `json:"message"`
	Gain      float64 `json:"gain"`
	Session   struct {
		ID        string `json:"session_id"`
		GradeBand string `json:"grade_band"`
		Subject   string `json:"subject"`
	} `json:"session"`
}

// probeConn pairs a websocket with its read pump.
type probeConn struct {
	conn    *websocket.Conn
	frames  chan wsFrame
	readErr chan error
	verbose bool
}

func newProbeConn(conn *websocket.Conn, verbose bool) *probeConn {
	pc := &probeConn{
		conn:    conn,
		frames:  make(chan wsFrame, 64),
		readErr: make(chan error, 1),
		verbose: verbose,
	}
	go pc.readLoop()
	return pc
}

func (pc *probeConn) readLoop() {
	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			select {
			case pc.readErr <- err:
			default:
			}
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == string(protocol.TypeServerError) {
			fmt.Fprintf(os.Stderr, "voiceprobe: server_error code=%s detail=%s\n", frame.Code, frame.Detail)
		}
		select {
		case pc.frames <- frame:
		default:
		}
	}
}

func (pc *probeConn) send(v any) error {
	_ = pc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return pc.conn.WriteJSON(v)
}

// await returns the next frame of the wanted type. A coherence rejection
// satisfies a turn.ended wait, since the server commits no turn for an
// off-topic fragment. An unexpected session.ending aborts the wait.
func (pc *probeConn) await(wanted string, timeout time.Duration) (wsFrame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case frame := <-pc.frames:
			if frame.Type == wanted {
				return frame, nil
			}
			if wanted == string(protocol.TypeTurnEnded) && frame.Type == string(protocol.TypeCoherenceRejected) {
				return frame, nil
			}
			if frame.Type == string(protocol.TypeSessionEnding) {
				return wsFrame{}, fmt.Errorf("session ending: %s", frame.Reason)
			}
			if pc.verbose {
				fmt.Printf("voiceprobe: (skipped %s while waiting for %s)\n", frame.Type, wanted)
			}
		case err := <-pc.readErr:
			return wsFrame{}, err
		case <-timer.C:
			return wsFrame{}, fmt.Errorf("timeout after %s waiting for %s", timeout, wanted)
		}
	}
}

func (pc *probeConn) awaitEnding(timeout time.Duration) (wsFrame, error) {
	return pc.await(string(protocol.TypeSessionEnding), timeout)
}

func (pc *probeConn) close() {
	if pc.conn != nil {
		_ = pc.conn.Close()
	}
}

// isTransportLoss separates broken sockets from protocol-level failures.
// Only the former are worth a reconnect.
func isTransportLoss(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsUnexpectedCloseError(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected EOF")
}

// loginPayload mirrors the session JSON the account service's login
// middleware writes, so the server's validator accepts the seeded row.
type loginPayload struct {
	Cookie struct {
		Expires string `json:"expires"`
	} `json:"cookie"`
	Passport struct {
		User string `json:"user"`
	} `json:"passport"`
	LastRotatedAt int64 `json:"lastRotatedAt"`
}

func sessJSON(userID string, rotatedAt, expires time.Time) ([]byte, error) {
	var payload loginPayload
	payload.Cookie.Expires = expires.UTC().Format(time.RFC3339Nano)
	payload.Passport.User = userID
	payload.LastRotatedAt = rotatedAt.UnixMilli()
	return json.Marshal(payload)
}

func seedLogin(ctx context.Context, cfg options) error {
	pool, err := pgxpool.New(ctx, cfg.databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	now := time.Now()
	expires := now.Add(cfg.loginTTL)
	raw, err := sessJSON(cfg.userID, now, expires)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO "session" (sid, sess, expire) VALUES ($1, $2, $3)
		 ON CONFLICT (sid) DO UPDATE SET sess = EXCLUDED.sess, expire = EXCLUDED.expire`,
		cfg.authSession, raw, expires)
	return err
}

func invalidateLogin(ctx context.Context, client *http.Client, baseURL, sid string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		baseURL+"/v1/auth/session/"+url.PathEscape(sid), nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsSessionURL(baseURL, band, subject string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/voice/session/ws"
	q := u.Query()
	q.Set("grade_band", band)
	if subject != "" {
		q.Set("subject", subject)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// tonePCM16 synthesizes one chunk of mono 440Hz tone at the given
// amplitude in [0,1]. Zero amplitude yields silence.
func tonePCM16(sampleRate int, dur time.Duration, amplitude float64) []byte {
	samples := int(float64(sampleRate) * dur.Seconds())
	if samples < 1 {
		samples = 1
	}
	out := make([]byte, samples*2)
	if amplitude <= 0 {
		return out
	}
	if amplitude > 1 {
		amplitude = 1
	}
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		s := int16(v * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func printLatency(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap observability.StageSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return err
	}
	fmt.Printf("voiceprobe: stage latency (window %d)\n", snap.WindowSize)
	for _, st := range snap.Stages {
		fmt.Printf("voiceprobe:   %-24s samples=%-4d p50=%.1fms p95=%.1fms p99=%.1fms last=%.1fms\n",
			st.Stage, st.Samples, st.P50MS, st.P95MS, st.P99MS, st.LastMS)
	}
	for _, ind := range snap.Indicators {
		fmt.Printf("voiceprobe:   indicator %-14s count=%d\n", ind.Name, ind.Count)
	}
	return nil
}
