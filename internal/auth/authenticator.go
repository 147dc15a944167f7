package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Rejection reasons, surfaced verbatim in the plain-text upgrade response.
const (
	ReasonMissingCookie   = "missing_cookie"
	ReasonMalformedCookie = "malformed_cookie"
	ReasonBadSignature    = "bad_signature"
	ReasonUnknownSession  = "unknown_session"
	ReasonUnauthenticated = "unauthenticated"
	ReasonStaleSession    = "stale_session"
	ReasonExpiredSession  = "expired_session"
	ReasonInternalError   = "internal_error"
)

const signingPrefix = "s:"

// DefaultRotationWindow forces re-authentication of long-lived sessions.
const DefaultRotationWindow = 30 * time.Minute

// Result is the outcome of validating one connection attempt. It is
// produced once and never mutated.
type Result struct {
	Valid      bool
	UserID     string
	SessionID  string
	Reason     string
	StatusCode int
}

// Config carries the cookie format and freshness policy.
type Config struct {
	CookieName     string
	Secret         string
	RotationWindow time.Duration
}

// Authenticator validates connection upgrades against the session store. It
// runs on the raw request only, outside any per-request middleware, so a
// websocket upgrade cannot re-trigger login side effects.
type Authenticator struct {
	cookieName string
	secret     []byte
	rotation   time.Duration
	store      Store
	now        func() time.Time
}

func NewAuthenticator(cfg Config, store Store) (*Authenticator, error) {
	if cfg.CookieName == "" {
		return nil, errors.New("auth: cookie name required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("auth: session secret required")
	}
	rotation := cfg.RotationWindow
	if rotation <= 0 {
		rotation = DefaultRotationWindow
	}
	return &Authenticator{
		cookieName: cfg.CookieName,
		secret:     []byte(cfg.Secret),
		rotation:   rotation,
		store:      store,
		now:        time.Now,
	}, nil
}

// Authenticate validates the signed session cookie on r, in order,
// fail-closed at each step. Unexpected failures become a generic 500
// without leaking detail.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("auth: panic during validation: %v", rec)
			result = reject(ReasonInternalError, http.StatusInternalServerError)
		}
	}()

	cookie, err := r.Cookie(a.cookieName)
	if err != nil || cookie.Value == "" {
		return reject(ReasonMissingCookie, http.StatusUnauthorized)
	}

	decoded, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return reject(ReasonMalformedCookie, http.StatusBadRequest)
	}

	sid, ok := a.unsign(decoded)
	if !ok {
		return reject(ReasonBadSignature, http.StatusUnauthorized)
	}

	stored, err := a.store.Get(ctx, sid)
	if errors.Is(err, ErrSessionNotFound) {
		return reject(ReasonUnknownSession, http.StatusUnauthorized)
	}
	if err != nil {
		log.Printf("auth: session store lookup failed: %v", err)
		return reject(ReasonInternalError, http.StatusInternalServerError)
	}

	if stored.UserID == "" {
		return reject(ReasonUnauthenticated, http.StatusUnauthorized)
	}

	if !stored.RotatedAt.IsZero() && a.now().Sub(stored.RotatedAt) > a.rotation {
		return reject(ReasonStaleSession, http.StatusUnauthorized)
	}

	if !stored.CookieExpires.IsZero() && a.now().After(stored.CookieExpires) {
		return reject(ReasonExpiredSession, http.StatusUnauthorized)
	}

	return Result{Valid: true, UserID: stored.UserID, SessionID: sid}
}

// Invalidate forcibly destroys a stored session. Safe to call repeatedly;
// destroying an absent session is not an error.
func (a *Authenticator) Invalidate(ctx context.Context, sid string) error {
	if err := a.store.Destroy(ctx, sid); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// unsign strips the signing prefix and verifies the HMAC-SHA256 signature,
// returning the bare session id.
func (a *Authenticator) unsign(value string) (string, bool) {
	if !strings.HasPrefix(value, signingPrefix) {
		return "", false
	}
	rest := value[len(signingPrefix):]
	dot := strings.LastIndexByte(rest, '.')
	if dot <= 0 || dot == len(rest)-1 {
		return "", false
	}
	sid, sig := rest[:dot], rest[dot+1:]
	if subtle.ConstantTimeCompare([]byte(sig), []byte(signature(sid, a.secret))) != 1 {
		return "", false
	}
	return sid, true
}

// SignCookieValue produces the URL-encoded signed cookie value for sid,
// matching what the login service issues.
func SignCookieValue(sid, secret string) string {
	return url.QueryEscape(signingPrefix + sid + "." + signature(sid, []byte(secret)))
}

func signature(sid string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(sid))
	return strings.TrimRight(base64.StdEncoding.EncodeToString(mac.Sum(nil)), "=")
}

func reject(reason string, status int) Result {
	return Result{Reason: reason, StatusCode: status}
}
