package auth

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned for unknown or store-expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// StoredSession is the decoded server-side session record behind a signed
// cookie.
type StoredSession struct {
	SID           string
	UserID        string
	RotatedAt     time.Time
	CookieExpires time.Time
}

// Store provides atomic lookup and destruction of stored sessions. Destroy
// is idempotent.
type Store interface {
	Get(ctx context.Context, sid string) (StoredSession, error)
	Destroy(ctx context.Context, sid string) error
	Close() error
}
