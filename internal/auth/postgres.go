package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads sessions from the shared web-login session table. The
// schema matches what the account service's session middleware writes, so
// both sides stay interoperable.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS "session" (
			sid TEXT PRIMARY KEY,
			sess JSONB NOT NULL,
			expire TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_expire ON "session" (expire);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Get returns the session record for sid. Rows past their store-level
// expiry behave as absent.
func (s *PostgresStore) Get(ctx context.Context, sid string) (StoredSession, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT sess FROM "session" WHERE sid=$1 AND expire >= now()`,
		sid,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredSession{}, ErrSessionNotFound
	}
	if err != nil {
		return StoredSession{}, fmt.Errorf("lookup session: %w", err)
	}
	return parseSessPayload(sid, raw)
}

func (s *PostgresStore) Destroy(ctx context.Context, sid string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM "session" WHERE sid=$1`, sid); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type sessPayload struct {
	Cookie struct {
		Expires *timeValue `json:"expires"`
	} `json:"cookie"`
	Passport struct {
		User json.RawMessage `json:"user"`
	} `json:"passport"`
	LastRotatedAt *timeValue `json:"lastRotatedAt"`
}

func parseSessPayload(sid string, raw []byte) (StoredSession, error) {
	var payload sessPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StoredSession{}, fmt.Errorf("decode session payload: %w", err)
	}
	out := StoredSession{
		SID:    sid,
		UserID: userIDFromPassport(payload.Passport.User),
	}
	if payload.LastRotatedAt != nil {
		out.RotatedAt = payload.LastRotatedAt.Time
	}
	if payload.Cookie.Expires != nil {
		out.CookieExpires = payload.Cookie.Expires.Time
	}
	return out, nil
}

// timeValue unmarshals either an ISO timestamp string or epoch
// milliseconds; session payloads contain both forms.
type timeValue struct {
	time.Time
}

func (t *timeValue) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return t.Time.UnmarshalJSON(data)
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("timestamp is neither string nor number: %s", data)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// userIDFromPassport accepts the login marker as a bare string, a numeric
// id, or an object carrying an id field.
func userIDFromPassport(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num int64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatInt(num, 10)
	}
	var obj struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.ID) > 0 {
		return userIDFromPassport(obj.ID)
	}
	return ""
}
