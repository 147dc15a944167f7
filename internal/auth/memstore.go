package auth

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-process session store for local/dev use.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]memSession
}

type memSession struct {
	data   StoredSession
	expire time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]memSession)}
}

// Put seeds a session record. A zero ttl keeps the row alive indefinitely.
func (s *MemStore) Put(sid string, data StoredSession, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data.SID = sid
	rec := memSession{data: data}
	if ttl != 0 {
		rec.expire = time.Now().Add(ttl)
	}
	s.sessions[sid] = rec
}

func (s *MemStore) Get(_ context.Context, sid string) (StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sid]
	if !ok {
		return StoredSession{}, ErrSessionNotFound
	}
	if !rec.expire.IsZero() && time.Now().After(rec.expire) {
		return StoredSession{}, ErrSessionNotFound
	}
	return rec.data, nil
}

func (s *MemStore) Destroy(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
	return nil
}

func (s *MemStore) Close() error {
	return nil
}
