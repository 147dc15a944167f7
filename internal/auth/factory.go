package auth

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed session store when configured,
// otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
