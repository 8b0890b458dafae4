// Package metadata is the agent's key/value bookkeeping table (last sync,
// last reconcile).
package metadata

import (
	"context"
	"time"
)

const (
	KeyLastSyncAt      = "last_sync_at"
	KeyLastReconcileAt = "last_reconcile_at"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	// GetTime returns the zero time when key is unset.
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}
