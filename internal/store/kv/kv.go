// Package kv is the mock database: every table is one JSON document stored
// under an xhs_* key, the same layout the browser client keeps in localStorage.
package kv

import (
	"context"
)

// Storage keys. The names match the client-side localStorage layout so a
// dump of one can be loaded into the other.
const (
	KeyUsers         = "xhs_users"
	KeyArtworks      = "xhs_artworks"
	KeyProjects      = "xhs_projects"
	KeyAssets        = "xhs_assets"
	KeyTransactions  = "xhs_transactions"
	KeySession       = "xhs_current_user_session"
	KeyTasks         = "xhs_tasks"
	KeyNotifications = "xhs_notifications"
)

// AllKeys lists every key in seed order.
var AllKeys = []string{
	KeyUsers,
	KeyArtworks,
	KeyProjects,
	KeyAssets,
	KeyTransactions,
	KeySession,
	KeyTasks,
	KeyNotifications,
}

// UpdateFunc receives the current value (ok=false when absent) and returns the new one.
type UpdateFunc func(current []byte, ok bool) ([]byte, error)

// KV is the byte-level backend behind the mock database.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update applies fn atomically with respect to other writers of key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping(ctx context.Context) error
	Close() error
}
