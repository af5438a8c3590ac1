package kv

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"xhsmarket/internal/model"
	"xhsmarket/internal/store"
)

// DB is the mock database: a store.Store over a KV backend plus seeding.
type DB struct {
	*store.Store

	backend  KV
	fixtures store.Fixtures
	logger   *zap.Logger

	users         *table[model.User]
	artworks      *table[model.Artwork]
	projects      *table[model.Project]
	tasks         *table[model.Task]
	assets        *table[model.Asset]
	transactions  *table[model.Transaction]
	notifications *table[model.Notification]
	sessions      *table[model.Session]
}

// Open wires every table onto backend. Nothing is written until Seed.
func Open(backend KV, fixtures store.Fixtures, logger *zap.Logger) *DB {
	db := &DB{
		backend:       backend,
		fixtures:      fixtures,
		logger:        logger,
		users:         newTable[model.User](backend, KeyUsers, "user"),
		artworks:      newTable[model.Artwork](backend, KeyArtworks, "artwork"),
		projects:      newTable[model.Project](backend, KeyProjects, "project"),
		tasks:         newTable[model.Task](backend, KeyTasks, "task"),
		assets:        newTable[model.Asset](backend, KeyAssets, "asset"),
		transactions:  newTable[model.Transaction](backend, KeyTransactions, "transaction"),
		notifications: newTable[model.Notification](backend, KeyNotifications, "notification"),
		sessions:      newTable[model.Session](backend, KeySession, "session"),
	}
	db.sessions.object = true

	s := store.New(backend.Ping, backend.Close)
	s.Users = db.users
	s.Artworks = db.artworks
	s.Projects = db.projects
	s.Tasks = db.tasks
	s.Assets = db.assets
	s.Transactions = db.transactions
	s.Notifications = db.notifications
	s.Sessions = db.sessions
	db.Store = s
	return db
}

// Seed writes fixtures to every absent key, or to all keys when force is
// set. The session slot is reset to empty on force.
func (db *DB) Seed(ctx context.Context, force bool) error {
	f := db.fixtures
	steps := []struct {
		key  string
		seed func() (bool, error)
	}{
		{KeyUsers, func() (bool, error) { return db.users.seed(ctx, f.Users, force) }},
		{KeyArtworks, func() (bool, error) { return db.artworks.seed(ctx, f.Artworks, force) }},
		{KeyProjects, func() (bool, error) { return db.projects.seed(ctx, f.Projects, force) }},
		{KeyAssets, func() (bool, error) { return db.assets.seed(ctx, f.Assets, force) }},
		{KeyTransactions, func() (bool, error) { return db.transactions.seed(ctx, f.Transactions, force) }},
		{KeySession, func() (bool, error) { return db.sessions.seed(ctx, nil, force) }},
		{KeyTasks, func() (bool, error) { return db.tasks.seed(ctx, f.Tasks, force) }},
		{KeyNotifications, func() (bool, error) { return db.notifications.seed(ctx, f.Notifications, force) }},
	}

	for _, step := range steps {
		written, err := step.seed()
		if err != nil {
			return fmt.Errorf("seed %s: %w", step.key, err)
		}
		if written && db.logger != nil {
			db.logger.Info("seeded key", zap.String("key", step.key), zap.Bool("force", force))
		}
	}
	return nil
}

// Raw returns the stored document for key, for inspection tools.
func (db *DB) Raw(ctx context.Context, key string) ([]byte, bool, error) {
	return db.backend.Get(ctx, key)
}

// OpenMemory returns a seeded in-memory DB.
func OpenMemory(ctx context.Context, fixtures store.Fixtures, logger *zap.Logger) (*DB, error) {
	db := Open(NewMemoryKV(), fixtures, logger)
	if err := db.Seed(ctx, false); err != nil {
		return nil, err
	}
	return db, nil
}
