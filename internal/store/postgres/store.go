// Package postgres implements the store tables on PostgreSQL, one JSONB
// document per row.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"xhsmarket/internal/model"
	"xhsmarket/internal/store"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate.
func Schema() string { return schema }

// Migrate creates every table and index if missing.
func Migrate(ctx context.Context, db Querier, logger *zap.Logger) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("Database schema applied")
	return nil
}

// DB is a store.Store over a pgx pool.
type DB struct {
	*store.Store

	pool     *pgxpool.Pool
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

func Open(pool *pgxpool.Pool, fixtures store.Fixtures, logger *zap.Logger) *DB {
	db := &DB{
		pool:          pool,
		fixtures:      fixtures,
		logger:        logger,
		users:         newTable[model.User](pool, "xhs_users", "user"),
		artworks:      newTable[model.Artwork](pool, "xhs_artworks", "artwork"),
		projects:      newTable[model.Project](pool, "xhs_projects", "project"),
		tasks:         newTable[model.Task](pool, "xhs_tasks", "task"),
		assets:        newTable[model.Asset](pool, "xhs_assets", "asset"),
		transactions:  newTable[model.Transaction](pool, "xhs_transactions", "transaction"),
		notifications: newTable[model.Notification](pool, "xhs_notifications", "notification"),
		sessions:      newTable[model.Session](pool, "xhs_sessions", "session"),
	}

	s := store.New(pool.Ping, func() error {
		pool.Close()
		return nil
	})
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

// Pool exposes the pool for the outbox repository.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// Migrate applies the schema.
func (db *DB) Migrate(ctx context.Context) error {
	return Migrate(ctx, db.pool, db.logger)
}

// Seed fills empty tables from fixtures; force replaces every table.
func (db *DB) Seed(ctx context.Context, force bool) error {
	f := db.fixtures
	steps := []struct {
		name string
		seed func() (bool, error)
	}{
		{"users", func() (bool, error) { return db.users.seed(ctx, f.Users, force) }},
		{"artworks", func() (bool, error) { return db.artworks.seed(ctx, f.Artworks, force) }},
		{"projects", func() (bool, error) { return db.projects.seed(ctx, f.Projects, force) }},
		{"tasks", func() (bool, error) { return db.tasks.seed(ctx, f.Tasks, force) }},
		{"assets", func() (bool, error) { return db.assets.seed(ctx, f.Assets, force) }},
		{"transactions", func() (bool, error) { return db.transactions.seed(ctx, f.Transactions, force) }},
		{"notifications", func() (bool, error) { return db.notifications.seed(ctx, f.Notifications, force) }},
	}
	if force {
		steps = append(steps, struct {
			name string
			seed func() (bool, error)
		}{"sessions", func() (bool, error) { return db.sessions.seed(ctx, nil, true) }})
	}

	for _, step := range steps {
		written, err := step.seed()
		if err != nil {
			return fmt.Errorf("seed %s: %w", step.name, err)
		}
		if written {
			db.logger.Info("Seeded table", zap.String("table", step.name), zap.Bool("force", force))
		}
	}
	return nil
}
