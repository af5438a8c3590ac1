// Package store defines the table contract shared by the key/value mock
// database and the PostgreSQL backend.
package store

import (
	"context"
	"errors"
	"fmt"

	"xhsmarket/internal/model"
)

var (
	// ErrNotFound is returned (wrapped) when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned (wrapped) when an insert collides with an
	// existing row or a unique index.
	ErrDuplicate = errors.New("duplicate")
)

// Entity is anything keyed by a string ID.
type Entity interface {
	GetID() string
}

// Table is one entity collection. Put upserts by ID, keeping the row's
// position on update and appending on insert.
//
// Update and Insert are the atomic read-modify-write paths: Update applies
// fn to the stored row under the backend's lock and writes the result
// unless fn fails; Insert appends item unless its ID or a row matching
// conflict already exists.
type Table[T Entity] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Put(ctx context.Context, item T) error
	Update(ctx context.Context, id string, fn func(*T) error) (T, error)
	Insert(ctx context.Context, item T, conflict func(T) bool) error
	Delete(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, items []T) error
}

// Store bundles every table the marketplace persists.
type Store struct {
	Users         Table[model.User]
	Artworks      Table[model.Artwork]
	Projects      Table[model.Project]
	Tasks         Table[model.Task]
	Assets        Table[model.Asset]
	Transactions  Table[model.Transaction]
	Notifications Table[model.Notification]
	Sessions      Table[model.Session]

	ping  func(ctx context.Context) error
	close func() error
}

// New assembles a Store; ping and closeFn may be nil.
func New(ping func(ctx context.Context) error, closeFn func() error) *Store {
	return &Store{ping: ping, close: closeFn}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NotFound wraps ErrNotFound with the table and id.
func NotFound(table, id string) error {
	return fmt.Errorf("%s %q: %w", table, id, ErrNotFound)
}

// Duplicate wraps ErrDuplicate with the table and id.
func Duplicate(table, id string) error {
	return fmt.Errorf("%s %q: %w", table, id, ErrDuplicate)
}

// Find returns the first row matching pred.
func Find[T Entity](ctx context.Context, t Table[T], pred func(T) bool) (T, bool, error) {
	var zero T
	items, err := t.List(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, item := range items {
		if pred(item) {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// Filter returns every row matching pred, preserving order.
func Filter[T Entity](ctx context.Context, t Table[T], pred func(T) bool) ([]T, error) {
	items, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Fixtures is the seed data for every table.
type Fixtures struct {
	Users         []model.User
	Artworks      []model.Artwork
	Projects      []model.Project
	Tasks         []model.Task
	Assets        []model.Asset
	Transactions  []model.Transaction
	Notifications []model.Notification
}
