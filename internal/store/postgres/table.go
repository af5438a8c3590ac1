package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"xhsmarket/internal/model"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/otel"
)

// uniqueViolation is the SQLSTATE for a unique index collision.
const uniqueViolation = "23505"

// Querier is the subset of *pgxpool.Pool the tables need.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// table stores each row as a JSONB document; seq keeps insertion order.
type table[T store.Entity] struct {
	db   Querier
	sql  string
	name string
}

func newTable[T store.Entity](db Querier, sqlName, name string) *table[T] {
	return &table[T]{db: db, sql: sqlName, name: name}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (t *table[T]) List(ctx context.Context) ([]T, error) {
	return t.list(ctx, t.db)
}

func (t *table[T]) list(ctx context.Context, db queryer) (_ []T, err error) {
	ctx, span := otel.DBSpan(ctx, "select", t.sql)
	defer func() { otel.EndDBSpan(span, err) }()

	rows, err := db.Query(ctx, fmt.Sprintf(`SELECT data FROM %s ORDER BY seq`, t.sql))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.name, err)
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.name, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *table[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var raw []byte
	ctx, span := otel.DBSpan(ctx, "select", t.sql)
	err := t.db.QueryRow(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, t.sql), id).Scan(&raw)
	otel.EndDBSpan(span, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, store.NotFound(t.name, id)
	}
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", t.name, err)
	}

	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return zero, fmt.Errorf("decode %s: %w", t.name, err)
	}
	return item, nil
}

func (t *table[T]) Put(ctx context.Context, item T) error {
	return t.put(ctx, t.db, item)
}

func (t *table[T]) put(ctx context.Context, db execer, item T) (err error) {
	ctx, span := otel.DBSpan(ctx, "upsert", t.sql)
	defer func() { otel.EndDBSpan(span, err) }()

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.name, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, t.sql)
	if _, err := db.Exec(ctx, query, item.GetID(), raw); err != nil {
		return t.wrap("put", item.GetID(), err)
	}
	return nil
}

// wrap maps a unique violation to store.ErrDuplicate.
func (t *table[T]) wrap(op, id string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s %s %q: %w: %s", op, t.name, id, store.ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s %s: %w", op, t.name, err)
}

// Update locks the row with SELECT ... FOR UPDATE for the length of fn.
func (t *table[T]) Update(ctx context.Context, id string, fn func(*T) error) (T, error) {
	var zero T
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("begin update %s: %w", t.name, err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	ctx, span := otel.DBSpan(ctx, "select_for_update", t.sql)
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1 FOR UPDATE`, t.sql), id).Scan(&raw)
	otel.EndDBSpan(span, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, store.NotFound(t.name, id)
	}
	if err != nil {
		return zero, fmt.Errorf("lock %s: %w", t.name, err)
	}

	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return zero, fmt.Errorf("decode %s: %w", t.name, err)
	}
	if err := fn(&item); err != nil {
		return zero, err
	}
	if err := t.put(ctx, tx, item); err != nil {
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit update %s: %w", t.name, err)
	}
	return item, nil
}

// Insert takes a table lock that blocks concurrent writers while the
// conflict predicate runs over the current rows.
func (t *table[T]) Insert(ctx context.Context, item T, conflict func(T) bool) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert %s: %w", t.name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE`, t.sql)); err != nil {
		return fmt.Errorf("lock %s: %w", t.name, err)
	}
	items, err := t.list(ctx, tx)
	if err != nil {
		return err
	}
	for _, x := range items {
		if x.GetID() == item.GetID() || (conflict != nil && conflict(x)) {
			return store.Duplicate(t.name, x.GetID())
		}
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.name, err)
	}
	ctx, span := otel.DBSpan(ctx, "insert", t.sql)
	_, err = tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2)`, t.sql), item.GetID(), raw)
	otel.EndDBSpan(span, err)
	if err != nil {
		return t.wrap("insert", item.GetID(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return t.wrap("commit insert", item.GetID(), err)
	}
	return nil
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	ctx, span := otel.DBSpan(ctx, "delete", t.sql)
	tag, err := t.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.sql), id)
	otel.EndDBSpan(span, err)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound(t.name, id)
	}
	return nil
}

func (t *table[T]) ReplaceAll(ctx context.Context, items []T) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", t.name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, t.sql)); err != nil {
		return fmt.Errorf("clear %s: %w", t.name, err)
	}
	for _, item := range items {
		if err := t.put(ctx, tx, item); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (t *table[T]) count(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.sql)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

// seed fills an empty table, or replaces its content when force is set.
func (t *table[T]) seed(ctx context.Context, items []T, force bool) (bool, error) {
	if !force {
		n, err := t.count(ctx)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, t.ReplaceAll(ctx, items)
}

var _ store.Table[model.User] = (*table[model.User])(nil)
