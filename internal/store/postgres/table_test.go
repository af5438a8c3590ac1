package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xhsmarket/internal/model"
	"xhsmarket/internal/store"
)

// memRow is one row of the in-memory xhs_* table.
type memRow struct {
	id   string
	seq  int64
	data []byte
}

// memState interprets the handful of statements table[T] issues.
type memState struct {
	rows        []memRow
	seq         int64
	uniqueEmail bool
}

func (s *memState) clone() *memState {
	c := *s
	c.rows = slices.Clone(s.rows)
	return &c
}

func normalize(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

func emailOf(data []byte) string {
	var doc struct {
		Email string `json:"email"`
	}
	_ = json.Unmarshal(data, &doc)
	return strings.ToLower(doc.Email)
}

func (s *memState) exec(sql string, args []any) (pgconn.CommandTag, error) {
	q := normalize(sql)
	switch {
	case strings.HasPrefix(q, "LOCK TABLE"):
		return pgconn.NewCommandTag("LOCK TABLE"), nil

	case strings.HasPrefix(q, "INSERT INTO"):
		id, data := args[0].(string), args[1].([]byte)
		i := slices.IndexFunc(s.rows, func(r memRow) bool { return r.id == id })
		if s.uniqueEmail && emailOf(data) != "" {
			for j, r := range s.rows {
				if j != i && emailOf(r.data) == emailOf(data) {
					return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "idx_xhs_users_email"}
				}
			}
		}
		s.seq++
		switch {
		case i < 0:
			s.rows = append(s.rows, memRow{id: id, seq: s.seq, data: data})
		case strings.Contains(q, "ON CONFLICT (id) DO UPDATE"):
			s.rows[i].data = data
		default:
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: "pkey"}
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.HasPrefix(q, "DELETE FROM") && strings.Contains(q, "WHERE id = $1"):
		n := len(s.rows)
		s.rows = slices.DeleteFunc(s.rows, func(r memRow) bool { return r.id == args[0].(string) })
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n-len(s.rows))), nil

	case strings.HasPrefix(q, "DELETE FROM"):
		n := len(s.rows)
		s.rows = nil
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected statement %q", q)
}

func (s *memState) query(sql string, args []any) ([][]any, error) {
	q := normalize(sql)
	switch {
	case strings.HasPrefix(q, "SELECT COUNT(*)"):
		return [][]any{{len(s.rows)}}, nil

	case strings.HasPrefix(q, "SELECT data FROM") && strings.Contains(q, "WHERE id = $1"):
		for _, r := range s.rows {
			if r.id == args[0].(string) {
				return [][]any{{r.data}}, nil
			}
		}
		return nil, nil

	case strings.HasPrefix(q, "SELECT data FROM") && strings.HasSuffix(q, "ORDER BY seq"):
		sorted := slices.Clone(s.rows)
		slices.SortFunc(sorted, func(a, b memRow) int { return int(a.seq - b.seq) })
		out := make([][]any, 0, len(sorted))
		for _, r := range sorted {
			out = append(out, []any{r.data})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected query %q", q)
}

func scanInto(values []any, dest []any) error {
	for i, d := range dest {
		switch d := d.(type) {
		case *[]byte:
			*d = values[i].([]byte)
		case *int:
			*d = values[i].(int)
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}

type memRows struct {
	pgx.Rows
	rows [][]any
	cur  int
}

func (r *memRows) Next() bool {
	r.cur++
	return r.cur <= len(r.rows)
}

func (r *memRows) Scan(dest ...any) error { return scanInto(r.rows[r.cur-1], dest) }

func (r *memRows) Err() error { return nil }

func (r *memRows) Close() {}

type memRowResult struct {
	rows [][]any
	err  error
}

func (r memRowResult) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(r.rows) == 0 {
		return pgx.ErrNoRows
	}
	return scanInto(r.rows[0], dest)
}

// memDB is a Querier over memState. A transaction holds the lock until it
// ends, which stands in for the row and table locks of the real server.
type memDB struct {
	mu    sync.Mutex
	state *memState
}

func newMemDB() *memDB { return &memDB{state: &memState{}} }

func (db *memDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.exec(sql, args)
}

func (db *memDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.state.query(sql, args)
	if err != nil {
		return nil, err
	}
	return &memRows{rows: rows}, nil
}

func (db *memDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.state.query(sql, args)
	return memRowResult{rows: rows, err: err}
}

func (db *memDB) Begin(context.Context) (pgx.Tx, error) {
	db.mu.Lock()
	return &memTx{db: db, state: db.state.clone()}, nil
}

type memTx struct {
	pgx.Tx
	db    *memDB
	state *memState
	done  bool
}

func (tx *memTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.state.exec(sql, args)
}

func (tx *memTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := tx.state.query(sql, args)
	if err != nil {
		return nil, err
	}
	return &memRows{rows: rows}, nil
}

func (tx *memTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	rows, err := tx.state.query(sql, args)
	return memRowResult{rows: rows, err: err}
}

func (tx *memTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.db.state = tx.state
	tx.done = true
	tx.db.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.mu.Unlock()
	return nil
}

func newUsers(db *memDB) *table[model.User] {
	return newTable[model.User](db, "xhs_users", "user")
}

func names(users []model.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out
}

func TestTableListOrdersBySeqAndPutUpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	users := newUsers(newMemDB())

	for _, u := range []model.User{{ID: "u3", Name: "Chen"}, {ID: "u1", Name: "Lin"}, {ID: "u2", Name: "Zhou"}} {
		require.NoError(t, users.Put(ctx, u))
	}
	require.NoError(t, users.Put(ctx, model.User{ID: "u1", Name: "Lin Qiao"}))

	items, err := users.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chen", "Lin Qiao", "Zhou"}, names(items))

	u, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Lin Qiao", u.Name)

	_, err = users.Get(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTableDelete(t *testing.T) {
	ctx := context.Background()
	users := newUsers(newMemDB())
	require.NoError(t, users.Put(ctx, model.User{ID: "u1", Name: "Lin"}))

	require.NoError(t, users.Delete(ctx, "u1"))
	assert.ErrorIs(t, users.Delete(ctx, "u1"), store.ErrNotFound)

	items, err := users.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTableSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	users := newUsers(newMemDB())
	fixtures := []model.User{{ID: "u1", Name: "Lin"}, {ID: "u2", Name: "Zhou"}}

	written, err := users.seed(ctx, fixtures, false)
	require.NoError(t, err)
	assert.True(t, written)

	require.NoError(t, users.Put(ctx, model.User{ID: "u3", Name: "Amy"}))
	written, err = users.seed(ctx, fixtures, false)
	require.NoError(t, err)
	assert.False(t, written)
	items, err := users.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lin", "Zhou", "Amy"}, names(items))

	written, err = users.seed(ctx, fixtures[:1], true)
	require.NoError(t, err)
	assert.True(t, written)
	items, err = users.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lin"}, names(items))
}

func TestTableUpdate(t *testing.T) {
	ctx := context.Background()
	users := newUsers(newMemDB())
	require.NoError(t, users.Put(ctx, model.User{ID: "u1", Name: "Lin", Balance: 100}))

	u, err := users.Update(ctx, "u1", func(u *model.User) error {
		u.Balance += 50
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), u.Balance)

	boom := errors.New("insufficient")
	_, err = users.Update(ctx, "u1", func(u *model.User) error {
		u.Balance = -1
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Balance)

	_, err = users.Update(ctx, "nope", func(*model.User) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTableUpdateConcurrent(t *testing.T) {
	ctx := context.Background()
	users := newUsers(newMemDB())
	require.NoError(t, users.Put(ctx, model.User{ID: "u1"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.Update(ctx, "u1", func(u *model.User) error {
				u.Balance++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Balance)
}

func TestTableInsert(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	users := newUsers(db)
	sameEmail := func(email string) func(model.User) bool {
		return func(u model.User) bool { return strings.EqualFold(u.Email, email) }
	}

	require.NoError(t, users.Insert(ctx, model.User{ID: "u1", Email: "lin@xhs.example"}, sameEmail("lin@xhs.example")))

	err := users.Insert(ctx, model.User{ID: "u2", Email: "LIN@xhs.example"}, sameEmail("LIN@xhs.example"))
	assert.ErrorIs(t, err, store.ErrDuplicate)
	err = users.Insert(ctx, model.User{ID: "u1", Email: "other@xhs.example"}, nil)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// the unique email index is reported the same way
	db.state.uniqueEmail = true
	err = users.Insert(ctx, model.User{ID: "u3", Email: "Lin@xhs.example"}, nil)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	err = users.Put(ctx, model.User{ID: "u4", Email: "lin@XHS.example"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	items, err := users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
