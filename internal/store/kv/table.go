package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"xhsmarket/internal/model"
	"xhsmarket/internal/store"
)

// table keeps a whole collection under one key. Rows are a JSON array
// unless object is set, in which case they are a JSON object keyed by ID.
type table[T store.Entity] struct {
	kv     KV
	key    string
	name   string
	object bool
}

func newTable[T store.Entity](backend KV, key, name string) *table[T] {
	return &table[T]{kv: backend, key: key, name: name}
}

func (t *table[T]) decode(raw []byte, ok bool) ([]T, error) {
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	if t.object {
		var m map[string]T
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.key, err)
		}
		ids := make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		items := make([]T, 0, len(ids))
		for _, id := range ids {
			items = append(items, m[id])
		}
		return items, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.key, err)
	}
	return items, nil
}

func (t *table[T]) encode(items []T) ([]byte, error) {
	if t.object {
		m := make(map[string]T, len(items))
		for _, item := range items {
			m[item.GetID()] = item
		}
		return json.Marshal(m)
	}
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// modify runs fn over the decoded rows and writes the result back.
func (t *table[T]) modify(ctx context.Context, fn func([]T) ([]T, error)) error {
	return t.kv.Update(ctx, t.key, func(current []byte, ok bool) ([]byte, error) {
		items, err := t.decode(current, ok)
		if err != nil {
			return nil, err
		}
		items, err = fn(items)
		if err != nil {
			return nil, err
		}
		return t.encode(items)
	})
}

func (t *table[T]) List(ctx context.Context) ([]T, error) {
	raw, ok, err := t.kv.Get(ctx, t.key)
	if err != nil {
		return nil, err
	}
	return t.decode(raw, ok)
}

func (t *table[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	items, err := t.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, item := range items {
		if item.GetID() == id {
			return item, nil
		}
	}
	return zero, store.NotFound(t.name, id)
}

func (t *table[T]) Put(ctx context.Context, item T) error {
	return t.modify(ctx, func(items []T) ([]T, error) {
		i := slices.IndexFunc(items, func(x T) bool { return x.GetID() == item.GetID() })
		if i >= 0 {
			items[i] = item
			return items, nil
		}
		return append(items, item), nil
	})
}

func (t *table[T]) Update(ctx context.Context, id string, fn func(*T) error) (T, error) {
	var out T
	err := t.modify(ctx, func(items []T) ([]T, error) {
		i := slices.IndexFunc(items, func(x T) bool { return x.GetID() == id })
		if i < 0 {
			return nil, store.NotFound(t.name, id)
		}
		if err := fn(&items[i]); err != nil {
			return nil, err
		}
		out = items[i]
		return items, nil
	})
	return out, err
}

func (t *table[T]) Insert(ctx context.Context, item T, conflict func(T) bool) error {
	return t.modify(ctx, func(items []T) ([]T, error) {
		for _, x := range items {
			if x.GetID() == item.GetID() || (conflict != nil && conflict(x)) {
				return nil, store.Duplicate(t.name, x.GetID())
			}
		}
		return append(items, item), nil
	})
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	return t.modify(ctx, func(items []T) ([]T, error) {
		i := slices.IndexFunc(items, func(x T) bool { return x.GetID() == id })
		if i < 0 {
			return nil, store.NotFound(t.name, id)
		}
		return slices.Delete(items, i, i+1), nil
	})
}

func (t *table[T]) ReplaceAll(ctx context.Context, items []T) error {
	raw, err := t.encode(items)
	if err != nil {
		return err
	}
	return t.kv.Set(ctx, t.key, raw)
}

// seed writes items when the key is absent, or always when force is set.
func (t *table[T]) seed(ctx context.Context, items []T, force bool) (bool, error) {
	written := false
	err := t.kv.Update(ctx, t.key, func(current []byte, ok bool) ([]byte, error) {
		if ok && !force {
			return current, nil
		}
		written = true
		return t.encode(items)
	})
	return written, err
}

var _ store.Table[model.User] = (*table[model.User])(nil)
