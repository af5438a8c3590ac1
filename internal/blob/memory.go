package blob

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

type object struct {
	data        []byte
	contentType string
}

// Memory keeps objects in process; used in mock mode and tests.
type Memory struct {
	mu        sync.RWMutex
	objects   map[string]object
	publicURL string
}

func NewMemory(publicURL string) *Memory {
	return &Memory{objects: make(map[string]object), publicURL: publicURL}
}

func (m *Memory) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.WithStack(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: data, contentType: contentType}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, *Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, errors.Wrapf(ErrNotFound, "could not find object '%s'", key)
	}
	info := &Info{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) URL(key string) string {
	return joinURL(m.publicURL, key)
}

var _ Store = &Memory{}
