package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"xhsmarket/pkg/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu      sync.Mutex
	events  map[int64]*Event
	nextID  int64
	sent    []int64
	failed  []int64
	inserts []*Event
}

func newFakeStore(events ...*Event) *fakeStore {
	s := &fakeStore{events: make(map[int64]*Event)}
	for _, e := range events {
		s.events[e.ID] = e
		if e.ID > s.nextID {
			s.nextID = e.ID
		}
	}
	return s
}

func (s *fakeStore) InsertEvent(_ context.Context, _ Querier, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.events[e.ID] = e
	s.inserts = append(s.inserts, e)
	return nil
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	return s.byStatus(StatusPending, limit), nil
}

func (s *fakeStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	return s.byStatus(StatusFailed, limit), nil
}

func (s *fakeStore) ListEvents(_ context.Context, status string, limit int) ([]*Event, error) {
	return s.byStatus(status, limit), nil
}

func (s *fakeStore) byStatus(status string, limit int) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for id := int64(1); id <= s.nextID && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && (status == "" || e.Status == status) {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = StatusSent
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.RetryCount++
	if e.RetryCount >= maxRetries {
		e.Status = StatusFailed
	}
	s.failed = append(s.failed, id)
	return nil
}

type published struct {
	key     string
	traceID string
	body    string
}

type fakePublisher struct {
	mu   sync.Mutex
	fail map[string]bool
	got  []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[routingKey] {
		return errors.New("broker unavailable")
	}
	body, _ := json.Marshal(payload)
	p.got = append(p.got, published{key: routingKey, traceID: trace.FromContext(ctx), body: string(body)})
	return nil
}

func TestWriterRecordsEvent(t *testing.T) {
	store := newFakeStore()
	w := NewWriter(store)
	ctx := trace.WithContext(context.Background(), "trace-1")

	err := w.PublishWithContext(ctx, "artwork.liked", map[string]any{"artwork_id": "art-1", "user_id": "u-amy"})
	require.NoError(t, err)

	require.Len(t, store.inserts, 1)
	e := store.inserts[0]
	assert.Equal(t, "artwork", e.AggregateType)
	require.NotNil(t, e.AggregateID)
	assert.Equal(t, "art-1", *e.AggregateID)
	assert.Equal(t, "trace-1", e.TraceID)
	assert.Equal(t, StatusPending, e.Status)
	assert.JSONEq(t, `{"artwork_id":"art-1","user_id":"u-amy"}`, string(e.Payload))
}

func TestAggregateType(t *testing.T) {
	assert.Equal(t, "transaction", AggregateType("transaction.completed"))
	assert.Equal(t, "ai", AggregateType("ai.image.generated"))
	assert.Equal(t, "solo", AggregateType("solo"))
}

func TestDispatcherProcessPending(t *testing.T) {
	store := newFakeStore(
		&Event{ID: 1, RoutingKey: "artwork.liked", Payload: json.RawMessage(`{"a":1}`), TraceID: "t-1", Status: StatusPending},
		&Event{ID: 2, RoutingKey: "task.updated", Payload: json.RawMessage(`{"b":2}`), Status: StatusPending},
		&Event{ID: 3, RoutingKey: "project.applied", Payload: json.RawMessage(`{}`), Status: StatusSent},
	)
	pub := &fakePublisher{fail: map[string]bool{"task.updated": true}}
	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(2)

	assert.Equal(t, 1, d.ProcessPending(context.Background()))
	require.Len(t, pub.got, 1)
	assert.Equal(t, published{key: "artwork.liked", traceID: "t-1", body: `{"a":1}`}, pub.got[0])
	assert.Equal(t, []int64{1}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)

	// second failure exhausts the retries
	assert.Zero(t, d.ProcessPending(context.Background()))
	assert.Equal(t, StatusFailed, store.events[2].Status)
	assert.Zero(t, d.ProcessPending(context.Background()))
}

func TestDispatcherStartStopsOnCancel(t *testing.T) {
	store := newFakeStore(&Event{ID: 1, RoutingKey: "artwork.liked", Payload: json.RawMessage(`{}`), Status: StatusPending})
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop()).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestReplayService(t *testing.T) {
	store := newFakeStore(
		&Event{ID: 1, RoutingKey: "transaction.completed", Payload: json.RawMessage(`{}`), Status: StatusFailed, RetryCount: 5},
		&Event{ID: 2, RoutingKey: "artwork.liked", Payload: json.RawMessage(`{}`), Status: StatusFailed, RetryCount: 5},
		&Event{ID: 3, RoutingKey: "artwork.liked", Payload: json.RawMessage(`{}`), Status: StatusSent},
	)
	pub := &fakePublisher{fail: map[string]bool{"transaction.completed": true}}
	s := NewReplayService(store, pub, zap.NewNop())
	ctx := context.Background()

	n, err := s.ReplayFailedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusSent, store.events[2].Status)

	err = s.ReplayEvent(ctx, 1)
	assert.Error(t, err)

	err = s.ReplayEvent(ctx, 99)
	assert.ErrorIs(t, err, ErrEventNotFound)

	failed, err := s.ListEvents(ctx, StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].ID)
}
