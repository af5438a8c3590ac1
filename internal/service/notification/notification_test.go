package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/fixtures"
	"xhsmarket/internal/model"
	"xhsmarket/internal/store"
	"xhsmarket/internal/store/kv"
	"xhsmarket/pkg/util"
)

func newService(t *testing.T, deduper Deduper) *Service {
	t.Helper()
	db, err := kv.OpenMemory(context.Background(), fixtures.MustLoad(), zap.NewNop())
	require.NoError(t, err)
	return NewService(db.Store, deduper, zap.NewNop())
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestListAndMarkRead(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()

	unread, err := s.List(ctx, "u-studio", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n-1", unread[0].ID)

	_, err = s.MarkRead(ctx, "u-amy", "n-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.MarkRead(ctx, "u-studio", "n-1")
	require.NoError(t, err)
	assert.True(t, n.Read)

	count, err := s.UnreadCount(ctx, "u-studio")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkAllRead(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, notificationFor("u-amy"))
		require.NoError(t, err)
	}
	changed, err := s.MarkAllRead(ctx, "u-amy")
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	changed, err = s.MarkAllRead(ctx, "u-amy")
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestHandleArtworkLiked(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	at := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	err := s.HandleEvent(ctx, event.ArtworkLiked, raw(t, event.ArtworkLikedPayload{
		ArtworkID: "art-3", ArtistID: "u-zhou", Title: "Glass Garden", UserID: "u-amy", UserName: "Amy", OccurredAt: at,
	}))
	require.NoError(t, err)

	items, err := s.List(ctx, "u-zhou", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Amy liked Glass Garden", items[0].Message)
	assert.Equal(t, "/artworks/art-3", items[0].Link)
	assert.Equal(t, at, items[0].CreatedAt)

	// self-likes stay silent
	err = s.HandleEvent(ctx, event.ArtworkLiked, raw(t, event.ArtworkLikedPayload{
		ArtworkID: "art-3", ArtistID: "u-zhou", UserID: "u-zhou", OccurredAt: at,
	}))
	require.NoError(t, err)
	items, err = s.List(ctx, "u-zhou", false)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestHandleTransactionCompleted(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()

	err := s.HandleEvent(ctx, event.TransactionCompleted, raw(t, event.TransactionCompletedPayload{
		PurchaseID: "tx-9", ArtworkID: "art-1", Title: "Ink Mountains", BuyerID: "u-amy", SellerID: "u-lin", Price: 125000,
	}))
	require.NoError(t, err)

	buyer, err := s.List(ctx, "u-amy", true)
	require.NoError(t, err)
	require.Len(t, buyer, 1)
	assert.Equal(t, "You bought Ink Mountains for ¥1,250.00", buyer[0].Message)

	seller, err := s.List(ctx, "u-lin", true)
	require.NoError(t, err)
	require.Len(t, seller, 1)
	assert.Equal(t, "/wallet", seller[0].Link)
}

func TestHandleEventDeduplicates(t *testing.T) {
	s := newService(t, util.NewMemoryDeduper(64, time.Minute))
	ctx := context.Background()
	payload := raw(t, event.ProjectAppliedPayload{
		ProjectID: "proj-1", ClientID: "u-studio", Title: "Tea packaging", CreatorID: "u-zhou", CreatorName: "Zhou",
	})

	require.NoError(t, s.HandleEvent(ctx, event.ProjectApplied, payload))
	require.NoError(t, s.HandleEvent(ctx, event.ProjectApplied, payload))

	items, err := s.List(ctx, "u-studio", true)
	require.NoError(t, err)
	// n-1 from fixtures plus one new entry
	assert.Len(t, items, 2)
}

// flakyTable fails the failOn-th Put with a retryable error.
type flakyTable struct {
	store.Table[model.Notification]
	puts   atomic.Int32
	failOn int32
}

func (f *flakyTable) Put(ctx context.Context, n model.Notification) error {
	if f.puts.Add(1) == f.failOn {
		return errors.New("connection reset by peer")
	}
	return f.Table.Put(ctx, n)
}

func TestHandleEventRedeliveryAfterStoreFailure(t *testing.T) {
	db, err := kv.OpenMemory(context.Background(), fixtures.MustLoad(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	// the buyer's row is stored, the seller's row fails
	flaky := &flakyTable{Table: db.Notifications, failOn: 2}
	s := NewService(db.Store, util.NewMemoryDeduper(64, time.Minute), zap.NewNop())
	s.notifications = flaky

	buyerBefore, err := s.List(ctx, "u-amy", false)
	require.NoError(t, err)
	sellerBefore, err := s.List(ctx, "u-lin", false)
	require.NoError(t, err)

	payload := raw(t, event.TransactionCompletedPayload{
		PurchaseID: "tx-10", ArtworkID: "art-1", Title: "Ink Mountains", BuyerID: "u-amy", SellerID: "u-lin", Price: 125000,
	})
	err = s.HandleEvent(ctx, event.TransactionCompleted, payload)
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)

	// the requeued delivery is processed, not dropped as a duplicate
	require.NoError(t, s.HandleEvent(ctx, event.TransactionCompleted, payload))
	// and a later duplicate is dropped
	require.NoError(t, s.HandleEvent(ctx, event.TransactionCompleted, payload))

	seller, err := s.List(ctx, "u-lin", false)
	require.NoError(t, err)
	assert.Len(t, seller, len(sellerBefore)+1)

	buyer, err := s.List(ctx, "u-amy", false)
	require.NoError(t, err)
	assert.Len(t, buyer, len(buyerBefore)+1)
}

func TestHandleEventSkipsUnassignedTask(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()

	err := s.HandleEvent(ctx, event.TaskUpdated, raw(t, event.TaskUpdatedPayload{TaskID: "task-1", Status: "done"}))
	require.NoError(t, err)
	err = s.HandleEvent(ctx, "artwork.created", raw(t, map[string]string{"artwork_id": "art-1"}))
	require.NoError(t, err)
}

func TestHandleEventBadPayloadIsPermanent(t *testing.T) {
	s := newService(t, nil)
	err := s.HandleEvent(context.Background(), event.ProjectAssigned, json.RawMessage(`{"project_id":`))
	assert.ErrorIs(t, err, util.ErrPermanent)
}

func TestRegisterRoutesEveryNotifyKey(t *testing.T) {
	s := newService(t, nil)
	r := event.NewRouter(zap.NewNop())
	s.Register(r)
	assert.ElementsMatch(t, event.NotifyKeys, r.Keys())
}

func notificationFor(userID string) model.Notification {
	return model.Notification{UserID: userID, Type: "system", Title: "Hello", Message: "Welcome"}
}
