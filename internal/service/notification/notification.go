// Package notification keeps each user's inbox and turns domain events
// into inbox entries.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xhsmarket/internal/event"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/service/transaction"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/util"
)

const handlerName = "notification"

// Deduper suppresses repeated deliveries; *util.Deduper and
// *util.MemoryDeduper satisfy it. Release gives a key back after a failed
// attempt so the redelivery is processed.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, key string) bool
	Release(ctx context.Context, handler string, key string)
}

type Service struct {
	notifications store.Table[model.Notification]
	deduper       Deduper
	logger        *zap.Logger
	now           func() time.Time
}

// NewService builds the inbox service; deduper may be nil.
func NewService(st *store.Store, deduper Deduper, logger *zap.Logger) *Service {
	return &Service{
		notifications: st.Notifications,
		deduper:       deduper,
		logger:        logger,
		now:           time.Now,
	}
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	items, err := store.Filter(ctx, s.notifications, func(n model.Notification) bool {
		return n.UserID == userID && (!unreadOnly || !n.Read)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	items, err := s.List(ctx, userID, true)
	return len(items), err
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (model.Notification, error) {
	return s.notifications.Update(ctx, id, func(n *model.Notification) error {
		if n.UserID != userID {
			// another user's notification is reported as missing
			return store.NotFound("notification", id)
		}
		n.Read = true
		return nil
	})
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	unread, err := s.List(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	for _, n := range unread {
		_, err := s.notifications.Update(ctx, n.ID, func(n *model.Notification) error {
			n.Read = true
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return len(unread), nil
}

func (s *Service) Create(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.UserID == "" {
		return model.Notification{}, service.Invalid("notification needs a recipient")
	}
	if n.ID == "" {
		n.ID = service.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := s.notifications.Put(ctx, n); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

// Register wires HandleEvent into a router for every notifying event.
func (s *Service) Register(r *event.Router) {
	for _, key := range event.NotifyKeys {
		key := key
		r.Register(key, func(ctx context.Context, data json.RawMessage) error {
			return s.HandleEvent(ctx, key, data)
		})
	}
}

// HandleEvent turns one delivered event into notifications. Unknown keys
// are ignored; undecodable payloads are permanent failures.
func (s *Service) HandleEvent(ctx context.Context, routingKey string, data json.RawMessage) error {
	notes, dedupKey, err := s.build(routingKey, data)
	if err != nil {
		return fmt.Errorf("%s payload: %v: %w", routingKey, err, util.ErrPermanent)
	}
	if len(notes) == 0 {
		return nil
	}
	key := routingKey + ":" + dedupKey
	if s.deduper != nil && !s.deduper.AcquireOnce(ctx, handlerName, key) {
		return nil
	}

	for i, n := range notes {
		// a redelivery rewrites the rows it already stored
		n.ID = noteID(key, i)
		if _, err := s.Create(ctx, n); err != nil {
			if s.deduper != nil {
				s.deduper.Release(context.WithoutCancel(ctx), handlerName, key)
			}
			return err
		}
	}
	s.logger.Debug("Notifications created",
		zap.String("routing_key", routingKey),
		zap.Int("count", len(notes)),
	)
	return nil
}

func noteID(key string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "notification:%s#%d", key, i)).String()
}

func (s *Service) build(routingKey string, data json.RawMessage) ([]model.Notification, string, error) {
	switch routingKey {
	case event.ArtworkLiked:
		var p event.ArtworkLikedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, "", err
		}
		if p.ArtistID == p.UserID {
			return nil, "", nil
		}
		return []model.Notification{{
			UserID:    p.ArtistID,
			Type:      routingKey,
			Title:     "New like",
			Message:   fmt.Sprintf("%s liked %s", p.UserName, p.Title),
			Link:      "/artworks/" + p.ArtworkID,
			CreatedAt: p.OccurredAt,
		}}, p.ArtworkID + ":" + p.UserID + ":" + p.OccurredAt.Format(time.RFC3339Nano), nil

	case event.ProjectApplied:
		var p event.ProjectAppliedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, "", err
		}
		return []model.Notification{{
			UserID:    p.ClientID,
			Type:      routingKey,
			Title:     "New applicant",
			Message:   fmt.Sprintf("%s applied to %s", p.CreatorName, p.Title),
			Link:      "/projects/" + p.ProjectID,
			CreatedAt: p.OccurredAt,
		}}, p.ProjectID + ":" + p.CreatorID, nil

	case event.ProjectAssigned:
		var p event.ProjectAssignedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, "", err
		}
		return []model.Notification{{
			UserID:    p.CreatorID,
			Type:      routingKey,
			Title:     "You got the job",
			Message:   fmt.Sprintf("%s assigned you to %s", p.ClientName, p.Title),
			Link:      "/projects/" + p.ProjectID,
			CreatedAt: p.OccurredAt,
		}}, p.ProjectID + ":" + p.CreatorID, nil

	case event.TransactionCompleted:
		var p event.TransactionCompletedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, "", err
		}
		price := transaction.FormatAmount(p.Price)
		return []model.Notification{
			{
				UserID:    p.BuyerID,
				Type:      routingKey,
				Title:     "Purchase complete",
				Message:   fmt.Sprintf("You bought %s for %s", p.Title, price),
				Link:      "/artworks/" + p.ArtworkID,
				CreatedAt: p.OccurredAt,
			},
			{
				UserID:    p.SellerID,
				Type:      routingKey,
				Title:     "Artwork sold",
				Message:   fmt.Sprintf("%s sold for %s", p.Title, price),
				Link:      "/wallet",
				CreatedAt: p.OccurredAt,
			},
		}, p.PurchaseID, nil

	case event.TaskUpdated:
		var p event.TaskUpdatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, "", err
		}
		if p.AssigneeID == "" {
			return nil, "", nil
		}
		return []model.Notification{{
			UserID:    p.AssigneeID,
			Type:      routingKey,
			Title:     "Task updated",
			Message:   fmt.Sprintf("%s moved to %s", p.Title, p.Status),
			Link:      "/projects/" + p.ProjectID,
			CreatedAt: p.OccurredAt,
		}}, p.TaskID + ":" + p.Status + ":" + p.OccurredAt.Format(time.RFC3339Nano), nil
	}
	return nil, "", nil
}
