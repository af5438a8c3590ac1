// Package admin backs the admin console: platform statistics, user
// moderation, and outbox maintenance.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/outbox"
	"xhsmarket/pkg/rbac"
)

// ErrOutboxDisabled is returned for outbox operations outside postgres mode.
var ErrOutboxDisabled = fmt.Errorf("outbox is not enabled: %w", store.ErrNotFound)

// Outbox is the maintenance surface of *outbox.ReplayService.
type Outbox interface {
	ListEvents(ctx context.Context, status string, limit int) ([]*outbox.Event, error)
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

type Stats struct {
	Users            int            `json:"users"`
	UsersByRole      map[string]int `json:"usersByRole"`
	BannedUsers      int            `json:"bannedUsers"`
	Artworks         int            `json:"artworks"`
	AIArtworks       int            `json:"aiArtworks"`
	AIShare          float64        `json:"aiShare"`
	Projects         int            `json:"projects"`
	ProjectsByStatus map[string]int `json:"projectsByStatus"`
	Transactions     int            `json:"transactions"`
	Revenue          int64          `json:"revenue"`
	Commission       int64          `json:"commission"`
}

type Service struct {
	st     *store.Store
	outbox Outbox
	logger *zap.Logger
}

// NewService builds the admin service; ob may be nil.
func NewService(st *store.Store, ob Outbox, logger *zap.Logger) *Service {
	return &Service{st: st, outbox: ob, logger: logger}
}

// Stats aggregates the dashboard counters. Revenue and commission exclude
// refunded purchases.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	out := Stats{
		UsersByRole:      map[string]int{},
		ProjectsByStatus: map[string]int{},
	}

	users, err := s.st.Users.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	out.Users = len(users)
	for _, u := range users {
		out.UsersByRole[u.Role]++
		if u.Status == model.UserStatusBanned {
			out.BannedUsers++
		}
	}

	artworks, err := s.st.Artworks.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	out.Artworks = len(artworks)
	for _, a := range artworks {
		if a.IsAI {
			out.AIArtworks++
		}
	}
	if out.Artworks > 0 {
		out.AIShare = float64(out.AIArtworks) / float64(out.Artworks)
	}

	projects, err := s.st.Projects.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	out.Projects = len(projects)
	for _, p := range projects {
		out.ProjectsByStatus[p.Status]++
	}

	txs, err := s.st.Transactions.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	out.Transactions = len(txs)
	refunded := map[string]bool{}
	for _, t := range txs {
		if t.Type == model.TxRefund {
			refunded[t.RelatedID] = true
		}
	}
	for _, t := range txs {
		if t.Status != model.TxStatusCompleted {
			continue
		}
		switch {
		case t.Type == model.TxPurchase && !refunded[t.ID]:
			out.Revenue += -t.Amount
		case t.Type == model.TxCommission && !refunded[t.RelatedID]:
			out.Commission += t.Amount
		}
	}
	return out, nil
}

// ListUsers filters by a name/email substring and role, oldest account first.
func (s *Service) ListUsers(ctx context.Context, search, role string) ([]model.User, error) {
	q := strings.ToLower(strings.TrimSpace(search))
	users, err := store.Filter(ctx, s.st.Users, func(u model.User) bool {
		if role != "" && u.Role != role {
			return false
		}
		return q == "" ||
			strings.Contains(strings.ToLower(u.Name), q) ||
			strings.Contains(strings.ToLower(u.Email), q)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, nil
}

func (s *Service) SetRole(ctx context.Context, actor service.Actor, userID, role string) (model.User, error) {
	if err := actor.Require(rbac.PermissionAdminUsers); err != nil {
		return model.User{}, err
	}
	if !rbac.ValidRole(role) {
		return model.User{}, service.Invalid("unknown role %q", role)
	}
	if userID == actor.UserID && role != actor.Role {
		return model.User{}, service.Invalid("admins cannot change their own role")
	}
	var prev string
	u, err := s.st.Users.Update(ctx, userID, func(u *model.User) error {
		prev = u.Role
		u.Role = role
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	if prev == role {
		return u.Public(), nil
	}
	s.logger.Info("User role changed",
		zap.String("user_id", userID),
		zap.String("from", prev),
		zap.String("to", role),
		zap.String("by", actor.UserID),
	)
	return u.Public(), nil
}

// SetStatus bans or reinstates a user; banning also revokes their sessions.
func (s *Service) SetStatus(ctx context.Context, actor service.Actor, userID, status string) (model.User, error) {
	if err := actor.Require(rbac.PermissionAdminUsers); err != nil {
		return model.User{}, err
	}
	if status != model.UserStatusActive && status != model.UserStatusBanned {
		return model.User{}, service.Invalid("unknown status %q", status)
	}
	if userID == actor.UserID && status == model.UserStatusBanned {
		return model.User{}, service.Invalid("admins cannot ban themselves")
	}
	u, err := s.st.Users.Update(ctx, userID, func(u *model.User) error {
		u.Status = status
		return nil
	})
	if err != nil {
		return model.User{}, err
	}

	if status == model.UserStatusBanned {
		revoked, err := s.revokeSessions(ctx, userID)
		if err != nil {
			return model.User{}, err
		}
		s.logger.Info("User banned",
			zap.String("user_id", userID),
			zap.Int("sessions_revoked", revoked),
			zap.String("by", actor.UserID),
		)
	}
	return u.Public(), nil
}

func (s *Service) revokeSessions(ctx context.Context, userID string) (int, error) {
	sessions, err := store.Filter(ctx, s.st.Sessions, func(sess model.Session) bool {
		return sess.UserID == userID
	})
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		if err := s.st.Sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
	}
	return len(sessions), nil
}

func (s *Service) OutboxEvents(ctx context.Context, status string, limit int) ([]*outbox.Event, error) {
	if s.outbox == nil {
		return nil, ErrOutboxDisabled
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.outbox.ListEvents(ctx, status, limit)
}

func (s *Service) ReplayEvent(ctx context.Context, actor service.Actor, eventID int64) error {
	if err := actor.Require(rbac.PermissionAdminOutbox); err != nil {
		return err
	}
	if s.outbox == nil {
		return ErrOutboxDisabled
	}
	return s.outbox.ReplayEvent(ctx, eventID)
}

func (s *Service) ReplayFailed(ctx context.Context, actor service.Actor, limit int) (int, error) {
	if err := actor.Require(rbac.PermissionAdminOutbox); err != nil {
		return 0, err
	}
	if s.outbox == nil {
		return 0, ErrOutboxDisabled
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	n, err := s.outbox.ReplayFailedEvents(ctx, limit)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Failed outbox events replayed", zap.Int("count", n), zap.String("by", actor.UserID))
	return n, nil
}
