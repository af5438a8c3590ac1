// Package artwork is the gallery: listing, uploads, likes and views.
package artwork

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"xhsmarket/internal/blob"
	"xhsmarket/internal/event"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/rbac"
)

const (
	AIFilterAll   = "all"
	AIFilterAI    = "ai"
	AIFilterHuman = "human"

	SortLikes  = "likes"
	SortViews  = "views"
	SortNewest = "newest"
)

type Filter struct {
	Category string
	Search   string
	AI       string
	ArtistID string
	Sort     string
	Limit    int
	Offset   int
}

type ListResult struct {
	Items []model.Artwork `json:"items"`
	Total int             `json:"total"`
}

type CreateInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	IsAI        bool     `json:"isAI"`
	Prompt      string   `json:"prompt"`
	Price       int64    `json:"price"`
	ForSale     bool     `json:"forSale"`
}

type UpdateInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
	Price       *int64    `json:"price"`
	ForSale     *bool     `json:"forSale"`
}

type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

type Options struct {
	MaxInlineImageBytes int
	PlaceholderBase     string
}

type Service struct {
	artworks  store.Table[model.Artwork]
	users     store.Table[model.User]
	blobs     blob.Store
	publisher event.Publisher
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewService builds the gallery service; blobs may be nil.
func NewService(st *store.Store, blobs blob.Store, publisher event.Publisher, opts Options, logger *zap.Logger) *Service {
	return &Service{
		artworks:  st.Artworks,
		users:     st.Users,
		blobs:     blobs,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Matches applies every filter clause except pagination.
func (f Filter) Matches(a model.Artwork) bool {
	if f.Category != "" && f.Category != model.CategoryAll && !strings.EqualFold(a.Category, f.Category) {
		return false
	}
	switch f.AI {
	case AIFilterAI:
		if !a.IsAI {
			return false
		}
	case AIFilterHuman:
		if a.IsAI {
			return false
		}
	}
	if f.ArtistID != "" && a.ArtistID != f.ArtistID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if strings.Contains(strings.ToLower(a.Title), q) || strings.Contains(strings.ToLower(a.Artist), q) {
			return true
		}
		for _, tag := range a.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	}
	return true
}

// Sort orders items in place, descending, newest first on ties.
func Sort(items []model.Artwork, by string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch by {
		case SortLikes:
			if a.Likes != b.Likes {
				return a.Likes > b.Likes
			}
		case SortViews:
			if a.Views != b.Views {
				return a.Views > b.Views
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (s *Service) List(ctx context.Context, f Filter) (ListResult, error) {
	items, err := store.Filter(ctx, s.artworks, f.Matches)
	if err != nil {
		return ListResult{}, err
	}
	Sort(items, f.Sort)
	return ListResult{Items: service.Paginate(items, f.Limit, f.Offset), Total: len(items)}, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Artwork, error) {
	return s.artworks.Get(ctx, id)
}

// View counts one view and returns the updated artwork.
func (s *Service) View(ctx context.Context, id string) (model.Artwork, error) {
	return s.artworks.Update(ctx, id, func(a *model.Artwork) error {
		a.Views++
		return nil
	})
}

func (s *Service) Create(ctx context.Context, actor service.Actor, in CreateInput) (model.Artwork, error) {
	if err := actor.Require(rbac.PermissionCreateArtwork); err != nil {
		return model.Artwork{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Artwork{}, service.Invalid("title is required")
	}
	if in.Price < 0 {
		return model.Artwork{}, service.Invalid("price must not be negative")
	}

	artist, err := s.users.Get(ctx, actor.UserID)
	if err != nil {
		return model.Artwork{}, err
	}

	now := s.now().UTC()
	a := model.Artwork{
		ID:           service.NewID(),
		Title:        title,
		Description:  in.Description,
		Artist:       artist.Name,
		ArtistID:     artist.ID,
		ArtistAvatar: artist.Avatar,
		Category:     in.Category,
		Tags:         normalizeTags(in.Tags),
		IsAI:         in.IsAI,
		Prompt:       in.Prompt,
		Price:        in.Price,
		ForSale:      in.ForSale,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if a.Category == "" {
		a.Category = "Other"
	}
	a.ImageURL, err = s.storeImage(ctx, a.ID, a.Title, in.ImageURL)
	if err != nil {
		return model.Artwork{}, err
	}

	if err := s.artworks.Put(ctx, a); err != nil {
		return model.Artwork{}, err
	}

	s.publish(ctx, event.ArtworkCreated, event.ArtworkCreatedPayload{
		ArtworkID:  a.ID,
		ArtistID:   a.ArtistID,
		Title:      a.Title,
		IsAI:       a.IsAI,
		OccurredAt: now,
	})
	s.logger.Info("Artwork created", zap.String("artwork_id", a.ID), zap.String("artist_id", a.ArtistID))
	return a, nil
}

func (s *Service) canEdit(actor service.Actor, a model.Artwork) bool {
	return actor.CanManage(a.ArtistID) || rbac.HasPermission(actor.Role, rbac.PermissionModerateArtwork)
}

func (s *Service) Update(ctx context.Context, actor service.Actor, id string, in UpdateInput) (model.Artwork, error) {
	current, err := s.artworks.Get(ctx, id)
	if err != nil {
		return model.Artwork{}, err
	}
	if !s.canEdit(actor, current) {
		return model.Artwork{}, service.Forbidden("only the artist can edit this artwork")
	}

	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if title == "" {
			return model.Artwork{}, service.Invalid("title is required")
		}
	}
	if in.Price != nil && *in.Price < 0 {
		return model.Artwork{}, service.Invalid("price must not be negative")
	}

	// uploads happen before the row is locked
	var imageURL string
	if in.ImageURL != nil {
		name := current.Title
		if title != "" {
			name = title
		}
		imageURL, err = s.storeImage(ctx, current.ID, name, *in.ImageURL)
		if err != nil {
			return model.Artwork{}, err
		}
	}

	return s.artworks.Update(ctx, id, func(a *model.Artwork) error {
		if !s.canEdit(actor, *a) {
			return service.Forbidden("only the artist can edit this artwork")
		}
		if in.Title != nil {
			a.Title = title
		}
		if in.Description != nil {
			a.Description = *in.Description
		}
		if in.Category != nil {
			a.Category = *in.Category
		}
		if in.Tags != nil {
			a.Tags = normalizeTags(*in.Tags)
		}
		if in.Price != nil {
			a.Price = *in.Price
		}
		if in.ForSale != nil {
			a.ForSale = *in.ForSale
		}
		if in.ImageURL != nil {
			a.ImageURL = imageURL
		}
		a.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, actor service.Actor, id string) error {
	a, err := s.artworks.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.canEdit(actor, a) {
		return service.Forbidden("only the artist can delete this artwork")
	}
	if err := s.artworks.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Artwork deleted", zap.String("artwork_id", id), zap.String("by", actor.UserID))
	return nil
}

// ToggleLike flips the artwork in the user's liked-set.
func (s *Service) ToggleLike(ctx context.Context, userID, artworkID string) (LikeResult, error) {
	if _, err := s.artworks.Get(ctx, artworkID); err != nil {
		return LikeResult{}, err
	}

	var liked bool
	u, err := s.users.Update(ctx, userID, func(u *model.User) error {
		liked = !u.HasLiked(artworkID)
		if liked {
			u.LikedArtworkIDs = append(u.LikedArtworkIDs, artworkID)
		} else {
			u.LikedArtworkIDs = slices.DeleteFunc(u.LikedArtworkIDs, func(id string) bool { return id == artworkID })
		}
		return nil
	})
	if err != nil {
		return LikeResult{}, err
	}

	a, err := s.artworks.Update(ctx, artworkID, func(a *model.Artwork) error {
		switch {
		case liked:
			a.Likes++
		case a.Likes > 0:
			a.Likes--
		}
		return nil
	})
	if err != nil {
		return LikeResult{}, err
	}

	if liked {
		s.publish(ctx, event.ArtworkLiked, event.ArtworkLikedPayload{
			ArtworkID:  a.ID,
			ArtistID:   a.ArtistID,
			Title:      a.Title,
			UserID:     u.ID,
			UserName:   u.Name,
			Likes:      a.Likes,
			OccurredAt: s.now().UTC(),
		})
	}
	return LikeResult{Liked: liked, Likes: a.Likes}, nil
}

// Liked returns the user's liked artworks in the order they were liked.
// IDs of deleted artworks are skipped.
func (s *Service) Liked(ctx context.Context, userID string) ([]model.Artwork, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := s.artworks.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Artwork, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}

	out := make([]model.Artwork, 0, len(u.LikedArtworkIDs))
	for _, id := range u.LikedArtworkIDs {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// storeImage keeps small images as given. Oversized data: URLs go to the
// blob store, or become a placeholder when there is none.
func (s *Service) storeImage(ctx context.Context, artworkID, title, imageURL string) (string, error) {
	if imageURL == "" {
		return service.PlaceholderURL(s.opts.PlaceholderBase, title, 800, 800), nil
	}
	if !strings.HasPrefix(imageURL, "data:") || len(imageURL) <= s.opts.MaxInlineImageBytes {
		return imageURL, nil
	}

	if s.blobs == nil {
		s.logger.Warn("Inline image too large, using placeholder",
			zap.String("artwork_id", artworkID),
			zap.Int("bytes", len(imageURL)),
		)
		return service.PlaceholderURL(s.opts.PlaceholderBase, title, 800, 800), nil
	}

	data, err := decodeDataURL(imageURL)
	if err != nil {
		return "", err
	}
	mt := mimetype.Detect(data)
	key := fmt.Sprintf("artworks/%s/image%s", artworkID, mt.Extension())
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mt.String()); err != nil {
		return "", fmt.Errorf("store artwork image: %w", err)
	}
	s.logger.Warn("Inline image too large, moved to blob store",
		zap.String("artwork_id", artworkID),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return s.blobs.URL(key), nil
}

func decodeDataURL(u string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok {
		return nil, service.Invalid("malformed data URL")
	}
	if !strings.HasSuffix(header, ";base64") {
		return []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, service.Invalid("malformed base64 image: %v", err)
	}
	return data, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, key string, payload any) {
	if err := s.publisher.PublishWithContext(ctx, key, payload); err != nil {
		s.logger.Error("Failed to publish event", zap.String("routing_key", key), zap.Error(err))
	}
}
