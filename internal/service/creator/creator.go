// Package creator builds the creator directory from creator accounts and
// the artworks they have published.
package creator

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"xhsmarket/internal/model"
	"xhsmarket/internal/store"
	"xhsmarket/pkg/rbac"
)

const (
	SortFollowers = "followers"
	SortLikes     = "likes"
	SortArtworks  = "artworks"
)

type Filter struct {
	Search    string
	Specialty string
	Sort      string
}

// Profile is a creator card plus their portfolio.
type Profile struct {
	model.Creator
	Following int             `json:"following"`
	Artworks  []model.Artwork `json:"artworks"`
}

type Service struct {
	users    store.Table[model.User]
	artworks store.Table[model.Artwork]
	logger   *zap.Logger
}

func NewService(st *store.Store, logger *zap.Logger) *Service {
	return &Service{users: st.Users, artworks: st.Artworks, logger: logger}
}

func (f Filter) matches(c model.Creator) bool {
	if f.Specialty != "" && f.Specialty != model.CategoryAll && !strings.EqualFold(c.Specialty, f.Specialty) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(c.Name), q) &&
			!strings.Contains(strings.ToLower(c.Bio), q) &&
			!strings.Contains(strings.ToLower(c.Specialty), q) {
			return false
		}
	}
	return true
}

// List returns creator cards; the default order is by followers.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Creator, error) {
	users, err := store.Filter(ctx, s.users, func(u model.User) bool {
		return u.Role == rbac.RoleCreator && u.Status != model.UserStatusBanned
	})
	if err != nil {
		return nil, err
	}
	byArtist, err := s.portfolios(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Creator, 0, len(users))
	for _, u := range users {
		c := card(u, byArtist[u.ID])
		if f.matches(c) {
			out = append(out, c)
		}
	}
	sortCreators(out, f.Sort)
	return out, nil
}

// Get returns a creator's card and artworks, newest first.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if u.Role != rbac.RoleCreator {
		return Profile{}, store.NotFound("creator", id)
	}
	byArtist, err := s.portfolios(ctx)
	if err != nil {
		return Profile{}, err
	}
	works := byArtist[id]
	sort.SliceStable(works, func(i, j int) bool { return works[i].CreatedAt.After(works[j].CreatedAt) })
	if works == nil {
		works = []model.Artwork{}
	}
	return Profile{Creator: card(u, works), Following: u.Following, Artworks: works}, nil
}

func (s *Service) portfolios(ctx context.Context) (map[string][]model.Artwork, error) {
	artworks, err := s.artworks.List(ctx)
	if err != nil {
		return nil, err
	}
	byArtist := make(map[string][]model.Artwork)
	for _, a := range artworks {
		byArtist[a.ArtistID] = append(byArtist[a.ArtistID], a)
	}
	return byArtist, nil
}

func card(u model.User, works []model.Artwork) model.Creator {
	c := model.Creator{
		ID:           u.ID,
		Name:         u.Name,
		Avatar:       u.Avatar,
		Bio:          u.Bio,
		Specialty:    u.Specialty,
		Verified:     u.Verified,
		Followers:    u.Followers,
		ArtworkCount: len(works),
	}
	for _, a := range works {
		c.TotalLikes += a.Likes
		c.TotalViews += a.Views
	}
	return c
}

func sortCreators(items []model.Creator, by string) {
	key := func(c model.Creator) int {
		switch by {
		case SortLikes:
			return c.TotalLikes
		case SortArtworks:
			return c.ArtworkCount
		default:
			return c.Followers
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		ki, kj := key(items[i]), key(items[j])
		if ki != kj {
			return ki > kj
		}
		return items[i].Name < items[j].Name
	})
}
