package artwork

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xhsmarket/internal/blob"
	"xhsmarket/internal/event"
	"xhsmarket/internal/fixtures"
	"xhsmarket/internal/model"
	"xhsmarket/internal/service"
	"xhsmarket/internal/store"
	"xhsmarket/internal/store/kv"
	"xhsmarket/pkg/rbac"
)

type env struct {
	svc   *Service
	store *store.Store
	rec   *event.Recorder
	blobs *blob.Memory
}

func newEnv(t *testing.T, withBlobs bool) env {
	t.Helper()
	db, err := kv.OpenMemory(context.Background(), fixtures.MustLoad(), zap.NewNop())
	require.NoError(t, err)

	e := env{store: db.Store, rec: &event.Recorder{}}
	var bs blob.Store
	if withBlobs {
		e.blobs = blob.NewMemory("/api/files")
		bs = e.blobs
	}
	e.svc = NewService(db.Store, bs, e.rec, Options{
		MaxInlineImageBytes: 64,
		PlaceholderBase:     "https://picsum.photos/seed",
	}, zap.NewNop())
	return e
}

func ids(items []model.Artwork) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}

func TestListFilterAndSort(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"newest by default", Filter{}, []string{"art-6", "art-5", "art-2", "art-1", "art-3", "art-4"}},
		{"all category", Filter{Category: model.CategoryAll, Sort: SortViews}, []string{"art-4", "art-1", "art-2", "art-5", "art-3", "art-6"}},
		{"likes ties broken by newest", Filter{Sort: SortLikes}, []string{"art-2", "art-1", "art-5", "art-3", "art-4", "art-6"}},
		{"category", Filter{Category: "photography"}, []string{"art-6", "art-4"}},
		{"ai only", Filter{AI: AIFilterAI}, []string{"art-5", "art-2"}},
		{"human only", Filter{AI: AIFilterHuman, Category: "3D"}, []string{"art-3"}},
		{"search tags", Filter{Search: "LANDSCAPE"}, []string{"art-6", "art-4"}},
		{"search artist", Filter{Search: "zhou"}, []string{"art-5", "art-3"}},
		{"search title", Filter{Search: "koi"}, []string{"art-1"}},
		{"artist", Filter{ArtistID: "u-lin"}, []string{"art-2", "art-1"}},
		{"no match", Filter{Search: "zzz"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.svc.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res.Items))
			assert.Equal(t, len(tt.want), res.Total)
		})
	}
}

func TestListPaginatesAfterFiltering(t *testing.T) {
	e := newEnv(t, false)
	res, err := e.svc.List(context.Background(), Filter{Sort: SortViews, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"art-1", "art-2"}, ids(res.Items))
	assert.Equal(t, 6, res.Total)
}

func TestView(t *testing.T) {
	e := newEnv(t, false)
	a, err := e.svc.View(context.Background(), "art-6")
	require.NoError(t, err)
	assert.Equal(t, 411, a.Views)

	_, err = e.svc.View(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCreate(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	lin := service.Actor{UserID: "u-lin", Role: rbac.RoleCreator}

	a, err := e.svc.Create(ctx, lin, CreateInput{Title: "  Moon Gate ", Tags: []string{"moon", " moon", ""}, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, "Moon Gate", a.Title)
	assert.Equal(t, "Lin Qiao", a.Artist)
	assert.Equal(t, []string{"moon"}, a.Tags)
	assert.Equal(t, "https://picsum.photos/seed/moon-gate/800/800", a.ImageURL)
	assert.Equal(t, []string{event.ArtworkCreated}, e.rec.Keys())

	_, err = e.svc.Create(ctx, lin, CreateInput{Title: " "})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	amy := service.Actor{UserID: "u-amy", Role: rbac.RoleUser}
	_, err = e.svc.Create(ctx, amy, CreateInput{Title: "Nope"})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestOversizedInlineImage(t *testing.T) {
	ctx := context.Background()
	lin := service.Actor{UserID: "u-lin", Role: rbac.RoleCreator}
	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte(strings.Repeat("x", 200))...)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	t.Run("placeholder without blob store", func(t *testing.T) {
		e := newEnv(t, false)
		a, err := e.svc.Create(ctx, lin, CreateInput{Title: "Big One", ImageURL: dataURL})
		require.NoError(t, err)
		assert.Equal(t, "https://picsum.photos/seed/big-one/800/800", a.ImageURL)
	})

	t.Run("blob store", func(t *testing.T) {
		e := newEnv(t, true)
		a, err := e.svc.Create(ctx, lin, CreateInput{Title: "Big One", ImageURL: dataURL})
		require.NoError(t, err)
		assert.Equal(t, "/api/files/artworks/"+a.ID+"/image.png", a.ImageURL)

		rc, info, err := e.blobs.Get(ctx, "artworks/"+a.ID+"/image.png")
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, int64(len(png)), info.Size)
	})

	t.Run("small inline kept", func(t *testing.T) {
		e := newEnv(t, false)
		a, err := e.svc.Create(ctx, lin, CreateInput{Title: "Tiny", ImageURL: "data:image/png;base64,AAAA"})
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,AAAA", a.ImageURL)
	})
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	zhou := service.Actor{UserID: "u-zhou", Role: rbac.RoleCreator}
	lin := service.Actor{UserID: "u-lin", Role: rbac.RoleCreator}
	admin := service.Actor{UserID: "u-admin", Role: rbac.RoleAdmin}

	title := "Neon Koi II"
	_, err := e.svc.Update(ctx, zhou, "art-1", UpdateInput{Title: &title})
	assert.ErrorIs(t, err, service.ErrForbidden)

	a, err := e.svc.Update(ctx, lin, "art-1", UpdateInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, a.Title)

	price := int64(-1)
	_, err = e.svc.Update(ctx, lin, "art-1", UpdateInput{Price: &price})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	assert.ErrorIs(t, e.svc.Delete(ctx, zhou, "art-1"), service.ErrForbidden)
	require.NoError(t, e.svc.Delete(ctx, admin, "art-1"))
	_, err = e.svc.Get(ctx, "art-1")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestToggleLike(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	res, err := e.svc.ToggleLike(ctx, "u-amy", "art-1")
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: false, Likes: 1}, res)
	assert.Empty(t, e.rec.Keys())

	res, err = e.svc.ToggleLike(ctx, "u-amy", "art-1")
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: true, Likes: 2}, res)
	assert.Equal(t, []string{event.ArtworkLiked}, e.rec.Keys())

	liked, err := e.svc.Liked(ctx, "u-amy")
	require.NoError(t, err)
	assert.Equal(t, []string{"art-2", "art-4", "art-1"}, ids(liked))
}

func TestToggleLikeNeverNegative(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	u, err := e.store.Users.Get(ctx, "u-chen")
	require.NoError(t, err)
	u.LikedArtworkIDs = []string{"art-6"}
	require.NoError(t, e.store.Users.Put(ctx, u))

	res, err := e.svc.ToggleLike(ctx, "u-chen", "art-6")
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Equal(t, 0, res.Likes)
}

func TestLikedSkipsDeletedArtworks(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	require.NoError(t, e.store.Artworks.Delete(ctx, "art-2"))

	liked, err := e.svc.Liked(ctx, "u-amy")
	require.NoError(t, err)
	assert.Equal(t, []string{"art-1", "art-4"}, ids(liked))
}
