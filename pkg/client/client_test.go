package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xhsmarket/internal/app"
	"xhsmarket/internal/fixtures"
	"xhsmarket/pkg/circuitbreaker"
	"xhsmarket/pkg/config"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	a, err := app.New(context.Background(), config.Default(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a.HTTP.Handler()
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Mode: ModeMock})
	assert.Error(t, err)

	_, err = New(Options{Mode: "carrier-pigeon"})
	assert.Error(t, err)

	_, err = New(Options{Mode: ModeRemote, BaseURL: "localhost"})
	assert.Error(t, err)

	c, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, ModeRemote, c.mode)
	assert.Equal(t, "localhost:3001", c.baseURL.Host)
}

func TestMockModeRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := New(Options{Mode: ModeMock, Handler: newHandler(t)})
	require.NoError(t, err)

	page, err := c.ListArtworks(ctx, ArtworkQuery{Sort: "likes", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "art-2", page.Items[0].ID)

	_, err = c.ToggleLike(ctx, "art-3")
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	s, err := c.Login(ctx, "amy@xhs.example", fixtures.DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, "u-amy", s.User.ID)
	assert.Equal(t, s.Token, c.Token())

	like, err := c.ToggleLike(ctx, "art-3")
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: true, Likes: 2}, like)

	art, err := c.GetArtwork(ctx, "art-3")
	require.NoError(t, err)
	assert.Equal(t, "Glass Teapot", art.Title)

	_, err = c.CreateArtwork(ctx, NewArtwork{Title: "Not mine to post"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)

	img, err := c.GenerateImage(ctx, ImageRequest{Prompt: "koi at dusk", AspectRatio: "1:1"})
	require.NoError(t, err)
	assert.Equal(t, "placeholder", img.Source)
	assert.NotEmpty(t, img.URL)

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.Token())
}

func TestMockModeCreatesProject(t *testing.T) {
	ctx := context.Background()
	c, err := New(Options{Mode: ModeMock, Handler: newHandler(t)})
	require.NoError(t, err)

	_, err = c.Login(ctx, "studio@xhs.example", fixtures.DemoPassword)
	require.NoError(t, err)

	p, err := c.CreateProject(ctx, NewProject{
		Title:     "Mooncake box art",
		Category:  "Illustration",
		BudgetMin: 100000,
		BudgetMax: 300000,
		Deadline:  time.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "u-studio", p.ClientID)

	page, err := c.ListProjects(ctx, ProjectQuery{ClientID: "u-studio"})
	require.NoError(t, err)
	var ids []string
	for _, item := range page.Items {
		ids = append(ids, item.ID)
	}
	assert.Contains(t, ids, p.ID)
}

func TestMockModeLatencyHonoursContext(t *testing.T) {
	c, err := New(Options{Mode: ModeMock, Handler: http.NotFoundHandler(), Latency: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = c.Do(ctx, http.MethodGet, "/artworks", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoteMode(t *testing.T) {
	srv := httptest.NewServer(newHandler(t))
	defer srv.Close()

	c, err := New(Options{Mode: ModeRemote, BaseURL: srv.URL + "/api", HTTPClient: srv.Client()})
	require.NoError(t, err)

	ctx := context.Background()
	page, err := c.ListProjects(ctx, ProjectQuery{})
	require.NoError(t, err)
	assert.NotZero(t, page.Total)

	_, err = c.GetArtwork(ctx, "art-404")
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestRemoteModeOpensBreakerOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream down"}`))
	}))
	defer srv.Close()

	c, err := New(Options{Mode: ModeRemote, BaseURL: srv.URL + "/api", HTTPClient: srv.Client()})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := c.Do(ctx, http.MethodGet, "/health", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.Equal(t, "upstream down", apiErr.Message)
	}

	err = c.Do(ctx, http.MethodGet, "/health", nil, nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, int32(3), hits.Load())
}

func TestResolveJoinsBasePath(t *testing.T) {
	c, err := New(Options{BaseURL: "http://example.test/api/"})
	require.NoError(t, err)

	u, err := c.resolve("/artworks?sort=likes")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/api/artworks?sort=likes", u.String())
}
