package app

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"xhsmarket/internal/fixtures"
	"xhsmarket/pkg/config"
)

func newApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AllowedOrigins = nil
	if mutate != nil {
		mutate(cfg)
	}
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func login(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": fixtures.DemoPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Token string `json:"token"`
	}
	decode(t, w, &res)
	return res.Token
}

func TestHealthAndReadiness(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()

	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics"} {
		w := do(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestGalleryIsPublic(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()

	w := do(t, h, http.MethodGet, "/api/artworks?sort=likes&limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		Total int `json:"total"`
	}
	decode(t, w, &res)
	assert.Equal(t, 6, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "art-2", res.Items[0].ID)
	assert.Equal(t, "art-1", res.Items[1].ID)

	w = do(t, h, http.MethodGet, "/api/artworks/art-404", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestAuthFlow(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()

	w := do(t, h, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "amy@xhs.example", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := login(t, h, "amy@xhs.example")
	w = do(t, h, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"u-amy"`)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = do(t, h, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{"name": "Kai", "email": "kai@xhs.example", "password": "secret1", "role": "creator"})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = do(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{"name": "Kai", "email": "kai@xhs.example", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPermissions(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()
	amy := login(t, h, "amy@xhs.example")

	w := do(t, h, http.MethodPost, "/api/artworks", amy, map[string]any{"title": "Nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodGet, "/api/admin/stats", amy, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := login(t, h, "admin@xhs.example")
	w = do(t, h, http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"artworks":6`)

	// the outbox only exists in postgres mode
	w = do(t, h, http.MethodPost, "/api/admin/outbox/replay?id=1", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLikeNotifiesArtistInProcess(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()
	amy := login(t, h, "amy@xhs.example")

	w := do(t, h, http.MethodPost, "/api/artworks/art-3/like", amy, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"liked":true,"likes":2}`, w.Body.String())

	zhou := login(t, h, "zhou@xhs.example")
	w = do(t, h, http.MethodGet, "/api/notifications?unread=true", zhou, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Amy Wang liked Glass Teapot")
}

func TestPurchaseAndWallet(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()
	amy := login(t, h, "amy@xhs.example")

	w := do(t, h, http.MethodPost, "/api/transactions/purchase", amy, map[string]string{"artworkId": "art-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/wallet", amy, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wallet struct {
		Balance int64 `json:"balance"`
	}
	decode(t, w, &wallet)
	assert.Equal(t, int64(18000), wallet.Balance)

	// art-4 costs 25000
	w = do(t, h, http.MethodPost, "/api/transactions/purchase", amy, map[string]string{"artworkId": "art-4"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = do(t, h, http.MethodPost, "/api/transactions/purchase", amy, map[string]string{"artworkId": "art-3"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAssetUploadServesFile(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()
	studio := login(t, h, "studio@xhs.example")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 400, 200))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "hero.png")
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("folder", "Campaigns"))
	require.NoError(t, mw.WriteField("tags", "hero, summer"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/assets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+studio)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var a struct {
		ID           string   `json:"id"`
		URL          string   `json:"url"`
		ThumbnailURL string   `json:"thumbnailUrl"`
		Type         string   `json:"type"`
		Tags         []string `json:"tags"`
	}
	decode(t, w, &a)
	assert.Equal(t, "image", a.Type)
	assert.Equal(t, []string{"hero", "summer"}, a.Tags)

	// originals are private: the public file route hides them, the
	// download route serves them to the owner only
	w = do(t, h, http.MethodGet, a.URL, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodGet, "/api/assets/"+a.ID+"/download", studio, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, img.Bytes(), w.Body.Bytes())

	// the thumbnail was rendered by the in-process consumer
	w = do(t, h, http.MethodGet, "/api/assets/"+a.ID, studio, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &a)
	require.NotEmpty(t, a.ThumbnailURL)
	w = do(t, h, http.MethodGet, a.ThumbnailURL, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	amy := login(t, h, "amy@xhs.example")
	w = do(t, h, http.MethodGet, "/api/assets", amy, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateAcceptsPutAndPatch(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()
	studio := login(t, h, "studio@xhs.example")

	w := do(t, h, http.MethodPut, "/api/projects/proj-1", studio, map[string]any{"title": "Tea packaging, round two"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p struct {
		Title     string `json:"title"`
		BudgetMax int64  `json:"budgetMax"`
	}
	decode(t, w, &p)
	assert.Equal(t, "Tea packaging, round two", p.Title)
	assert.Equal(t, int64(600000), p.BudgetMax)

	w = do(t, h, http.MethodPatch, "/api/projects/proj-1", studio, map[string]any{"budgetMax": 700000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &p)
	assert.Equal(t, "Tea packaging, round two", p.Title)
	assert.Equal(t, int64(700000), p.BudgetMax)

	amy := login(t, h, "amy@xhs.example")
	w = do(t, h, http.MethodPut, "/api/projects/proj-1", amy, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	h := newApp(t, func(cfg *config.Config) {
		cfg.RateLimit.Burst = 2
	}).HTTP.Handler()

	creds := map[string]string{"email": "amy@xhs.example", "password": "wrong"}
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/auth/login", "", creds).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/auth/login", "", creds).Code)

	w := do(t, h, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestGenerateImageFallsBackToPlaceholder(t *testing.T) {
	h := newApp(t, nil).HTTP.Handler()
	amy := login(t, h, "amy@xhs.example")

	w := do(t, h, http.MethodPost, "/api/ai/generate", amy, map[string]string{"prompt": "koi pond", "style": "ink", "aspectRatio": "16:9"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"placeholder"`)

	w = do(t, h, http.MethodPost, "/api/ai/generate", amy, map[string]string{"prompt": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
