package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newEngine(l *Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware(ClientIP))
	r.GET("/ai", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func call(r *gin.Engine, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ai", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBurstThenReject(t *testing.T) {
	r := newEngine(New(time.Hour, 2, 16, time.Minute))

	assert.Equal(t, http.StatusOK, call(r, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, call(r, "10.0.0.1:1001").Code)

	w := call(r, "10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestBucketsArePerClient(t *testing.T) {
	r := newEngine(New(time.Hour, 1, 16, time.Minute))

	assert.Equal(t, http.StatusOK, call(r, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(r, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, call(r, "10.0.0.2:1000").Code)
}

func TestUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.1.1.1:5"
	assert.Equal(t, "ip:10.1.1.1", UserOrIP(c))

	c.Set("user_id", "u-9")
	assert.Equal(t, "user:u-9", UserOrIP(c))
}
