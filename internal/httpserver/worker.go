package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readiness 依次检查存储与 MQ 连接
func readiness(ready func(ctx context.Context) error, conns []Connection) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_not_ready", "error": err.Error()})
				return
			}
		}
		for _, conn := range conns {
			if conn != nil && !conn.IsConnected() {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// NewWorkerRouter worker 进程只暴露健康检查与 metrics
func NewWorkerRouter(ready func(ctx context.Context) error, conns ...Connection) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/healthz", health)
	r.HEAD("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/readyz", readiness(ready, conns))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
