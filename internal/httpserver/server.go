package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"xhsmarket/internal/handler"
	"xhsmarket/pkg/otel"
	"xhsmarket/pkg/ratelimit"
	"xhsmarket/pkg/rbac"
	"xhsmarket/pkg/trace"
)

// Handlers 是路由需要的全部 handler
type Handlers struct {
	Auth          *handler.AuthHandler
	Artworks      *handler.ArtworkHandler
	Projects      *handler.ProjectHandler
	Assets        *handler.AssetHandler
	Transactions  *handler.TransactionHandler
	AI            *handler.AIHandler
	Notifications *handler.NotificationHandler
	Creators      *handler.CreatorHandler
	Admin         *handler.AdminHandler
}

// Connection 是能报告连接状态的 MQ 客户端 (*mq.Publisher, *mq.Consumer)
type Connection interface {
	IsConnected() bool
}

// Options 路由配置
type Options struct {
	Authenticator  Authenticator
	Ready          func(ctx context.Context) error
	Connections    []Connection
	Limiter        *ratelimit.Limiter
	AllowedOrigins []string
	TrustProxy     bool
	Logger         *zap.Logger
}

type Router struct {
	Engine  *gin.Engine
	handler http.Handler
}

func NewRouter(h Handlers, opts Options) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	if !opts.TrustProxy {
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(trace.Middleware(), otel.GinMiddleware(), RequestLogger(opts.Logger))

	// Health endpoints (放在最前面)
	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/health", health)
	r.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", health)
	r.HEAD("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/readyz", readiness(opts.Ready, opts.Connections))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limit := func() gin.HandlerFunc {
		if opts.Limiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		// 每个路由独立计数
		return opts.Limiter.Middleware(func(c *gin.Context) string {
			return c.FullPath() + "|" + ratelimit.UserOrIP(c)
		})
	}

	api := r.Group("/api")

	// Public
	api.POST("/auth/register", limit(), h.Auth.Register)
	api.POST("/auth/login", limit(), h.Auth.Login)
	api.GET("/artworks", h.Artworks.List)
	api.GET("/artworks/:id", h.Artworks.Get)
	api.GET("/projects", h.Projects.List)
	api.GET("/projects/:id", h.Projects.Get)
	api.GET("/projects/:id/tasks", h.Projects.ListTasks)
	api.GET("/creators", h.Creators.List)
	api.GET("/creators/:id", h.Creators.Get)
	api.GET("/files/*key", h.Assets.File)

	// Protected
	auth := api.Group("/")
	auth.Use(AuthMiddleware(opts.Authenticator))
	{
		auth.POST("/auth/logout", h.Auth.Logout)
		auth.GET("/auth/me", h.Auth.Me)

		auth.GET("/me/liked", h.Artworks.Liked)
		auth.POST("/artworks", RequirePermission(rbac.PermissionCreateArtwork), h.Artworks.Create)
		auth.PATCH("/artworks/:id", h.Artworks.Update)
		auth.PUT("/artworks/:id", h.Artworks.Update)
		auth.DELETE("/artworks/:id", h.Artworks.Delete)
		auth.POST("/artworks/:id/like", RequirePermission(rbac.PermissionLikeArtwork), h.Artworks.ToggleLike)

		auth.POST("/projects", RequirePermission(rbac.PermissionCreateProject), h.Projects.Create)
		auth.PATCH("/projects/:id", h.Projects.Update)
		auth.PUT("/projects/:id", h.Projects.Update)
		auth.DELETE("/projects/:id", h.Projects.Delete)
		auth.POST("/projects/:id/apply", RequirePermission(rbac.PermissionApplyProject), h.Projects.Apply)
		auth.POST("/projects/:id/assign", h.Projects.Assign)
		auth.POST("/projects/:id/status", h.Projects.SetStatus)
		auth.POST("/projects/:id/tasks", h.Projects.CreateTask)
		auth.PATCH("/tasks/:id", h.Projects.UpdateTask)
		auth.PUT("/tasks/:id", h.Projects.UpdateTask)
		auth.DELETE("/tasks/:id", h.Projects.DeleteTask)

		assets := auth.Group("/assets", RequirePermission(rbac.PermissionManageAssets))
		assets.GET("", h.Assets.List)
		assets.GET("/folders", h.Assets.Folders)
		assets.POST("", h.Assets.Upload)
		assets.GET("/:id", h.Assets.Get)
		assets.PATCH("/:id", h.Assets.Update)
		assets.PUT("/:id", h.Assets.Update)
		assets.DELETE("/:id", h.Assets.Delete)
		assets.GET("/:id/download", h.Assets.Download)

		auth.GET("/transactions", h.Transactions.List)
		auth.POST("/transactions/purchase", RequirePermission(rbac.PermissionTrade), h.Transactions.Purchase)
		auth.POST("/transactions/deposit", RequirePermission(rbac.PermissionTrade), h.Transactions.Deposit)
		auth.POST("/transactions/withdraw", RequirePermission(rbac.PermissionTrade), h.Transactions.Withdraw)
		auth.GET("/invoices", h.Transactions.Invoices)
		auth.GET("/wallet", h.Transactions.Wallet)

		auth.POST("/ai/generate", RequirePermission(rbac.PermissionGenerateImage), limit(), h.AI.Generate)

		auth.GET("/notifications", h.Notifications.List)
		auth.POST("/notifications/read-all", h.Notifications.MarkAllRead)
		auth.POST("/notifications/:id/read", h.Notifications.MarkRead)

		admin := auth.Group("/admin")
		admin.GET("/stats", RequirePermission(rbac.PermissionAdminStats), h.Admin.Stats)
		admin.GET("/users", RequirePermission(rbac.PermissionAdminUsers), h.Admin.ListUsers)
		admin.POST("/users/:id/role", RequirePermission(rbac.PermissionAdminUsers), h.Admin.SetRole)
		admin.POST("/users/:id/status", RequirePermission(rbac.PermissionAdminUsers), h.Admin.SetStatus)
		admin.POST("/transactions/:id/refund", RequirePermission(rbac.PermissionRefund), h.Transactions.Refund)
		admin.GET("/outbox", RequirePermission(rbac.PermissionAdminOutbox), h.Admin.OutboxEvents)
		admin.POST("/outbox/replay", RequirePermission(rbac.PermissionAdminOutbox), h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", RequirePermission(rbac.PermissionAdminOutbox), h.Admin.ReplayFailedEvents)
	}

	var root http.Handler = r
	if len(opts.AllowedOrigins) > 0 {
		root = cors.New(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", trace.HeaderName},
			ExposedHeaders:   []string{trace.HeaderName, "Retry-After"},
			AllowCredentials: true,
		}).Handler(r)
	}

	return &Router{Engine: r, handler: root}
}

// Handler 返回带 CORS 包装的根 handler
func (r *Router) Handler() http.Handler {
	return r.handler
}

// Server 构造带超时的 http.Server
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
