// Package app assembles the marketplace from configuration: storage
// backend, blob store, event publisher, services and HTTP routes.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"xhsmarket/internal/blob"
	"xhsmarket/internal/event"
	"xhsmarket/internal/fixtures"
	"xhsmarket/internal/handler"
	"xhsmarket/internal/httpserver"
	"xhsmarket/internal/mqhandler"
	"xhsmarket/internal/service/admin"
	"xhsmarket/internal/service/ai"
	"xhsmarket/internal/service/artwork"
	"xhsmarket/internal/service/asset"
	"xhsmarket/internal/service/auth"
	"xhsmarket/internal/service/creator"
	"xhsmarket/internal/service/notification"
	"xhsmarket/internal/service/project"
	"xhsmarket/internal/service/transaction"
	"xhsmarket/internal/store"
	"xhsmarket/internal/store/kv"
	"xhsmarket/internal/store/postgres"
	"xhsmarket/pkg/config"
	"xhsmarket/pkg/db"
	"xhsmarket/pkg/mq"
	"xhsmarket/pkg/outbox"
	"xhsmarket/pkg/ratelimit"
	redisclient "xhsmarket/pkg/redis"
	"xhsmarket/pkg/util"
)

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Services struct {
	Auth          *auth.Service
	Artworks      *artwork.Service
	Projects      *project.Service
	Assets        *asset.Service
	Transactions  *transaction.Service
	AI            *ai.Service
	Notifications *notification.Service
	Creators      *creator.Service
	Admin         *admin.Service
}

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    *store.Store
	Blobs    blob.Store
	Events   *event.Router
	Services Services
	HTTP     *httpserver.Router
	// Redis is nil unless storage or the broker needs it.
	Redis *goredis.Client

	dispatcher *outbox.Dispatcher
	closers    []func()
}

// New builds the application. Nothing runs in the background until Start.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Events: event.NewRouter(logger)}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	fx, err := fixtures.Load()
	if err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}

	// 多进程消费时去重依赖 Redis
	var rdb *goredis.Client
	if cfg.Storage.Mode == StorageRedis || cfg.MQ.URL != "" {
		rdb, err = redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = rdb
		a.onClose(func() { _ = rdb.Close() })
	}

	// 存储
	var pgDB *postgres.DB
	switch cfg.Storage.Mode {
	case "", StorageMemory:
		mem := kv.Open(kv.NewMemoryKV(), fx, a.Logger)
		if err := mem.Seed(ctx, false); err != nil {
			return err
		}
		a.Store = mem.Store
	case StorageRedis:
		rkv := kv.Open(kv.NewRedisKV(rdb), fx, a.Logger)
		if cfg.Storage.Seed {
			if err := rkv.Seed(ctx, false); err != nil {
				return err
			}
		}
		a.Store = rkv.Store
	case StoragePostgres:
		pool, err := db.NewConnection(ctx, cfg.DB, a.Logger)
		if err != nil {
			return err
		}
		pgDB = postgres.Open(pool, fx, a.Logger)
		if err := pgDB.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		if cfg.Storage.Seed {
			if err := pgDB.Seed(ctx, false); err != nil {
				pool.Close()
				return err
			}
		}
		a.Store = pgDB.Store
	default:
		return fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
	a.onClose(func() { _ = a.Store.Close() })
	a.Logger.Info("Storage ready", zap.String("mode", cfg.Storage.Mode))

	// 对象存储
	if cfg.Blob.Endpoint != "" {
		m, err := blob.NewMinIO(ctx, cfg.Blob)
		if err != nil {
			return err
		}
		a.Blobs = m
	} else {
		a.Blobs = blob.NewMemory(cfg.Server.BasePath + "/files")
	}

	// 事件：有 MQ 时投递给 worker，否则进程内分发
	var broker event.Publisher
	var conns []httpserver.Connection
	switch {
	case cfg.MQ.DropEvents:
		a.Logger.Warn("Domain events are dropped")
		broker = event.Nop{Logger: a.Logger}
	case cfg.MQ.URL != "":
		pub, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			return fmt.Errorf("failed to init publisher: %w", err)
		}
		a.onClose(pub.Close)
		broker = pub
		conns = append(conns, pub)
	default:
		broker = event.NewLocal(a.Events, a.Logger)
	}

	var publisher event.Publisher = event.Metered{Next: broker}
	var replay admin.Outbox
	if pgDB != nil {
		repo := outbox.NewRepository(pgDB.Pool())
		publisher = event.Metered{Next: outbox.NewWriter(repo)}
		a.dispatcher = outbox.NewDispatcher(repo, broker, a.Logger).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		replay = outbox.NewReplayService(repo, broker, a.Logger)
	}

	var deduper notification.Deduper = util.NewMemoryDeduper(4096, time.Hour)
	if rdb != nil {
		deduper = util.NewDeduper(rdb, time.Hour, a.Logger)
	}

	var gen ai.Generator
	if cfg.AI.APIKey != "" {
		g, err := ai.NewGenAIGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			return err
		}
		gen = g
	}

	a.Services = Services{
		Auth: auth.NewService(a.Store, cfg.JWT.Secret, cfg.JWT.TTL, a.Logger),
		Artworks: artwork.NewService(a.Store, a.Blobs, publisher, artwork.Options{
			MaxInlineImageBytes: cfg.Market.MaxInlineImageBytes,
			PlaceholderBase:     cfg.AI.PlaceholderBase,
		}, a.Logger),
		Projects: project.NewService(a.Store, publisher, a.Logger),
		Assets:   asset.NewService(a.Store, a.Blobs, publisher, cfg.Market.MaxUploadBytes, a.Logger),
		Transactions: transaction.NewService(a.Store, publisher, transaction.Options{
			CommissionPercent: cfg.Market.CommissionPercent,
			PlatformAccountID: cfg.Market.PlatformAccountID,
			Currency:          cfg.Market.Currency,
		}, a.Logger),
		AI: ai.NewService(gen, publisher, ai.Options{
			Timeout:         cfg.AI.Timeout,
			PlaceholderBase: cfg.AI.PlaceholderBase,
			CacheSize:       cfg.AI.CacheSize,
			CacheTTL:        cfg.AI.CacheTTL,
		}, a.Logger),
		Notifications: notification.NewService(a.Store, deduper, a.Logger),
		Creators:      creator.NewService(a.Store, a.Logger),
		Admin:         admin.NewService(a.Store, replay, a.Logger),
	}

	// 进程内消费者，仅在没有 MQ 时生效
	a.Services.Notifications.Register(a.Events)
	mqhandler.NewThumbnailHandler(a.Services.Assets, a.Logger).Register(a.Events)

	a.HTTP = httpserver.NewRouter(httpserver.Handlers{
		Auth:          handler.NewAuthHandler(a.Services.Auth, a.Logger),
		Artworks:      handler.NewArtworkHandler(a.Services.Artworks, a.Logger),
		Projects:      handler.NewProjectHandler(a.Services.Projects, a.Logger),
		Assets:        handler.NewAssetHandler(a.Services.Assets, a.Blobs, a.Logger),
		Transactions:  handler.NewTransactionHandler(a.Services.Transactions, a.Logger),
		AI:            handler.NewAIHandler(a.Services.AI, a.Logger),
		Notifications: handler.NewNotificationHandler(a.Services.Notifications, a.Logger),
		Creators:      handler.NewCreatorHandler(a.Services.Creators, a.Logger),
		Admin:         handler.NewAdminHandler(a.Services.Admin, a.Logger),
	}, httpserver.Options{
		Authenticator:  a.Services.Auth,
		Ready:          a.Store.Ping,
		Connections:    conns,
		Limiter:        ratelimit.New(cfg.RateLimit.Interval, cfg.RateLimit.Burst, cfg.RateLimit.CacheSize, cfg.RateLimit.TTL),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustProxy:     cfg.Server.TrustProxy,
		Logger:         a.Logger,
	})
	return nil
}

// Start launches the outbox dispatcher and the session sweeper; both stop
// with ctx.
func (a *App) Start(ctx context.Context) {
	if a.dispatcher != nil {
		go a.dispatcher.Start(ctx)
	}
	go a.sweepSessions(ctx, 10*time.Minute)
}

func (a *App) sweepSessions(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Services.Auth.PurgeExpired(ctx)
			if err != nil {
				a.Logger.Warn("Session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.Logger.Info("Expired sessions purged", zap.Int("count", n))
			}
		}
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
