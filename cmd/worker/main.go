package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"xhsmarket/internal/app"
	"xhsmarket/internal/event"
	"xhsmarket/internal/httpserver"
	"xhsmarket/internal/mqhandler"
	"xhsmarket/pkg/config"
	"xhsmarket/pkg/logger"
	"xhsmarket/pkg/mq"
	"xhsmarket/pkg/otel"
	"xhsmarket/pkg/util"
)

const maxRetries = 3

func main() {
	if err := config.LoadDotEnv(""); err != nil {
		panic(err)
	}
	cfg, err := config.Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	log.Info("Starting worker service...")
	if cfg.MQ.URL == "" {
		log.Fatal("MQ_URL is required for the worker")
	}

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "xhsmarket-worker",
		ServiceVersion: "dev",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 与 API 共用同一套存储与服务
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("App initialization failed", zap.Error(err))
	}
	defer a.Close()

	retryCounter := util.NewRetryCounter(a.Redis, time.Hour)

	notiHandler := mqhandler.NewNotificationHandler(a.Services.Notifications, log)
	thumbHandler := mqhandler.NewThumbnailHandler(a.Services.Assets, log)

	// -------------------------
	// Notification Consumer
	// -------------------------
	log.Info("Init consumer: " + mqhandler.NotificationQueue)
	consumerNoti, err := mq.NewConsumer(cfg.MQ.URL, mqhandler.NotificationQueue, notiHandler.RoutingKeys(), log)
	if err != nil {
		log.Fatal("Notification consumer init failed", zap.Error(err))
	}
	consumerNoti.SetHandler(notiHandler.Handle)
	consumerNoti.WithRetryCounter(retryCounter, maxRetries)
	defer consumerNoti.Close()

	// -------------------------
	// Thumbnail Consumer
	// -------------------------
	log.Info("Init consumer: " + mqhandler.ThumbnailQueue)
	consumerThumb, err := mq.NewConsumer(cfg.MQ.URL, mqhandler.ThumbnailQueue, []string{event.AssetUploaded}, log)
	if err != nil {
		log.Fatal("Thumbnail consumer init failed", zap.Error(err))
	}
	consumerThumb.SetHandler(thumbHandler.Handle)
	consumerThumb.WithRetryCounter(retryCounter, maxRetries)
	defer consumerThumb.Close()

	errs := make(chan error, 3)
	for _, c := range []*mq.Consumer{consumerNoti, consumerThumb} {
		go func(c *mq.Consumer) {
			errs <- c.StartConsuming(ctx)
		}(c)
	}

	// -------------------------
	// Health endpoints
	// -------------------------
	health := &http.Server{
		Addr:              cfg.MQ.HealthPort,
		Handler:           httpserver.NewWorkerRouter(a.Store.Ping, consumerNoti, consumerThumb),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Worker health server listening", zap.String("addr", health.Addr))
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = health.Shutdown(shutdownCtx)
	}()

	log.Info("Worker running")
	select {
	case <-ctx.Done():
		log.Info("Shutting down worker")
	case err := <-errs:
		if err != nil {
			log.Error("Worker component crashed", zap.Error(err))
		}
	}
}
