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
	"xhsmarket/pkg/config"
	"xhsmarket/pkg/logger"
	"xhsmarket/pkg/otel"
)

const serviceName = "xhsmarket-api"

var version = "dev"

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

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("App initialization failed", zap.Error(err))
	}
	defer a.Close()
	a.Start(ctx)

	srv := a.HTTP.Server(cfg.Server.Port)
	go func() {
		log.Info("Starting API server",
			zap.String("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Mode),
			zap.Bool("mq", cfg.MQ.URL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
