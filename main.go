package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reveal-service/internal/config"
	"reveal-service/internal/logger"
	"reveal-service/internal/observability"
	"reveal-service/internal/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if !cfg.Debug.Enabled {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.Exporter, cfg.Tracing.OTLPEndpoint, serviceName, cfg.Env)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}
	log.Info("components ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("feed", cfg.Feed.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("auth", cfg.Auth.Mode),
		zap.String("amqp", rabbitmq.PublisherMode(a.publisher)),
	)
	a.background(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server forced to shutdown", zap.Error(err))
	}
	a.close(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracer shutdown failed", zap.Error(err))
	}
	log.Info("server exiting")
	return nil
}
