package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filings-rag-be/internal/bootstrap"
	"filings-rag-be/internal/config"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/server"
	"filings-rag-be/internal/tracer"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 20 * time.Second
	cleanupInterval = time.Hour
	retentionPeriod = 30 * 24 * time.Hour
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer func() { _ = sysLogger.Sync() }()

	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled, sysLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, cfg, sysLogger)
	if err != nil {
		sysLogger.Error("main", "bootstrap failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer container.Close()

	// 3. Start Background Services
	if container.ConsumerService != nil {
		if err := container.ConsumerService.Consume(ctx); err != nil {
			sysLogger.Error("main", "snapshot consumer failed to start", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}

	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := container.Registry.Cleanup(gctx, retentionPeriod); err != nil {
					sysLogger.Warn("main", "periodic cleanup failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		sysLogger.Info("main", "shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sysLogger.Warn("main", "http shutdown incomplete", map[string]interface{}{"error": err.Error()})
		}
		saved := container.Registry.Flush(shutdownCtx)
		sysLogger.Info("main", "sessions flushed", map[string]interface{}{"saved": saved})
		return shutdownTracer(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		sysLogger.Error("main", "server stopped with error", map[string]interface{}{"error": err.Error()})
	}
}
