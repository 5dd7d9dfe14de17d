// cmd/server — 沙箱 HTTP 服务主入口。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/agent-sandbox/go-sandbox/internal/config"
	"github.com/agent-sandbox/go-sandbox/internal/database"
	"github.com/agent-sandbox/go-sandbox/internal/scenario"
	"github.com/agent-sandbox/go-sandbox/internal/server"
	"github.com/agent-sandbox/go-sandbox/internal/store"
	"github.com/agent-sandbox/go-sandbox/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()
	cfg := config.Load()
	if err := logger.InitWithFile(cfg.LogDir); err != nil {
		logger.Init(cfg.Env)
		logger.Warn("log file unavailable, stdout only", logger.FieldError, err)
	}
	defer logger.ShutdownFileHandler()

	// Postgres 可选: 未配置时线程/转录仅存内存
	stores := &server.Stores{}
	if cfg.PostgresConnStr != "" {
		pool, err := database.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("database init failed", logger.Any(logger.FieldError, err))
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool, "./migrations"); err != nil {
			logger.Fatal("migration failed", logger.Any(logger.FieldError, err))
		}
		stores.Thread = store.NewThreadStore(pool)
		stores.Transcript = store.NewTranscriptStore(pool)
	} else {
		logger.Info("postgres not configured, running without persistence")
	}

	registry := scenario.DefaultRegistry(cfg.AgentEndpoint)
	srv := server.NewServer(cfg, registry, stores)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Engine(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("sandbox server starting", logger.FieldPort, cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ShutdownSec)*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server failed", logger.Any(logger.FieldError, err))
	}
}
