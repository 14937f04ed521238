package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lakshayybhati/liftor-sub005/internal/http/handlers"
	"github.com/lakshayybhati/liftor-sub005/internal/http/httpapi"
	"github.com/lakshayybhati/liftor-sub005/internal/infra"
	"github.com/lakshayybhati/liftor-sub005/internal/queue"
	"github.com/lakshayybhati/liftor-sub005/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	q := queue.NewPG(runner, cfg.JobMaxRetries)
	if err := q.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: schema bootstrap failed")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	app := handlers.NewApp(q, fileStore, logger, cfg.ResetGracePeriod)
	router := httpapi.NewRouter(app, httpapi.Options{
		RateLimitPerMin:    cfg.RateLimitPerMin,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}
