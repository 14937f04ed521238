package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/lakshayybhati/liftor-sub005/internal/infra"
	"github.com/lakshayybhati/liftor-sub005/internal/infra/credentials"
	"github.com/lakshayybhati/liftor-sub005/internal/notify"
	"github.com/lakshayybhati/liftor-sub005/internal/plangen"
	"github.com/lakshayybhati/liftor-sub005/internal/providers/genai"
	"github.com/lakshayybhati/liftor-sub005/internal/queue"
	"github.com/lakshayybhati/liftor-sub005/internal/storage"
	"github.com/lakshayybhati/liftor-sub005/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	q := queue.NewPG(runner, cfg.JobMaxRetries)
	if err := q.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema bootstrap failed")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	geminiAPIKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if geminiAPIKey == "" {
		credStore := credentials.NewStore(runner)
		keyFromStore, err := credStore.GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load gemini api key from store")
		} else {
			geminiAPIKey = keyFromStore
		}
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     geminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}
	if geminiAPIKey == "" {
		logger.Warn().Str("model", geminiClient.Model()).Msg("worker: gemini api key missing, using synthetic plan generation")
	}

	var sender notify.Sender = notify.LogSender{Logger: logger}
	if cfg.NotifyWebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.NotifyWebhookURL)
	}

	builder := plangen.NewPlanBuilder(geminiClient, fileStore, logger)
	w := worker.New(q, builder, sender, logger, worker.Config{
		WorkerID:          workerIdentity(),
		PollInterval:      cfg.WorkerPollInterval,
		Lease:             cfg.WorkerLease,
		KeepaliveInterval: cfg.WorkerKeepaliveInterval,
	})

	go w.RunSweeper(ctx, cfg.SweepInterval, cfg.RetentionWindow)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// workerIdentity combines the host name with a per-process suffix so two
// workers on one machine never share a lease identity.
func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
