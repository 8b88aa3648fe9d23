package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shopfeed/shopfeed/internal/app"
	"github.com/shopfeed/shopfeed/internal/ingest"
	jobmetrics "github.com/shopfeed/shopfeed/internal/jobs"
	"github.com/shopfeed/shopfeed/internal/merchant"
	"github.com/shopfeed/shopfeed/internal/platform/db"
	"github.com/shopfeed/shopfeed/internal/taxonomy"
	"github.com/shopfeed/shopfeed/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	merchantRepo := merchant.NewRepository(pool)
	taxonomyRepo := taxonomy.NewRepository(pool)
	resolver := taxonomy.NewResolver(taxonomyRepo)
	for _, dim := range []taxonomy.Dimension{taxonomy.DimensionCategory, taxonomy.DimensionColor, taxonomy.DimensionSize} {
		rows, err := taxonomyRepo.Load(ctx, dim)
		if err != nil {
			logger.Warn("warm taxonomy cache", slog.String("dimension", string(dim)), slog.Any("error", err))
			continue
		}
		resolver.Warm(dim, rows)
	}

	ingestRepo := ingest.NewRepository(pool)
	reconciler := ingest.NewReconciler(resolver)
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Attempts:       cfg.FetchAttempts,
		BackoffBase:    cfg.FetchBackoffBase,
		AttemptTimeout: cfg.FetchAttemptTimeout,
		RatePerSecond:  cfg.FetchRatePerSecond,
	})
	syncService := ingest.NewService(merchantRepo, fetcher, ingestRepo, reconciler, logger, cfg.SyncWorkers)

	metrics := jobmetrics.NewMetrics(nil)
	syncJob := jobs.NewCatalogSyncJob(syncService, logger, metrics)

	checkTask, err := jobs.NewSyncCheckTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sync check task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogSyncCheck, Handler: syncJob.HandleCheck},
			{Type: jobs.TaskCatalogSyncMerchant, Handler: syncJob.HandleMerchant},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SyncCronSpec, Task: checkTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
