package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shopfeed/shopfeed/internal/app"
	"github.com/shopfeed/shopfeed/internal/ingest"
	"github.com/shopfeed/shopfeed/internal/merchant"
	"github.com/shopfeed/shopfeed/internal/platform/cache"
	"github.com/shopfeed/shopfeed/internal/platform/db"
	"github.com/shopfeed/shopfeed/internal/review"
	"github.com/shopfeed/shopfeed/internal/taxonomy"
	"github.com/shopfeed/shopfeed/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	merchantRepo := merchant.NewRepository(pool)
	merchantService := merchant.NewService(merchantRepo)
	syncTrigger := func(r *http.Request, merchantID int64, fullResync bool) error {
		_, err := jobClient.EnqueueSyncMerchant(r.Context(), jobs.SyncMerchantPayload{
			MerchantID: merchantID,
			FullResync: fullResync,
		})
		return err
	}
	merchantHandler := merchant.NewHandler(logger, merchantService, syncTrigger)

	taxonomyRepo := taxonomy.NewRepository(pool)
	resolver := taxonomy.NewResolver(taxonomyRepo)
	warmTaxonomy(ctx, logger, taxonomyRepo, resolver)

	ingestRepo := ingest.NewRepository(pool)
	reconciler := ingest.NewReconciler(resolver)
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Attempts:       cfg.FetchAttempts,
		BackoffBase:    cfg.FetchBackoffBase,
		AttemptTimeout: cfg.FetchAttemptTimeout,
		RatePerSecond:  cfg.FetchRatePerSecond,
	})
	syncService := ingest.NewService(merchantRepo, fetcher, ingestRepo, reconciler, logger, cfg.SyncWorkers)
	syncLogHandler := ingest.NewHandler(logger, ingestRepo)

	uploadTTL := time.Duration(cfg.UploadTTLDays) * 24 * time.Hour
	reviewRepo := review.NewRepository(pool)
	payloadStore := review.NewPayloadStore(redisClient, uploadTTL)
	reviewService := review.NewService(reviewRepo, payloadStore, syncService)
	reviewHandler := review.NewHandler(logger, reviewService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		MerchantHandler: merchantHandler,
		ReviewHandler:   reviewHandler,
		SyncLogHandler:  syncLogHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func warmTaxonomy(ctx context.Context, logger *slog.Logger, repo *taxonomy.Repository, resolver *taxonomy.Resolver) {
	for _, dim := range []taxonomy.Dimension{taxonomy.DimensionCategory, taxonomy.DimensionColor, taxonomy.DimensionSize} {
		rows, err := repo.Load(ctx, dim)
		if err != nil {
			logger.Warn("warm taxonomy cache", slog.String("dimension", string(dim)), slog.Any("error", err))
			continue
		}
		resolver.Warm(dim, rows)
	}
}
