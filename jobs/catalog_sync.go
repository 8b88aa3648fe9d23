package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/shopfeed/shopfeed/internal/ingest"
	jobmetrics "github.com/shopfeed/shopfeed/internal/jobs"
)

// CatalogSyncJob drives merchant catalog synchronisation from the queue.
type CatalogSyncJob struct {
	Service *ingest.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogSyncJob initialises the catalog sync handlers.
func NewCatalogSyncJob(service *ingest.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSyncJob {
	return &CatalogSyncJob{Service: service, Logger: logger, Metrics: metrics}
}

// HandleCheck executes the periodic due-merchant scan.
func (j *CatalogSyncJob) HandleCheck(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("catalog sync: handler not configured")
	}
	var payload SyncCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskCatalogSyncCheck)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting catalog sync scan")

	summary, err := j.Service.CheckDue(ctx)
	if err != nil {
		resultErr = err
		logger.Error("sync scan failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("catalog sync scan finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("synced", summary.Synced),
		slog.Int("failed", summary.Failed),
		slog.Int("products", summary.Products),
	)
	return nil
}

// HandleMerchant syncs a single merchant on demand.
func (j *CatalogSyncJob) HandleMerchant(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("catalog sync: handler not configured")
	}
	var payload SyncMerchantPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MerchantID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskCatalogSyncMerchant)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int64("merchant_id", payload.MerchantID),
		slog.Bool("full_resync", payload.FullResync),
	)
	logger.Info("starting merchant sync")

	products, err := j.Service.SyncMerchant(ctx, payload.MerchantID, payload.FullResync)
	if err != nil {
		resultErr = err
		logger.Error("merchant sync failed", slog.Any("error", err))
		// The sync service records the failure in the sync log; a retry
		// through the queue would double-count the attempt.
		return asynq.SkipRetry
	}

	j.Metrics.AddProducts(payload.MerchantID, products)
	logger.Info("merchant sync finished", slog.Int("products", products))
	return nil
}

func (j *CatalogSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *CatalogSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
