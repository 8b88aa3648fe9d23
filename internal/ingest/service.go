package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"github.com/shopfeed/shopfeed/internal/catalog"
	"github.com/shopfeed/shopfeed/internal/merchant"
	"github.com/shopfeed/shopfeed/internal/platform/retry"
)

// MerchantPort exposes the merchant registry operations the orchestrator
// needs.
type MerchantPort interface {
	Get(ctx context.Context, id int64) (merchant.Merchant, error)
	ListDue(ctx context.Context, now time.Time) ([]merchant.Merchant, error)
	SetLastSynced(ctx context.Context, id int64, at time.Time) error
}

// FetcherPort downloads a merchant's raw catalog.
type FetcherPort interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StorePort exposes transactional writes and the sync ledger.
type StorePort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertSyncLog(ctx context.Context, log SyncLog) (int64, error)
	FinishSyncLog(ctx context.Context, id int64, status SyncStatus, products int, message string, finishedAt time.Time) error
}

// Service orchestrates merchant synchronization: it decides who is due,
// drives fetch/validate/reconcile per merchant and guarantees every attempt
// ends up in the ledger regardless of outcome.
type Service struct {
	merchants  MerchantPort
	fetcher    FetcherPort
	store      StorePort
	reconciler *Reconciler
	validator  *catalog.Validator
	logger     *slog.Logger
	workers    int
	clock      func() time.Time
}

// NewService constructs the orchestrator. workers bounds how many merchants
// sync concurrently during a due scan; 1 keeps the scan sequential.
func NewService(merchants MerchantPort, fetcher FetcherPort, store StorePort, reconciler *Reconciler, logger *slog.Logger, workers int) *Service {
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		merchants:  merchants,
		fetcher:    fetcher,
		store:      store,
		reconciler: reconciler,
		validator:  catalog.NewValidator(),
		logger:     logger,
		workers:    workers,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// SyncMerchant runs one full sync attempt for a merchant. On success the
// ledger row is finished and the merchant's last-sync timestamp advances; on
// failure the row carries a cause-specific message and the timestamp is left
// alone so the merchant stays eligible for the next scheduled scan.
func (s *Service) SyncMerchant(ctx context.Context, merchantID int64, fullResync bool) (int, error) {
	m, err := s.merchants.Get(ctx, merchantID)
	if err != nil {
		return 0, err
	}

	logID, err := s.store.InsertSyncLog(ctx, SyncLog{
		MerchantID: m.ID,
		Status:     SyncInProgress,
		StartedAt:  s.clock(),
	})
	if err != nil {
		return 0, fmt.Errorf("open sync log: %w", err)
	}

	imported, err := s.run(ctx, m, fullResync)
	if err != nil {
		s.finish(ctx, logID, SyncError, 0, causeMessage(err))
		return 0, err
	}

	s.finish(ctx, logID, SyncSuccess, imported, "")
	if err := s.merchants.SetLastSynced(ctx, m.ID, s.clock()); err != nil {
		s.logger.Error("advance last sync", slog.Int64("merchant_id", m.ID), slog.Any("error", err))
	}
	return imported, nil
}

func (s *Service) run(ctx context.Context, m merchant.Merchant, fullResync bool) (int, error) {
	raw, err := s.fetcher.Fetch(ctx, m.CatalogURL)
	if err != nil {
		return 0, err
	}

	c, err := catalog.Parse(raw)
	if err != nil {
		return 0, err
	}
	if verr := s.validator.Validate(c); verr != nil {
		return 0, verr
	}

	return s.reconcile(ctx, m, c, fullResync)
}

// reconcile writes the whole merchant catalog in one transaction. A taxonomy
// unique-key conflict means a concurrent reconciliation won an insert race;
// the transaction is retried once against the now-existing row.
func (s *Service) reconcile(ctx context.Context, m merchant.Merchant, c *catalog.Catalog, fullResync bool) (int, error) {
	var imported int
	err := retry.Do(ctx, retry.Policy{MaxAttempts: 2, BaseDelay: 50 * time.Millisecond}, func(ctx context.Context) error {
		txErr := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			count, err := s.reconciler.Reconcile(ctx, tx, m, c, fullResync)
			if err != nil {
				return err
			}
			imported = count
			return nil
		})
		if txErr != nil && !isMappingConflict(txErr) {
			return retry.Permanent(txErr)
		}
		return txErr
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// ReconcileUpload routes an approved manual catalog through the same
// reconciler as scheduled syncs, in one transaction scoped to the upload.
// The merchant's last-sync timestamp is not advanced; the schedule still
// owns it.
func (s *Service) ReconcileUpload(ctx context.Context, merchantID int64, c *catalog.Catalog) (int, error) {
	m, err := s.merchants.Get(ctx, merchantID)
	if err != nil {
		return 0, err
	}
	if verr := s.validator.Validate(c); verr != nil {
		return 0, verr
	}

	logID, err := s.store.InsertSyncLog(ctx, SyncLog{
		MerchantID: m.ID,
		Status:     SyncInProgress,
		StartedAt:  s.clock(),
	})
	if err != nil {
		return 0, fmt.Errorf("open sync log: %w", err)
	}

	imported, err := s.reconcile(ctx, m, c, false)
	if err != nil {
		s.finish(ctx, logID, SyncError, 0, causeMessage(err))
		return 0, err
	}
	s.finish(ctx, logID, SyncSuccess, imported, "")
	return imported, nil
}

// ScanSummary reports the outcome of one due-merchant scan.
type ScanSummary struct {
	Scanned  int
	Synced   int
	Failed   int
	Products int
}

// CheckDue synchronizes every merchant whose cadence has elapsed. Merchants
// run in isolation; one failure never aborts the rest of the scan. The
// worker bound keeps taxonomy insert races and transaction scope small.
func (s *Service) CheckDue(ctx context.Context) (ScanSummary, error) {
	due, err := s.merchants.ListDue(ctx, s.clock())
	if err != nil {
		return ScanSummary{}, fmt.Errorf("list due merchants: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = ScanSummary{Scanned: len(due)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, m := range due {
		g.Go(func() error {
			imported, err := s.SyncMerchant(gctx, m.ID, false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				s.logger.Error("merchant sync failed",
					slog.Int64("merchant_id", m.ID),
					slog.String("merchant", m.Slug),
					slog.Any("error", err),
				)
				return nil
			}
			summary.Synced++
			summary.Products += imported
			return nil
		})
	}
	_ = g.Wait()
	return summary, nil
}

func (s *Service) finish(ctx context.Context, logID int64, status SyncStatus, products int, message string) {
	if err := s.store.FinishSyncLog(ctx, logID, status, products, message, s.clock()); err != nil {
		s.logger.Error("finish sync log", slog.Int64("log_id", logID), slog.Any("error", err))
	}
}

// causeMessage renders the ledger message for a terminal failure. Operators
// read these to decide whether to fix the feed, the merchant config or wait
// for the upstream to recover.
func causeMessage(err error) string {
	var (
		verr    *catalog.ValidationError
		httpErr *HTTPStatusError
	)
	switch {
	case errors.As(err, &verr):
		return "catalog failed validation: " + verr.Error()
	case errors.Is(err, catalog.ErrMalformed):
		return "merchant catalog payload is malformed"
	case errors.Is(err, ErrTimeout):
		return "merchant endpoint timed out"
	case errors.Is(err, ErrUnreachable):
		return "merchant endpoint unreachable"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("merchant endpoint returned HTTP %d", httpErr.Status)
	default:
		return "sync failed: " + err.Error()
	}
}

func isMappingConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
