// Package ingest implements the catalog synchronization and reconciliation
// engine: fetching merchant feeds, mapping them onto the canonical product
// model and recording every attempt in the sync ledger.
package ingest

import (
	"time"

	"github.com/shopfeed/shopfeed/internal/catalog"
	"github.com/shopfeed/shopfeed/internal/taxonomy"
)

// foldKey normalizes a matching-key component the same way taxonomy labels
// are normalized, so "Acme" and "ACME" land on one product row.
func foldKey(s string) string {
	return taxonomy.Normalize(s)
}

// Sync attempt statuses.
type SyncStatus string

const (
	SyncInProgress SyncStatus = "in_progress"
	SyncSuccess    SyncStatus = "success"
	SyncError      SyncStatus = "error"
)

// SyncLog is one row of the append-only sync ledger. A row is inserted when
// an attempt starts and updated exactly once to its terminal state.
type SyncLog struct {
	ID         int64
	MerchantID int64
	Status     SyncStatus
	Products   int
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Product is the canonical product record owned by one merchant. The
// matching key during reconciliation is (merchant, folded name, folded
// brand); it is applied identically on every ingestion path.
type Product struct {
	ID          int64
	MerchantID  int64
	Name        string
	Brand       string
	Description string
	URL         string
	ImageURL    string
	CategoryID  int64
}

// PriceRow is one size/color/price combination belonging to a product.
// A zero SizeID or ColorID means the variant carries no value for that
// dimension.
type PriceRow struct {
	ID            int64
	ProductID     int64
	SizeID        int64
	ColorID       int64
	Price         float64
	OriginalPrice float64
	Stock         catalog.StockStatus
}
