package ingest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopfeed/shopfeed/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for products, price rows
// and the sync ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the write operations available inside one merchant's
// reconciliation transaction.
type TxRepository interface {
	UpsertProduct(ctx context.Context, p Product) (int64, error)
	DeleteProductPrices(ctx context.Context, productID int64) error
	InsertPrice(ctx context.Context, row PriceRow) error
	PurgeMerchant(ctx context.Context, merchantID int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction. Any error rolls the
// whole write set back; products are never left half-written.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// UpsertProduct inserts the product or refreshes the existing row matched by
// (merchant, folded name, folded brand), returning the surviving identifier.
func (t *txRepo) UpsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO products (merchant_id, name, name_key, brand, brand_key, description, url, image_url, category_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0), $10)
		 ON CONFLICT (merchant_id, name_key, brand_key) DO UPDATE SET
		   name        = EXCLUDED.name,
		   brand       = EXCLUDED.brand,
		   description = EXCLUDED.description,
		   url         = EXCLUDED.url,
		   image_url   = EXCLUDED.image_url,
		   category_id = EXCLUDED.category_id
		 RETURNING id`,
		p.MerchantID, p.Name, foldKey(p.Name), p.Brand, foldKey(p.Brand),
		p.Description, p.URL, p.ImageURL, p.CategoryID, time.Now()).Scan(&id)
	return id, err
}

// DeleteProductPrices supersedes all existing price rows for a product so the
// incoming set fully replaces them.
func (t *txRepo) DeleteProductPrices(ctx context.Context, productID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM prices WHERE product_id=$1`, productID)
	return err
}

// InsertPrice appends one price row.
func (t *txRepo) InsertPrice(ctx context.Context, row PriceRow) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO prices (product_id, size_id, color_id, price, original_price, stock_status, created_at)
		 VALUES ($1, NULLIF($2, 0), NULLIF($3, 0), $4, $5, $6, $7)`,
		row.ProductID, row.SizeID, row.ColorID, row.Price, row.OriginalPrice, row.Stock, time.Now())
	return err
}

// PurgeMerchant removes all of a merchant's products and their price rows,
// used by full resync before reimporting.
func (t *txRepo) PurgeMerchant(ctx context.Context, merchantID int64) error {
	if _, err := t.tx.Exec(ctx,
		`DELETE FROM prices WHERE product_id IN (SELECT id FROM products WHERE merchant_id=$1)`, merchantID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM products WHERE merchant_id=$1`, merchantID)
	return err
}

// InsertSyncLog opens a ledger row for a starting attempt. It runs outside
// the reconciliation transaction so a crash mid-sync still leaves a trace.
func (r *Repository) InsertSyncLog(ctx context.Context, log SyncLog) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sync_logs (merchant_id, status, products, message, started_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		log.MerchantID, log.Status, log.Products, log.Message, log.StartedAt).Scan(&id)
	return id, err
}

// FinishSyncLog writes the attempt's terminal state. Rows already terminal
// are left untouched, keeping the ledger append-only.
func (r *Repository) FinishSyncLog(ctx context.Context, id int64, status SyncStatus, products int, message string, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sync_logs SET status=$2, products=$3, message=$4, finished_at=$5 WHERE id=$1 AND status=$6`,
		id, status, products, message, finishedAt, SyncInProgress)
	return err
}

// ListSyncLogs returns the most recent attempts for one merchant.
func (r *Repository) ListSyncLogs(ctx context.Context, merchantID int64, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, merchant_id, status, products, message, started_at, finished_at
		 FROM sync_logs WHERE merchant_id=$1 ORDER BY started_at DESC LIMIT $2`, merchantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []SyncLog
	for rows.Next() {
		var log SyncLog
		if err := rows.Scan(&log.ID, &log.MerchantID, &log.Status, &log.Products, &log.Message, &log.StartedAt, &log.FinishedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// CountProducts returns the number of products a merchant currently owns.
func (r *Repository) CountProducts(ctx context.Context, merchantID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE merchant_id=$1`, merchantID).Scan(&count)
	return count, err
}
