package merchant

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const merchantColumns = `id, name, slug, catalog_url, sync_interval_seconds, last_synced_at, status, created_at`

func scanMerchant(row pgx.Row) (Merchant, error) {
	var (
		m       Merchant
		seconds int64
	)
	err := row.Scan(&m.ID, &m.Name, &m.Slug, &m.CatalogURL, &seconds, &m.LastSyncedAt, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Merchant{}, ErrNotFound
		}
		return Merchant{}, err
	}
	m.SyncInterval = time.Duration(seconds) * time.Second
	return m, nil
}

// Create inserts a merchant and returns its identifier.
func (r *Repository) Create(ctx context.Context, m Merchant) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO merchants (name, slug, catalog_url, sync_interval_seconds, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		m.Name, m.Slug, m.CatalogURL, int64(m.SyncInterval/time.Second), m.Status, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateSlug
		}
		return 0, err
	}
	return id, nil
}

// Update rewrites the merchant's editable fields.
func (r *Repository) Update(ctx context.Context, m Merchant) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE merchants SET name=$2, catalog_url=$3, sync_interval_seconds=$4, status=$5 WHERE id=$1`,
		m.ID, m.Name, m.CatalogURL, int64(m.SyncInterval/time.Second), m.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a single merchant by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Merchant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id=$1`, id)
	return scanMerchant(row)
}

// List returns all merchants ordered by name.
func (r *Repository) List(ctx context.Context) ([]Merchant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+merchantColumns+` FROM merchants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var merchants []Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// ListDue returns active merchants whose sync cadence has elapsed at now,
// including merchants that never synced.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]Merchant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+merchantColumns+` FROM merchants
		 WHERE status=$1
		   AND (last_synced_at IS NULL OR last_synced_at + make_interval(secs => sync_interval_seconds) <= $2)
		 ORDER BY id`, StatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var merchants []Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// SetLastSynced advances the merchant's last successful sync timestamp.
func (r *Repository) SetLastSynced(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE merchants SET last_synced_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
