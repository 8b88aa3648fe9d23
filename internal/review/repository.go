package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for upload rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uploadColumns = `id, merchant_id, status, payload_key, notes, created_at, decided_at`

func scanUpload(row pgx.Row) (CatalogUpload, error) {
	var u CatalogUpload
	err := row.Scan(&u.ID, &u.MerchantID, &u.Status, &u.PayloadKey, &u.Notes, &u.CreatedAt, &u.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CatalogUpload{}, ErrNotFound
		}
		return CatalogUpload{}, err
	}
	return u, nil
}

// Insert persists a new pending upload.
func (r *Repository) Insert(ctx context.Context, u CatalogUpload) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO catalog_uploads (id, merchant_id, status, payload_key, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.MerchantID, u.Status, u.PayloadKey, u.Notes, u.CreatedAt)
	return err
}

// Get returns one upload by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (CatalogUpload, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM catalog_uploads WHERE id=$1`, id)
	return scanUpload(row)
}

// ListPending returns uploads still awaiting a decision, oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]CatalogUpload, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+uploadColumns+` FROM catalog_uploads WHERE status=$1 ORDER BY created_at`, UploadPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var uploads []CatalogUpload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// Decide flips a pending upload to its terminal status. The conditional
// update makes the flip single-shot even under concurrent admins: the loser
// sees zero affected rows and gets ErrAlreadyDecided.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, status UploadStatus, notes string, decidedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE catalog_uploads SET status=$2, notes=$3, decided_at=$4 WHERE id=$1 AND status=$5`,
		id, status, notes, decidedAt, UploadPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyDecided
	}
	return nil
}
