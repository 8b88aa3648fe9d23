package taxonomy

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for taxonomy rows.
// Each table carries a unique index on the folded name key, so the upsert is
// a single atomic round trip with no read-then-write race window.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func tableFor(dim Dimension) (string, error) {
	switch dim {
	case DimensionCategory:
		return "categories", nil
	case DimensionColor:
		return "colors", nil
	case DimensionSize:
		return "sizes", nil
	default:
		return "", ErrUnknownDimension
	}
}

// Upsert inserts the canonical row if absent and returns its identifier
// either way. The no-op DO UPDATE makes RETURNING yield the surviving row
// under concurrent inserts of the same key.
func (r *Repository) Upsert(ctx context.Context, dim Dimension, name string, key string) (int64, error) {
	table, err := tableFor(dim)
	if err != nil {
		return 0, err
	}
	var id int64
	query := fmt.Sprintf(
		`INSERT INTO %s (name, name_key) VALUES ($1, $2)
		 ON CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key
		 RETURNING id`, table)
	if err := r.pool.QueryRow(ctx, query, name, key).Scan(&id); err != nil {
		return 0, fmt.Errorf("taxonomy: upsert %s %q: %w", dim, key, err)
	}
	return id, nil
}

// Load returns all rows of a dimension keyed by folded name, used to seed
// the resolver cache at process start.
func (r *Repository) Load(ctx context.Context, dim Dimension) (map[string]int64, error) {
	table, err := tableFor(dim)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, name_key FROM %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			id  int64
			key string
		)
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		out[key] = id
	}
	return out, rows.Err()
}

// SetColorHex records the display hex code for a color row.
func (r *Repository) SetColorHex(ctx context.Context, id int64, hex string) error {
	_, err := r.pool.Exec(ctx, `UPDATE colors SET hex=$2 WHERE id=$1`, id, hex)
	return err
}
