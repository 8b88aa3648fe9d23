// Package taxonomy maintains the shared category, color and size reference
// tables and resolves raw catalog labels onto their stable identifiers.
package taxonomy

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Dimension names one shared reference table.
type Dimension string

const (
	DimensionCategory Dimension = "category"
	DimensionColor    Dimension = "color"
	DimensionSize     Dimension = "size"
)

// ErrUnknownDimension indicates a dimension outside the fixed set.
var ErrUnknownDimension = errors.New("taxonomy: unknown dimension")

// StorePort is the storage side of the resolver. Upsert must be atomic:
// concurrent upserts of the same normalized label converge on one row.
type StorePort interface {
	Upsert(ctx context.Context, dim Dimension, name string, key string) (int64, error)
	SetColorHex(ctx context.Context, id int64, hex string) error
}

// Resolver maps raw labels onto identifiers through a read-through cache.
// The cache is an optimization only; the store upsert is the source of truth.
// Safe for concurrent use by in-flight merchant reconciliations.
type Resolver struct {
	store StorePort
	mu    sync.RWMutex
	cache map[Dimension]map[string]int64
}

// NewResolver constructs a Resolver with an empty cache.
func NewResolver(store StorePort) *Resolver {
	return &Resolver{
		store: store,
		cache: map[Dimension]map[string]int64{
			DimensionCategory: {},
			DimensionColor:    {},
			DimensionSize:     {},
		},
	}
}

var fold = cases.Fold()

// Normalize case-folds and trims a raw label into its cache/storage key.
func Normalize(label string) string {
	return fold.String(strings.TrimSpace(label))
}

// Resolve returns the stable identifier for a raw label, creating the
// canonical row on first use. An empty label resolves to 0, meaning no value;
// absent size or color is a legitimate state for many catalog entries.
func (r *Resolver) Resolve(ctx context.Context, dim Dimension, rawLabel string) (int64, error) {
	key := Normalize(rawLabel)
	if key == "" {
		return 0, nil
	}

	r.mu.RLock()
	byKey, ok := r.cache[dim]
	if !ok {
		r.mu.RUnlock()
		return 0, ErrUnknownDimension
	}
	if id, hit := byKey[key]; hit {
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	id, err := r.store.Upsert(ctx, dim, strings.TrimSpace(rawLabel), key)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.cache[dim][key] = id
	r.mu.Unlock()
	return id, nil
}

// SetColorHex records the display hex code for a resolved color row. The hex
// is presentation data, never part of the matching key, so the cache is not
// involved.
func (r *Resolver) SetColorHex(ctx context.Context, id int64, hex string) error {
	return r.store.SetColorHex(ctx, id, hex)
}

// Warm seeds the cache for a dimension from already-known rows.
func (r *Resolver) Warm(dim Dimension, rows map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKey, ok := r.cache[dim]
	if !ok {
		return
	}
	for key, id := range rows {
		byKey[Normalize(key)] = id
	}
}
