package ingest

import (
	"context"
	"fmt"

	"github.com/shopfeed/shopfeed/internal/catalog"
	"github.com/shopfeed/shopfeed/internal/merchant"
	"github.com/shopfeed/shopfeed/internal/taxonomy"
)

// TaxonomyPort resolves raw dimension labels onto stable identifiers and
// records color display data.
type TaxonomyPort interface {
	Resolve(ctx context.Context, dim taxonomy.Dimension, rawLabel string) (int64, error)
	SetColorHex(ctx context.Context, id int64, hex string) error
}

// Reconciler maps a validated catalog onto canonical product and price rows.
// It owns no transaction; the caller supplies one so the whole merchant write
// set commits or rolls back together.
type Reconciler struct {
	taxonomy TaxonomyPort
}

// NewReconciler constructs a Reconciler around an injected taxonomy resolver.
func NewReconciler(resolver TaxonomyPort) *Reconciler {
	return &Reconciler{taxonomy: resolver}
}

// Reconcile upserts every catalog item for the merchant and replaces each
// touched product's price rows with the incoming set. With fullResync the
// merchant's entire product set is purged first, so an empty catalog leaves
// the merchant with zero products rather than stale leftovers. Returns the
// number of products processed.
func (r *Reconciler) Reconcile(ctx context.Context, tx TxRepository, m merchant.Merchant, c *catalog.Catalog, fullResync bool) (int, error) {
	if fullResync {
		if err := tx.PurgeMerchant(ctx, m.ID); err != nil {
			return 0, fmt.Errorf("purge merchant %d: %w", m.ID, err)
		}
	}

	processed := 0
	for i, item := range c.Products {
		if err := r.reconcileItem(ctx, tx, m, item); err != nil {
			return 0, fmt.Errorf("product %d (%q): %w", i, item.Name, err)
		}
		processed++
	}
	return processed, nil
}

func (r *Reconciler) reconcileItem(ctx context.Context, tx TxRepository, m merchant.Merchant, item catalog.Product) error {
	categoryID, err := r.taxonomy.Resolve(ctx, taxonomy.DimensionCategory, item.Category)
	if err != nil {
		return fmt.Errorf("resolve category: %w", err)
	}

	productID, err := tx.UpsertProduct(ctx, Product{
		MerchantID:  m.ID,
		Name:        item.Name,
		Brand:       item.Brand,
		Description: item.Description,
		URL:         item.URL,
		ImageURL:    item.ImageURL,
		CategoryID:  categoryID,
	})
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	// Supersede instead of append: without this, every sync would stack a
	// duplicate price row per unchanged variant.
	if err := tx.DeleteProductPrices(ctx, productID); err != nil {
		return fmt.Errorf("supersede prices: %w", err)
	}

	for _, variant := range item.EffectiveVariants() {
		sizeID, err := r.taxonomy.Resolve(ctx, taxonomy.DimensionSize, variant.Size)
		if err != nil {
			return fmt.Errorf("resolve size: %w", err)
		}
		colorID, err := r.taxonomy.Resolve(ctx, taxonomy.DimensionColor, variant.Color)
		if err != nil {
			return fmt.Errorf("resolve color: %w", err)
		}
		if colorID != 0 && variant.ColorHex != "" {
			if err := r.taxonomy.SetColorHex(ctx, colorID, variant.ColorHex); err != nil {
				return fmt.Errorf("record color hex: %w", err)
			}
		}

		row := PriceRow{
			ProductID: productID,
			SizeID:    sizeID,
			ColorID:   colorID,
			Stock:     catalog.ParseStockStatus(variant.StockStatus),
		}
		switch {
		case variant.Price != nil:
			row.Price = *variant.Price
		case item.Price != nil:
			row.Price = *item.Price
		}
		if variant.OriginalPrice != nil {
			row.OriginalPrice = *variant.OriginalPrice
		} else {
			row.OriginalPrice = row.Price
		}

		if err := tx.InsertPrice(ctx, row); err != nil {
			return fmt.Errorf("insert price: %w", err)
		}
	}
	return nil
}
