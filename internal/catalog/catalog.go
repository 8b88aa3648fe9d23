// Package catalog defines the inbound merchant catalog payload and its
// structural validation.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Stock availability vocabulary, normalized across merchant catalogs.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockOutOfStock StockStatus = "out_of_stock"
	StockComingSoon StockStatus = "coming_soon"
)

// ErrMalformed indicates the raw payload is not a JSON catalog at all.
var ErrMalformed = errors.New("catalog: malformed payload")

// Catalog is the minimal inbound shape every merchant feed must produce.
type Catalog struct {
	StoreInfo StoreInfo `json:"store_info"`
	Products  []Product `json:"products"`
}

// StoreInfo describes the merchant as it names itself.
type StoreInfo struct {
	Name       string `json:"name" validate:"required"`
	WebsiteURL string `json:"website_url" validate:"required,url"`
}

// Product is one raw catalog entry before reconciliation.
type Product struct {
	Name        string    `json:"name"`
	Price       *float64  `json:"price"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Brand       string    `json:"brand"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	Variants    []Variant `json:"variants"`
}

// Variant is one size/color/price combination for a product.
type Variant struct {
	Size          string   `json:"size"`
	Color         string   `json:"color"`
	ColorHex      string   `json:"color_hex"`
	Price         *float64 `json:"price"`
	OriginalPrice *float64 `json:"original_price"`
	StockStatus   string   `json:"stock_status"`
}

// Parse decodes a raw catalog payload. Any JSON defect is reported as
// ErrMalformed so the fetcher can classify the failure.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return &c, nil
}

// EffectiveVariants returns the product's variants, or a single implicit
// variant built from the top-level price when the feed carries none.
func (p Product) EffectiveVariants() []Variant {
	if len(p.Variants) > 0 {
		return p.Variants
	}
	return []Variant{{Price: p.Price}}
}

// ParseStockStatus maps a merchant's stock vocabulary onto the canonical
// enum. Unknown or empty labels default to in stock.
func ParseStockStatus(raw string) StockStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "out_of_stock", "out of stock", "sold out", "soldout", "unavailable":
		return StockOutOfStock
	case "coming_soon", "coming soon", "preorder", "pre-order":
		return StockComingSoon
	default:
		return StockInStock
	}
}
