// Package merchant maintains the registry of catalog sources.
package merchant

import (
	"errors"
	"time"
)

// Lifecycle statuses.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Merchant is a registered catalog source.
type Merchant struct {
	ID           int64
	Name         string
	Slug         string
	CatalogURL   string
	SyncInterval time.Duration
	LastSyncedAt *time.Time
	Status       Status
	CreatedAt    time.Time
}

// Due reports whether the merchant is eligible for a scheduled sync at now.
// Merchants that never synced are always due.
func (m Merchant) Due(now time.Time) bool {
	if m.Status != StatusActive {
		return false
	}
	if m.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*m.LastSyncedAt) >= m.SyncInterval
}

var (
	// ErrNotFound indicates the merchant does not exist.
	ErrNotFound = errors.New("merchant: not found")
	// ErrValidation indicates invalid merchant input.
	ErrValidation = errors.New("merchant: validation failed")
	// ErrDuplicateSlug indicates the slug is already taken.
	ErrDuplicateSlug = errors.New("merchant: slug already exists")
)
