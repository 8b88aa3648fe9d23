package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopfeed/shopfeed/internal/catalog"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, u CatalogUpload) error
	Get(ctx context.Context, id uuid.UUID) (CatalogUpload, error)
	ListPending(ctx context.Context) ([]CatalogUpload, error)
	Decide(ctx context.Context, id uuid.UUID, status UploadStatus, notes string, decidedAt time.Time) error
}

// PayloadPort stores raw catalog payloads between upload and decision.
type PayloadPort interface {
	Put(ctx context.Context, key string, payload []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ReconcilerPort routes an approved catalog into the sync engine.
type ReconcilerPort interface {
	ReconcileUpload(ctx context.Context, merchantID int64, c *catalog.Catalog) (int, error)
}

// Service drives the upload review workflow.
type Service struct {
	repo       RepositoryPort
	payloads   PayloadPort
	reconciler ReconcilerPort
	validator  *catalog.Validator
	clock      func() time.Time
}

// NewService constructs a review service.
func NewService(repo RepositoryPort, payloads PayloadPort, reconciler ReconcilerPort) *Service {
	return &Service{
		repo:       repo,
		payloads:   payloads,
		reconciler: reconciler,
		validator:  catalog.NewValidator(),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates a manually uploaded catalog and parks it pending review.
// A structurally broken payload is rejected outright with the complete list
// of violations; no row is created for it.
func (s *Service) Submit(ctx context.Context, merchantID int64, raw []byte) (CatalogUpload, error) {
	c, err := catalog.Parse(raw)
	if err != nil {
		return CatalogUpload{}, err
	}
	if verr := s.validator.Validate(c); verr != nil {
		return CatalogUpload{}, verr
	}

	id := uuid.New()
	u := CatalogUpload{
		ID:         id,
		MerchantID: merchantID,
		Status:     UploadPending,
		PayloadKey: id.String(),
		CreatedAt:  s.clock(),
	}
	if err := s.payloads.Put(ctx, u.PayloadKey, raw); err != nil {
		return CatalogUpload{}, err
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return CatalogUpload{}, err
	}
	return u, nil
}

// Approve flips the upload to approved and hands its catalog to the
// reconciler. The payload is loaded and parsed before the terminal flip, so
// an expired or corrupt payload leaves the upload pending instead of
// approved-but-never-reconciled. The conditional flip then guarantees the
// catalog is handed over at most once even when two admins race.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, notes string) (int, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if u.Status != UploadPending {
		return 0, ErrAlreadyDecided
	}

	raw, err := s.payloads.Get(ctx, u.PayloadKey)
	if err != nil {
		return 0, err
	}
	c, err := catalog.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("review: stored payload no longer parses: %w", err)
	}

	if err := s.repo.Decide(ctx, id, UploadApproved, notes, s.clock()); err != nil {
		return 0, err
	}

	imported, err := s.reconciler.ReconcileUpload(ctx, u.MerchantID, c)
	if err != nil {
		return 0, err
	}
	_ = s.payloads.Delete(ctx, u.PayloadKey)
	return imported, nil
}

// Reject flips the upload to rejected. Beyond the terminal status and notes
// there are no data-model side effects.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, notes string) error {
	if err := s.repo.Decide(ctx, id, UploadRejected, notes, s.clock()); err != nil {
		return err
	}
	u, err := s.repo.Get(ctx, id)
	if err == nil {
		_ = s.payloads.Delete(ctx, u.PayloadKey)
	}
	return nil
}

// ListPending returns uploads awaiting a decision.
func (s *Service) ListPending(ctx context.Context) ([]CatalogUpload, error) {
	return s.repo.ListPending(ctx)
}
