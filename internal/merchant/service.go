package merchant

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, m Merchant) (int64, error)
	Update(ctx context.Context, m Merchant) error
	Get(ctx context.Context, id int64) (Merchant, error)
	List(ctx context.Context) ([]Merchant, error)
	ListDue(ctx context.Context, now time.Time) ([]Merchant, error)
	SetLastSynced(ctx context.Context, id int64, at time.Time) error
}

// Service manages the merchant registry.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a merchant service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateInput describes a merchant registration payload.
type CreateInput struct {
	Name         string
	Slug         string
	CatalogURL   string
	SyncInterval time.Duration
}

// Create registers a new active merchant.
func (s *Service) Create(ctx context.Context, input CreateInput) (Merchant, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Merchant{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if err := validateURL(input.CatalogURL); err != nil {
		return Merchant{}, err
	}
	if input.SyncInterval <= 0 {
		input.SyncInterval = time.Hour
	}
	m := Merchant{
		Name:         strings.TrimSpace(input.Name),
		Slug:         slugify(defaultString(input.Slug, input.Name)),
		CatalogURL:   input.CatalogURL,
		SyncInterval: input.SyncInterval,
		Status:       StatusActive,
	}
	id, err := s.repo.Create(ctx, m)
	if err != nil {
		return Merchant{}, err
	}
	m.ID = id
	return m, nil
}

// UpdateInput describes editable merchant fields.
type UpdateInput struct {
	Name         string
	CatalogURL   string
	SyncInterval time.Duration
}

// Update edits an existing merchant in place.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Merchant, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Merchant{}, err
	}
	if input.Name != "" {
		m.Name = strings.TrimSpace(input.Name)
	}
	if input.CatalogURL != "" {
		if err := validateURL(input.CatalogURL); err != nil {
			return Merchant{}, err
		}
		m.CatalogURL = input.CatalogURL
	}
	if input.SyncInterval > 0 {
		m.SyncInterval = input.SyncInterval
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return Merchant{}, err
	}
	return m, nil
}

// Deactivate retires a merchant from the sync schedule. Its products remain,
// so no cascade is needed.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == StatusInactive {
		return nil
	}
	m.Status = StatusInactive
	return s.repo.Update(ctx, m)
}

// Get returns a merchant by ID.
func (s *Service) Get(ctx context.Context, id int64) (Merchant, error) {
	return s.repo.Get(ctx, id)
}

// List returns all merchants.
func (s *Service) List(ctx context.Context) ([]Merchant, error) {
	return s.repo.List(ctx)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: catalog url must be an absolute http(s) url", ErrValidation)
	}
	return nil
}

func slugify(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
