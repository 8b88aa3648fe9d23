package merchant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	merchants map[int64]Merchant
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{merchants: make(map[int64]Merchant)}
}

func (r *memoryRepo) Create(ctx context.Context, m Merchant) (int64, error) {
	for _, existing := range r.merchants {
		if existing.Slug == m.Slug {
			return 0, ErrDuplicateSlug
		}
	}
	r.nextID++
	m.ID = r.nextID
	m.CreatedAt = time.Now()
	r.merchants[m.ID] = m
	return m.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, m Merchant) error {
	if _, ok := r.merchants[m.ID]; !ok {
		return ErrNotFound
	}
	r.merchants[m.ID] = m
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Merchant, error) {
	m, ok := r.merchants[id]
	if !ok {
		return Merchant{}, ErrNotFound
	}
	return m, nil
}

func (r *memoryRepo) List(ctx context.Context) ([]Merchant, error) {
	out := make([]Merchant, 0, len(r.merchants))
	for _, m := range r.merchants {
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) ListDue(ctx context.Context, now time.Time) ([]Merchant, error) {
	var due []Merchant
	for _, m := range r.merchants {
		if m.Due(now) {
			due = append(due, m)
		}
	}
	return due, nil
}

func (r *memoryRepo) SetLastSynced(ctx context.Context, id int64, at time.Time) error {
	m, ok := r.merchants[id]
	if !ok {
		return ErrNotFound
	}
	m.LastSyncedAt = &at
	r.merchants[id] = m
	return nil
}

func TestCreateMerchant(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateInput{Name: "North Shore Outfitters", CatalogURL: "https://shop.example.com/catalog.json"})
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	require.Equal(t, "north-shore-outfitters", m.Slug)
	require.Equal(t, StatusActive, m.Status)
	require.Equal(t, time.Hour, m.SyncInterval)
}

func TestCreateMerchantRejectsBadURL(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.Create(context.Background(), CreateInput{Name: "Bad", CatalogURL: "not-a-url"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{Name: "", CatalogURL: "https://ok.example.com"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateInput{Name: "Shop", CatalogURL: "https://shop.example.com/feed"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, m.ID))
	require.NoError(t, svc.Deactivate(ctx, m.ID))

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInactive, got.Status)
}

func TestMerchantDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Minute)
	stale := now.Add(-2 * time.Hour)

	cases := []struct {
		name string
		m    Merchant
		want bool
	}{
		{"never synced", Merchant{Status: StatusActive, SyncInterval: time.Hour}, true},
		{"recently synced", Merchant{Status: StatusActive, SyncInterval: time.Hour, LastSyncedAt: &recent}, false},
		{"cadence elapsed", Merchant{Status: StatusActive, SyncInterval: time.Hour, LastSyncedAt: &stale}, true},
		{"inactive", Merchant{Status: StatusInactive, SyncInterval: time.Hour}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.m.Due(now))
		})
	}
}
