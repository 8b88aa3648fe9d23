package taxonomy

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memoryStore mimics the atomic insert-if-absent the repository performs.
type memoryStore struct {
	mu      sync.Mutex
	rows    map[Dimension]map[string]int64
	hex     map[int64]string
	inserts int
	nextID  int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[Dimension]map[string]int64{
		DimensionCategory: {},
		DimensionColor:    {},
		DimensionSize:     {},
	}}
}

func (s *memoryStore) Upsert(ctx context.Context, dim Dimension, name string, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.rows[dim][key]; ok {
		return id, nil
	}
	s.nextID++
	s.rows[dim][key] = s.nextID
	s.inserts++
	return s.nextID, nil
}

func (s *memoryStore) SetColorHex(ctx context.Context, id int64, hex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hex == nil {
		s.hex = make(map[int64]string)
	}
	s.hex[id] = hex
	return nil
}

func TestResolveCreatesOnFirstUse(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store)
	ctx := context.Background()

	id, err := r.Resolve(ctx, DimensionColor, "Black")
	require.NoError(t, err)
	require.NotZero(t, id)

	again, err := r.Resolve(ctx, DimensionColor, "black")
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, 1, store.inserts)
}

func TestResolveEmptyLabelMeansNoValue(t *testing.T) {
	r := NewResolver(newMemoryStore())

	for _, label := range []string{"", "   ", "\t"} {
		id, err := r.Resolve(context.Background(), DimensionSize, label)
		require.NoError(t, err)
		require.Zero(t, id)
	}
}

func TestResolveUnknownDimension(t *testing.T) {
	r := NewResolver(newMemoryStore())
	_, err := r.Resolve(context.Background(), Dimension("material"), "wool")
	require.ErrorIs(t, err, ErrUnknownDimension)
}

func TestResolveConcurrentSameLabelConverges(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store)
	ctx := context.Background()

	const callers = 32
	ids := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(ctx, DimensionCategory, "Dresses")
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	require.Equal(t, 1, store.inserts)
}

func TestWarmSeedsCache(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store)
	r.Warm(DimensionSize, map[string]int64{"XL": 7})

	id, err := r.Resolve(context.Background(), DimensionSize, "xl")
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.Zero(t, store.inserts)
}

func TestSetColorHexRecordsSwatch(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store)

	id, err := r.Resolve(context.Background(), DimensionColor, "Black")
	require.NoError(t, err)
	require.NoError(t, r.SetColorHex(context.Background(), id, "#000000"))
	require.Equal(t, "#000000", store.hex[id])
}

func TestNormalizeFoldsCase(t *testing.T) {
	require.Equal(t, Normalize("  Black "), Normalize("BLACK"))
	require.Equal(t, Normalize("Größe"), Normalize("GRÖSSE"))
}
