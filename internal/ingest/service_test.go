package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopfeed/shopfeed/internal/catalog"
	"github.com/shopfeed/shopfeed/internal/merchant"
	"github.com/shopfeed/shopfeed/internal/taxonomy"
)

// --- in-memory fakes shared by the reconciler and orchestrator tests ---

type memProduct struct {
	id      int64
	product Product
}

type memState struct {
	products      map[string]*memProduct // key merchantID|nameKey|brandKey
	prices        map[int64][]PriceRow
	nextProductID int64
}

func (s *memState) clone() *memState {
	c := &memState{
		products:      make(map[string]*memProduct, len(s.products)),
		prices:        make(map[int64][]PriceRow, len(s.prices)),
		nextProductID: s.nextProductID,
	}
	for k, v := range s.products {
		rec := *v
		c.products[k] = &rec
	}
	for k, v := range s.prices {
		c.prices[k] = append([]PriceRow(nil), v...)
	}
	return c
}

// memStore implements StorePort with commit/rollback semantics: the callback
// runs against a copy that only replaces the live state on success.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	logs      []SyncLog
	nextLogID int64
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		products: make(map[string]*memProduct),
		prices:   make(map[int64][]PriceRow),
	}}
}

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, &memTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memStore) InsertSyncLog(ctx context.Context, log SyncLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	log.ID = s.nextLogID
	s.logs = append(s.logs, log)
	return log.ID, nil
}

func (s *memStore) FinishSyncLog(ctx context.Context, id int64, status SyncStatus, products int, message string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.logs {
		if s.logs[i].ID == id && s.logs[i].Status == SyncInProgress {
			s.logs[i].Status = status
			s.logs[i].Products = products
			s.logs[i].Message = message
			s.logs[i].FinishedAt = &finishedAt
		}
	}
	return nil
}

func (s *memStore) productCount(merchantID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.state.products {
		if rec.product.MerchantID == merchantID {
			count++
		}
	}
	return count
}

func (s *memStore) priceRows(merchantID int64) []PriceRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []PriceRow
	for _, rec := range s.state.products {
		if rec.product.MerchantID == merchantID {
			rows = append(rows, s.state.prices[rec.id]...)
		}
	}
	return rows
}

func (s *memStore) lastLog() SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) == 0 {
		return SyncLog{}
	}
	return s.logs[len(s.logs)-1]
}

type memTx struct {
	state *memState
}

func productKey(p Product) string {
	return fmt.Sprintf("%d|%s|%s", p.MerchantID, foldKey(p.Name), foldKey(p.Brand))
}

func (t *memTx) UpsertProduct(ctx context.Context, p Product) (int64, error) {
	key := productKey(p)
	if rec, ok := t.state.products[key]; ok {
		p.ID = rec.id
		rec.product = p
		return rec.id, nil
	}
	t.state.nextProductID++
	p.ID = t.state.nextProductID
	t.state.products[key] = &memProduct{id: p.ID, product: p}
	return p.ID, nil
}

func (t *memTx) DeleteProductPrices(ctx context.Context, productID int64) error {
	delete(t.state.prices, productID)
	return nil
}

func (t *memTx) InsertPrice(ctx context.Context, row PriceRow) error {
	t.state.prices[row.ProductID] = append(t.state.prices[row.ProductID], row)
	return nil
}

func (t *memTx) PurgeMerchant(ctx context.Context, merchantID int64) error {
	for key, rec := range t.state.products {
		if rec.product.MerchantID == merchantID {
			delete(t.state.prices, rec.id)
			delete(t.state.products, key)
		}
	}
	return nil
}

// memMerchants implements MerchantPort.
type memMerchants struct {
	mu        sync.Mutex
	merchants map[int64]merchant.Merchant
}

func newMemMerchants(ms ...merchant.Merchant) *memMerchants {
	out := &memMerchants{merchants: make(map[int64]merchant.Merchant)}
	for _, m := range ms {
		out.merchants[m.ID] = m
	}
	return out
}

func (r *memMerchants) Get(ctx context.Context, id int64) (merchant.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return merchant.Merchant{}, merchant.ErrNotFound
	}
	return m, nil
}

func (r *memMerchants) ListDue(ctx context.Context, now time.Time) ([]merchant.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []merchant.Merchant
	for _, m := range r.merchants {
		if m.Due(now) {
			due = append(due, m)
		}
	}
	return due, nil
}

func (r *memMerchants) SetLastSynced(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return merchant.ErrNotFound
	}
	m.LastSyncedAt = &at
	r.merchants[id] = m
	return nil
}

func (r *memMerchants) lastSynced(id int64) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.merchants[id].LastSyncedAt
}

// stubFetcher replays canned responses per URL.
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	failures  map[string]error
	calls     map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		responses: make(map[string][]byte),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	return f.responses[url], nil
}

// memTaxonomyStore backs a real taxonomy.Resolver in tests.
type memTaxonomyStore struct {
	mu     sync.Mutex
	rows   map[taxonomy.Dimension]map[string]int64
	hex    map[int64]string
	nextID int64
}

func newMemTaxonomyStore() *memTaxonomyStore {
	return &memTaxonomyStore{rows: map[taxonomy.Dimension]map[string]int64{
		taxonomy.DimensionCategory: {},
		taxonomy.DimensionColor:    {},
		taxonomy.DimensionSize:     {},
	}}
}

func (s *memTaxonomyStore) Upsert(ctx context.Context, dim taxonomy.Dimension, name string, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.rows[dim][key]; ok {
		return id, nil
	}
	s.nextID++
	s.rows[dim][key] = s.nextID
	return s.nextID, nil
}

func (s *memTaxonomyStore) SetColorHex(ctx context.Context, id int64, hex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hex == nil {
		s.hex = make(map[int64]string)
	}
	s.hex[id] = hex
	return nil
}

func testMerchant(id int64) merchant.Merchant {
	return merchant.Merchant{
		ID:           id,
		Name:         fmt.Sprintf("Shop %d", id),
		Slug:         fmt.Sprintf("shop-%d", id),
		CatalogURL:   fmt.Sprintf("https://shop-%d.example.com/catalog.json", id),
		SyncInterval: time.Hour,
		Status:       merchant.StatusActive,
	}
}

func testCatalogJSON(productNames ...string) []byte {
	products := ""
	for i, name := range productNames {
		if i > 0 {
			products += ","
		}
		products += fmt.Sprintf(
			`{"name":%q,"brand":"Acme","category":"Shirts","price":19.90,"url":"https://shop.example.com/p/%d",
			  "variants":[{"size":"M","color":"Black","price":19.90},{"size":"L","color":"Black","price":21.90,"stock_status":"sold out"}]}`,
			name, i)
	}
	return []byte(`{"store_info":{"name":"Shop","website_url":"https://shop.example.com"},"products":[` + products + `]}`)
}

func newTestService(merchants *memMerchants, fetcher *stubFetcher, store *memStore, workers int) *Service {
	reconciler := NewReconciler(taxonomy.NewResolver(newMemTaxonomyStore()))
	return NewService(merchants, fetcher, store, reconciler, discardLogger(), workers)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- orchestrator tests ---

func TestSyncMerchantSuccess(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	fetcher := newStubFetcher()
	fetcher.responses[m.CatalogURL] = testCatalogJSON("Oxford Shirt", "Linen Shirt")
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)

	imported, err := svc.SyncMerchant(context.Background(), m.ID, false)
	require.NoError(t, err)
	require.Equal(t, 2, imported)

	log := store.lastLog()
	require.Equal(t, SyncSuccess, log.Status)
	require.Equal(t, 2, log.Products)
	require.NotNil(t, log.FinishedAt)
	require.NotNil(t, merchants.lastSynced(m.ID))
	require.Equal(t, 2, store.productCount(m.ID))
	require.Len(t, store.priceRows(m.ID), 4)
}

func TestSyncMerchantIsIdempotent(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	fetcher := newStubFetcher()
	fetcher.responses[m.CatalogURL] = testCatalogJSON("Oxford Shirt")
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)
	ctx := context.Background()

	first, err := svc.SyncMerchant(ctx, m.ID, false)
	require.NoError(t, err)
	second, err := svc.SyncMerchant(ctx, m.ID, false)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, store.productCount(m.ID))
	// Price rows are superseded, not appended.
	require.Len(t, store.priceRows(m.ID), 2)
}

func TestSyncMerchantFetchFailure(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	fetcher := newStubFetcher()
	fetcher.failures[m.CatalogURL] = fmt.Errorf("%w: connection refused", ErrUnreachable)
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)

	_, err := svc.SyncMerchant(context.Background(), m.ID, false)
	require.ErrorIs(t, err, ErrUnreachable)

	log := store.lastLog()
	require.Equal(t, SyncError, log.Status)
	require.Equal(t, "merchant endpoint unreachable", log.Message)
	require.Nil(t, merchants.lastSynced(m.ID), "failed sync must not advance last-sync")
}

func TestSyncMerchantValidationFailure(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	fetcher := newStubFetcher()
	fetcher.responses[m.CatalogURL] = []byte(`{"store_info":{"name":"Shop"},"products":[{"name":"A","url":"https://s.example.com/a"}]}`)
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)

	_, err := svc.SyncMerchant(context.Background(), m.ID, false)
	var verr *catalog.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 2)

	log := store.lastLog()
	require.Equal(t, SyncError, log.Status)
	require.Contains(t, log.Message, "catalog failed validation")
}

func TestFullResyncReplacesEverything(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	fetcher := newStubFetcher()
	fetcher.responses[m.CatalogURL] = testCatalogJSON("Old One", "Old Two")
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)
	ctx := context.Background()

	_, err := svc.SyncMerchant(ctx, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, 2, store.productCount(m.ID))

	fetcher.mu.Lock()
	fetcher.responses[m.CatalogURL] = testCatalogJSON("New Only")
	fetcher.mu.Unlock()

	imported, err := svc.SyncMerchant(ctx, m.ID, true)
	require.NoError(t, err)
	require.Equal(t, 1, imported)
	require.Equal(t, 1, store.productCount(m.ID))
}

func TestFullResyncWithEmptyCatalogLeavesZeroProducts(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	fetcher := newStubFetcher()
	fetcher.responses[m.CatalogURL] = testCatalogJSON("Old One")
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)
	ctx := context.Background()

	_, err := svc.SyncMerchant(ctx, m.ID, false)
	require.NoError(t, err)

	fetcher.mu.Lock()
	fetcher.responses[m.CatalogURL] = []byte(`{"store_info":{"name":"Shop","website_url":"https://shop.example.com"},"products":[]}`)
	fetcher.mu.Unlock()

	imported, err := svc.SyncMerchant(ctx, m.ID, true)
	require.NoError(t, err)
	require.Zero(t, imported)
	require.Zero(t, store.productCount(m.ID))
}

type failingResolver struct {
	inner *taxonomy.Resolver
	dim   taxonomy.Dimension
}

func (f *failingResolver) Resolve(ctx context.Context, dim taxonomy.Dimension, rawLabel string) (int64, error) {
	if dim == f.dim && rawLabel != "" {
		return 0, fmt.Errorf("taxonomy store down")
	}
	return f.inner.Resolve(ctx, dim, rawLabel)
}

func (f *failingResolver) SetColorHex(ctx context.Context, id int64, hex string) error {
	return f.inner.SetColorHex(ctx, id, hex)
}

func TestReconcileFailureRollsBackWholeMerchant(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	fetcher := newStubFetcher()
	fetcher.responses[m.CatalogURL] = testCatalogJSON("Keeper")
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)
	ctx := context.Background()

	_, err := svc.SyncMerchant(ctx, m.ID, false)
	require.NoError(t, err)

	// A full resync whose import blows up must leave the old products in
	// place, not a purged merchant with no products and no explanation.
	fetcher.mu.Lock()
	fetcher.responses[m.CatalogURL] = testCatalogJSON("New One")
	fetcher.mu.Unlock()

	broken := NewService(merchants, fetcher, store,
		NewReconciler(&failingResolver{inner: taxonomy.NewResolver(newMemTaxonomyStore()), dim: taxonomy.DimensionSize}),
		discardLogger(), 1)

	_, err = broken.SyncMerchant(ctx, m.ID, true)
	require.Error(t, err)

	require.Equal(t, 1, store.productCount(m.ID))
	log := store.lastLog()
	require.Equal(t, SyncError, log.Status)
	require.NotEmpty(t, log.Message)
}

func TestCheckDueIsolatesFailures(t *testing.T) {
	healthy := testMerchant(1)
	broken := testMerchant(2)
	merchants := newMemMerchants(healthy, broken)
	fetcher := newStubFetcher()
	fetcher.responses[healthy.CatalogURL] = testCatalogJSON("Shirt")
	fetcher.failures[broken.CatalogURL] = fmt.Errorf("%w: connection refused", ErrUnreachable)
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)

	summary, err := svc.CheckDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Scanned)
	require.Equal(t, 1, summary.Synced)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Products)

	require.NotNil(t, merchants.lastSynced(healthy.ID))
	require.Nil(t, merchants.lastSynced(broken.ID))
}

func TestCheckDueSkipsNotDueMerchants(t *testing.T) {
	fresh := testMerchant(1)
	now := time.Now()
	fresh.LastSyncedAt = &now
	merchants := newMemMerchants(fresh)
	fetcher := newStubFetcher()
	store := newMemStore()
	svc := newTestService(merchants, fetcher, store, 1)

	summary, err := svc.CheckDue(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Scanned)
	require.Empty(t, fetcher.calls)
}

func TestReconcileUploadDoesNotAdvanceLastSync(t *testing.T) {
	m := testMerchant(1)
	merchants := newMemMerchants(m)
	store := newMemStore()
	svc := newTestService(merchants, newStubFetcher(), store, 1)

	c, err := catalog.Parse(testCatalogJSON("Uploaded Shirt"))
	require.NoError(t, err)

	imported, err := svc.ReconcileUpload(context.Background(), m.ID, c)
	require.NoError(t, err)
	require.Equal(t, 1, imported)
	require.Nil(t, merchants.lastSynced(m.ID))

	log := store.lastLog()
	require.Equal(t, SyncSuccess, log.Status)
}
