package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"property-tracker/models"
	"property-tracker/services"
	"property-tracker/storage"
	"property-tracker/utils"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Save(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

type stubFetcher struct {
	mu    sync.Mutex
	raw   []models.RawListing
	err   error
	delay time.Duration
	block chan struct{}
	calls atomic.Int32
}

func (f *stubFetcher) Source() models.Source { return models.SourceLBS }

func (f *stubFetcher) Fetch(context.Context, models.Criteria) ([]models.RawListing, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw, f.err
}

func (f *stubFetcher) set(raw []models.RawListing, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw, f.err = raw, err
}

type countingNotifier struct {
	events []models.RefreshEvent
}

func (n *countingNotifier) NotifyRefresh(_ context.Context, ev models.RefreshEvent) error {
	n.events = append(n.events, ev)
	return nil
}

func sampleRaw() []models.RawListing {
	return []models.RawListing{
		{Title: "Kapitalanlage: 2er Maisonette, zentral", Price: "395.000 €", Area: "72 m²",
			Location: "Stuttgart-Mitte, 70173", DaysOnMarket: "5", Features: []string{"Makler"}},
		{Title: "Reihenhaus modern ausgebaut", Price: "580000", Area: "110",
			Location: "Stuttgart-Möhringen, 70435", DaysOnMarket: "6"},
	}
}

func newTestAdapter(t *testing.T, f Fetcher, store storage.CacheStore, opts Options) *CachedAdapter {
	t.Helper()
	logger := utils.Discard()
	if opts.Logger == nil {
		opts.Logger = logger
	}
	cache := NewCache(store, f.Source(), logger)
	return NewCachedAdapter(context.Background(), f, cache, services.NewNormalizer(logger), opts)
}

func TestCachedAdapterServesFreshCache(t *testing.T) {
	f := &stubFetcher{raw: sampleRaw()}
	a := newTestAdapter(t, f, newMemStore(), Options{TTL: time.Hour})

	first, err := a.FetchListings(context.Background(), models.Criteria{})
	if err != nil {
		t.Fatalf("FetchListings: %v", err)
	}
	second, _ := a.FetchListings(context.Background(), models.Criteria{})

	if got := f.calls.Load(); got != 1 {
		t.Errorf("live calls: got %d, want 1", got)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("listings: got %d and %d, want 2", len(first), len(second))
	}
	for i := range first {
		if first[i].Title != second[i].Title || !first[i].ScrapedAt.Equal(second[i].ScrapedAt) {
			t.Errorf("record %d differs between cached reads", i)
		}
	}
}

func TestCachedAdapterRefreshesWhenStale(t *testing.T) {
	f := &stubFetcher{raw: sampleRaw()}
	a := newTestAdapter(t, f, newMemStore(), Options{TTL: time.Hour})

	clock := time.Now()
	a.now = func() time.Time { return clock }

	a.FetchListings(context.Background(), models.Criteria{})
	clock = clock.Add(59 * time.Minute)
	a.FetchListings(context.Background(), models.Criteria{})
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("calls inside TTL: got %d, want 1", got)
	}

	clock = clock.Add(time.Minute)
	a.FetchListings(context.Background(), models.Criteria{})
	if got := f.calls.Load(); got != 2 {
		t.Errorf("calls at TTL boundary: got %d, want 2", got)
	}
}

func TestCachedAdapterFallsBackToPreviousCache(t *testing.T) {
	f := &stubFetcher{raw: sampleRaw()}
	a := newTestAdapter(t, f, newMemStore(), Options{TTL: time.Minute})

	clock := time.Now()
	a.now = func() time.Time { return clock }
	if got, _ := a.FetchListings(context.Background(), models.Criteria{}); len(got) != 2 {
		t.Fatalf("initial fetch: got %d listings", len(got))
	}
	before := a.Snapshot()

	failures := []struct {
		name string
		raw  []models.RawListing
		err  error
	}{
		{"network error", nil, errors.New("dial tcp: connection refused")},
		{"zero items", []models.RawListing{}, nil},
		{"every item unparsable", []models.RawListing{{Title: "x", Price: "auf Anfrage"}}, nil},
	}

	for _, tt := range failures {
		clock = clock.Add(2 * time.Minute)
		f.set(tt.raw, tt.err)

		got, err := a.FetchListings(context.Background(), models.Criteria{})
		if err != nil {
			t.Errorf("%s: error escaped the adapter: %v", tt.name, err)
		}
		if len(got) != 2 {
			t.Errorf("%s: got %d listings, want previous 2", tt.name, len(got))
		}
		after := a.Snapshot()
		if !after.LastFetchedAt.Equal(*before.LastFetchedAt) {
			t.Errorf("%s: failed refresh touched lastFetchedAt", tt.name)
		}
	}
}

func TestCachedAdapterFirstRunFailureIsEmpty(t *testing.T) {
	f := &stubFetcher{err: errors.New("boom")}
	a := newTestAdapter(t, f, newMemStore(), Options{})

	got, err := a.FetchListings(context.Background(), models.Criteria{})
	if err != nil {
		t.Fatalf("error escaped: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty slice", got)
	}
}

func TestCachedAdapterTimeout(t *testing.T) {
	// The fetcher ignores ctx entirely.
	f := &stubFetcher{raw: sampleRaw(), block: make(chan struct{})}
	defer close(f.block)
	a := newTestAdapter(t, f, newMemStore(), Options{FetchTimeout: 50 * time.Millisecond})

	start := time.Now()
	got, err := a.FetchListings(context.Background(), models.Criteria{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("error escaped: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d listings, want 0 after timeout", len(got))
	}
	if elapsed > time.Second {
		t.Errorf("timeout not enforced: took %v", elapsed)
	}
}

// ctxFetcher honours cancellation and otherwise waits for release.
type ctxFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *ctxFetcher) Source() models.Source { return models.SourceLBS }

func (f *ctxFetcher) Fetch(ctx context.Context, _ models.Criteria) ([]models.RawListing, error) {
	close(f.started)
	select {
	case <-f.release:
		return sampleRaw(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachedAdapterRefreshOutlivesCaller(t *testing.T) {
	f := &ctxFetcher{started: make(chan struct{}), release: make(chan struct{})}
	a := newTestAdapter(t, f, newMemStore(), Options{FetchTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.started
		cancel()
		time.Sleep(20 * time.Millisecond)
		close(f.release)
	}()

	got, err := a.FetchListings(ctx, models.Criteria{})
	if err != nil {
		t.Fatalf("error escaped: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d listings, want 2 from the refresh the caller started", len(got))
	}
	if snap := a.Snapshot(); snap.LastFetchedAt == nil || len(snap.Listings) != 2 {
		t.Errorf("cache not refreshed: %+v", snap)
	}
}

func TestCachedAdapterSingleFlight(t *testing.T) {
	f := &stubFetcher{raw: sampleRaw(), delay: 100 * time.Millisecond}
	a := newTestAdapter(t, f, newMemStore(), Options{})

	var wg sync.WaitGroup
	counts := make([]int, 10)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, _ := a.FetchListings(context.Background(), models.Criteria{})
			counts[i] = len(got)
		}(i)
	}
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Errorf("live calls: got %d, want 1", got)
	}
	for i, n := range counts {
		if n != 2 {
			t.Errorf("caller %d: got %d listings, want 2", i, n)
		}
	}
}

func TestCachedAdapterPersistsAndReloads(t *testing.T) {
	store := newMemStore()
	notifier := &countingNotifier{}
	f := &stubFetcher{raw: sampleRaw()}

	a := newTestAdapter(t, f, store, Options{Notifier: notifier})
	a.FetchListings(context.Background(), models.Criteria{})

	if len(notifier.events) != 1 || notifier.events[0].Count != 2 || notifier.events[0].Source != models.SourceLBS {
		t.Errorf("refresh events: got %+v", notifier.events)
	}

	// A restarted adapter must serve the persisted cache without fetching.
	f2 := &stubFetcher{err: errors.New("should not be called")}
	b := newTestAdapter(t, f2, store, Options{})
	got, _ := b.FetchListings(context.Background(), models.Criteria{})
	if len(got) != 2 {
		t.Errorf("reloaded listings: got %d, want 2", len(got))
	}
	if f2.calls.Load() != 0 {
		t.Errorf("reloaded fresh cache still triggered a live fetch")
	}
}

func TestCachedAdapterCorruptCacheStartsEmpty(t *testing.T) {
	store := newMemStore()
	store.blobs[string(models.SourceLBS)] = []byte(`{"lastScraped": "yesterday", "properties": [`)

	f := &stubFetcher{raw: sampleRaw()}
	a := newTestAdapter(t, f, store, Options{})

	if snap := a.Snapshot(); snap.LastFetchedAt != nil || len(snap.Listings) != 0 {
		t.Fatalf("corrupt cache loaded: %+v", snap)
	}
	got, _ := a.FetchListings(context.Background(), models.Criteria{})
	if len(got) != 2 || f.calls.Load() != 1 {
		t.Errorf("got %d listings after %d calls", len(got), f.calls.Load())
	}
}

func TestCachedAdapterLoadsZonelessCache(t *testing.T) {
	store := newMemStore()
	store.blobs[string(models.SourceLBS)] = []byte(`{
  "lastScraped": "2025-12-12T21:00:00.123456",
  "properties": [{
    "title": "Reihenhaus modern ausgebaut",
    "price": 580000,
    "area": 110.0,
    "rooms": 4,
    "location": "Stuttgart-Möhringen, 70567",
    "source": "lbs",
    "daysOnMarket": 6,
    "features": ["Garten"],
    "url": "https://www.lbs.de/immobilien/1",
    "scrapedAt": "2025-12-12T21:00:00.123456"
  }]
}`)

	snap := NewCache(store, models.SourceLBS, nil).Load(context.Background())
	want := time.Date(2025, 12, 12, 21, 0, 0, 123456000, time.UTC)
	if snap.LastFetchedAt == nil || !snap.LastFetchedAt.Equal(want) {
		t.Fatalf("lastScraped: got %v, want %v", snap.LastFetchedAt, want)
	}
	if len(snap.Listings) != 1 || snap.Listings[0].Price != 580000 || !snap.Listings[0].ScrapedAt.Equal(want) {
		t.Errorf("listings: got %+v", snap.Listings)
	}
}

func TestCachedAdapterReturnsCopies(t *testing.T) {
	f := &stubFetcher{raw: sampleRaw()}
	a := newTestAdapter(t, f, newMemStore(), Options{})

	got, _ := a.FetchListings(context.Background(), models.Criteria{})
	got[0].Title = "mutated"
	got[0].Features[0] = "mutated"
	*got[0].DaysOnMarket = 99

	again, _ := a.FetchListings(context.Background(), models.Criteria{})
	if again[0].Title == "mutated" || again[0].Features[0] == "mutated" || *again[0].DaysOnMarket == 99 {
		t.Errorf("caller mutation leaked into the cache: %+v", again[0])
	}
}
