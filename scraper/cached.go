package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"property-tracker/models"
	"property-tracker/services"
	"property-tracker/utils"
)

const (
	DefaultTTL          = time.Hour
	DefaultFetchTimeout = 30 * time.Second
	persistTimeout      = 10 * time.Second
)

// Options tune a CachedAdapter. Zero values fall back to the defaults.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	Notifier     RefreshNotifier
	Logger       *utils.Logger
}

// CachedAdapter wraps a Fetcher with a TTL cache. Stale or empty caches are
// refreshed on demand; at most one refresh per adapter runs at a time and
// concurrent callers share its result.
type CachedAdapter struct {
	fetcher    Fetcher
	cache      *Cache
	normalizer *services.Normalizer
	notifier   RefreshNotifier
	logger     *utils.Logger
	retry      *utils.RetryConfig

	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	snapshot models.CacheSnapshot
}

// NewCachedAdapter builds the adapter and loads its persisted cache.
func NewCachedAdapter(ctx context.Context, fetcher Fetcher, cache *Cache, normalizer *services.Normalizer, opts Options) *CachedAdapter {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = utils.Discard()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	return &CachedAdapter{
		fetcher:    fetcher,
		cache:      cache,
		normalizer: normalizer,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxAttempts,
			BaseDelay:   opts.RetryDelay,
			Logger:      opts.Logger,
		},
		ttl:      opts.TTL,
		timeout:  opts.FetchTimeout,
		now:      time.Now,
		snapshot: cache.Load(ctx),
	}
}

func (a *CachedAdapter) Source() models.Source { return a.fetcher.Source() }

// FetchListings serves the cache while fresh and refreshes it otherwise. It
// never returns an error: a failed refresh yields the previous cache, which
// may be empty. The returned slice is a copy the caller may modify.
func (a *CachedAdapter) FetchListings(ctx context.Context, criteria models.Criteria) ([]models.Listing, error) {
	if snap := a.current(); snap.IsFresh(a.now(), a.ttl) {
		a.logger.Debug("[%s] cache fresh (%d listings)", a.Source(), len(snap.Listings))
		return models.CloneListings(snap.Listings), nil
	}

	// Callers joining the flight share its outcome, so the first caller going
	// away must not abort it. FetchTimeout still bounds the fetch.
	refreshCtx := context.WithoutCancel(ctx)
	v, _, shared := a.group.Do(string(a.Source()), func() (any, error) {
		return a.refresh(refreshCtx, criteria), nil
	})
	if shared {
		a.logger.Debug("[%s] joined in-flight refresh", a.Source())
	}
	return models.CloneListings(v.([]models.Listing)), nil
}

// Snapshot returns a copy of the current cache state.
func (a *CachedAdapter) Snapshot() models.CacheSnapshot {
	snap := a.current()
	snap.Listings = models.CloneListings(snap.Listings)
	return snap
}

func (a *CachedAdapter) current() models.CacheSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// refresh runs inside the single-flight group.
func (a *CachedAdapter) refresh(ctx context.Context, criteria models.Criteria) []models.Listing {
	prev := a.current()
	// A refresh that completed while this caller waited to enter the group
	// already did the work.
	if prev.IsFresh(a.now(), a.ttl) {
		return prev.Listings
	}

	source := a.Source()
	start := time.Now()
	a.logger.Info("[%s] cache stale, fetching live", source)

	raw, err := a.fetchLive(ctx, criteria)
	if err != nil {
		a.logger.Warn("[%s] live fetch failed, serving %d cached listings: %v", source, len(prev.Listings), err)
		return prev.Listings
	}
	if len(raw) == 0 {
		a.logger.Warn("[%s] live fetch returned no items, serving %d cached listings", source, len(prev.Listings))
		return prev.Listings
	}

	listings := a.normalizer.Normalize(source, raw)
	if len(listings) == 0 {
		a.logger.Warn("[%s] all %d fetched items failed to parse, serving %d cached listings",
			source, len(raw), len(prev.Listings))
		return prev.Listings
	}

	fetchedAt := a.now().UTC()
	next := models.CacheSnapshot{LastFetchedAt: &fetchedAt, Listings: listings}

	a.mu.Lock()
	a.snapshot = next
	a.mu.Unlock()

	a.logger.Info("[%s] refreshed %d listings in %v", source, len(listings), time.Since(start).Round(time.Millisecond))

	persistCtx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := a.cache.Save(persistCtx, next); err != nil {
		a.logger.Error("[%s] %v", source, err)
	}
	ev := models.RefreshEvent{Source: source, Count: len(listings), FetchedAt: fetchedAt}
	if err := a.notifier.NotifyRefresh(persistCtx, ev); err != nil {
		a.logger.Warn("[%s] refresh notification failed: %v", source, err)
	}

	return listings
}

type fetchResult struct {
	raw []models.RawListing
	err error
}

// fetchLive runs the fetcher under the adapter timeout. The fetcher runs on
// its own goroutine so a fetcher that ignores ctx cannot hold the caller past
// the deadline.
func (a *CachedAdapter) fetchLive(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	source := a.Source()
	done := make(chan fetchResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("fetcher panic: %v", r)}
			}
		}()

		var raw []models.RawListing
		err := a.retry.Do(ctx, "fetch "+string(source), func(ctx context.Context) error {
			var err error
			raw, err = a.fetcher.Fetch(ctx, criteria)
			return err
		})
		done <- fetchResult{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrSourceUnavailable, source, r.err)
		}
		return r.raw, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", models.ErrSourceUnavailable, source, ctx.Err())
	}
}
