package services

import (
	"context"
	"fmt"
	"time"

	"property-tracker/models"
	"property-tracker/utils"
)

// ListingSource is what the Tracker needs from a source adapter.
type ListingSource interface {
	FetchListings(ctx context.Context, criteria models.Criteria) ([]models.Listing, error)
	Source() models.Source
}

// Tracker fans a query out to every selected source and merges the answers.
type Tracker struct {
	order          []models.Source
	sources        map[models.Source]ListingSource
	maxConcurrency int
	logger         *utils.Logger
}

// NewTracker registers sources in the given order, which is also the merge
// order. A later source with an already registered tag is ignored.
func NewTracker(logger *utils.Logger, maxConcurrency int, sources ...ListingSource) *Tracker {
	if logger == nil {
		logger = utils.Discard()
	}
	t := &Tracker{
		sources:        make(map[models.Source]ListingSource, len(sources)),
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
	for _, s := range sources {
		tag := s.Source()
		if _, dup := t.sources[tag]; dup {
			logger.Warn("[tracker] duplicate source %q ignored", tag)
			continue
		}
		t.sources[tag] = s
		t.order = append(t.order, tag)
	}
	if t.maxConcurrency < 1 {
		t.maxConcurrency = len(t.order)
	}
	return t
}

// Sources returns the configured source tags in registration order.
func (t *Tracker) Sources() []models.Source {
	out := make([]models.Source, len(t.order))
	copy(out, t.order)
	return out
}

// SearchAllSources asks every selected source for listings, merges them in
// selection order, drops (title, price, location) duplicates and sorts by
// daysOnMarket. A failing or panicking source contributes nothing; the
// query itself never fails.
func (t *Tracker) SearchAllSources(ctx context.Context, criteria models.Criteria) models.SearchResult {
	selected := criteria.SelectSources(t.order)
	start := time.Now()

	// One slot per source keeps the merge order independent of completion order.
	results := make([][]models.Listing, len(selected))
	pool := utils.NewWorkerPool(t.maxConcurrency, 0)

	for i, tag := range selected {
		i, src := i, t.sources[tag]
		pool.Submit(func() {
			results[i] = t.fetchIsolated(ctx, src, criteria)
		})
	}
	pool.Wait()

	var merged []models.Listing
	for _, r := range results {
		merged = append(merged, r...)
	}

	listings := dedupe(merged)
	sortByDaysOnMarket(listings)

	t.logger.Info("[tracker] %d sources → %d listings (%d duplicates dropped) in %v",
		len(selected), len(listings), len(merged)-len(listings), time.Since(start).Round(time.Millisecond))

	return models.SearchResult{Listings: listings, Stats: ComputeStats(listings)}
}

func (t *Tracker) fetchIsolated(ctx context.Context, src ListingSource, criteria models.Criteria) (listings []models.Listing) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("[tracker] %s: %v", src.Source(), fmt.Errorf("%w: panic: %v", models.ErrSourceUnavailable, r))
			listings = nil
		}
	}()

	listings, err := src.FetchListings(ctx, criteria)
	if err != nil {
		t.logger.Warn("[tracker] %s: %v", src.Source(), err)
		return nil
	}
	t.logger.Debug("[tracker] %s returned %d listings", src.Source(), len(listings))
	return listings
}
