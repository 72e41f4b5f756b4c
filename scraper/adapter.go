// Package scraper holds the per-source adapter contract, the staleness-aware
// adapter cache and the portal fetchers that sit behind it.
package scraper

import (
	"context"

	"property-tracker/models"
)

// Adapter produces normalized listings for one source.
type Adapter interface {
	// FetchListings returns the source's listings. It serves the cache while
	// fresh and otherwise refreshes it; live failures fall back to the
	// previous cache instead of returning an error.
	FetchListings(ctx context.Context, criteria models.Criteria) ([]models.Listing, error)
	Source() models.Source
}

// Fetcher is the live-source boundary: it drives one portal and returns raw,
// source-specific items. It must honour ctx cancellation where it can.
type Fetcher interface {
	Fetch(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error)
	Source() models.Source
}

// RefreshNotifier is told about every successful cache refresh.
type RefreshNotifier interface {
	NotifyRefresh(ctx context.Context, ev models.RefreshEvent) error
}

type noopNotifier struct{}

func (noopNotifier) NotifyRefresh(context.Context, models.RefreshEvent) error { return nil }
