package api

import (
	"context"

	"property-tracker/models"
	"property-tracker/services"
)

// Backend answers search queries for the HTTP layer.
type Backend interface {
	Search(ctx context.Context, criteria models.Criteria) models.SearchResult
	// Mode is reported as the "source" of every search response.
	Mode() string
	// Health returns the mode-specific fields of the health report.
	Health() map[string]any
}

// LiveBackend queries every source adapter on each request.
type LiveBackend struct {
	Tracker *services.Tracker
}

func (b LiveBackend) Search(ctx context.Context, criteria models.Criteria) models.SearchResult {
	return b.Tracker.SearchAllSources(ctx, criteria)
}

func (b LiveBackend) Mode() string { return "live" }

func (b LiveBackend) Health() map[string]any {
	return map[string]any{"sources": b.Tracker.Sources()}
}

// CatalogBackend filters the pre-loaded catalog and never contacts a portal.
type CatalogBackend struct {
	Catalog *services.CatalogService
}

func (b CatalogBackend) Search(_ context.Context, criteria models.Criteria) models.SearchResult {
	return b.Catalog.Search(criteria)
}

func (b CatalogBackend) Mode() string { return "cached" }

func (b CatalogBackend) Health() map[string]any {
	return map[string]any{"properties_cached": b.Catalog.Size()}
}
