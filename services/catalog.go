package services

import (
	"strings"
	"sync/atomic"

	"property-tracker/models"
	"property-tracker/utils"
)

// CatalogService answers queries against a pre-loaded catalog without
// touching any source adapter.
type CatalogService struct {
	catalog atomic.Pointer[[]models.Listing]
	logger  *utils.Logger
}

// NewCatalogService takes ownership of a copy of catalog.
func NewCatalogService(catalog []models.Listing, logger *utils.Logger) *CatalogService {
	if logger == nil {
		logger = utils.Discard()
	}
	s := &CatalogService{logger: logger}
	s.Replace(catalog)
	return s
}

// Replace swaps in a new catalog. Queries already running keep reading the
// previous one.
func (s *CatalogService) Replace(catalog []models.Listing) {
	c := models.CloneListings(catalog)
	s.catalog.Store(&c)
	s.logger.Info("[catalog] serving %d listings", len(c))
}

// Size returns the number of listings in the current catalog.
func (s *CatalogService) Size() int {
	return len(*s.catalog.Load())
}

// Search filters the current catalog.
func (s *CatalogService) Search(criteria models.Criteria) models.SearchResult {
	return SearchCatalog(criteria, *s.catalog.Load())
}

// SearchCatalog applies criteria to catalog and orders the matches by
// daysOnMarket. The catalog is assumed free of duplicates and is not
// modified.
func SearchCatalog(criteria models.Criteria, catalog []models.Listing) models.SearchResult {
	minPrice, maxPrice := criteria.PriceBounds()
	minArea := criteria.AreaFloor()
	region := criteria.RegionPrefix()

	allowed := make(map[models.Source]struct{})
	for _, src := range criteria.SelectSources(models.KnownSources) {
		allowed[src] = struct{}{}
	}

	matches := make([]models.Listing, 0, len(catalog))
	for _, l := range catalog {
		if l.Price < minPrice || l.Price > maxPrice {
			continue
		}
		if l.Area < minArea {
			continue
		}
		if _, ok := allowed[l.Source]; !ok {
			continue
		}
		if region != "" && !matchesRegion(l.Location, region) {
			continue
		}
		matches = append(matches, l.Clone())
	}

	sortByDaysOnMarket(matches)
	return models.SearchResult{Listings: matches, Stats: ComputeStats(matches)}
}

// matchesRegion reports whether the last whitespace-separated token of
// location, usually the postal code, starts with prefix.
func matchesRegion(location, prefix string) bool {
	tokens := strings.Fields(location)
	if len(tokens) == 0 {
		return false
	}
	return strings.HasPrefix(tokens[len(tokens)-1], prefix)
}
