package storage

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"property-tracker/models"
)

// defaultCatalog is served when no catalog file exists yet.
//
//go:embed default_catalog.json
var defaultCatalog []byte

// catalogDocument is the on-disk catalog shape written after a live crawl.
type catalogDocument struct {
	Listings    []models.Listing `json:"properties"`
	LastUpdated models.Timestamp `json:"lastUpdated"`
	TotalCount  int              `json:"totalCount"`
}

// FileCatalog reads and writes the cached-only catalog as a JSON file.
type FileCatalog struct {
	path string
	now  func() time.Time
}

func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path, now: time.Now}
}

func (c *FileCatalog) Path() string { return c.path }

// LoadCatalog reads the catalog file. A missing file yields the built-in
// default catalog.
func (c *FileCatalog) LoadCatalog(_ context.Context) ([]models.Listing, error) {
	blob, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultCatalog()
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", c.path, err)
	}
	listings, err := DecodeCatalog(blob)
	if err != nil {
		return nil, fmt.Errorf("catalog: %q: %w", c.path, err)
	}
	return listings, nil
}

// WriteCatalog atomically replaces the catalog file.
func (c *FileCatalog) WriteCatalog(_ context.Context, listings []models.Listing) error {
	doc := catalogDocument{
		Listings:    models.CloneListings(listings),
		LastUpdated: models.Timestamp{Time: c.now().UTC()},
		TotalCount:  len(listings),
	}
	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := writeFileAtomic(c.path, blob); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// DefaultCatalog returns the built-in Stuttgart-region sample catalog.
func DefaultCatalog() ([]models.Listing, error) {
	listings, err := DecodeCatalog(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: embedded default: %w", err)
	}
	return listings, nil
}

// DecodeCatalog accepts either a catalog document or a bare JSON array of
// listings.
func DecodeCatalog(blob []byte) ([]models.Listing, error) {
	trimmed := bytes.TrimSpace(blob)

	var listings []models.Listing
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &listings); err != nil {
			return nil, fmt.Errorf("decode listings: %w", err)
		}
	} else {
		var doc catalogDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		listings = doc.Listings
	}

	if listings == nil {
		listings = []models.Listing{}
	}
	for i := range listings {
		if listings[i].Features == nil {
			listings[i].Features = []string{}
		}
	}
	return listings, nil
}
