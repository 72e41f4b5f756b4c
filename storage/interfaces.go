package storage

import (
	"context"
	"errors"

	"property-tracker/models"
)

// ErrNotFound is returned by a CacheStore that holds no blob for a key.
var ErrNotFound = errors.New("storage: not found")

// CacheStore persists opaque per-adapter cache blobs. Save must replace the
// blob atomically: a reader sees either the old or the new blob, never a mix.
type CacheStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}

// CatalogReader loads the catalog served in cached-only mode.
type CatalogReader interface {
	LoadCatalog(ctx context.Context) ([]models.Listing, error)
}

// CatalogWriter replaces the stored catalog with a fresh crawl.
type CatalogWriter interface {
	WriteCatalog(ctx context.Context, listings []models.Listing) error
}
