package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"property-tracker/models"
	"property-tracker/storage"
	"property-tracker/utils"
)

// Cache persists one adapter's snapshot through a storage.CacheStore.
type Cache struct {
	store  storage.CacheStore
	key    string
	logger *utils.Logger
}

// NewCache creates a Cache whose blob is stored under the source tag.
func NewCache(store storage.CacheStore, source models.Source, logger *utils.Logger) *Cache {
	if logger == nil {
		logger = utils.Discard()
	}
	return &Cache{store: store, key: string(source), logger: logger}
}

// Load reads the persisted snapshot. A missing or unreadable blob yields an
// empty snapshot; the adapter never sees an error.
func (c *Cache) Load(ctx context.Context) models.CacheSnapshot {
	blob, err := c.store.Load(ctx, c.key)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Debug("[cache] %s: no persisted cache, starting empty", c.key)
		return emptySnapshot()
	}
	if err != nil {
		c.logger.Warn("[cache] %s: %v; starting empty", c.key, fmt.Errorf("%w: %v", models.ErrCacheCorrupt, err))
		return emptySnapshot()
	}

	snap, err := decodeSnapshot(blob)
	if err != nil {
		c.logger.Warn("[cache] %s: %v; starting empty", c.key, err)
		return emptySnapshot()
	}
	c.logger.Info("[cache] %s: loaded %d cached listings", c.key, len(snap.Listings))
	return snap
}

// Save atomically replaces the persisted snapshot.
func (c *Cache) Save(ctx context.Context, snap models.CacheSnapshot) error {
	blob, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", c.key, err)
	}
	if err := c.store.Save(ctx, c.key, blob); err != nil {
		return fmt.Errorf("cache: save %s: %w", c.key, err)
	}
	return nil
}

func decodeSnapshot(blob []byte) (models.CacheSnapshot, error) {
	var snap models.CacheSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return models.CacheSnapshot{}, fmt.Errorf("%w: %v", models.ErrCacheCorrupt, err)
	}
	if snap.Listings == nil {
		snap.Listings = []models.Listing{}
	}
	return snap, nil
}

func emptySnapshot() models.CacheSnapshot {
	return models.CacheSnapshot{Listings: []models.Listing{}}
}
