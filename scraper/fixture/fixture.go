// Package fixture serves raw listings from a local JSON file. It stands in
// for a portal in demos and offline runs.
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"property-tracker/models"
)

// Fetcher re-reads its file on every call, so edits show up on the next
// refresh.
type Fetcher struct {
	source models.Source
	path   string
}

func New(source models.Source, path string) *Fetcher {
	return &Fetcher{source: source, path: path}
}

func (f *Fetcher) Source() models.Source { return f.source }

func (f *Fetcher) Fetch(ctx context.Context, _ models.Criteria) ([]models.RawListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", f.source, err)
	}
	return Decode(blob)
}

// Decode accepts {"properties": [...]} or a bare array of raw items.
func Decode(blob []byte) ([]models.RawListing, error) {
	trimmed := bytes.TrimSpace(blob)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var arr []models.RawListing
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, fmt.Errorf("%w: fixture: %v", models.ErrParseFailure, err)
		}
		return arr, nil
	}

	var doc struct {
		Properties []models.RawListing `json:"properties"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: fixture: %v", models.ErrParseFailure, err)
	}
	return doc.Properties, nil
}
