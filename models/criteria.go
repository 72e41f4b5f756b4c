package models

import (
	"fmt"
	"math"
	"strings"
)

// Criteria holds the optional search filters sent by a client. A nil pointer
// or empty value means "no constraint".
type Criteria struct {
	MinPrice *int64   `json:"minPrice,omitempty"`
	MaxPrice *int64   `json:"maxPrice,omitempty"`
	MinArea  *float64 `json:"minArea,omitempty"`
	Region   string   `json:"region,omitempty"`
	Sources  []string `json:"sources,omitempty"`
}

// Validate rejects structurally invalid criteria. The returned error wraps
// ErrCriteriaInvalid.
func (c Criteria) Validate() error {
	if c.MinPrice != nil && *c.MinPrice < 0 {
		return fmt.Errorf("%w: minPrice must not be negative, got %d", ErrCriteriaInvalid, *c.MinPrice)
	}
	if c.MaxPrice != nil && *c.MaxPrice < 0 {
		return fmt.Errorf("%w: maxPrice must not be negative, got %d", ErrCriteriaInvalid, *c.MaxPrice)
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		return fmt.Errorf("%w: minPrice %d is greater than maxPrice %d", ErrCriteriaInvalid, *c.MinPrice, *c.MaxPrice)
	}
	if c.MinArea != nil && (*c.MinArea < 0 || math.IsNaN(*c.MinArea) || math.IsInf(*c.MinArea, 0)) {
		return fmt.Errorf("%w: minArea must be a non-negative number, got %v", ErrCriteriaInvalid, *c.MinArea)
	}
	return nil
}

// PriceBounds returns the inclusive price window; unset bounds span the whole
// int64 range.
func (c Criteria) PriceBounds() (min, max int64) {
	min, max = math.MinInt64, math.MaxInt64
	if c.MinPrice != nil {
		min = *c.MinPrice
	}
	if c.MaxPrice != nil {
		max = *c.MaxPrice
	}
	return min, max
}

// AreaFloor returns the minimum area, 0 when unset.
func (c Criteria) AreaFloor() float64 {
	if c.MinArea == nil {
		return 0
	}
	return *c.MinArea
}

// RegionPrefix returns the trimmed postal-code prefix, "" when unset.
func (c Criteria) RegionPrefix() string {
	return strings.TrimSpace(c.Region)
}

// SelectSources resolves the requested source tags against the available
// ones. Unknown tags are ignored; if nothing known remains, every available
// source is selected. Request order is kept and duplicates are dropped.
func (c Criteria) SelectSources(available []Source) []Source {
	allowed := make(map[Source]struct{}, len(available))
	for _, s := range available {
		allowed[s] = struct{}{}
	}

	selected := make([]Source, 0, len(c.Sources))
	seen := make(map[Source]struct{}, len(c.Sources))
	for _, raw := range c.Sources {
		src, _ := ParseSource(raw)
		if _, ok := allowed[src]; !ok {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		selected = append(selected, src)
	}

	if len(selected) == 0 {
		return append([]Source(nil), available...)
	}
	return selected
}
