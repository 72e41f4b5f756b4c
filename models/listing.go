package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Source identifies which portal adapter produced a listing.
type Source string

const (
	SourceSparkasse Source = "sparkasse"
	SourceVolksbank Source = "volksbank"
	SourceLBS       Source = "lbs"
)

// KnownSources lists every source tag in default selection order.
var KnownSources = []Source{SourceSparkasse, SourceVolksbank, SourceLBS}

// ParseSource normalises a tag and reports whether it is a known source.
func ParseSource(s string) (Source, bool) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range KnownSources {
		if src == k {
			return src, true
		}
	}
	return src, false
}

// Listing is the normalized, source-agnostic property record. Every Listing
// returned to a caller has gone through services.Normalizer.
type Listing struct {
	Title        string    `json:"title"`
	Price        int64     `json:"price"`
	Area         float64   `json:"area"`
	Rooms        int       `json:"rooms"`
	Location     string    `json:"location"`
	Source       Source    `json:"source"`
	DaysOnMarket *int      `json:"daysOnMarket,omitempty"`
	YearBuilt    int       `json:"yearBuilt"`
	HeatingType  string    `json:"heatingType"`
	Features     []string  `json:"features"`
	URL          string    `json:"url"`
	ScrapedAt    time.Time `json:"scrapedAt"`
}

// UnmarshalJSON accepts scrapedAt with or without a zone offset.
func (l *Listing) UnmarshalJSON(b []byte) error {
	type plain Listing
	aux := struct {
		*plain
		ScrapedAt Timestamp `json:"scrapedAt"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	l.ScrapedAt = aux.ScrapedAt.Time
	return nil
}

// Clone returns a copy that shares no mutable state with l.
func (l Listing) Clone() Listing {
	out := l
	if l.DaysOnMarket != nil {
		d := *l.DaysOnMarket
		out.DaysOnMarket = &d
	}
	if l.Features != nil {
		out.Features = append(make([]string, 0, len(l.Features)), l.Features...)
	}
	return out
}

// CloneListings deep-copies a slice of listings. A nil input yields an empty
// non-nil slice so JSON encodes it as [].
func CloneListings(in []Listing) []Listing {
	out := make([]Listing, len(in))
	for i, l := range in {
		out[i] = l.Clone()
	}
	return out
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int { return &v }

// RawField is a loosely typed value from a live source. It decodes JSON
// strings, numbers and booleans into their text form; null decodes to "".
type RawField string

func (f *RawField) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = RawField(str)
		return nil
	}
	*f = RawField(s)
	return nil
}

// String returns the trimmed text value.
func (f RawField) String() string { return strings.TrimSpace(string(f)) }

// Missing reports whether the source supplied no value.
func (f RawField) Missing() bool { return f.String() == "" }

// RawListing holds one unprocessed item exactly as a portal fetcher extracted
// it. Only the normalizer understands how to turn it into a Listing.
type RawListing struct {
	Title        RawField `json:"title"`
	Price        RawField `json:"price"`
	Area         RawField `json:"area"`
	Rooms        RawField `json:"rooms"`
	Location     RawField `json:"location"`
	DaysOnMarket RawField `json:"daysOnMarket"`
	YearBuilt    RawField `json:"yearBuilt"`
	HeatingType  RawField `json:"heatingType"`
	Features     []string `json:"features"`
	URL          RawField `json:"url"`
	// ScrapedAt is carried for debugging only; normalization never trusts it.
	ScrapedAt RawField `json:"scrapedAt"`
}

// CacheSnapshot is the persisted per-adapter cache blob. The JSON keys match
// the cache files written by earlier versions of the tracker.
type CacheSnapshot struct {
	LastFetchedAt *time.Time `json:"lastScraped"`
	Listings      []Listing  `json:"properties"`
}

// UnmarshalJSON accepts lastScraped with or without a zone offset.
func (s *CacheSnapshot) UnmarshalJSON(b []byte) error {
	type plain CacheSnapshot
	aux := struct {
		*plain
		LastFetchedAt *Timestamp `json:"lastScraped"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.LastFetchedAt = nil
	if aux.LastFetchedAt != nil {
		t := aux.LastFetchedAt.Time
		s.LastFetchedAt = &t
	}
	return nil
}

// IsFresh reports whether the snapshot may be served without a live fetch:
// it must have been fetched, and less than ttl ago.
func (s CacheSnapshot) IsFresh(now time.Time, ttl time.Duration) bool {
	if s.LastFetchedAt == nil {
		return false
	}
	return now.Sub(*s.LastFetchedAt) < ttl
}

// localTimestampLayout is ISO 8601 without a zone offset, as older catalog
// and cache files store it.
const localTimestampLayout = "2006-01-02T15:04:05.999999999"

// ParseTimestamp reads an RFC 3339 timestamp, or a zone-less one as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localTimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

// Timestamp is a time.Time that decodes through ParseTimestamp. It encodes
// as RFC 3339.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
