package models

import "time"

// RefreshEvent announces that an adapter replaced its cache with fresh data.
type RefreshEvent struct {
	Source    Source    `json:"source"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt"`
}
