package models

// PriceRange is the min/max listing price of a result set.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Stats summarises a result set. JSON names follow the front-end contract.
type Stats struct {
	TotalFound      int     `json:"totalFound"`
	AvgPricePerArea float64 `json:"avgPricePerSqm"`
	PreMarketCount  int     `json:"preMarketCount"`
	// TimeAdvantage is an editorial label in hours, not derived from data.
	TimeAdvantage string     `json:"timeAdvantageHours"`
	PriceRange    PriceRange `json:"priceRange"`
}

// SearchResult is the immutable answer to one query.
type SearchResult struct {
	Listings []Listing `json:"properties"`
	Stats    Stats     `json:"stats"`
}
