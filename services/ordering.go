package services

import (
	"sort"

	"property-tracker/models"
	"property-tracker/utils"
)

// unknownDaysSortKey places listings without daysOnMarket after every listing
// that has one. It is a display-time default distinct from the normalization
// default of 0 and the pre-market default of 7.
const unknownDaysSortKey = 999

// fingerprint is the dedup key. It is a cheap heuristic, not an identity.
type fingerprint struct {
	title    string
	price    int64
	location string
}

func fingerprintOf(l models.Listing) fingerprint {
	return fingerprint{title: l.Title, price: l.Price, location: l.Location}
}

// dedupe keeps the first listing for each (title, price, location) triplet in
// input order.
func dedupe(listings []models.Listing) []models.Listing {
	seen := utils.NewKeySet[fingerprint]()
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if !seen.Add(fingerprintOf(l)) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func sortKey(l models.Listing) int {
	if l.DaysOnMarket == nil {
		return unknownDaysSortKey
	}
	return *l.DaysOnMarket
}

// sortByDaysOnMarket orders listings ascending by daysOnMarket in place,
// keeping the relative order of equal keys.
func sortByDaysOnMarket(listings []models.Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		return sortKey(listings[i]) < sortKey(listings[j])
	})
}
