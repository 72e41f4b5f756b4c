package services

import (
	"fmt"
	"io"
	"strings"

	"property-tracker/models"
)

const (
	// preMarketMaxDays is the inclusive daysOnMarket bound for "pre-market".
	preMarketMaxDays = 7
	// preMarketUnknownDays is assumed for listings without daysOnMarket when
	// counting pre-market listings. It is not the sort sentinel; see
	// DESIGN.md before unifying them.
	preMarketUnknownDays = 7
	// timeAdvantageLabel is an editorial constant shown when at least one
	// pre-market listing exists. It is not computed from timestamps.
	timeAdvantageLabel = "48-72"
	noTimeAdvantage    = "-"
)

// ComputeStats summarises listings. Empty input yields the zero Stats with a
// "-" time advantage.
func ComputeStats(listings []models.Listing) models.Stats {
	stats := models.Stats{TimeAdvantage: noTimeAdvantage}
	if len(listings) == 0 {
		return stats
	}

	stats.TotalFound = len(listings)
	stats.PriceRange = models.PriceRange{Min: listings[0].Price, Max: listings[0].Price}

	var perAreaSum float64
	var perAreaCount int

	for _, l := range listings {
		if l.Price < stats.PriceRange.Min {
			stats.PriceRange.Min = l.Price
		}
		if l.Price > stats.PriceRange.Max {
			stats.PriceRange.Max = l.Price
		}

		// Unknown area is excluded from both sum and count.
		if l.Area > 0 {
			perAreaSum += float64(l.Price) / l.Area
			perAreaCount++
		}

		days := preMarketUnknownDays
		if l.DaysOnMarket != nil {
			days = *l.DaysOnMarket
		}
		if days <= preMarketMaxDays {
			stats.PreMarketCount++
		}
	}

	if perAreaCount > 0 {
		stats.AvgPricePerArea = round2(perAreaSum / float64(perAreaCount))
	}
	if stats.PreMarketCount > 0 {
		stats.TimeAdvantage = timeAdvantageLabel
	}
	return stats
}

// PrintReport writes a human-readable summary of a search result.
func PrintReport(w io.Writer, mode string, r models.SearchResult) {
	sep := strings.Repeat("═", 64)
	thin := strings.Repeat("─", 64)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  PROPERTY TRACKER: %s\033[0m\n", strings.ToUpper(mode))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Listings found      : \033[1m%d\033[0m\n", r.Stats.TotalFound)
	fmt.Fprintf(w, "  Pre-market listings : \033[1m%d\033[0m\n", r.Stats.PreMarketCount)
	fmt.Fprintf(w, "  Time advantage (h)  : \033[1m%s\033[0m\n", r.Stats.TimeAdvantage)
	if r.Stats.TotalFound > 0 {
		fmt.Fprintf(w, "  Price range         : \033[1;32m€%d – €%d\033[0m\n", r.Stats.PriceRange.Min, r.Stats.PriceRange.Max)
	}
	if r.Stats.AvgPricePerArea > 0 {
		fmt.Fprintf(w, "  Avg price per m²    : \033[1;32m€%.2f\033[0m\n", r.Stats.AvgPricePerArea)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings (newest first)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Listings) == 0 {
		fmt.Fprintf(w, "  No listings matched\n")
	}
	for i, l := range r.Listings {
		days := "?"
		if l.DaysOnMarket != nil {
			days = fmt.Sprintf("%d", *l.DaysOnMarket)
		}
		fmt.Fprintf(w, "  \033[1m%2d.\033[0m %-40s %-10s €%-9d %6.1fm² %3sd\n",
			i+1, truncate(l.Title, 38), l.Source, l.Price, l.Area, days)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
