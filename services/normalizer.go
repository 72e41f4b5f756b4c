package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"property-tracker/models"
	"property-tracker/utils"
)

const unknownHeating = "Unknown"

var (
	// numberRegexp captures the first number, allowing "." and "," separators.
	numberRegexp = regexp.MustCompile(`\d[\d.,]*`)
	// leadingIntRegexp captures the first run of digits.
	leadingIntRegexp = regexp.MustCompile(`\d+`)
	// decimalPriceRegexp matches plain numbers with at most two fraction digits.
	decimalPriceRegexp = regexp.MustCompile(`^\d+\.\d{1,2}$`)
)

// Normalizer turns raw portal items into Listings.
type Normalizer struct {
	logger *utils.Logger
	now    func() time.Time
}

// NewNormalizer creates a Normalizer stamping listings with time.Now.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

// Normalize converts every raw item from source. Items that fail to parse are
// dropped and logged; their siblings are still returned.
func (n *Normalizer) Normalize(source models.Source, raw []models.RawListing) []models.Listing {
	result := make([]models.Listing, 0, len(raw))
	scrapedAt := n.now().UTC()

	for i, r := range raw {
		l, err := n.normalizeOne(source, r, scrapedAt)
		if err != nil {
			n.logger.Warn("[normalizer] %s item %d (%q) dropped: %v", source, i, r.Title.String(), err)
			continue
		}
		result = append(result, l)
	}

	if dropped := len(raw) - len(result); dropped > 0 {
		n.logger.Info("[normalizer] %s: normalized %d → %d listings (dropped %d)",
			source, len(raw), len(result), dropped)
	}
	return result
}

func (n *Normalizer) normalizeOne(source models.Source, r models.RawListing, scrapedAt time.Time) (models.Listing, error) {
	price, err := parsePrice(r.Price)
	if err != nil {
		return models.Listing{}, err
	}
	area, err := parseArea(r.Area)
	if err != nil {
		return models.Listing{}, err
	}
	rooms, err := parseLeadingInt("rooms", r.Rooms)
	if err != nil {
		return models.Listing{}, err
	}
	year, err := parseLeadingInt("yearBuilt", r.YearBuilt)
	if err != nil {
		return models.Listing{}, err
	}
	days, err := parseLeadingInt("daysOnMarket", r.DaysOnMarket)
	if err != nil {
		return models.Listing{}, err
	}

	heating := normaliseText(string(r.HeatingType))
	if heating == "" {
		heating = unknownHeating
	}

	features := make([]string, 0, len(r.Features))
	for _, f := range r.Features {
		if f = normaliseText(f); f != "" {
			features = append(features, f)
		}
	}

	return models.Listing{
		Title:        normaliseText(string(r.Title)),
		Price:        price,
		Area:         area,
		Rooms:        rooms,
		Location:     normaliseText(string(r.Location)),
		Source:       source,
		DaysOnMarket: models.IntPtr(days),
		YearBuilt:    year,
		HeatingType:  heating,
		Features:     features,
		URL:          r.URL.String(),
		ScrapedAt:    scrapedAt,
	}, nil
}

// parsePrice keeps only the digits of a price text: "520.000 €" → 520000.
// Cents are not expected on listing prices.
func parsePrice(raw models.RawField) (int64, error) {
	if raw.Missing() {
		return 0, nil
	}
	s := raw.String()
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: negative price %q", models.ErrParseFailure, s)
	}
	// "520000.5" is a decimal number; "520.000" is a German thousands separator.
	if decimalPriceRegexp.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: price %q", models.ErrParseFailure, s)
		}
		return int64(f), nil
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, fmt.Errorf("%w: price %q has no digits", models.ErrParseFailure, s)
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q: %v", models.ErrParseFailure, s, err)
	}
	return v, nil
}

// parseArea reads European or plain decimals: "85", "85,5 m²", "1.250,5".
func parseArea(raw models.RawField) (float64, error) {
	if raw.Missing() {
		return 0, nil
	}
	s := raw.String()
	match := numberRegexp.FindString(s)
	if match == "" {
		return 0, fmt.Errorf("%w: area %q has no number", models.ErrParseFailure, s)
	}
	match = strings.TrimRight(match, ".,")
	if strings.Contains(match, ",") {
		match = strings.ReplaceAll(match, ".", "")
		match = strings.Replace(match, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: area %q: %v", models.ErrParseFailure, s, err)
	}
	return v, nil
}

// parseLeadingInt takes the first run of digits: "3 Zimmer" → 3, "3,5" → 3.
func parseLeadingInt(field string, raw models.RawField) (int, error) {
	if raw.Missing() {
		return 0, nil
	}
	s := raw.String()
	match := leadingIntRegexp.FindString(s)
	if match == "" {
		return 0, fmt.Errorf("%w: %s %q has no number", models.ErrParseFailure, field, s)
	}
	v, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", models.ErrParseFailure, field, s, err)
	}
	return v, nil
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
