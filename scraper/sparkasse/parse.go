package sparkasse

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"property-tracker/models"
)

// ParseItems extracts one raw listing per result card. Relative links are
// resolved against baseURL.
func ParseItems(r io.Reader, baseURL string) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("sparkasse: parse html: %w", err)
	}
	base, _ := url.Parse(baseURL)

	var items []models.RawListing
	doc.Find(itemSelector).Each(func(_ int, s *goquery.Selection) {
		items = append(items, parseItem(s, base))
	})
	return items, nil
}

func parseItem(s *goquery.Selection, base *url.URL) models.RawListing {
	text := func(sel string) models.RawField {
		return models.RawField(strings.TrimSpace(s.Find(sel).First().Text()))
	}

	year := text(".property-year")
	if year.Missing() {
		year = yearFallback
	}

	var features []string
	s.Find(".property-features span").Each(func(_ int, f *goquery.Selection) {
		features = append(features, f.Text())
	})

	link, _ := s.Find("a[href]").First().Attr("href")
	if link != "" && base != nil {
		if ref, err := url.Parse(link); err == nil {
			link = base.ResolveReference(ref).String()
		}
	}

	days, _ := s.Find(".property-listed-date").First().Attr("data-days")

	return models.RawListing{
		Title:        text(".property-title"),
		Price:        text(".property-price"),
		Area:         text(".property-area"),
		Rooms:        text(".property-rooms"),
		Location:     text(".property-location"),
		DaysOnMarket: models.RawField(days),
		YearBuilt:    year,
		HeatingType:  text(".property-heating"),
		Features:     features,
		URL:          models.RawField(link),
	}
}
