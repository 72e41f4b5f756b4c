package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"property-tracker/models"
)

var csvHeader = []string{
	"source", "title", "price", "area", "rooms", "location", "days_on_market",
	"year_built", "heating_type", "features", "url", "scraped_at",
}

// CSVWriter writes listings as CSV rows to an io.Writer.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	writer *csv.Writer
}

// NewCSVWriter writes the header row to w.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	return &CSVWriter{writer: cw}, nil
}

// Write appends one row per listing. Features are joined with "; ".
func (c *CSVWriter) Write(listings []models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		days := ""
		if l.DaysOnMarket != nil {
			days = strconv.Itoa(*l.DaysOnMarket)
		}
		scrapedAt := ""
		if !l.ScrapedAt.IsZero() {
			scrapedAt = l.ScrapedAt.Format(time.RFC3339)
		}
		row := []string{
			string(l.Source),
			l.Title,
			strconv.FormatInt(l.Price, 10),
			strconv.FormatFloat(l.Area, 'f', -1, 64),
			strconv.Itoa(l.Rooms),
			l.Location,
			days,
			strconv.Itoa(l.YearBuilt),
			l.HeatingType,
			strings.Join(l.Features, "; "),
			l.URL,
			scrapedAt,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}
