// Package volksbank scrapes the Volksbank Stuttgart property portal with colly.
package volksbank

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"property-tracker/models"
	"property-tracker/utils"
)

const (
	DefaultBaseURL = "https://immobilien.volksbank-stuttgart.de"
	cardSelector   = ".estate-item"
)

type Options struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	Logger      *utils.Logger
}

// Fetcher holds a parent collector; every Fetch runs on a clone so callbacks
// never leak between runs while the limit rules stay shared.
type Fetcher struct {
	collector *colly.Collector
	baseURL   string
	randomUA  bool
	logger    *utils.Logger
}

func New(opts Options) (*Fetcher, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("volksbank: invalid base URL %q", base)
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}

	// Clones share the visited-URL store, and every refresh revisits the same search page.
	c := colly.NewCollector(colly.AllowedDomains(u.Hostname()), colly.AllowURLRevisit())
	ua := strings.TrimSpace(opts.UserAgent)
	if ua != "" {
		c.UserAgent = ua
	}

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       opts.MinInterval,
	}); err != nil {
		return nil, fmt.Errorf("volksbank: limit rule: %w", err)
	}

	return &Fetcher{collector: c, baseURL: base, randomUA: ua == "", logger: logger}, nil
}

func (f *Fetcher) Source() models.Source { return models.SourceVolksbank }

func (f *Fetcher) Fetch(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error) {
	c := f.collector.Clone()
	// Callbacks, including those of extensions, are not cloned.
	if f.randomUA {
		extensions.RandomUserAgent(c)
	}
	extensions.Referer(c)
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}

	var (
		mu       sync.Mutex
		items    []models.RawListing
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		f.logger.Debug("[volksbank] GET %s", r.URL)
	})
	c.OnHTML(cardSelector, func(e *colly.HTMLElement) {
		item := parseCard(e)
		mu.Lock()
		items = append(items, item)
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		fetchErr = fmt.Errorf("volksbank: %s: status %d: %w", r.Request.URL, r.StatusCode, err)
	})

	if err := c.Visit(f.searchURL(criteria)); err != nil {
		return nil, fmt.Errorf("volksbank: visit: %w", err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("volksbank: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if fetchErr != nil {
		return nil, fetchErr
	}
	f.logger.Info("[volksbank] scraped %d cards", len(items))
	return items, nil
}

func (f *Fetcher) searchURL(criteria models.Criteria) string {
	q := url.Values{}
	if criteria.MinPrice != nil {
		q.Set("priceFrom", strconv.FormatInt(*criteria.MinPrice, 10))
	}
	if criteria.MaxPrice != nil {
		q.Set("priceTo", strconv.FormatInt(*criteria.MaxPrice, 10))
	}
	if criteria.MinArea != nil {
		q.Set("areaFrom", strconv.FormatFloat(*criteria.MinArea, 'f', -1, 64))
	}
	if len(q) == 0 {
		return f.baseURL + "/immobilien"
	}
	return f.baseURL + "/immobilien?" + q.Encode()
}

func parseCard(e *colly.HTMLElement) models.RawListing {
	var features []string
	e.ForEach(".property-features span", func(_ int, el *colly.HTMLElement) {
		features = append(features, el.Text)
	})

	link := e.ChildAttr("a", "href")
	if link != "" {
		link = e.Request.AbsoluteURL(link)
	}

	return models.RawListing{
		Title:        models.RawField(e.ChildText(".property-title")),
		Price:        models.RawField(e.ChildText(".property-price")),
		Area:         models.RawField(e.ChildText(".property-area")),
		Rooms:        models.RawField(e.ChildText(".property-rooms")),
		Location:     models.RawField(e.ChildText(".property-location")),
		DaysOnMarket: models.RawField(e.ChildAttr(".property-listed-date", "data-days")),
		YearBuilt:    models.RawField(e.ChildText(".property-year")),
		HeatingType:  models.RawField(e.ChildText(".property-heating")),
		Features:     features,
		URL:          models.RawField(link),
	}
}
