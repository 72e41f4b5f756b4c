// Package sparkasse renders the Sparkasse property search with headless Chrome
// and parses the result cards with goquery.
package sparkasse

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"property-tracker/models"
	"property-tracker/utils"
)

const (
	DefaultBaseURL = "https://immobilien.sparkasse.de"
	itemSelector   = ".property-item"
	// yearFallback is reported when a card shows no construction year.
	yearFallback     = "2000"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	settleDelay = 2 * time.Second
)

type Options struct {
	BaseURL   string
	UserAgent string
	ChromeBin string
	// State is the federal state filter of the search form.
	State  string
	Logger *utils.Logger
}

type Fetcher struct {
	baseURL   string
	userAgent string
	chromeBin string
	state     string
	logger    *utils.Logger
}

func New(opts Options) *Fetcher {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}
	return &Fetcher{
		baseURL:   base,
		userAgent: ua,
		chromeBin: findChromeBinary(opts.ChromeBin),
		state:     strings.TrimSpace(opts.State),
		logger:    logger,
	}
}

func (f *Fetcher) Source() models.Source { return models.SourceSparkasse }

// Fetch starts a browser for this call only; cancelling ctx tears it down.
func (f *Fetcher) Fetch(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(f.userAgent),
	)
	if f.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(f.chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	searchURL := f.searchURL(criteria)
	f.logger.Info("[sparkasse] rendering %s", searchURL)

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("sparkasse: render: %w", err)
	}

	items, err := ParseItems(strings.NewReader(html), f.baseURL)
	if err != nil {
		return nil, err
	}
	f.logger.Info("[sparkasse] parsed %d cards", len(items))
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
	if f.state != "" {
		q.Set("state", f.state)
	}
	if len(q) == 0 {
		return f.baseURL + "/suche"
	}
	return f.baseURL + "/suche?" + q.Encode()
}

// findChromeBinary prefers the configured path, then CHROME_BIN, then common
// install locations. "" lets chromedp pick its default.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
