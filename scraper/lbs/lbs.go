// Package lbs fetches listings from the LBS JSON property API.
package lbs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"property-tracker/models"
	"property-tracker/utils"
)

const (
	DefaultBaseURL   = "https://www.lbs.de"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) property-tracker/1.0"
	defaultState     = "BW"
	maxBodyBytes     = 8 << 20
)

type Options struct {
	BaseURL   string
	UserAgent string
	// State is the federal state filter sent to the API.
	State       string
	MinInterval time.Duration
	Logger      *utils.Logger
}

// Fetcher calls GET {base}/api/properties. Requests are paced by a limiter
// shared by all calls of this fetcher.
type Fetcher struct {
	baseURL   string
	userAgent string
	state     string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *utils.Logger
}

func New(opts Options) (*Fetcher, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("lbs: invalid base URL: %w", err)
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	state := strings.TrimSpace(opts.State)
	if state == "" {
		state = defaultState
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}

	return &Fetcher{
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: ua,
		state:     state,
		// The adapter's context carries the deadline.
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

func (f *Fetcher) Source() models.Source { return models.SourceLBS }

func (f *Fetcher) Fetch(ctx context.Context, criteria models.Criteria) ([]models.RawListing, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("lbs: rate limit: %w", err)
	}

	u, err := f.searchURL(criteria)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("[lbs] GET %s", u)

	body, err := f.doGET(ctx, u)
	if err != nil {
		return nil, err
	}
	raw, err := parsePayload(body)
	if err != nil {
		return nil, err
	}
	f.logger.Info("[lbs] fetched %d raw items", len(raw))
	return raw, nil
}

func (f *Fetcher) searchURL(criteria models.Criteria) (string, error) {
	u, err := url.Parse(f.baseURL + "/api/properties")
	if err != nil {
		return "", fmt.Errorf("lbs: %w", err)
	}
	q := u.Query()
	if criteria.MinPrice != nil {
		q.Set("minPrice", strconv.FormatInt(*criteria.MinPrice, 10))
	}
	if criteria.MaxPrice != nil {
		q.Set("maxPrice", strconv.FormatInt(*criteria.MaxPrice, 10))
	}
	if criteria.MinArea != nil {
		q.Set("minArea", strconv.FormatFloat(*criteria.MinArea, 'f', -1, 64))
	}
	q.Set("state", f.state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) doGET(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("lbs: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lbs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("lbs: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("lbs: http status %d", resp.StatusCode)
	}
	return body, nil
}

// parsePayload accepts both {"properties": [...]} and a bare array.
func parsePayload(body []byte) ([]models.RawListing, error) {
	var wrapped struct {
		Properties []models.RawListing `json:"properties"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Properties != nil {
		return wrapped.Properties, nil
	}

	var arr []models.RawListing
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, errors.Join(models.ErrParseFailure, fmt.Errorf("lbs: payload: %w", err))
	}
	return arr, nil
}
