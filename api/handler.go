// Package api exposes the property search over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"property-tracker/models"
	"property-tracker/storage"
	"property-tracker/utils"
)

const (
	serviceName = "Regional Property Tracker API"

	// maxBodyBytes caps a search request body.
	maxBodyBytes = 1 << 20
)

// Handler routes the search API.
type Handler struct {
	backend Backend
	version string
	logger  *utils.Logger
	router  *mux.Router
	now     func() time.Time
}

// NewHandler builds the router for backend.
func NewHandler(backend Backend, version string, logger *utils.Logger) *Handler {
	if logger == nil {
		logger = utils.Discard()
	}
	h := &Handler{backend: backend, version: version, logger: logger, now: time.Now}

	r := mux.NewRouter()
	r.HandleFunc("/", h.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/health", h.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/search", h.handleSearch).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/search.csv", h.handleSearchCSV).Methods(http.MethodGet, http.MethodOptions)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(requestID, h.recoverer, mux.CORSMethodMiddleware(r), cors)
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type searchResponse struct {
	Success    bool             `json:"success"`
	Properties []models.Listing `json:"properties"`
	Stats      models.Stats     `json:"stats"`
	Source     string           `json:"source"`
	RequestID  string           `json:"requestId"`
	Timestamp  string           `json:"timestamp"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	criteria, err := decodeCriteria(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = criteria.Validate()
	}
	if err != nil {
		h.logger.Warn("[api] %s rejected search: %v", RequestIDFrom(r.Context()), err)
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result := h.backend.Search(r.Context(), criteria)
	properties := result.Listings
	if properties == nil {
		properties = []models.Listing{}
	}

	h.writeJSON(w, http.StatusOK, searchResponse{
		Success:    true,
		Properties: properties,
		Stats:      result.Stats,
		Source:     h.backend.Mode(),
		RequestID:  RequestIDFrom(r.Context()),
		Timestamp:  h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleSearchCSV(w http.ResponseWriter, r *http.Request) {
	criteria, err := criteriaFromQuery(r)
	if err == nil {
		err = criteria.Validate()
	}
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result := h.backend.Search(r.Context(), criteria)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="properties.csv"`)
	cw, err := storage.NewCSVWriter(w)
	if err != nil {
		h.logger.Error("[api] csv export: %v", err)
		return
	}
	if err := cw.Write(result.Listings); err != nil {
		h.logger.Error("[api] csv export: %v", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"mode":      h.backend.Mode(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	for k, v := range h.backend.Health() {
		body[k] = v
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"version": h.version,
		"mode":    h.backend.Mode(),
		"endpoints": map[string]string{
			"search": "POST /api/search",
			"export": "GET /api/search.csv",
			"health": "GET /api/health",
		},
	})
}

// decodeCriteria reads a Criteria body. An empty body means no filters.
func decodeCriteria(body io.Reader) (models.Criteria, error) {
	var c models.Criteria
	err := json.NewDecoder(body).Decode(&c)
	if errors.Is(err, io.EOF) {
		return models.Criteria{}, nil
	}
	if err != nil {
		return models.Criteria{}, fmt.Errorf("%w: malformed request body: %v", models.ErrCriteriaInvalid, err)
	}
	return c, nil
}

// criteriaFromQuery builds Criteria from URL parameters; sources is a
// comma-separated list.
func criteriaFromQuery(r *http.Request) (models.Criteria, error) {
	q := r.URL.Query()
	var c models.Criteria

	for _, p := range []struct {
		name string
		dst  **int64
	}{{"minPrice", &c.MinPrice}, {"maxPrice", &c.MaxPrice}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrCriteriaInvalid, p.name, v)
		}
		*p.dst = &n
	}

	if v := strings.TrimSpace(q.Get("minArea")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c, fmt.Errorf("%w: minArea must be a number, got %q", models.ErrCriteriaInvalid, v)
		}
		c.MinArea = &f
	}

	c.Region = q.Get("region")
	for _, s := range strings.Split(q.Get("sources"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			c.Sources = append(c.Sources, s)
		}
	}
	return c, nil
}

// writeJSON encodes v before touching w so a failure never leaves a partial body.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("[api] encode response: %v", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Success: false, Error: msg, RequestID: RequestIDFrom(r.Context())})
}
