package lbs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"property-tracker/models"
)

func TestFetchSendsCriteriaAndParsesWrappedPayload(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/properties" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"properties": [
			{"title": "Reihenhaus modern ausgebaut", "price": 580000, "area": 110, "rooms": 4,
			 "location": "Stuttgart-Möhringen, 70435", "daysOnMarket": 6, "url": "https://www.lbs.de/property/987"}
		]}`))
	}))
	defer srv.Close()

	f, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	minPrice, minArea := int64(200000), 70.5
	raw, err := f.Fetch(context.Background(), models.Criteria{MinPrice: &minPrice, MinArea: &minArea})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotQuery != "minArea=70.5&minPrice=200000&state=BW" {
		t.Errorf("query: got %q", gotQuery)
	}
	if len(raw) != 1 || raw[0].Price.String() != "580000" || raw[0].Title.String() != "Reihenhaus modern ausgebaut" {
		t.Errorf("items: got %+v", raw)
	}
}

func TestFetchAcceptsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title": "a"}, {"title": "b"}]`))
	}))
	defer srv.Close()

	f, _ := New(Options{BaseURL: srv.URL})
	raw, err := f.Fetch(context.Background(), models.Criteria{})
	if err != nil || len(raw) != 2 {
		t.Fatalf("got %d items, err %v", len(raw), err)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantParse bool
	}{
		{"server error", http.StatusBadGateway, `oops`, false},
		{"malformed json", http.StatusOK, `{"properties": [`, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))

		f, _ := New(Options{BaseURL: srv.URL})
		_, err := f.Fetch(context.Background(), models.Criteria{})
		srv.Close()

		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if got := errors.Is(err, models.ErrParseFailure); got != tt.wantParse {
			t.Errorf("%s: errors.Is(ErrParseFailure) = %v, want %v (%v)", tt.name, got, tt.wantParse, err)
		}
	}
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f, _ := New(Options{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, models.Criteria{}); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
