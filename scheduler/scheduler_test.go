package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"property-tracker/models"
)

type stubSearcher struct {
	calls    atomic.Int32
	listings []models.Listing
	called   chan struct{}
}

func (s *stubSearcher) SearchAllSources(_ context.Context, c models.Criteria) models.SearchResult {
	s.calls.Add(1)
	if s.called != nil {
		select {
		case s.called <- struct{}{}:
		default:
		}
	}
	return models.SearchResult{Listings: models.CloneListings(s.listings)}
}

type recordingWriter struct {
	mu     sync.Mutex
	writes [][]models.Listing
	err    error
	block  chan struct{}
}

func (w *recordingWriter) WriteCatalog(_ context.Context, ls []models.Listing) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, ls)
	return w.err
}

func sample() []models.Listing {
	return []models.Listing{
		{Title: "Reihenhaus modern ausgebaut", Price: 580000, Source: models.SourceLBS},
		{Title: "Wohnung in beliebter Innenstadtlage", Price: 445000, Source: models.SourceVolksbank},
	}
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	if _, err := New("every now and then", &stubSearcher{}, nil); err == nil {
		t.Error("expected an error for an invalid spec")
	}
	if _, err := New("@every 6h", &stubSearcher{}, nil); err != nil {
		t.Errorf("@every 6h: %v", err)
	}
}

func TestRunOnceWritesCatalog(t *testing.T) {
	searcher := &stubSearcher{listings: sample()}
	ok := &recordingWriter{}
	failing := &recordingWriter{err: errors.New("disk full")}
	s, err := New("@every 1h", searcher, nil, ok, failing)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.RunOnce(context.Background())
	if err == nil {
		t.Error("expected the failing writer's error")
	}
	if len(ok.writes) != 1 || len(ok.writes[0]) != 2 {
		t.Errorf("writer: got %v", ok.writes)
	}
	if len(failing.writes) != 1 {
		t.Errorf("failing writer must still be called, got %d writes", len(failing.writes))
	}
}

func TestRunOnceSkipsEmptyCrawl(t *testing.T) {
	w := &recordingWriter{}
	s, _ := New("@every 1h", &stubSearcher{}, nil, w)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(w.writes) != 0 {
		t.Errorf("empty crawl must not replace the catalog: got %d writes", len(w.writes))
	}
}

func TestStartRunsImmediately(t *testing.T) {
	searcher := &stubSearcher{listings: sample(), called: make(chan struct{}, 1)}
	s, _ := New("@every 1h", searcher, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	select {
	case <-searcher.called:
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh cycle ran after Start")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start must fail")
	}
}

func TestStopWaitsForInitialCycle(t *testing.T) {
	searcher := &stubSearcher{listings: sample(), called: make(chan struct{}, 1)}
	w := &recordingWriter{block: make(chan struct{})}
	s, _ := New("@every 1h", searcher, nil, w)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-searcher.called

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the initial cycle was still writing")
	case <-time.After(50 * time.Millisecond):
	}

	close(w.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the initial cycle finished")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.writes) != 1 {
		t.Errorf("writes: got %d, want 1", len(w.writes))
	}
}
