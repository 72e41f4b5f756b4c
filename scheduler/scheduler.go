// Package scheduler wires up the cron job that periodically crawls every
// source and republishes the catalog.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"property-tracker/models"
	"property-tracker/storage"
	"property-tracker/utils"
)

// Searcher runs one aggregated search across all sources.
type Searcher interface {
	SearchAllSources(ctx context.Context, criteria models.Criteria) models.SearchResult
}

// Scheduler wraps robfig/cron and manages the refresh loop.
type Scheduler struct {
	cron     *cron.Cron
	spec     string // cron spec, e.g. "@every 6h"
	searcher Searcher
	writers  []storage.CatalogWriter
	logger   *utils.Logger

	mu      sync.Mutex
	running bool
	initial sync.WaitGroup // the immediate cycle launched by Start
}

// New creates a Scheduler. Every cycle runs an unconstrained search and
// writes the merged listings to each writer.
func New(spec string, searcher Searcher, logger *utils.Logger, writers ...storage.CatalogWriter) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	if logger == nil {
		logger = utils.Discard()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		spec:     spec,
		searcher: searcher,
		writers:  writers,
		logger:   logger,
	}, nil
}

// Start registers the job and starts the scheduler. It also runs one cycle
// immediately so caches are warm without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler: already started")
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("[scheduler] Refresh cycle: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("[scheduler] Cron started; spec: %s", s.spec)

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("[scheduler] Initial refresh: %v", err)
		}
	}()
	return nil
}

// Stop halts the cron and waits for running cycles, including the initial
// one, to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.running = false
	s.logger.Info("[scheduler] Cron stopped")
}

// RunOnce performs a single refresh cycle. An empty crawl leaves the stored
// catalog untouched.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.logger.Info("[scheduler] Refresh cycle started")

	result := s.searcher.SearchAllSources(ctx, models.Criteria{})
	if len(result.Listings) == 0 {
		s.logger.Warn("[scheduler] Crawl returned no listings; keeping the current catalog")
		return nil
	}

	var errs []error
	for _, w := range s.writers {
		if err := w.WriteCatalog(ctx, result.Listings); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("[scheduler] Refresh cycle complete: %d listings, %d writer error(s)", len(result.Listings), len(errs))
	return errors.Join(errs...)
}
