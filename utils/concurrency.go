package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerPool runs jobs on a bounded number of goroutines. Job starts can be
// paced with a minimum interval.
type WorkerPool struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
	wg        sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool. maxWorkers < 1 is treated as 1;
// minInterval <= 0 disables pacing.
func NewWorkerPool(maxWorkers int, minInterval time.Duration) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &WorkerPool{
		semaphore: make(chan struct{}, maxWorkers),
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Submit enqueues a job. It blocks while all workers are busy.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		// Background never cancels, so Wait only errors on misconfiguration.
		_ = wp.limiter.Wait(context.Background())
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// KeySet is a thread-safe set of comparable keys.
type KeySet[K comparable] struct {
	mu   sync.Mutex
	seen map[K]struct{}
}

// NewKeySet creates an empty KeySet.
func NewKeySet[K comparable]() *KeySet[K] {
	return &KeySet[K]{seen: make(map[K]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet[K]) Add(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[k]; exists {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}
