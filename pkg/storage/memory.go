package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the latest run per name in a map. It is safe for
// concurrent use. With a TTL, a background goroutine drops runs whose
// GeneratedAt is older than the TTL.
type MemoryStore struct {
	mu            sync.RWMutex
	runs          map[string]Run
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory store with no TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]Run),
	}
}

// NewMemoryStoreWithTTL creates an in-memory store that removes runs older
// than ttl every cleanupInterval (default one minute). Call Stop when done.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		runs:          make(map[string]Run),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the cleanup goroutine and waits for it to exit.
// It is a no-op on stores without TTL and on repeated calls.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes runs older than the TTL.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for name, run := range s.runs {
		if now.Sub(run.GeneratedAt) > s.ttl {
			delete(s.runs, name)
		}
	}
}

// Put stores a run under its name, replacing any previous run.
func (s *MemoryStore) Put(ctx context.Context, run Run) error {
	if err := ValidateName(run.Name); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.Name] = run
	return nil
}

// GetLatest returns the run stored under name. found is false when there is none.
func (s *MemoryStore) GetLatest(ctx context.Context, name string) (Run, bool, error) {
	select {
	case <-ctx.Done():
		return Run{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, found := s.runs[name]
	return run, found, nil
}

// Len returns the number of stored runs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Delete removes the run stored under name and reports whether one existed.
func (s *MemoryStore) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.runs[name]
	delete(s.runs, name)
	return existed
}
