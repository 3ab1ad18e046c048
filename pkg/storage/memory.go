package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore keeps outcomes in a map. It is safe for concurrent use.
//
// With a TTL, entries older than the TTL are treated as missing and a
// background goroutine removes them periodically; call Stop to end it.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStore creates a store whose entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// NewMemoryStoreWithTTL creates a store whose entries expire after ttl.
// cleanupInterval <= 0 defaults to one minute. It panics if ttl <= 0.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &MemoryStore{
		entries:       make(map[string]Entry),
		ttl:           ttl,
		now:           time.Now,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go s.runCleanup()

	return s
}

// Stop ends the cleanup goroutine and waits for it. It is safe to call more
// than once and on stores without a TTL.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
		s.cleanupTicker.Stop()
	})
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

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) expired(e Entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.GeneratedAt) > s.ttl
}

// Put stores entry under entry.Key, replacing any previous entry.
func (s *MemoryStore) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" {
		return errors.New("entry key cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key] = entry
	return nil
}

// Get returns the entry stored under key, if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, found := s.entries[key]
	if !found || s.expired(e, s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Delete removes the entry for key and reports whether one existed.
func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.entries[key]
	delete(s.entries, key)
	return existed
}
