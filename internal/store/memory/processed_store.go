// Package memory provides in-memory implementations of store interfaces.
// These are useful for testing and development without external dependencies.
package memory

import (
	"context"
	"sync"
	"time"
)

// ProcessedStore is an in-memory implementation of store.ProcessedStore.
// Entries may carry a TTL counted from when they are marked, on the store's
// own clock; expiration is checked on access (lazy expiration).
type ProcessedStore struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time

	entries map[string]processedEntry
}

type processedEntry struct {
	processedAt time.Time
	expiresAt   time.Time // zero means never
}

// NewProcessedStore creates a new in-memory ledger. A ttl of zero keeps entries forever.
func NewProcessedStore(ttl time.Duration) *ProcessedStore {
	return &ProcessedStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]processedEntry),
	}
}

// IsProcessed reports whether orderID has been marked and not expired.
func (s *ProcessedStore) IsProcessed(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[orderID]
	if !exists {
		return false, nil
	}
	return !s.expired(entry), nil
}

// MarkProcessed records orderID as processed at the given time. Returns false
// if it was already marked. The TTL runs from the moment of marking, not from at.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, orderID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.entries[orderID]; exists && !s.expired(entry) {
		return false, nil
	}

	entry := processedEntry{processedAt: at}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[orderID] = entry
	return true, nil
}

// ProcessedAt returns the time recorded for orderID, if it is still marked.
func (s *ProcessedStore) ProcessedAt(orderID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[orderID]
	if !exists || s.expired(entry) {
		return time.Time{}, false
	}
	return entry.processedAt, true
}

// Len returns the number of entries, including expired ones not yet overwritten.
func (s *ProcessedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close clears all data.
func (s *ProcessedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]processedEntry)
	return nil
}

func (s *ProcessedStore) expired(entry processedEntry) bool {
	return !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)
}
