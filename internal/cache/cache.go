// Package cache holds the Healer's two in-memory stores: the Healing
// Cache (original selector -> last-known-good healed selector) and the
// Flakiness Tracker (per-selector failure/heal counters). Both are
// process-local and guarded by a plain mutex; the Healer is documented as
// single-threaded per instance, but the stores are still read concurrently
// by the admin server and metrics scraper.
package cache

import (
	"sync"
	"time"

	"github.com/selectorheal/selectorheal/internal/domain"
)

// Store is the Healer's cache and flakiness tracker, keyed by the original
// broken selector.
type Store struct {
	mu         sync.Mutex
	entries    map[domain.Selector]domain.CacheEntry
	flakiness  map[domain.Selector]domain.FlakinessEntry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		entries:   make(map[domain.Selector]domain.CacheEntry),
		flakiness: make(map[domain.Selector]domain.FlakinessEntry),
	}
}

// Lookup returns the cached healed selector for original, if present.
func (s *Store) Lookup(original domain.Selector) (domain.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[original]
	return entry, ok
}

// RecordHit bumps an existing cache entry's hit count and last-used time,
// called when a cached selector is reused without re-running strategies.
func (s *Store) RecordHit(original domain.Selector, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[original]
	if !ok {
		return
	}
	entry.HitCount++
	entry.LastUsedAt = now
	s.entries[original] = entry
}

// Put stores or replaces the cache entry for original.
func (s *Store) Put(original domain.Selector, result domain.HealingResult, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[original]
	createdAt := now
	if ok {
		createdAt = existing.CreatedAt
	}
	s.entries[original] = domain.CacheEntry{
		Original:   original,
		Healed:     result.Selector,
		Strategy:   result.Strategy,
		Confidence: result.Confidence,
		HitCount:   0,
		CreatedAt:  createdAt,
		LastUsedAt: now,
	}
}

// Evict removes original's cache entry. The Healer calls this the moment
// a cached selector fails to validate, so a stale cache entry is never
// retried.
func (s *Store) Evict(original domain.Selector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, original)
}

// Clear empties both the cache and the flakiness tracker.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[domain.Selector]domain.CacheEntry)
	s.flakiness = make(map[domain.Selector]domain.FlakinessEntry)
}

// RecordFailure increments original's failure count, creating an entry if
// one doesn't exist.
func (s *Store) RecordFailure(original domain.Selector, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.flakiness[original]
	entry.Selector = original
	entry.FailureCount++
	entry.LastFailureAt = now
	s.flakiness[original] = entry
}

// RecordHeal increments original's successful-heal count.
func (s *Store) RecordHeal(original domain.Selector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.flakiness[original]
	entry.Selector = original
	entry.HealCount++
	s.flakiness[original] = entry
}

// FlakinessStats returns a snapshot of every tracked selector's flakiness
// entry, for getFlakinessStats().
func (s *Store) FlakinessStats() []domain.FlakinessEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FlakinessEntry, 0, len(s.flakiness))
	for _, entry := range s.flakiness {
		out = append(out, entry)
	}
	return out
}

// Size returns the number of cached healed-selector mappings.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TotalHits sums HitCount across every cache entry, for healthCheck's
// cache-hit-count field.
func (s *Store) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, entry := range s.entries {
		total += entry.HitCount
	}
	return total
}
