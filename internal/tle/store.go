package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store provides thread-safe access to the latest record per catalog number.
// Readers load an immutable Dataset; writers build a new one and swap it in.
type Store struct {
	dataset atomic.Pointer[Dataset]
	mu      sync.Mutex // serializes merges
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	return s.dataset.Load()
}

// Lookup returns the stored record for id.
func (s *Store) Lookup(id CatalogNumber) (*Record, bool) {
	ds := s.dataset.Load()
	if ds == nil {
		return nil, false
	}
	rec, ok := ds.Records[id]
	return rec, ok
}

// Merge folds records into the current dataset. A record replaces the stored
// one only when its epoch is strictly later. It returns the records that were
// added or replaced.
func (s *Store) Merge(source string, fetchedAt time.Time, records []*Record) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.dataset.Load()
	next := &Dataset{
		Source:    source,
		FetchedAt: fetchedAt,
		Records:   make(map[CatalogNumber]*Record),
	}
	if prev != nil {
		for id, rec := range prev.Records {
			next.Records[id] = rec
		}
	}

	var changed []*Record
	for _, rec := range records {
		if old, ok := next.Records[rec.CatalogNumber]; ok && !rec.Epoch.After(old.Epoch) {
			continue
		}
		next.Records[rec.CatalogNumber] = rec
		changed = append(changed, rec)
	}

	for _, rec := range next.Records {
		if next.EpochRange.Min.IsZero() || rec.Epoch.Before(next.EpochRange.Min) {
			next.EpochRange.Min = rec.Epoch
		}
		if rec.Epoch.After(next.EpochRange.Max) {
			next.EpochRange.Max = rec.Epoch
		}
	}

	s.dataset.Store(next)
	return changed
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}
