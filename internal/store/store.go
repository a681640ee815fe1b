package store

import (
	"sync"

	"mutamap/core-go/internal/provider"
	"mutamap/core-go/internal/record"
)

// NoSelection is the "nothing selected" sentinel. Record indices are
// non-negative, so it can never collide with a real one.
const NoSelection = -1

// Store owns the dashboard's shared state: the active dataset, the original
// dataset kept for reset, the selected index and the API call counter. All
// mutation goes through the structured methods below; reads hand out copies
// so callers can never alias internal state.
type Store struct {
	mu       sync.RWMutex
	original provider.Dataset
	current  provider.Dataset
	selected int
	apiCalls int64
}

// Snapshot is a consistent copy of the store taken under one lock.
type Snapshot struct {
	Dataset       provider.Dataset
	SelectedIndex int
	APICalls      int64
}

func New() *Store {
	return &Store{selected: NoSelection}
}

// ReplaceDataset installs ds as the current dataset. With preserveOriginal
// false the original is reset too (fresh loads); with true the original is
// kept (exploratory loads that reset can undo). A selection that no longer
// resolves in ds is cleared.
func (s *Store) ReplaceDataset(ds provider.Dataset, preserveOriginal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = ds.Clone()
	if !preserveOriginal {
		s.original = ds.Clone()
	}
	if s.selected != NoSelection && !resolves(s.current.Records, s.selected) {
		s.selected = NoSelection
	}
}

// ResetToOriginal restores the original dataset by value and always clears
// the selection; whether the old selection survives a reset is unpredictable,
// so reset means deselect.
func (s *Store) ResetToOriginal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = s.original.Clone()
	s.selected = NoSelection
}

// Select moves the selection to index, or clears it when index is
// NoSelection. An index that does not resolve in the current dataset is
// rejected as a no-op; the return value reports acceptance.
func (s *Store) Select(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == NoSelection {
		s.selected = NoSelection
		return true
	}
	if !resolves(s.current.Records, index) {
		return false
	}
	s.selected = index
	return true
}

// RecordAPICall bumps the diagnostic API call counter.
func (s *Store) RecordAPICall() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiCalls++
	return s.apiCalls
}

// Snapshot returns a consistent copy of the full state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Dataset:       s.current.Clone(),
		SelectedIndex: s.selected,
		APICalls:      s.apiCalls,
	}
}

// Resolve looks up the record with the given index in the current dataset.
// Selection is a weak reference by index, so every use re-resolves here.
func (s *Store) Resolve(index int) (record.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index == NoSelection {
		return record.Record{}, false
	}
	for _, r := range s.current.Records {
		if r.Index == index {
			return r, true
		}
	}
	return record.Record{}, false
}

func resolves(recs []record.Record, index int) bool {
	for _, r := range recs {
		if r.Index == index {
			return true
		}
	}
	return false
}
