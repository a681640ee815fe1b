package store

import (
	"testing"

	"github.com/google/uuid"

	"mutamap/core-go/internal/provider"
	"mutamap/core-go/internal/record"
)

func dataset(indices ...int) provider.Dataset {
	recs := make([]record.Record, len(indices))
	for i, idx := range indices {
		recs[i] = record.Record{Index: idx, Latitude: 1, Longitude: 2, X: 3, Y: 4, MutationValue: 0.5}
	}
	return provider.Dataset{ID: uuid.New(), Provenance: provider.ProvenanceGenerated, Records: recs}
}

func TestSelect_RejectsUnknownIndex(t *testing.T) {
	s := New()
	s.ReplaceDataset(dataset(1, 2, 3), false)

	if s.Select(99) {
		t.Fatalf("expected unknown index to be rejected")
	}
	if got := s.Snapshot().SelectedIndex; got != NoSelection {
		t.Fatalf("rejected select must not change state, got %d", got)
	}
	if !s.Select(2) {
		t.Fatalf("expected known index to be accepted")
	}
	if !s.Select(NoSelection) {
		t.Fatalf("clearing selection must always be accepted")
	}
}

func TestReplaceDataset_ClearsDanglingSelection(t *testing.T) {
	s := New()
	s.ReplaceDataset(dataset(1, 2, 3), false)
	s.Select(2)

	s.ReplaceDataset(dataset(10, 11), true)
	if got := s.Snapshot().SelectedIndex; got != NoSelection {
		t.Fatalf("expected dangling selection cleared, got %d", got)
	}
}

func TestReplaceDataset_KeepsResolvableSelection(t *testing.T) {
	s := New()
	s.ReplaceDataset(dataset(1, 2, 3), false)
	s.Select(2)

	s.ReplaceDataset(dataset(2, 4), true)
	if got := s.Snapshot().SelectedIndex; got != 2 {
		t.Fatalf("expected surviving selection kept, got %d", got)
	}
}

func TestResetToOriginal_IsIdempotentAndDeselects(t *testing.T) {
	s := New()
	original := dataset(1, 2, 3)
	s.ReplaceDataset(original, false)

	s.ReplaceDataset(dataset(10, 11), true)
	s.Select(10)

	s.ResetToOriginal()
	first := s.Snapshot()
	if first.SelectedIndex != NoSelection {
		t.Fatalf("reset must always deselect, got %d", first.SelectedIndex)
	}
	if len(first.Dataset.Records) != 3 || first.Dataset.Records[0].Index != 1 {
		t.Fatalf("expected original dataset restored, got %+v", first.Dataset.Records)
	}

	s.ResetToOriginal()
	second := s.Snapshot()
	if len(second.Dataset.Records) != len(first.Dataset.Records) || second.SelectedIndex != NoSelection {
		t.Fatalf("double reset must equal single reset")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New()
	s.ReplaceDataset(dataset(1, 2), false)

	snap := s.Snapshot()
	snap.Dataset.Records[0].Index = 999

	if _, ok := s.Resolve(999); ok {
		t.Fatalf("mutating a snapshot must not affect the store")
	}
	if _, ok := s.Resolve(1); !ok {
		t.Fatalf("expected original record intact")
	}
}

func TestResolve(t *testing.T) {
	s := New()
	s.ReplaceDataset(dataset(5, 6), false)

	if _, ok := s.Resolve(NoSelection); ok {
		t.Fatalf("NoSelection must not resolve")
	}
	rec, ok := s.Resolve(6)
	if !ok || rec.Index != 6 {
		t.Fatalf("expected record 6, got %+v ok=%v", rec, ok)
	}
}

func TestRecordAPICall(t *testing.T) {
	s := New()
	if got := s.RecordAPICall(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := s.RecordAPICall(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := s.Snapshot().APICalls; got != 2 {
		t.Fatalf("expected snapshot to carry counter, got %d", got)
	}
}
