package record

import (
	"errors"
	"testing"
)

func validRaw() map[string]any {
	return map[string]any{
		"index":          float64(7),
		"latitude":       "51.5",
		"longitude":      -0.12,
		"x":              1.5,
		"y":              -2.25,
		"mutation_value": "0.42",
		"gene":           "TP53",
	}
}

func TestNormalize_CoercesAndKeepsExtras(t *testing.T) {
	n := NewNormalizer(0)
	rec, err := n.Normalize(validRaw())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Index != 7 {
		t.Fatalf("expected index passthrough, got %d", rec.Index)
	}
	if rec.Latitude != 51.5 || rec.MutationValue != 0.42 {
		t.Fatalf("expected string fields coerced, got lat=%v value=%v", rec.Latitude, rec.MutationValue)
	}
	if rec.Extra["gene"] != "TP53" {
		t.Fatalf("expected gene carried through, got %v", rec.Extra)
	}
	if _, ok := rec.Extra["latitude"]; ok {
		t.Fatalf("required fields must not leak into extras")
	}
}

func TestNormalize_AcceptsAliases(t *testing.T) {
	n := NewNormalizer(0)
	rec, err := n.Normalize(map[string]any{
		"lat": 10.0, "lng": 20.0, "umap_x": 1.0, "umap_y": 2.0, "value": 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Latitude != 10 || rec.Longitude != 20 {
		t.Fatalf("aliases not resolved: %+v", rec)
	}
}

func TestNormalize_RejectsBadRecords(t *testing.T) {
	cases := map[string]func(map[string]any){
		"missing latitude":  func(m map[string]any) { delete(m, "latitude") },
		"non-numeric x":     func(m map[string]any) { m["x"] = "not-a-number" },
		"latitude too big":  func(m map[string]any) { m["latitude"] = 91.0 },
		"longitude too low": func(m map[string]any) { m["longitude"] = -181.0 },
		"value above one":   func(m map[string]any) { m["mutation_value"] = 1.5 },
		"value below zero":  func(m map[string]any) { m["mutation_value"] = -0.1 },
		"non-finite y":      func(m map[string]any) { m["y"] = "NaN" },
	}
	for name, mutate := range cases {
		raw := validRaw()
		mutate(raw)
		n := NewNormalizer(0)
		if _, err := n.Normalize(raw); err == nil {
			t.Fatalf("%s: expected rejection", name)
		} else {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("%s: expected ValidationError, got %T", name, err)
			}
		}
	}
}

func TestNormalize_AssignsUniqueIndices(t *testing.T) {
	n := NewNormalizer(0)
	seen := map[int]struct{}{}

	raws := []map[string]any{validRaw(), validRaw(), validRaw()}
	raws[1]["index"] = float64(7) // collides with raws[0]
	delete(raws[2], "index")

	for i, raw := range raws {
		rec, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if _, dup := seen[rec.Index]; dup {
			t.Fatalf("duplicate index %d", rec.Index)
		}
		seen[rec.Index] = struct{}{}
	}
}

func TestNormalize_NegativeRawIndexReplaced(t *testing.T) {
	n := NewNormalizer(100)
	raw := validRaw()
	raw["index"] = float64(-3)
	rec, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Index != 100 {
		t.Fatalf("expected base index 100, got %d", rec.Index)
	}
}

func TestCanonicalField(t *testing.T) {
	if CanonicalField(" Lat ") != "latitude" {
		t.Fatalf("expected lat alias to resolve")
	}
	if CanonicalField("gene") != "" {
		t.Fatalf("expected unknown column to resolve empty")
	}
}
