package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is the canonical mutation data point shared by every view.
// Index is a stable identity within one dataset, not an array position.
type Record struct {
	Index         int            `json:"index"`
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	X             float64        `json:"x"`
	Y             float64        `json:"y"`
	MutationValue float64        `json:"mutation_value"`
	Extra         map[string]any `json:"extra,omitempty"`
}

var requiredFields = []string{"latitude", "longitude", "x", "y", "mutation_value"}

// RequiredFields returns the canonical names every ingestion source must provide.
func RequiredFields() []string {
	out := make([]string, len(requiredFields))
	copy(out, requiredFields)
	return out
}

var fieldAliases = map[string][]string{
	"index":          {"index", "id", "idx"},
	"latitude":       {"latitude", "lat"},
	"longitude":      {"longitude", "lon", "lng", "long"},
	"x":              {"x", "umap_x", "cluster_x"},
	"y":              {"y", "umap_y", "cluster_y"},
	"mutation_value": {"mutation_value", "mutationvalue", "value", "intensity"},
}

// CanonicalField maps a header or key name to its canonical field name.
// The empty string means the name is not a recognized required field.
func CanonicalField(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for canonical, aliases := range fieldAliases {
		for _, a := range aliases {
			if n == a {
				return canonical
			}
		}
	}
	return ""
}

// ValidationError reports why a single raw record was rejected. Rejections
// are per-record; callers drop the record and keep going.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: field %q %s", e.Field, e.Reason)
}

func reject(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Normalizer converts raw rows from any ingestion source into validated
// Records while keeping index assignment deterministic within one batch.
// Not safe for concurrent use; create one per batch.
type Normalizer struct {
	used map[int]struct{}
	next int
}

// NewNormalizer starts a batch whose auto-assigned indices begin at base.
func NewNormalizer(base int) *Normalizer {
	if base < 0 {
		base = 0
	}
	return &Normalizer{used: make(map[int]struct{}), next: base}
}

// Normalize validates one raw record and coerces its fields. A raw index is
// kept when it is a non-negative integer unused in this batch; otherwise the
// next free integer is assigned.
func (n *Normalizer) Normalize(raw map[string]any) (Record, error) {
	var rec Record
	consumed := map[string]struct{}{}

	for _, field := range requiredFields {
		key, v, ok := lookup(raw, field)
		if !ok {
			return Record{}, reject(field, "is missing")
		}
		f, ok := toFloat(v)
		if !ok {
			return Record{}, reject(field, "is not numeric")
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Record{}, reject(field, "is not finite")
		}
		switch field {
		case "latitude":
			if f < -90 || f > 90 {
				return Record{}, reject(field, "is outside [-90,90]")
			}
			rec.Latitude = f
		case "longitude":
			if f < -180 || f > 180 {
				return Record{}, reject(field, "is outside [-180,180]")
			}
			rec.Longitude = f
		case "x":
			rec.X = f
		case "y":
			rec.Y = f
		case "mutation_value":
			if f < 0 || f > 1 {
				return Record{}, reject(field, "is outside [0,1]")
			}
			rec.MutationValue = f
		}
		consumed[key] = struct{}{}
	}

	idx, key, ok := n.rawIndex(raw)
	if ok {
		consumed[key] = struct{}{}
	} else {
		idx = n.nextFree()
	}
	n.used[idx] = struct{}{}
	rec.Index = idx

	// Everything the source sent beyond the required fields is carried
	// through untouched for display.
	for k, v := range raw {
		if _, ok := consumed[k]; ok {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]any)
		}
		rec.Extra[k] = v
	}

	return rec, nil
}

func (n *Normalizer) rawIndex(raw map[string]any) (int, string, bool) {
	key, v, ok := lookup(raw, "index")
	if !ok {
		return 0, "", false
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, key, false
	}
	idx := int(f)
	if _, taken := n.used[idx]; taken {
		return 0, key, false
	}
	return idx, key, true
}

func (n *Normalizer) nextFree() int {
	for {
		if _, taken := n.used[n.next]; !taken {
			return n.next
		}
		n.next++
	}
}

func lookup(raw map[string]any, canonical string) (string, any, bool) {
	for k, v := range raw {
		if CanonicalField(k) == canonical {
			return k, v, true
		}
	}
	return "", nil, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Clone returns a deep-enough copy of rs for copy-out snapshots. Extra maps
// are shared; they are treated as immutable after normalization.
func Clone(rs []Record) []Record {
	if rs == nil {
		return nil
	}
	out := make([]Record, len(rs))
	copy(out, rs)
	return out
}
