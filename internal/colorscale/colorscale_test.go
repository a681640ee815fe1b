package colorscale

import "testing"

func TestNew_WidensDegenerateDomain(t *testing.T) {
	s := New(0.5, 0.5)
	min, max := s.Domain()
	if min != 0 || max != 1 {
		t.Fatalf("expected unit domain, got [%v,%v]", min, max)
	}
}

func TestHex_Endpoints(t *testing.T) {
	s := New(0, 1)
	if got := s.Hex(0); got != "#440154" {
		t.Fatalf("expected viridis low endpoint, got %s", got)
	}
	if got := s.Hex(1); got != "#fde725" {
		t.Fatalf("expected viridis high endpoint, got %s", got)
	}
	// Out-of-domain values clamp.
	if s.Hex(-5) != s.Hex(0) || s.Hex(5) != s.Hex(1) {
		t.Fatalf("expected clamping at domain edges")
	}
}

func TestFromValues(t *testing.T) {
	s := FromValues([]float64{0.2, 0.8, 0.4})
	min, max := s.Domain()
	if min != 0.2 || max != 0.8 {
		t.Fatalf("expected observed domain [0.2,0.8], got [%v,%v]", min, max)
	}
	if FromValues(nil).Hex(0.3) == "" {
		t.Fatalf("empty input must still produce a usable scale")
	}
}
