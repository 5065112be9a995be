package score

import (
	"math"
	"testing"

	"github.com/dshills/oceancheck/internal/schema"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{2.5, 2.5},
		{5, 5},
		{-1, 0},
		{7, 5},
		{math.NaN(), 0},
	}
	for _, c := range cases {
		if got := Clamp(c.in); got != c.want {
			t.Errorf("Clamp(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestInRange(t *testing.T) {
	if !InRange(schema.OCEAN{O: 0, C: 5, E: 2.5, A: 1, N: 4}) {
		t.Error("expected in-range scores to pass")
	}
	if InRange(schema.OCEAN{O: 6}) {
		t.Error("expected O=6 to be out of range")
	}
	if InRange(schema.OCEAN{N: -0.5}) {
		t.Error("expected N=-0.5 to be out of range")
	}
}

func TestCompatibility(t *testing.T) {
	cases := []struct {
		name string
		a, b schema.OCEAN
		want int
	}{
		{"identical", schema.OCEAN{O: 3, C: 3, E: 3, A: 3, N: 3}, schema.OCEAN{O: 3, C: 3, E: 3, A: 3, N: 3}, 100},
		{"opposite extremes", schema.OCEAN{}, schema.OCEAN{O: 5, C: 5, E: 5, A: 5, N: 5}, 0},
		{"one point apart", schema.OCEAN{O: 1}, schema.OCEAN{O: 2}, 96},
		{"mixed", schema.OCEAN{O: 4, C: 2, E: 1}, schema.OCEAN{O: 2, C: 3, E: 1}, 88},
		{"fractional", schema.OCEAN{O: 1.5}, schema.OCEAN{O: 1}, 98},
	}
	for _, c := range cases {
		if got := Compatibility(c.a, c.b); got != c.want {
			t.Errorf("%s: Compatibility = %d, want %d", c.name, got, c.want)
		}
		if got := Compatibility(c.b, c.a); got != c.want {
			t.Errorf("%s: Compatibility not symmetric: %d", c.name, got)
		}
	}
}

func TestDeltas(t *testing.T) {
	got := Deltas(schema.OCEAN{O: 1, N: 5}, schema.OCEAN{O: 4, N: 2})
	want := schema.OCEAN{O: 3, N: 3}
	if got != want {
		t.Errorf("Deltas = %+v, want %+v", got, want)
	}
}

func TestLabel(t *testing.T) {
	cases := []struct {
		s    int
		want string
	}{
		{100, LabelHigh},
		{75, LabelHigh},
		{74, LabelModerate},
		{50, LabelModerate},
		{49, LabelLow},
		{0, LabelLow},
	}
	for _, c := range cases {
		if got := Label(c.s); got != c.want {
			t.Errorf("Label(%d) = %q, want %q", c.s, got, c.want)
		}
	}
}

func TestDominant(t *testing.T) {
	if got := Dominant(schema.OCEAN{O: 1, C: 2, E: 4, A: 3, N: 0}); got != schema.TraitExtraversion {
		t.Errorf("Dominant = %q, want e", got)
	}
	// Ties resolve to the earlier trait.
	if got := Dominant(schema.OCEAN{O: 3, C: 3}); got != schema.TraitOpenness {
		t.Errorf("Dominant tie = %q, want o", got)
	}
}

func TestTraitName(t *testing.T) {
	for _, tr := range schema.Traits {
		if TraitName(tr) == string(tr) {
			t.Errorf("TraitName(%q) has no long name", tr)
		}
	}
}
