package analysis

import (
	"testing"
)

func TestConcentrationRatio(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                                   string
		cellCount, rowTotal, colTotal, grandTotal int
		want                                   float64
	}{
		{"matches overall rate", 2, 10, 20, 100, 1.0},
		{"five times expected", 5, 10, 10, 100, 5.0},
		{"zero grand total", 3, 5, 5, 0, 0.0},
		{"zero row total", 0, 0, 5, 100, 0.0},
		{"zero col total", 3, 5, 0, 100, 0.0},
	}
	for _, tc := range cases {
		got := ConcentrationRatio(tc.cellCount, tc.rowTotal, tc.colTotal, tc.grandTotal)
		if got != tc.want {
			t.Fatalf("%s: ConcentrationRatio=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSimpsonsNeff(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		counts []int
		want   float64
	}{
		{"empty", nil, 0.0},
		{"single contribution", []int{1}, 1.0},
		{"single dominant voice", []int{9}, 1.0},
		{"two equal voices", []int{5, 5}, 2.25},
		{"maximal diversity", []int{1, 1, 1, 1, 1, 1, 1, 1, 1}, 9.0},
	}
	for _, tc := range cases {
		got := SimpsonsNeff(tc.counts)
		if got != tc.want {
			t.Fatalf("%s: SimpsonsNeff(%v)=%v, want %v", tc.name, tc.counts, got, tc.want)
		}
	}
}

func TestMeanIntensity(t *testing.T) {
	t.Parallel()

	if got := MeanIntensity(nil); got != 0.0 {
		t.Fatalf("MeanIntensity(nil)=%v, want 0", got)
	}
	if got := MeanIntensity([]int{1, 2, 3}); got != 2.0 {
		t.Fatalf("MeanIntensity([1 2 3])=%v, want 2", got)
	}
}

func TestCompositeSignal(t *testing.T) {
	t.Parallel()

	if got := CompositeSignal(5.0, 10.0, 10, 3.0); got != 5.0 {
		t.Fatalf("CompositeSignal=%v, want 5", got)
	}
	if got := CompositeSignal(7.3, 2.1, 0, 1.5); got != 0.0 {
		t.Fatalf("CompositeSignal with zero participants=%v, want 0", got)
	}
}

func TestAdjustedResidual(t *testing.T) {
	t.Parallel()

	if got := AdjustedResidual(20, 50, 40, 100); got != 0.0 {
		t.Fatalf("residual at exact independence=%v, want 0", got)
	}
	if got := AdjustedResidual(30, 50, 40, 100); got <= 0 {
		t.Fatalf("residual for over-representation=%v, want > 0", got)
	}
	if got := AdjustedResidual(10, 50, 40, 100); got >= 0 {
		t.Fatalf("residual for under-representation=%v, want < 0", got)
	}

	// Row equal to the grand total zeroes the variance term.
	if got := AdjustedResidual(10, 100, 20, 100); got != 0.0 {
		t.Fatalf("residual with row == grand total=%v, want 0", got)
	}
	if got := AdjustedResidual(10, 0, 20, 100); got != 0.0 {
		t.Fatalf("residual with zero row total=%v, want 0", got)
	}
}
