package aperture

import (
	"fmt"
	"math"
	"testing"
)

// TestAutoCorrelationAtZero verifies that two coincident disks overlap fully.
func TestAutoCorrelationAtZero(t *testing.T) {
	for _, d := range []float64{0.5, 1, 8, 39} {
		got := AutoCorrelationAt(d, 0)
		want := math.Pi * d * d / 4
		if math.Abs(got-want) > 1e-12*want {
			t.Errorf("AutoCorrelationAt(%g, 0) = %.15g, want %.15g", d, got, want)
		}
	}
}

// TestAutoCorrelationMonotone checks the overlap never grows with separation
// and vanishes at r = D.
func TestAutoCorrelationMonotone(t *testing.T) {
	const d = 8.0
	const steps = 2000

	r := make([]float64, steps+1)
	for i := range r {
		r[i] = d * float64(i) / steps
	}
	got := AutoCorrelation(d, r)

	for i := 1; i < len(got); i++ {
		if got[i] > got[i-1] {
			t.Fatalf("overlap increased between r=%.4f (%.10g) and r=%.4f (%.10g)", r[i-1], got[i-1], r[i], got[i])
		}
	}
	if got[steps] != 0 {
		t.Errorf("AutoCorrelation at r=D = %g, want 0", got[steps])
	}
}

// TestAutoCorrelationBoundaryOvershoot feeds separations within a few ulps of
// a diameter that is not exactly representable; the result must stay finite
// and non-negative.
func TestAutoCorrelationBoundaryOvershoot(t *testing.T) {
	d := 0.1 + 0.2 // not exactly representable
	tests := []float64{
		d,
		math.Nextafter(d, math.Inf(-1)),
		math.Nextafter(math.Nextafter(d, math.Inf(-1)), math.Inf(-1)),
		-d,
	}
	for _, r := range tests {
		got := AutoCorrelationAt(d, r)
		if math.IsNaN(got) || got < 0 {
			t.Errorf("AutoCorrelationAt(%v, %v) = %v, want finite non-negative", d, r, got)
		}
	}
}

// TestOverlapNearContact walks the last ulps below contact, where the overlap
// is a vanishingly thin lens, and checks it never goes negative or grows.
func TestOverlapNearContact(t *testing.T) {
	const ulps = 60

	sweep := func(t *testing.T, contact float64, overlap func(r float64) float64) {
		t.Helper()
		r := contact
		prev := overlap(r)
		if prev != 0 {
			t.Fatalf("overlap at contact r=%v = %g, want 0", r, prev)
		}
		for i := 1; i <= ulps; i++ {
			r = math.Nextafter(r, math.Inf(-1))
			got := overlap(r)
			if math.IsNaN(got) || got < 0 {
				t.Fatalf("%d ulps below contact: overlap = %g, want non-negative", i, got)
			}
			if got < prev {
				t.Fatalf("%d ulps below contact: overlap %g < %g one ulp further out", i, got, prev)
			}
			prev = got
		}
	}

	for _, d := range []float64{0.3, 0.1 + 0.2, 0.7, 1.1, 3.3, 8, 8.1} {
		t.Run(fmt.Sprintf("auto D=%g", d), func(t *testing.T) {
			sweep(t, d, func(r float64) float64 { return AutoCorrelationAt(d, r) })
		})
	}

	radii := []struct{ r1, r2 float64 }{
		{0.15, 0.15},
		{0.3, 0.1 + 0.2},
		{1, 1},
		{4.05, 4.05},
		{4, 1.2},
		{4, 0.56},
	}
	for _, rr := range radii {
		t.Run(fmt.Sprintf("cross %g+%g", rr.r1, rr.r2), func(t *testing.T) {
			sweep(t, rr.r1+rr.r2, func(r float64) float64 { return CrossCorrelationAt(rr.r1, rr.r2, r) })
		})
	}
}

func TestAutoCorrelationBeyondDiameter(t *testing.T) {
	got := AutoCorrelation(2, []float64{2.0001, 3, 100})
	for i, v := range got {
		if v != 0 {
			t.Errorf("sample %d: got %g, want 0", i, v)
		}
	}
}

// TestCrossCorrelationRegimes covers contained, lens and disjoint overlap.
func TestCrossCorrelationRegimes(t *testing.T) {
	tests := []struct {
		name   string
		r1, r2 float64
		r      float64
		want   float64
	}{
		{"equal radii, zero separation", 1.5, 1.5, 0, math.Pi * 1.5 * 1.5},
		{"small inside large", 4, 0.56, 1.0, math.Pi * 0.56 * 0.56},
		{"small touching inner edge", 4, 1, 3, math.Pi},
		{"argument order irrelevant", 0.56, 4, 1.0, math.Pi * 0.56 * 0.56},
		{"externally tangent", 1, 2, 3, 0},
		{"disjoint", 1, 2, 10, 0},
		// Two unit disks one radius apart: 2π/3 − √3/2.
		{"unit lens", 1, 1, 1, 2*math.Pi/3 - math.Sqrt(3)/2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CrossCorrelationAt(tt.r1, tt.r2, tt.r)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("CrossCorrelationAt(%g, %g, %g) = %.15g, want %.15g", tt.r1, tt.r2, tt.r, got, tt.want)
			}
		})
	}
}

// TestCrossCorrelationDisjointSweep checks every separation past r1+r2 yields zero.
func TestCrossCorrelationDisjointSweep(t *testing.T) {
	const r1, r2 = 4.0, 0.7
	for i := 0; i < 200; i++ {
		r := r1 + r2 + float64(i)*0.05
		if got := CrossCorrelationAt(r1, r2, r); got != 0 {
			t.Fatalf("CrossCorrelationAt(%g, %g, %g) = %g, want 0", r1, r2, r, got)
		}
	}
}

// TestCrossCorrelationMatchesAuto verifies equal radii reproduce the
// autocorrelation of a disk with twice that radius.
func TestCrossCorrelationMatchesAuto(t *testing.T) {
	const d = 3.0
	for i := 0; i <= 100; i++ {
		r := d * float64(i) / 100
		auto := AutoCorrelationAt(d, r)
		cross := CrossCorrelationAt(d/2, d/2, r)
		if math.Abs(auto-cross) > 1e-12 {
			t.Fatalf("r=%g: auto=%.15g cross=%.15g", r, auto, cross)
		}
	}
}

// TestCrossCorrelationContinuity checks the lens formula joins the contained
// and disjoint regimes without jumps.
func TestCrossCorrelationContinuity(t *testing.T) {
	const r1, r2 = 4.0, 1.2
	const eps = 1e-9

	inner := math.Abs(r1 - r2)
	if d := math.Abs(CrossCorrelationAt(r1, r2, inner+eps) - CrossCorrelationAt(r1, r2, inner)); d > 1e-6 {
		t.Errorf("jump of %g at inner boundary", d)
	}
	outer := r1 + r2
	if v := CrossCorrelationAt(r1, r2, outer-eps); v > 1e-6 || math.IsNaN(v) {
		t.Errorf("overlap just inside outer boundary = %g, want ~0", v)
	}
}

func TestDegenerateRadii(t *testing.T) {
	if got := AutoCorrelationAt(0, 0); got != 0 {
		t.Errorf("AutoCorrelationAt(0, 0) = %g, want 0", got)
	}
	if got := CrossCorrelationAt(4, 0, 1); got != 0 {
		t.Errorf("CrossCorrelationAt(4, 0, 1) = %g, want 0", got)
	}
}
