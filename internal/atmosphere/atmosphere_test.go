package atmosphere

import (
	"math"
	"testing"

	"github.com/star/aperture/internal/telescope"
)

var (
	_ telescope.Aberration = Unity{}
	_ telescope.Aberration = (*Kolmogorov)(nil)
)

func TestUnity(t *testing.T) {
	var u Unity
	got := u.LongExposureOTF([]float64{0, 0.5, 100, -3})
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, v := range got {
		if v != 1 {
			t.Errorf("otf[%d] = %g, want 1", i, v)
		}
	}
	if !math.IsInf(u.CoherenceLength(), 1) {
		t.Errorf("r0 = %g, want +Inf", u.CoherenceLength())
	}
}

func TestKolmogorovOTF(t *testing.T) {
	k, err := NewKolmogorov(0.1)
	if err != nil {
		t.Fatalf("NewKolmogorov: %v", err)
	}
	if k.CoherenceLength() != 0.1 {
		t.Errorf("r0 = %g, want 0.1", k.CoherenceLength())
	}

	tests := []struct {
		r    float64
		want float64
	}{
		{0, 1},
		{0.1, math.Exp(-3.44)},
		{-0.1, math.Exp(-3.44)},
		{0.2, math.Exp(-3.44 * math.Pow(2, 5.0/3.0))},
	}
	for _, tt := range tests {
		got := k.LongExposureOTF([]float64{tt.r})[0]
		if math.Abs(got-tt.want) > 1e-15 {
			t.Errorf("otf(%g) = %.15g, want %.15g", tt.r, got, tt.want)
		}
	}

	// Monotone decay within [0, 1].
	r := []float64{0, 0.01, 0.05, 0.1, 0.5, 1}
	otf := k.LongExposureOTF(r)
	for i := 1; i < len(otf); i++ {
		if otf[i] > otf[i-1] || otf[i] < 0 {
			t.Errorf("otf(%g) = %g not in [0, otf(%g)=%g]", r[i], otf[i], r[i-1], otf[i-1])
		}
	}
}

func TestNewKolmogorovRejectsInvalid(t *testing.T) {
	for _, r0 := range []float64{0, -0.1, math.NaN(), math.Inf(1)} {
		if _, err := NewKolmogorov(r0); err == nil {
			t.Errorf("NewKolmogorov(%g): expected error", r0)
		}
	}
}

func TestFriedParameter(t *testing.T) {
	// 1 arcsec seeing at 500 nm gives r0 ≈ 10.1 cm.
	r0, err := FriedParameter(1, 500e-9)
	if err != nil {
		t.Fatalf("FriedParameter: %v", err)
	}
	if math.Abs(r0-0.1011) > 5e-4 {
		t.Errorf("r0 = %g m, want ≈ 0.1011", r0)
	}

	if _, err := FriedParameter(0, 500e-9); err == nil {
		t.Error("expected error for zero seeing")
	}
	if _, err := FriedParameter(1, -1); err == nil {
		t.Error("expected error for negative wavelength")
	}
}

func TestScaleR0(t *testing.T) {
	got := ScaleR0(0.1, 500e-9, 2.2e-6)
	want := 0.1 * math.Pow(4.4, 1.2)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("ScaleR0 = %g, want %g", got, want)
	}
	if ScaleR0(0.15, 1, 1) != 0.15 {
		t.Error("identity scaling changed r0")
	}
}
