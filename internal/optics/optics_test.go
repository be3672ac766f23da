package optics

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"testing"

	"github.com/star/aperture/internal/atmosphere"
	"github.com/star/aperture/internal/numeric"
	"github.com/star/aperture/internal/telescope"
)

func mustAttach(t *testing.T, ev *Evaluator, a telescope.Aberration) {
	t.Helper()
	if err := ev.Telescope().AttachAberration(a); err != nil {
		t.Fatalf("AttachAberration: %v", err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEvaluator(t *testing.T, diameter float64, opts ...telescope.Option) *Evaluator {
	t.Helper()
	tel, err := telescope.New(diameter, opts...)
	if err != nil {
		t.Fatalf("telescope.New: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Workers = 4
	ev, err := NewEvaluator(tel, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return ev
}

// nanAberration returns NaN beyond a cutoff separation.
type nanAberration struct{ cutoff float64 }

func (n nanAberration) LongExposureOTF(r []float64) []float64 {
	out := make([]float64, len(r))
	for i, v := range r {
		if v > n.cutoff {
			out[i] = math.NaN()
		} else {
			out[i] = 1
		}
	}
	return out
}

func (nanAberration) CoherenceLength() float64 { return 0.5 }

// shortAberration returns one sample too few.
type shortAberration struct{}

func (shortAberration) LongExposureOTF(r []float64) []float64 {
	if len(r) == 0 {
		return nil
	}
	return make([]float64, len(r)-1)
}

func (shortAberration) CoherenceLength() float64 { return 1 }

// countingAberration counts integrand batches.
type countingAberration struct{ calls atomic.Int64 }

func (c *countingAberration) LongExposureOTF(r []float64) []float64 {
	c.calls.Add(1)
	return atmosphere.Unity{}.LongExposureOTF(r)
}

func (c *countingAberration) CoherenceLength() float64 { return math.Inf(1) }

func TestOTFAtZero(t *testing.T) {
	for _, d := range []float64{0.5, 1, 8, 39} {
		ev := newEvaluator(t, d)
		got, err := ev.OTF([]float64{0})
		if err != nil {
			t.Fatalf("OTF: %v", err)
		}
		if math.Abs(got[0]-1) > 1e-12 {
			t.Errorf("D=%g: otf(0) = %.15f, want 1", d, got[0])
		}
	}
}

// TestOTFObstructed checks the annular OTF is 1 at zero separation, zero
// beyond the diameter, and bounded in between.
func TestOTFObstructed(t *testing.T) {
	ev := newEvaluator(t, 8, telescope.WithObstructionRatio(0.3))

	r := []float64{0, 0.5, 1.2, 2.4, 2.8, 4, 5.2, 6, 7.9, 8, 9}
	got, err := ev.OTF(r)
	if err != nil {
		t.Fatalf("OTF: %v", err)
	}
	if math.Abs(got[0]-1) > 1e-12 {
		t.Errorf("otf(0) = %g, want 1", got[0])
	}
	for i, v := range got {
		if math.IsNaN(v) || v < -1e-12 || v > 1+1e-12 {
			t.Errorf("otf(%g) = %g outside [0, 1]", r[i], v)
		}
	}
	if got[len(got)-2] != 0 || got[len(got)-1] != 0 {
		t.Errorf("otf beyond D = %v, want 0", got[len(got)-2:])
	}
}

func TestOTFAberration(t *testing.T) {
	k, err := atmosphere.NewKolmogorov(0.2)
	if err != nil {
		t.Fatal(err)
	}
	ev := newEvaluator(t, 4)
	r := []float64{0, 0.1, 0.4, 1}
	bare, err := ev.OTF(r)
	if err != nil {
		t.Fatal(err)
	}

	mustAttach(t, ev, k)
	got, err := ev.OTF(r)
	if err != nil {
		t.Fatal(err)
	}
	factor := k.LongExposureOTF(r)
	for i := range r {
		if math.Abs(got[i]-bare[i]*factor[i]) > 1e-15 {
			t.Errorf("otf(%g) = %g, want %g", r[i], got[i], bare[i]*factor[i])
		}
	}

	mustAttach(t, ev, shortAberration{})
	if _, err := ev.OTF(r); !errors.Is(err, ErrAberrationShape) {
		t.Errorf("short aberration: got %v, want ErrAberrationShape", err)
	}
}

func TestPSFClosedForm(t *testing.T) {
	ctx := context.Background()

	t.Run("peak equals collecting area", func(t *testing.T) {
		for _, rho := range []float64{0, 0.14, 0.5} {
			for _, res := range []int{0, 16, 256} {
				ev := newEvaluator(t, 8, telescope.WithObstructionRatio(rho), telescope.WithResolution(res))
				got, err := ev.PSF(ctx, []float64{0})
				if err != nil {
					t.Fatal(err)
				}
				want := math.Pi * 64 * (1 - rho*rho) / 4
				if math.Abs(got[0]-want) > 1e-14*want {
					t.Errorf("rho=%g res=%d: psf(0) = %.15g, want %.15g", rho, res, got[0], want)
				}
			}
		}
	})

	t.Run("decreasing", func(t *testing.T) {
		ev := newEvaluator(t, 8)
		got, err := ev.PSF(ctx, []float64{0, 0.1, 1})
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got[0]-50.26548245743669) > 1e-12 {
			t.Errorf("psf(0) = %.12f, want 50.265482457437", got[0])
		}
		for i := 1; i < len(got); i++ {
			if !(got[i] < got[i-1]) {
				t.Errorf("psf not strictly decreasing: %v", got)
			}
		}
	})

	t.Run("continuous at zero", func(t *testing.T) {
		ev := newEvaluator(t, 8, telescope.WithObstructionRatio(0.3))
		got, err := ev.PSF(ctx, []float64{0, 1e-7})
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got[1]-got[0]) > 1e-6*got[0] {
			t.Errorf("psf(1e-7) = %g, psf(0) = %g", got[1], got[0])
		}
	})

	t.Run("airy zero", func(t *testing.T) {
		// First zero of J1 at u = 3.8317 gives f = 3.8317/(π·D).
		ev := newEvaluator(t, 2)
		got, err := ev.PSF(ctx, []float64{3.8317059702075125 / (2 * math.Pi)})
		if err != nil {
			t.Fatal(err)
		}
		if got[0] > 1e-20 {
			t.Errorf("psf at first dark ring = %g, want 0", got[0])
		}
	})
}

// TestPSFCrossValidation compares the closed form against the Hankel integral
// of the OTF with a transparent atmosphere attached.
func TestPSFCrossValidation(t *testing.T) {
	ctx := context.Background()
	freqs := []float64{0, 0.02, 0.1, 0.13, 0.25, 0.5, 1, 1.7}

	for _, rho := range []float64{0, 0.3} {
		ev := newEvaluator(t, 8, telescope.WithObstructionRatio(rho))
		want, err := ev.PSF(ctx, freqs)
		if err != nil {
			t.Fatal(err)
		}

		mustAttach(t, ev, atmosphere.Unity{})
		got, err := ev.PSF(ctx, freqs)
		if err != nil {
			t.Fatalf("rho=%g: hankel PSF: %v", rho, err)
		}
		for i, f := range freqs {
			if math.Abs(got[i]-want[i]) > 1e-7*want[0] {
				t.Errorf("rho=%g f=%g: hankel %.10g, closed form %.10g", rho, f, got[i], want[i])
			}
		}
	}
}

// TestPSFParallelMatchesSequential checks worker count does not change results.
func TestPSFParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	k, err := atmosphere.NewKolmogorov(0.5)
	if err != nil {
		t.Fatal(err)
	}
	tel, err := telescope.New(4, telescope.WithObstructionRatio(0.2), telescope.WithAberration(k))
	if err != nil {
		t.Fatal(err)
	}

	freqs := make([]float64, 24)
	for i := range freqs {
		freqs[i] = float64(i) * 0.15
	}

	results := make([][]float64, 0, 2)
	for _, workers := range []int{1, 8} {
		cfg := DefaultConfig()
		cfg.Workers = workers
		ev, err := NewEvaluator(tel, cfg, testLogger())
		if err != nil {
			t.Fatal(err)
		}
		got, err := ev.PSF(ctx, freqs)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		results = append(results, got)
	}
	for i := range freqs {
		if results[0][i] != results[1][i] {
			t.Errorf("f=%g: sequential %g, parallel %g", freqs[i], results[0][i], results[1][i])
		}
	}
}

func TestPSFIntegrationError(t *testing.T) {
	ev := newEvaluator(t, 2, telescope.WithAberration(nanAberration{cutoff: 1}))

	_, err := ev.PSF(context.Background(), []float64{0.5})
	var ierr *IntegrationError
	if !errors.As(err, &ierr) {
		t.Fatalf("want *IntegrationError, got %v", err)
	}
	if ierr.Frequency != 0.5 {
		t.Errorf("frequency = %g, want 0.5", ierr.Frequency)
	}
	var qerr *numeric.IntegrationError
	if !errors.As(err, &qerr) {
		t.Errorf("error does not unwrap to *numeric.IntegrationError: %v", err)
	}

	freqs := []float64{0, 0.5, 1, 1.5, 2}
	got, err := ev.PSF(context.Background(), freqs)
	if !errors.As(err, &ierr) || got != nil {
		t.Errorf("batch: got %v, %v; want nil values and *IntegrationError", got, err)
	}

	mustAttach(t, ev, shortAberration{})
	_, err = ev.PSF(context.Background(), freqs)
	if !errors.Is(err, ErrAberrationShape) {
		t.Errorf("short aberration: got %v, want ErrAberrationShape", err)
	}

	mustAttach(t, ev, atmosphere.Unity{})
	_, err = ev.PSF(context.Background(), []float64{math.NaN()})
	if !errors.As(err, &ierr) {
		t.Errorf("nan frequency: want *IntegrationError, got %v", err)
	}
}

func TestPSFCancelled(t *testing.T) {
	aber := &countingAberration{}
	ev := newEvaluator(t, 8, telescope.WithAberration(aber))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ev.PSF(ctx, []float64{0, 0.1, 0.2})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if n := aber.calls.Load(); n != 0 {
		t.Errorf("aberration evaluated %d times after cancellation", n)
	}
}

func TestPSFEmpty(t *testing.T) {
	ev := newEvaluator(t, 8, telescope.WithAberration(atmosphere.Unity{}))
	got, err := ev.PSF(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("PSF(nil) = %v, %v", got, err)
	}
}

func TestNewEvaluatorValidation(t *testing.T) {
	tel, err := telescope.New(8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewEvaluator(nil, DefaultConfig(), nil); err == nil {
		t.Error("expected error for nil telescope")
	}

	cfg := DefaultConfig()
	cfg.FWHMTolerance = 0
	if _, err := NewEvaluator(tel, cfg, nil); err == nil {
		t.Error("expected error for zero fwhm tolerance")
	}

	cfg = DefaultConfig()
	cfg.Quadrature.Order = 0
	if _, err := NewEvaluator(tel, cfg, nil); err == nil {
		t.Error("expected error for bad quadrature order")
	}

	cfg = DefaultConfig()
	cfg.Workers = 0
	cfg.FWHMMaxIterations = 0
	ev, err := NewEvaluator(tel, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Config().Workers < 1 || ev.Config().FWHMMaxIterations != numeric.DefaultMaxIterations {
		t.Errorf("defaults not applied: %+v", ev.Config())
	}
}
