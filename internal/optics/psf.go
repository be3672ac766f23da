package optics

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/star/aperture/internal/metrics"
	"github.com/star/aperture/internal/telescope"
)

var errNonFiniteFrequency = errors.New("frequency is not finite")

// Evaluation path labels.
const (
	pathClosedForm = "closed_form"
	pathHankel     = "hankel"
)

// PSF returns the point spread function at each spatial frequency f
// (inverse length). Without an attached aberration the Airy closed form is
// used; otherwise each sample is 2π∫₀ᴰ v·J0(2πvf)·otf(v) dv, integrated
// concurrently across the configured workers.
//
// A failed integral fails the whole call with an *IntegrationError for the
// lowest failing frequency.
func (e *Evaluator) PSF(ctx context.Context, f []float64) ([]float64, error) {
	return e.psf(ctx, e.tel.State(), f)
}

func (e *Evaluator) psf(ctx context.Context, s telescope.State, f []float64) ([]float64, error) {
	start := time.Now()
	if !s.HasAberration() {
		out := closedForm(s.Geometry, f)
		metrics.RecordPSF(pathClosedForm, time.Since(start), len(f))
		return out, nil
	}

	out, err := e.pool.integrate(ctx, f, func(freq float64) (float64, error) {
		return e.hankel(s, freq)
	})
	metrics.RecordPSF(pathHankel, time.Since(start), len(f))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// closedForm evaluates the diffraction-limited PSF of an annular aperture.
// The amplitude is the difference of the full-disk and obstruction Airy
// amplitudes, each weighted by its own area, so psf(0) equals the collecting area.
// Weighting by the annulus area instead would break that peak and disagree
// with the Hankel path for the same geometry.
func closedForm(g telescope.Geometry, f []float64) []float64 {
	base := g.CollectingArea()
	full := math.Pi * g.Diameter * g.Diameter / 4
	rho2 := g.ObstructionRatio * g.ObstructionRatio

	out := make([]float64, len(f))
	for i, freq := range f {
		if freq == 0 {
			out[i] = base
			continue
		}
		u := math.Pi * g.Diameter * freq
		amp := full * jinc(u)
		if g.ObstructionRatio > 0 {
			amp -= full * rho2 * jinc(g.ObstructionRatio*u)
		}
		out[i] = amp * amp / base
	}
	return out
}

// jinc returns 2·J1(u)/u, with the u → 0 limit of 1.
func jinc(u float64) float64 {
	if u == 0 {
		return 1
	}
	return 2 * math.J1(u) / u
}

// hankel integrates one PSF sample.
func (e *Evaluator) hankel(s telescope.State, freq float64) (float64, error) {
	if math.IsNaN(freq) || math.IsInf(freq, 0) {
		return 0, &IntegrationError{Frequency: freq, Err: errNonFiniteFrequency}
	}

	integrand := func(v []float64) ([]float64, error) {
		y, err := otf(s, v)
		if err != nil {
			return nil, err
		}
		for i, x := range v {
			y[i] *= x * math.J0(2*math.Pi*x*freq)
		}
		return y, nil
	}

	val, err := e.quad.Integrate(integrand, e.hankelBreaks(s.Geometry, freq))
	if err != nil {
		return 0, &IntegrationError{Frequency: freq, Err: err}
	}
	return 2 * math.Pi * val, nil
}

// hankelBreaks seeds the quadrature with the kinks of the annular OTF and
// half-period panels of J0.
func (e *Evaluator) hankelBreaks(g telescope.Geometry, freq float64) []float64 {
	dia := g.Diameter
	breaks := []float64{0, dia}
	if g.ObstructionRatio > 0 {
		d := g.ObstructionDiameter()
		breaks = append(breaks, d, (dia-d)/2, (dia+d)/2)
	}

	n := int(math.Ceil(2 * dia * math.Abs(freq)))
	if limit := e.config.Quadrature.MaxPanels / 2; n > limit {
		n = limit
	}
	for k := 1; k < n; k++ {
		breaks = append(breaks, dia*float64(k)/float64(n))
	}
	return breaks
}
