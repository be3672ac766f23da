package optics

import (
	"context"
	"fmt"
	"math"

	"github.com/star/aperture/internal/metrics"
	"github.com/star/aperture/internal/numeric"
	"github.com/star/aperture/internal/telescope"
)

// FWHMResult is the outcome of a half-maximum search. Value is the full width
// in spatial-frequency units and is never negative. When Converged is false
// Value is the best candidate and Diagnostic explains the failure.
type FWHMResult struct {
	Value      float64
	Converged  bool
	Iterations int
	Diagnostic string
}

// FWHM finds x > 0 with psf(x/2) = psf(0)/2 by Brent's method on the bracket
// [0, 2/min(D, r0)]. A failed search is not an error: the result carries the
// best candidate and a diagnostic, which is also logged.
func (e *Evaluator) FWHM(ctx context.Context) FWHMResult {
	s := e.tel.State()
	res := e.fwhm(ctx, s)

	metrics.RecordFWHM(res.Converged)
	if !res.Converged {
		e.logger.Warn("fwhm search did not converge",
			"diameter", s.Diameter,
			"obstruction_ratio", s.ObstructionRatio,
			"aberration", s.HasAberration(),
			"value", res.Value,
			"diagnostic", res.Diagnostic,
		)
	}
	return res
}

func (e *Evaluator) fwhm(ctx context.Context, s telescope.State) FWHMResult {
	peak, err := e.psfScalar(ctx, s, 0)
	if err != nil {
		return FWHMResult{Diagnostic: fmt.Sprintf("psf peak: %v", err)}
	}
	half := peak / 2

	var evalErr error
	g := func(x float64) float64 {
		v, err := e.psfScalar(ctx, s, x/2)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return math.NaN()
		}
		return v - half
	}

	root := numeric.Brent(g, 0, bracketUpper(s), e.config.FWHMTolerance, e.config.FWHMMaxIterations)
	res := FWHMResult{
		Value:      math.Abs(root.Value),
		Converged:  root.Converged,
		Iterations: root.Iterations,
		Diagnostic: root.Diagnostic,
	}
	res.Diagnostic = withEvalError(res.Diagnostic, evalErr)
	return res
}

// withEvalError appends a PSF evaluation failure seen during the search to the
// root finder's diagnostic, which may be empty.
func withEvalError(diagnostic string, err error) string {
	switch {
	case err == nil:
		return diagnostic
	case diagnostic == "":
		return fmt.Sprintf("psf evaluation: %v", err)
	default:
		return fmt.Sprintf("%s: %v", diagnostic, err)
	}
}

// bracketUpper returns 2/min(D, r0), or 2/D without an aberration.
func bracketUpper(s telescope.State) float64 {
	scale := s.Diameter
	if s.HasAberration() {
		if r0 := s.Aberration.CoherenceLength(); r0 > 0 && r0 < scale {
			scale = r0
		}
	}
	return 2 / scale
}

func (e *Evaluator) psfScalar(ctx context.Context, s telescope.State, f float64) (float64, error) {
	if !s.HasAberration() {
		return closedForm(s.Geometry, []float64{f})[0], nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := e.hankel(s, f)
	if err != nil {
		metrics.IncIntegrationFailures()
	}
	return v, err
}
