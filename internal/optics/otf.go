package optics

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/star/aperture/internal/aperture"
	"github.com/star/aperture/internal/telescope"
)

// OTF returns the normalized optical transfer function at each pupil-plane
// separation r (length units): the diffraction term of the annular aperture,
// multiplied by the attached aberration's long-exposure OTF.
func (e *Evaluator) OTF(r []float64) ([]float64, error) {
	return otf(e.tel.State(), r)
}

func otf(s telescope.State, r []float64) ([]float64, error) {
	out := diffraction(s.Geometry, r)
	if !s.HasAberration() {
		return out, nil
	}

	factor := s.Aberration.LongExposureOTF(r)
	if len(factor) != len(r) {
		return nil, fmt.Errorf("%w: got %d values for %d separations", ErrAberrationShape, len(factor), len(r))
	}
	floats.Mul(out, factor)
	return out, nil
}

// diffraction returns [auto(D) + auto(d) - 2·cross(D/2, d/2)] / A with
// d = ρ·D and A the collecting area.
func diffraction(g telescope.Geometry, r []float64) []float64 {
	out := aperture.AutoCorrelation(g.Diameter, r)
	if g.ObstructionRatio > 0 {
		d := g.ObstructionDiameter()
		floats.Add(out, aperture.AutoCorrelation(d, r))
		floats.AddScaled(out, -2, aperture.CrossCorrelation(g.Diameter/2, d/2, r))
	}
	floats.Scale(1/g.CollectingArea(), out)
	return out
}
