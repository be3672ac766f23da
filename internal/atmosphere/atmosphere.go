// Package atmosphere provides reference turbulence models that satisfy
// telescope.Aberration. Phase-screen generation and evolution live elsewhere;
// these models only describe the long-exposure transfer function.
package atmosphere

import (
	"fmt"
	"math"

	"github.com/star/aperture/internal/units"
)

// kolmogorovCoefficient is the 6.88/2 factor of the long-exposure structure function.
const kolmogorovCoefficient = 3.44

// Unity is a transparent atmosphere: OTF ≡ 1, r0 = +Inf.
type Unity struct{}

// LongExposureOTF returns 1 for every separation.
func (Unity) LongExposureOTF(separations []float64) []float64 {
	out := make([]float64, len(separations))
	for i := range out {
		out[i] = 1
	}
	return out
}

// CoherenceLength returns +Inf.
func (Unity) CoherenceLength() float64 {
	return math.Inf(1)
}

// Kolmogorov is a single-layer Kolmogorov atmosphere with Fried parameter r0.
type Kolmogorov struct {
	r0 float64
}

// NewKolmogorov returns a Kolmogorov model with the given Fried parameter in
// length units.
func NewKolmogorov(r0 float64) (*Kolmogorov, error) {
	if math.IsNaN(r0) || math.IsInf(r0, 0) || r0 <= 0 {
		return nil, fmt.Errorf("atmosphere: fried parameter %g must be a positive finite length", r0)
	}
	return &Kolmogorov{r0: r0}, nil
}

// LongExposureOTF returns exp(-3.44 (|r|/r0)^(5/3)) for each separation.
func (k *Kolmogorov) LongExposureOTF(separations []float64) []float64 {
	out := make([]float64, len(separations))
	for i, r := range separations {
		out[i] = math.Exp(-kolmogorovCoefficient * math.Pow(math.Abs(r)/k.r0, 5.0/3.0))
	}
	return out
}

// CoherenceLength returns r0.
func (k *Kolmogorov) CoherenceLength() float64 {
	return k.r0
}

// FriedParameter converts a seeing FWHM in arcseconds at the given wavelength
// to r0 = 0.98·λ/seeing. The result has the wavelength's length unit.
func FriedParameter(seeingArcsec, wavelength float64) (float64, error) {
	if !(seeingArcsec > 0) || math.IsInf(seeingArcsec, 0) {
		return 0, fmt.Errorf("atmosphere: seeing %g arcsec must be positive", seeingArcsec)
	}
	if !(wavelength > 0) || math.IsInf(wavelength, 0) {
		return 0, fmt.Errorf("atmosphere: wavelength %g must be positive", wavelength)
	}
	return 0.98 * wavelength / units.ArcsecToRadians(seeingArcsec), nil
}

// ScaleR0 rescales a Fried parameter measured at refWavelength to wavelength,
// r0 ∝ λ^(6/5).
func ScaleR0(r0, refWavelength, wavelength float64) float64 {
	return r0 * math.Pow(wavelength/refWavelength, 6.0/5.0)
}
