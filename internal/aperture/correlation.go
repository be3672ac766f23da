// Package aperture computes overlap areas of circular and annular apertures
// as a function of the separation between two copies of the aperture.
//
// All functions are pure. Separations are taken by magnitude, so negative
// samples give the same overlap as their absolute value.
package aperture

import "math"

// AutoCorrelation returns, for each separation in r, the overlap area of two
// identical disks of the given diameter whose centers are that far apart.
//
//	A(r) = D²/2 · (acos(r/D) − (r/D)·sqrt(1 − (r/D)²))   for r ≤ D
//	A(r) = 0                                             for r > D
func AutoCorrelation(diameter float64, r []float64) []float64 {
	out := make([]float64, len(r))
	for i, sep := range r {
		out[i] = AutoCorrelationAt(diameter, sep)
	}
	return out
}

// AutoCorrelationAt is the scalar form of AutoCorrelation.
func AutoCorrelationAt(diameter, r float64) float64 {
	if diameter <= 0 {
		return 0
	}
	r = math.Abs(r)
	if r >= diameter {
		return 0
	}
	// Two segments of radius D/2, each of height (D−r)/2.
	return 2 * segment(diameter/2, (diameter-r)/diameter)
}

// CrossCorrelation returns, for each separation in r, the overlap area of two
// disks with radii r1 and r2 whose centers are that far apart.
func CrossCorrelation(r1, r2 float64, r []float64) []float64 {
	out := make([]float64, len(r))
	for i, sep := range r {
		out[i] = CrossCorrelationAt(r1, r2, sep)
	}
	return out
}

// CrossCorrelationAt is the scalar form of CrossCorrelation.
//
// Three regimes:
//   - r ≤ |r1−r2|: the smaller disk lies inside the larger, overlap = π·min(r1,r2)²
//   - |r1−r2| < r < r1+r2: lens overlap, the sum of two circular segments
//   - r ≥ r1+r2: disjoint, overlap = 0
func CrossCorrelationAt(r1, r2, r float64) float64 {
	if r1 <= 0 || r2 <= 0 {
		return 0
	}
	r = math.Abs(r)

	switch {
	case r <= math.Abs(r1-r2):
		small := math.Min(r1, r2)
		return math.Pi * small * small
	case r >= r1+r2:
		return 0
	default:
		// Segment heights in units of each radius. The (r1+r2−r) factor is
		// exact near contact, so the overlap shrinks to zero without sign flips.
		gap := (r1 + r2) - r
		h1 := gap * (r2 - r1 + r) / (2 * r * r1)
		h2 := gap * (r1 - r2 + r) / (2 * r * r2)
		return segment(r1, h1) + segment(r2, h2)
	}
}

// segment is the area of the circular segment of a disk of radius R whose
// height is h·R, for h in [0, 2].
//
// With half-angle θ = 2·asin(sqrt(h/2)) the area is R²·(2θ − sin 2θ)/2, which
// is evaluated without cancellation for thin segments.
func segment(radius, h float64) float64 {
	h = math.Min(math.Max(h, 0), 2)
	theta := 2 * math.Asin(math.Sqrt(h/2))
	return radius * radius * chordExcess(2*theta) / 2
}

// chordExcess returns u − sin u. Below u = 1 it sums the Taylor series, since
// the direct difference loses all precision as u approaches 0.
func chordExcess(u float64) float64 {
	if u >= 1 {
		return u - math.Sin(u)
	}
	u2 := u * u
	term := u * u2 / 6
	var sum float64
	for k := 1; term != 0; k++ {
		sum += term
		next := -term * u2 / float64((2*k+2)*(2*k+3))
		if math.Abs(next) <= 1e-17*sum {
			break
		}
		term = next
	}
	return sum
}
