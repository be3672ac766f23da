// Package numeric provides the root finder and quadrature used by the optics core.
package numeric

import (
	"fmt"
	"math"
)

// machineEps is the float64 unit roundoff used in Brent's step tolerance.
const machineEps = 2.220446049250313e-16

// DefaultMaxIterations caps Brent iterations when the caller passes 0.
const DefaultMaxIterations = 100

// RootResult is the outcome of a bracketed root search. Value always holds the
// best candidate; when Converged is false, Diagnostic says why.
type RootResult struct {
	Value      float64
	Converged  bool
	Iterations int
	Diagnostic string
}

// Brent finds x in [a, b] with f(x) = 0 using the Brent–Dekker method
// (bisection, secant and inverse quadratic interpolation) to an absolute
// tolerance tol on x.
//
// Brent never fails hard: a missing sign change, an exhausted iteration
// budget, or a non-finite function value ends the search with
// Converged = false and the best candidate seen so far.
func Brent(f func(float64) float64, a, b, tol float64, maxIter int) RootResult {
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	fa, fb := f(a), f(b)
	if !finite(fa) || !finite(fb) {
		return RootResult{
			Value:      bestFinite(a, fa, b, fb),
			Diagnostic: fmt.Sprintf("non-finite value at bracket: f(%g)=%g, f(%g)=%g", a, fa, b, fb),
		}
	}
	if fa == 0 {
		return RootResult{Value: a, Converged: true}
	}
	if fb == 0 {
		return RootResult{Value: b, Converged: true}
	}
	if fa*fb > 0 {
		best := a
		if math.Abs(fb) < math.Abs(fa) {
			best = b
		}
		return RootResult{
			Value:      best,
			Diagnostic: fmt.Sprintf("root not bracketed in [%g, %g]: f(a)=%g, f(b)=%g", a, b, fa, fb),
		}
	}

	c, fc := a, fa
	d, e := b-a, b-a
	for i := 1; i <= maxIter; i++ {
		if fb*fc > 0 {
			c, fc = a, fa
			d, e = b-a, b-a
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol1 := 2*machineEps*math.Abs(b) + 0.5*tol
		xm := 0.5 * (c - b)
		if math.Abs(xm) <= tol1 || fb == 0 {
			return RootResult{Value: b, Converged: true, Iterations: i}
		}

		if math.Abs(e) >= tol1 && math.Abs(fa) > math.Abs(fb) {
			var p, q float64
			s := fb / fa
			if a != c && fa != fc {
				// Inverse quadratic interpolation.
				r := fb / fc
				t := fa / fc
				p = s * (2*xm*r*(r-t) - (b-a)*(t-1))
				q = (r - 1) * (t - 1) * (s - 1)
			} else {
				// Secant step.
				p = 2 * xm * s
				q = 1 - s
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)
			if 2*p < math.Min(3*xm*q-math.Abs(tol1*q), math.Abs(e*q)) {
				e, d = d, p/q
			} else {
				d = xm
				e = d
			}
		} else {
			d = xm
			e = d
		}

		a, fa = b, fb
		if math.Abs(d) > tol1 {
			b += d
		} else {
			b += math.Copysign(tol1, xm)
		}
		fb = f(b)
		if !finite(fb) {
			return RootResult{
				Value:      a,
				Iterations: i,
				Diagnostic: fmt.Sprintf("non-finite value f(%g)=%g after %d iterations", b, fb, i),
			}
		}
	}

	return RootResult{
		Value:      b,
		Iterations: maxIter,
		Diagnostic: fmt.Sprintf("no convergence after %d iterations (bracket half-width %g)", maxIter, math.Abs(c-b)/2),
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// bestFinite picks the endpoint with a finite, smaller residual, defaulting to a.
func bestFinite(a, fa, b, fb float64) float64 {
	switch {
	case finite(fa) && finite(fb):
		if math.Abs(fb) < math.Abs(fa) {
			return b
		}
		return a
	case finite(fb):
		return b
	default:
		return a
	}
}
