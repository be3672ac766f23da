package numeric

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
)

// BatchFunc evaluates an integrand at every abscissa in x and returns one value
// per point. Batching lets expensive integrands (e.g. an external turbulence
// model) amortize their per-call cost over a whole panel.
type BatchFunc func(x []float64) ([]float64, error)

// QuadratureConfig controls adaptive integration.
type QuadratureConfig struct {
	AbsTol    float64 // absolute error target for the whole interval
	RelTol    float64 // relative error target per panel
	Order     int     // Gauss–Legendre points per panel
	MaxPanels int     // refinement budget; exceeding it is an error
}

// DefaultQuadratureConfig returns tolerances suited to PSF integrals.
func DefaultQuadratureConfig() QuadratureConfig {
	return QuadratureConfig{
		AbsTol:    1e-10,
		RelTol:    1e-10,
		Order:     16,
		MaxPanels: 20000,
	}
}

// IntegrationError reports a quadrature that could not meet its tolerance or
// whose integrand failed. Err holds the integrand's error, if any.
type IntegrationError struct {
	Lower, Upper float64
	Panels       int
	Reason       string
	Err          error
}

func (e *IntegrationError) Error() string {
	reason := e.Reason
	if e.Err != nil {
		reason = e.Err.Error()
	}
	return fmt.Sprintf("integration over [%g, %g] failed after %d panels: %s", e.Lower, e.Upper, e.Panels, reason)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// Quadrature integrates batch functions by adaptive panel bisection. Each
// panel is estimated with an n-point Gauss–Legendre rule and compared with the
// sum of the same rule on its two halves.
//
// A Quadrature is immutable and safe for concurrent use.
type Quadrature struct {
	cfg     QuadratureConfig
	nodes   []float64 // on [-1, 1]
	weights []float64
}

// NewQuadrature validates cfg and precomputes the Legendre nodes.
func NewQuadrature(cfg QuadratureConfig) (*Quadrature, error) {
	if cfg.Order < 2 {
		return nil, fmt.Errorf("quadrature order %d, need at least 2", cfg.Order)
	}
	if !(cfg.AbsTol > 0) || !(cfg.RelTol >= 0) {
		return nil, fmt.Errorf("quadrature tolerances must be positive (abs=%g rel=%g)", cfg.AbsTol, cfg.RelTol)
	}
	if cfg.MaxPanels < 1 {
		return nil, fmt.Errorf("quadrature panel budget %d, need at least 1", cfg.MaxPanels)
	}

	nodes := make([]float64, cfg.Order)
	weights := make([]float64, cfg.Order)
	quad.Legendre{}.FixedLocations(nodes, weights, -1, 1)

	return &Quadrature{cfg: cfg, nodes: nodes, weights: weights}, nil
}

// Config returns the configuration the quadrature was built with.
func (q *Quadrature) Config() QuadratureConfig {
	return q.cfg
}

type panel struct {
	lo, hi   float64
	estimate float64
}

// Integrate returns ∫ fn over [breaks[0], breaks[len-1]]. The interior break
// points seed the initial panels, which should sit on kinks of the integrand.
// Break points are sorted and deduplicated; at least two distinct points are required.
func (q *Quadrature) Integrate(fn BatchFunc, breaks []float64) (float64, error) {
	pts := uniqueSorted(breaks)
	if len(pts) < 2 {
		return 0, errors.New("integration needs at least two distinct break points")
	}
	lower, upper := pts[0], pts[len(pts)-1]
	span := upper - lower

	stack := make([]panel, 0, len(pts)-1)
	for i := len(pts) - 2; i >= 0; i-- {
		est, err := q.rule(fn, pts[i], pts[i+1])
		if err != nil {
			return 0, &IntegrationError{Lower: lower, Upper: upper, Err: err}
		}
		stack = append(stack, panel{lo: pts[i], hi: pts[i+1], estimate: est})
	}

	var total float64
	panels := len(stack)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		mid := 0.5 * (p.lo + p.hi)
		left, right, err := q.halves(fn, p.lo, mid, p.hi)
		if err != nil {
			return 0, &IntegrationError{Lower: lower, Upper: upper, Panels: panels, Err: err}
		}

		refined := left + right
		diff := math.Abs(refined - p.estimate)
		// Share the absolute budget by panel width so the accepted errors sum to AbsTol.
		allowed := math.Max(q.cfg.AbsTol*(p.hi-p.lo)/span, q.cfg.RelTol*math.Abs(refined))
		if diff <= allowed {
			total += refined
			continue
		}

		if mid <= p.lo || mid >= p.hi {
			return 0, &IntegrationError{
				Lower: lower, Upper: upper, Panels: panels,
				Reason: fmt.Sprintf("panel [%g, %g] cannot be subdivided further (error %g)", p.lo, p.hi, diff),
			}
		}
		panels += 2
		if panels > q.cfg.MaxPanels {
			return 0, &IntegrationError{
				Lower: lower, Upper: upper, Panels: panels,
				Reason: fmt.Sprintf("panel budget %d exhausted (error %g near [%g, %g])", q.cfg.MaxPanels, diff, p.lo, p.hi),
			}
		}
		stack = append(stack, panel{lo: mid, hi: p.hi, estimate: right}, panel{lo: p.lo, hi: mid, estimate: left})
	}

	return total, nil
}

// rule applies the Gauss–Legendre rule on [lo, hi].
func (q *Quadrature) rule(fn BatchFunc, lo, hi float64) (float64, error) {
	n := len(q.nodes)
	x := make([]float64, n)
	q.place(x, lo, hi)
	y, err := evaluate(fn, x)
	if err != nil {
		return 0, err
	}
	return q.sum(y, lo, hi), nil
}

// halves applies the rule on [lo, mid] and [mid, hi] with a single batch call.
func (q *Quadrature) halves(fn BatchFunc, lo, mid, hi float64) (float64, float64, error) {
	n := len(q.nodes)
	x := make([]float64, 2*n)
	q.place(x[:n], lo, mid)
	q.place(x[n:], mid, hi)
	y, err := evaluate(fn, x)
	if err != nil {
		return 0, 0, err
	}
	return q.sum(y[:n], lo, mid), q.sum(y[n:], mid, hi), nil
}

func (q *Quadrature) place(dst []float64, lo, hi float64) {
	c, h := 0.5*(lo+hi), 0.5*(hi-lo)
	for i, t := range q.nodes {
		dst[i] = c + h*t
	}
}

func (q *Quadrature) sum(y []float64, lo, hi float64) float64 {
	var s float64
	for i, w := range q.weights {
		s += w * y[i]
	}
	return 0.5 * (hi - lo) * s
}

func evaluate(fn BatchFunc, x []float64) ([]float64, error) {
	y, err := fn(x)
	if err != nil {
		return nil, err
	}
	if len(y) != len(x) {
		return nil, fmt.Errorf("integrand returned %d values for %d points", len(y), len(x))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("integrand is %g at x=%g", v, x[i])
		}
	}
	return y, nil
}

func uniqueSorted(in []float64) []float64 {
	pts := make([]float64, 0, len(in))
	for _, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			pts = append(pts, v)
		}
	}
	sort.Float64s(pts)

	out := pts[:0]
	for _, v := range pts {
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
