// Package optics computes the optical response of a telescope: the OTF, the
// PSF through either a closed form or a Hankel integral, and the FWHM.
//
// Every evaluation takes one snapshot of the telescope state, so concurrent
// setters or attach/detach calls never mix two geometries in one result.
package optics

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/star/aperture/internal/metrics"
	"github.com/star/aperture/internal/numeric"
	"github.com/star/aperture/internal/telescope"
)

// ErrAberrationShape is returned when an attached model returns a different
// number of OTF samples than separations it was given.
var ErrAberrationShape = errors.New("aberration OTF length does not match separations")

// IntegrationError reports a PSF sample whose Hankel integral failed.
type IntegrationError struct {
	Frequency float64
	Err       error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("psf at f=%g: %v", e.Frequency, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// Config holds evaluation settings.
type Config struct {
	Workers           int // Hankel integrals evaluated in parallel; <= 0 means NumCPU
	Quadrature        numeric.QuadratureConfig
	FWHMTolerance     float64 // absolute tolerance on the FWHM in inverse length
	FWHMMaxIterations int
}

// DefaultConfig returns the evaluation defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           runtime.NumCPU(),
		Quadrature:        numeric.DefaultQuadratureConfig(),
		FWHMTolerance:     1e-9,
		FWHMMaxIterations: numeric.DefaultMaxIterations,
	}
}

// Evaluator computes OTF, PSF and FWHM for one telescope.
// It is safe for concurrent use.
type Evaluator struct {
	tel    *telescope.Telescope
	config Config
	quad   *numeric.Quadrature
	pool   *workerPool
	logger *slog.Logger
}

// NewEvaluator creates an evaluator bound to tel.
func NewEvaluator(tel *telescope.Telescope, config Config, logger *slog.Logger) (*Evaluator, error) {
	if tel == nil {
		return nil, errors.New("optics: nil telescope")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if !(config.FWHMTolerance > 0) {
		return nil, fmt.Errorf("optics: fwhm tolerance %g must be positive", config.FWHMTolerance)
	}
	if config.FWHMMaxIterations <= 0 {
		config.FWHMMaxIterations = numeric.DefaultMaxIterations
	}

	q, err := numeric.NewQuadrature(config.Quadrature)
	if err != nil {
		return nil, fmt.Errorf("optics: %w", err)
	}

	metrics.SetEvaluationWorkers(config.Workers)
	return &Evaluator{
		tel:    tel,
		config: config,
		quad:   q,
		pool:   newWorkerPool(config.Workers, logger),
		logger: logger,
	}, nil
}

// Telescope returns the telescope the evaluator is bound to.
func (e *Evaluator) Telescope() *telescope.Telescope {
	return e.tel
}

// Config returns the effective evaluation settings.
func (e *Evaluator) Config() Config {
	return e.config
}
