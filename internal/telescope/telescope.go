// Package telescope holds the aperture configuration of a telescope, its
// memoized pupil mask and an optional reference to a turbulence model.
//
// A Telescope is safe for concurrent use. Geometry and the aberration slot are
// published through atomic pointers; the pupil is computed once per
// (resolution, obstruction ratio) pair with double-checked locking.
package telescope

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/aperture/internal/metrics"
	"github.com/star/aperture/internal/pupil"
	"github.com/star/aperture/internal/units"
)

// pupilCache holds the mask generated for a specific geometry.
// Immutable after construction; safe for concurrent reads.
type pupilCache struct {
	mask        *pupil.Mask
	resolution  int
	obstruction float64
}

func (c *pupilCache) matches(g *Geometry) bool {
	return c.resolution == g.Resolution && c.obstruction == g.ObstructionRatio
}

// Telescope is a validated aperture configuration.
type Telescope struct {
	geometry   atomic.Pointer[Geometry]
	aberration atomic.Pointer[aberrationSlot]

	fieldOfView  float64 // arcsec, 0 when unset
	samplingTime time.Duration

	pupil   atomic.Pointer[pupilCache]
	pupilMu sync.Mutex // serializes pupil rebuilds
	setMu   sync.Mutex // serializes geometry updates

	hits     atomic.Int64
	misses   atomic.Int64
	rebuilds atomic.Int64

	logger *slog.Logger
}

type options struct {
	obstruction  float64
	resolution   int
	fovArcsec    *float64
	fovArcmin    *float64
	samplingTime time.Duration
	aberration   Aberration
	eagerPupil   bool
	logger       *slog.Logger
}

// Option customizes a Telescope at construction.
type Option func(*options)

// WithObstructionRatio sets the central obstruction ratio ρ (default 0).
func WithObstructionRatio(rho float64) Option {
	return func(o *options) { o.obstruction = rho }
}

// WithResolution sets the pupil grid size in pixels.
func WithResolution(n int) Option {
	return func(o *options) { o.resolution = n }
}

// WithFieldOfViewArcsec sets the field of view in arcseconds.
func WithFieldOfViewArcsec(arcsec float64) Option {
	return func(o *options) { o.fovArcsec = &arcsec }
}

// WithFieldOfViewArcmin sets the field of view in arcminutes.
// Mutually exclusive with WithFieldOfViewArcsec.
func WithFieldOfViewArcmin(arcmin float64) Option {
	return func(o *options) { o.fovArcmin = &arcmin }
}

// WithSamplingTime records the loop sampling time. Not used by the optics core.
func WithSamplingTime(d time.Duration) Option {
	return func(o *options) { o.samplingTime = d }
}

// WithAberration attaches a turbulence model at construction.
func WithAberration(a Aberration) Option {
	return func(o *options) { o.aberration = a }
}

// WithEagerPupil computes the pupil mask during New instead of on first access.
func WithEagerPupil() Option {
	return func(o *options) { o.eagerPupil = true }
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a telescope with the given aperture diameter.
// Returns a *ConfigurationError if any parameter is out of range.
func New(diameter float64, opts ...Option) (*Telescope, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := validateDiameter(diameter); err != nil {
		return nil, err
	}
	if err := validateObstruction(o.obstruction); err != nil {
		return nil, err
	}
	if err := validateResolution(o.resolution); err != nil {
		return nil, err
	}
	if err := validateSamplingTime(o.samplingTime); err != nil {
		return nil, err
	}
	if err := validateAberration(o.aberration); err != nil {
		return nil, err
	}

	fov, err := resolveFieldOfView(o.fovArcsec, o.fovArcmin)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	t := &Telescope{
		fieldOfView:  fov,
		samplingTime: o.samplingTime,
		logger:       logger,
	}
	t.geometry.Store(&Geometry{
		Diameter:         diameter,
		ObstructionRatio: o.obstruction,
		Resolution:       o.resolution,
	})
	if o.aberration != nil {
		t.aberration.Store(&aberrationSlot{model: o.aberration})
	}
	if o.eagerPupil {
		t.Pupil()
	}

	return t, nil
}

func resolveFieldOfView(arcsec, arcmin *float64) (float64, error) {
	if arcsec != nil && arcmin != nil {
		return 0, &ConfigurationError{Field: "field of view", Value: *arcsec, Reason: "give arcseconds or arcminutes, not both"}
	}
	var fov float64
	switch {
	case arcsec != nil:
		fov = *arcsec
	case arcmin != nil:
		fov = units.ArcminToArcsec(*arcmin)
	}
	if math.IsNaN(fov) || math.IsInf(fov, 0) || fov < 0 {
		return 0, &ConfigurationError{Field: "field of view", Value: fov, Reason: "must be a non-negative finite angle"}
	}
	return fov, nil
}

// Geometry returns the current aperture geometry.
func (t *Telescope) Geometry() Geometry {
	return *t.geometry.Load()
}

// State returns the geometry and attached aberration as one consistent view.
func (t *Telescope) State() State {
	s := State{Geometry: *t.geometry.Load()}
	if slot := t.aberration.Load(); slot != nil {
		s.Aberration = slot.model
	}
	return s
}

// FieldOfViewArcsec returns the field of view in arcseconds, 0 when unset.
func (t *Telescope) FieldOfViewArcsec() float64 {
	return t.fieldOfView
}

// SamplingTime returns the configured sampling time, 0 when unset.
func (t *Telescope) SamplingTime() time.Duration {
	return t.samplingTime
}

// SetObstructionRatio changes ρ. The cached pupil is rebuilt on next access.
func (t *Telescope) SetObstructionRatio(rho float64) error {
	if err := validateObstruction(rho); err != nil {
		return err
	}
	t.setMu.Lock()
	defer t.setMu.Unlock()

	g := *t.geometry.Load()
	g.ObstructionRatio = rho
	t.geometry.Store(&g)
	return nil
}

// SetResolution changes the pupil grid size. The cached pupil is rebuilt on next access.
func (t *Telescope) SetResolution(n int) error {
	if err := validateResolution(n); err != nil {
		return err
	}
	t.setMu.Lock()
	defer t.setMu.Unlock()

	g := *t.geometry.Load()
	g.Resolution = n
	t.geometry.Store(&g)
	return nil
}

// AttachAberration sets the turbulence model, replacing any previous one.
// Passing nil detaches. A typed nil model is rejected with a
// *ConfigurationError and leaves the current reference in place.
func (t *Telescope) AttachAberration(a Aberration) error {
	if err := validateAberration(a); err != nil {
		return err
	}
	if a == nil {
		t.aberration.Store(nil)
		return nil
	}
	t.aberration.Store(&aberrationSlot{model: a})
	return nil
}

// DetachAberration removes the turbulence model reference.
func (t *Telescope) DetachAberration() {
	t.aberration.Store(nil)
}

// Pupil returns the pupil mask for the current geometry, or nil when the
// resolution is unset. The returned mask must be treated as read-only.
func (t *Telescope) Pupil() *pupil.Mask {
	g := t.geometry.Load()
	if g.Resolution == 0 {
		return nil
	}

	if c := t.pupil.Load(); c != nil && c.matches(g) {
		t.hits.Add(1)
		metrics.IncPupilCacheHits()
		return c.mask
	}

	t.pupilMu.Lock()
	defer t.pupilMu.Unlock()

	// Another caller may have rebuilt while we waited; reload geometry as well
	// in case a setter ran in between.
	g = t.geometry.Load()
	if g.Resolution == 0 {
		return nil
	}
	if c := t.pupil.Load(); c != nil && c.matches(g) {
		t.hits.Add(1)
		metrics.IncPupilCacheHits()
		return c.mask
	}

	t.misses.Add(1)
	metrics.IncPupilCacheMisses()

	start := time.Now()
	mask := pupil.Generate(g.Resolution, g.ObstructionRatio)
	t.pupil.Store(&pupilCache{
		mask:        mask,
		resolution:  g.Resolution,
		obstruction: g.ObstructionRatio,
	})
	t.rebuilds.Add(1)

	t.logger.Debug("pupil cache rebuilt",
		"resolution", g.Resolution,
		"obstruction_ratio", g.ObstructionRatio,
		"open_pixels", mask.Open(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return mask
}

// PupilStats returns pupil cache counters.
func (t *Telescope) PupilStats() PupilStats {
	return PupilStats{
		Hits:     t.hits.Load(),
		Misses:   t.misses.Load(),
		Rebuilds: t.rebuilds.Load(),
	}
}
