package telescope

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// Aberration is an attached turbulence model. The telescope only holds a
// reference; creating, advancing and destroying the model is the caller's job.
type Aberration interface {
	// LongExposureOTF returns the turbulence OTF factor in [0, 1] for each
	// pupil-plane separation (length units), one value per input sample.
	LongExposureOTF(separations []float64) []float64
	// CoherenceLength returns the Fried parameter r0 in length units.
	CoherenceLength() float64
}

// Geometry holds the aperture parameters that derived optical quantities depend on.
// Immutable once published; setters swap in a new value.
type Geometry struct {
	Diameter         float64 // length units, > 0
	ObstructionRatio float64 // central obstruction diameter / Diameter, in [0, 1)
	Resolution       int     // pupil grid pixels, 0 when unset
}

// ObstructionDiameter returns the central obstruction diameter d = ρ·D.
func (g Geometry) ObstructionDiameter() float64 {
	return g.ObstructionRatio * g.Diameter
}

// CollectingArea returns π·D²·(1−ρ²)/4.
func (g Geometry) CollectingArea() float64 {
	return math.Pi * g.Diameter * g.Diameter * (1 - g.ObstructionRatio*g.ObstructionRatio) / 4
}

// State is a consistent view of the geometry and the attached aberration,
// taken once per evaluation so concurrent Attach/Set calls do not tear it.
type State struct {
	Geometry
	Aberration Aberration // nil when no turbulence model is attached
}

// HasAberration reports whether a turbulence model is attached.
func (s State) HasAberration() bool {
	return s.Aberration != nil
}

// aberrationSlot boxes the attached model so it can live behind an atomic pointer.
// A nil slot means no aberration.
type aberrationSlot struct {
	model Aberration
}

// PupilStats holds pupil cache counters.
type PupilStats struct {
	Hits     int64
	Misses   int64
	Rebuilds int64
}

// ConfigurationError reports an invalid construction or mutation parameter.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("telescope: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// validateAberration rejects an interface holding a nil pointer, map, func or
// similar, which would pass a nil check and then panic on first use.
func validateAberration(a Aberration) error {
	if a == nil {
		return nil
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return &ConfigurationError{Field: "aberration", Value: fmt.Sprintf("%T", a), Reason: "typed nil model"}
		}
	}
	return nil
}

func validateDiameter(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return &ConfigurationError{Field: "diameter", Value: d, Reason: "must be a positive finite length"}
	}
	return nil
}

func validateObstruction(rho float64) error {
	if math.IsNaN(rho) || rho < 0 || rho >= 1 {
		return &ConfigurationError{Field: "obstruction ratio", Value: rho, Reason: "must be in [0, 1)"}
	}
	return nil
}

func validateResolution(n int) error {
	if n < 0 {
		return &ConfigurationError{Field: "resolution", Value: n, Reason: "must be a positive pixel count"}
	}
	return nil
}

func validateSamplingTime(d time.Duration) error {
	if d < 0 {
		return &ConfigurationError{Field: "sampling time", Value: d, Reason: "must not be negative"}
	}
	return nil
}
