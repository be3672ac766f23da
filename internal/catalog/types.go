// Package catalog loads named telescope configurations from YAML and keeps
// the current set behind an atomic store.
package catalog

import (
	"sort"
	"time"

	"github.com/star/aperture/internal/optics"
	"github.com/star/aperture/internal/telescope"
)

// DefaultWavelength is used when an entry does not name one (metres).
const DefaultWavelength = 500e-9

// Entry is one telescope as written in the catalog file. Lengths are metres.
type Entry struct {
	Name              string          `yaml:"name" json:"name"`
	Diameter          float64         `yaml:"diameter" json:"diameter"`
	ObstructionRatio  float64         `yaml:"obstruction_ratio" json:"obstruction_ratio"`
	Resolution        int             `yaml:"resolution" json:"resolution,omitempty"`
	FieldOfViewArcsec *float64        `yaml:"field_of_view_arcsec" json:"field_of_view_arcsec,omitempty"`
	FieldOfViewArcmin *float64        `yaml:"field_of_view_arcmin" json:"field_of_view_arcmin,omitempty"`
	SamplingTime      time.Duration   `yaml:"sampling_time" json:"sampling_time,omitempty"`
	Wavelength        float64         `yaml:"wavelength" json:"wavelength"`
	Atmosphere        *AtmosphereSpec `yaml:"atmosphere" json:"atmosphere,omitempty"`
}

// AtmosphereSpec describes a Kolmogorov atmosphere either by its Fried
// parameter at the entry wavelength or by seeing in arcseconds.
type AtmosphereSpec struct {
	R0           float64 `yaml:"r0" json:"r0,omitempty"`
	SeeingArcsec float64 `yaml:"seeing_arcsec" json:"seeing_arcsec,omitempty"`
}

// Instrument is a validated catalog entry with its telescope and evaluator.
type Instrument struct {
	Entry     Entry
	Telescope *telescope.Telescope
	Evaluator *optics.Evaluator
}

// Catalog is an immutable set of instruments keyed by name.
type Catalog struct {
	Source   string
	LoadedAt time.Time

	instruments []*Instrument
	byName      map[string]*Instrument
}

func newCatalog(source string, loadedAt time.Time, instruments []*Instrument) *Catalog {
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Entry.Name < instruments[j].Entry.Name
	})
	byName := make(map[string]*Instrument, len(instruments))
	for _, inst := range instruments {
		byName[inst.Entry.Name] = inst
	}
	return &Catalog{
		Source:      source,
		LoadedAt:    loadedAt,
		instruments: instruments,
		byName:      byName,
	}
}

// Lookup returns the instrument with the given name.
func (c *Catalog) Lookup(name string) (*Instrument, bool) {
	inst, ok := c.byName[name]
	return inst, ok
}

// Instruments returns all instruments sorted by name.
func (c *Catalog) Instruments() []*Instrument {
	out := make([]*Instrument, len(c.instruments))
	copy(out, c.instruments)
	return out
}

// Len returns the number of instruments.
func (c *Catalog) Len() int {
	return len(c.instruments)
}
