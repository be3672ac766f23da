package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/star/aperture/internal/atmosphere"
	"github.com/star/aperture/internal/optics"
	"github.com/star/aperture/internal/telescope"
)

// DefaultSource names the built-in catalog.
const DefaultSource = "builtin"

//go:embed default.yaml
var defaultCatalog []byte

type document struct {
	Telescopes []Entry `yaml:"telescopes"`
}

// Parse decodes a YAML catalog document. Unknown fields are rejected.
func Parse(r io.Reader) ([]Entry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return doc.Telescopes, nil
}

// Load reads the catalog at path, or the built-in catalog when path is empty,
// and builds an evaluator for every valid entry.
func Load(path string, cfg optics.Config, logger *slog.Logger) (*Catalog, error) {
	var (
		r      io.Reader
		source = path
	)
	if path == "" {
		r = bytes.NewReader(defaultCatalog)
		source = DefaultSource
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening catalog: %w", err)
		}
		defer f.Close()
		r = f
	}

	entries, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return Build(source, entries, cfg, logger), nil
}

// Build validates entries and returns a catalog of the usable ones.
// Invalid or duplicate entries are skipped with a warning log.
func Build(source string, entries []Entry, cfg optics.Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	seen := make(map[string]bool, len(entries))
	instruments := make([]*Instrument, 0, len(entries))
	for i, entry := range entries {
		if entry.Name == "" {
			logger.Warn("skipping catalog entry without name", "index", i)
			continue
		}
		if seen[entry.Name] {
			logger.Warn("skipping duplicate catalog entry", "index", i, "name", entry.Name)
			continue
		}

		inst, err := buildInstrument(entry, cfg, logger)
		if err != nil {
			logger.Warn("skipping invalid catalog entry", "index", i, "name", entry.Name, "error", err)
			continue
		}
		seen[entry.Name] = true
		instruments = append(instruments, inst)
	}

	logger.Info("catalog loaded",
		"source", source,
		"telescopes", len(instruments),
		"skipped", len(entries)-len(instruments),
	)
	return newCatalog(source, time.Now(), instruments)
}

func buildInstrument(entry Entry, cfg optics.Config, logger *slog.Logger) (*Instrument, error) {
	if entry.Wavelength == 0 {
		entry.Wavelength = DefaultWavelength
	}
	if !(entry.Wavelength > 0) {
		return nil, fmt.Errorf("wavelength %g must be positive", entry.Wavelength)
	}

	opts := []telescope.Option{
		telescope.WithObstructionRatio(entry.ObstructionRatio),
		telescope.WithResolution(entry.Resolution),
		telescope.WithSamplingTime(entry.SamplingTime),
		telescope.WithLogger(logger.With("telescope", entry.Name)),
	}
	if entry.FieldOfViewArcsec != nil {
		opts = append(opts, telescope.WithFieldOfViewArcsec(*entry.FieldOfViewArcsec))
	}
	if entry.FieldOfViewArcmin != nil {
		opts = append(opts, telescope.WithFieldOfViewArcmin(*entry.FieldOfViewArcmin))
	}
	if entry.Atmosphere != nil {
		model, err := buildAtmosphere(*entry.Atmosphere, entry.Wavelength)
		if err != nil {
			return nil, err
		}
		opts = append(opts, telescope.WithAberration(model))
	}

	tel, err := telescope.New(entry.Diameter, opts...)
	if err != nil {
		return nil, err
	}
	ev, err := optics.NewEvaluator(tel, cfg, logger.With("telescope", entry.Name))
	if err != nil {
		return nil, err
	}
	return &Instrument{Entry: entry, Telescope: tel, Evaluator: ev}, nil
}

func buildAtmosphere(spec AtmosphereSpec, wavelength float64) (*atmosphere.Kolmogorov, error) {
	switch {
	case spec.R0 != 0 && spec.SeeingArcsec != 0:
		return nil, errors.New("atmosphere: set either r0 or seeing_arcsec, not both")
	case spec.R0 != 0:
		return atmosphere.NewKolmogorov(spec.R0)
	case spec.SeeingArcsec != 0:
		r0, err := atmosphere.FriedParameter(spec.SeeingArcsec, wavelength)
		if err != nil {
			return nil, err
		}
		return atmosphere.NewKolmogorov(r0)
	default:
		return nil, errors.New("atmosphere: r0 or seeing_arcsec is required")
	}
}
