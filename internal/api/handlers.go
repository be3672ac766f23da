package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/star/aperture/internal/catalog"
	"github.com/star/aperture/internal/optics"
	"github.com/star/aperture/internal/units"
)

// defaultGridPoints is the sample count of a from/to grid when n is omitted.
const defaultGridPoints = 64

type telescopeInfo struct {
	Name              string   `json:"name"`
	Diameter          float64  `json:"diameter"`
	ObstructionRatio  float64  `json:"obstruction_ratio"`
	Resolution        int      `json:"resolution,omitempty"`
	CollectingArea    float64  `json:"collecting_area"`
	FieldOfViewArcsec float64  `json:"field_of_view_arcsec,omitempty"`
	SamplingTimeMs    float64  `json:"sampling_time_ms,omitempty"`
	Wavelength        float64  `json:"wavelength"`
	Aberration        bool     `json:"aberration"`
	R0                *float64 `json:"r0,omitempty"`
}

func listHandler(store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := store.Get()
		if c == nil {
			writeError(w, http.StatusServiceUnavailable, "no catalog loaded", nil)
			return
		}

		infos := make([]telescopeInfo, 0, c.Len())
		for _, inst := range c.Instruments() {
			s := inst.Telescope.State()
			info := telescopeInfo{
				Name:              inst.Entry.Name,
				Diameter:          s.Diameter,
				ObstructionRatio:  s.ObstructionRatio,
				Resolution:        s.Resolution,
				CollectingArea:    s.CollectingArea(),
				FieldOfViewArcsec: inst.Telescope.FieldOfViewArcsec(),
				SamplingTimeMs:    float64(inst.Telescope.SamplingTime().Microseconds()) / 1000,
				Wavelength:        inst.Entry.Wavelength,
				Aberration:        s.HasAberration(),
			}
			if s.HasAberration() {
				r0 := s.Aberration.CoherenceLength()
				if !math.IsInf(r0, 0) {
					info.R0 = &r0
				}
			}
			infos = append(infos, info)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"source":     c.Source,
			"telescopes": infos,
		})
	}
}

func otfHandler(logger *slog.Logger, store *catalog.Store, maxSamples int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, ok := lookup(w, r, store)
		if !ok {
			return
		}
		sep, err := parseSamples(r.URL.Query(), "r", maxSamples)
		if err != nil {
			writeSampleError(w, err, maxSamples)
			return
		}

		values, err := inst.Evaluator.OTF(sep)
		if err != nil {
			logger.Error("otf evaluation failed", "telescope", inst.Entry.Name, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"telescope": inst.Entry.Name,
			"r":         sep,
			"otf":       values,
		})
	}
}

func psfHandler(logger *slog.Logger, store *catalog.Store, maxSamples int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, ok := lookup(w, r, store)
		if !ok {
			return
		}
		freqs, err := parseSamples(r.URL.Query(), "f", maxSamples)
		if err != nil {
			writeSampleError(w, err, maxSamples)
			return
		}

		path := "closed_form"
		if inst.Telescope.State().HasAberration() {
			path = "hankel"
		}

		values, err := inst.Evaluator.PSF(r.Context(), freqs)
		if err != nil {
			var ierr *optics.IntegrationError
			switch {
			case errors.As(err, &ierr):
				writeError(w, http.StatusUnprocessableEntity, err.Error(), map[string]any{"frequency": ierr.Frequency})
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				writeError(w, http.StatusServiceUnavailable, "request cancelled", nil)
			default:
				logger.Error("psf evaluation failed", "telescope", inst.Entry.Name, "error", err)
				writeError(w, http.StatusInternalServerError, err.Error(), nil)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"telescope": inst.Entry.Name,
			"path":      path,
			"f":         freqs,
			"psf":       values,
		})
	}
}

func fwhmHandler(store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, ok := lookup(w, r, store)
		if !ok {
			return
		}

		wavelength := inst.Entry.Wavelength
		if v := r.URL.Query().Get("wavelength"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || !(parsed > 0) || math.IsInf(parsed, 0) {
				writeError(w, http.StatusBadRequest, "wavelength must be a positive length", nil)
				return
			}
			wavelength = parsed
		}

		res := inst.Evaluator.FWHM(r.Context())
		body := map[string]any{
			"telescope":   inst.Entry.Name,
			"fwhm":        res.Value,
			"converged":   res.Converged,
			"iterations":  res.Iterations,
			"wavelength":  wavelength,
			"fwhm_arcsec": units.AngularFWHMArcsec(res.Value, wavelength),
		}
		if res.Diagnostic != "" {
			body["diagnostic"] = res.Diagnostic
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func pupilHandler(logger *slog.Logger, store *catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, ok := lookup(w, r, store)
		if !ok {
			return
		}
		mask := inst.Telescope.Pupil()
		if mask == nil {
			writeError(w, http.StatusConflict, "pupil resolution not configured", nil)
			return
		}

		switch format := r.URL.Query().Get("format"); format {
		case "tiff":
			var buf bytes.Buffer
			if err := mask.WriteTIFF(&buf); err != nil {
				logger.Error("pupil tiff encoding failed", "telescope", inst.Entry.Name, "error", err)
				writeError(w, http.StatusInternalServerError, "encoding failed", nil)
				return
			}
			w.Header().Set("Content-Type", "image/tiff")
			w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
			w.WriteHeader(http.StatusOK)
			w.Write(buf.Bytes())
		case "", "json":
			grid := mask.Rows()
			rows := make([]string, len(grid))
			for i, row := range grid {
				line := make([]byte, len(row))
				for j, v := range row {
					line[j] = '0' + v
				}
				rows[i] = string(line)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"telescope":         inst.Entry.Name,
				"size":              mask.Size(),
				"obstruction_ratio": mask.ObstructionRatio(),
				"open_pixels":       mask.Open(),
				"fill_fraction":     mask.FillFraction(),
				"rows":              rows,
			})
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q (want json or tiff)", format), nil)
		}
	}
}

func lookup(w http.ResponseWriter, r *http.Request, store *catalog.Store) (*catalog.Instrument, bool) {
	name := r.PathValue("name")
	inst, ok := store.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("telescope %q not found", name), nil)
		return nil, false
	}
	return inst, true
}

// errTooManySamples marks a request over the per-request sample budget.
var errTooManySamples = errors.New("too many samples")

// parseSamples reads either a comma-separated list (key=0,0.1,0.2, repeatable)
// or an evenly spaced grid (from, to, n).
func parseSamples(q url.Values, key string, maxSamples int) ([]float64, error) {
	if raw, ok := q[key]; ok {
		var fields []string
		for _, v := range raw {
			fields = append(fields, strings.Split(v, ",")...)
		}
		if len(fields) > maxSamples {
			return nil, fmt.Errorf("%w: %d %s values", errTooManySamples, len(fields), key)
		}
		values := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q", key, field)
			}
			values[i] = v
		}
		if err := checkFinite(key, values); err != nil {
			return nil, err
		}
		return values, nil
	}

	if q.Get("to") == "" {
		return nil, fmt.Errorf("%s or from/to/n is required", key)
	}
	from, err := parseFloatParam(q, "from", 0)
	if err != nil {
		return nil, err
	}
	to, err := parseFloatParam(q, "to", 0)
	if err != nil {
		return nil, err
	}
	n := defaultGridPoints
	if v := q.Get("n"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errors.New("n must be a positive integer")
		}
	}
	if n > maxSamples {
		return nil, fmt.Errorf("%w: n=%d", errTooManySamples, n)
	}
	if err := checkFinite("from/to", []float64{from, to}); err != nil {
		return nil, err
	}

	values := make([]float64, n)
	if n == 1 {
		values[0] = from
		return values, nil
	}
	return floats.Span(values, from, to), nil
}

func parseFloatParam(q url.Values, key string, def float64) (float64, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return f, nil
}

func checkFinite(key string, values []float64) error {
	if floats.HasNaN(values) {
		return fmt.Errorf("%s values must be finite", key)
	}
	for _, v := range values {
		if math.IsInf(v, 0) {
			return fmt.Errorf("%s values must be finite", key)
		}
	}
	return nil
}

func writeSampleError(w http.ResponseWriter, err error, maxSamples int) {
	var extra map[string]any
	if errors.Is(err, errTooManySamples) {
		extra = map[string]any{"max_samples": maxSamples}
	}
	writeError(w, http.StatusBadRequest, err.Error(), extra)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, extra map[string]any) {
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}
