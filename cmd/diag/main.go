package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/star/aperture/internal/atmosphere"
	"github.com/star/aperture/internal/optics"
	"github.com/star/aperture/internal/telescope"
	"github.com/star/aperture/internal/units"
)

func main() {
	var (
		diameter   = flag.Float64("diameter", 8, "aperture diameter (m)")
		rho        = flag.Float64("obstruction", 0, "central obstruction ratio")
		resolution = flag.Int("resolution", 64, "pupil grid size in pixels")
		r0         = flag.Float64("r0", 0, "Kolmogorov Fried parameter (m), 0 for none")
		seeing     = flag.Float64("seeing", 0, "seeing FWHM (arcsec) instead of --r0")
		wavelength = flag.Float64("wavelength", 500e-9, "wavelength (m)")
		freqs      = flag.Float64Slice("f", []float64{0, 0.05, 0.1, 0.5, 1}, "PSF spatial frequencies (1/m)")
		seps       = flag.Float64Slice("r", []float64{0, 1, 2, 4, 6, 8}, "OTF separations (m)")
		workers    = flag.Int("workers", 0, "parallel integrals (0 = NumCPU)")
		pupilOut   = flag.String("pupil-out", "", "write the pupil mask TIFF to this path")
		verbose    = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []telescope.Option{
		telescope.WithObstructionRatio(*rho),
		telescope.WithResolution(*resolution),
		telescope.WithLogger(logger),
	}
	switch {
	case *r0 > 0 && *seeing > 0:
		fmt.Println("ERROR: --r0 and --seeing are mutually exclusive")
		os.Exit(1)
	case *seeing > 0:
		v, err := atmosphere.FriedParameter(*seeing, *wavelength)
		if err != nil {
			fmt.Println("ERROR:", err)
			os.Exit(1)
		}
		*r0 = v
	}
	if *r0 > 0 {
		model, err := atmosphere.NewKolmogorov(*r0)
		if err != nil {
			fmt.Println("ERROR:", err)
			os.Exit(1)
		}
		opts = append(opts, telescope.WithAberration(model))
	}

	tel, err := telescope.New(*diameter, opts...)
	if err != nil {
		fmt.Println("ERROR creating telescope:", err)
		os.Exit(1)
	}

	cfg := optics.DefaultConfig()
	cfg.Workers = *workers
	ev, err := optics.NewEvaluator(tel, cfg, logger)
	if err != nil {
		fmt.Println("ERROR creating evaluator:", err)
		os.Exit(1)
	}

	g := tel.Geometry()
	fmt.Printf("Telescope: D=%.3f m  rho=%.3f  area=%.4f m^2", g.Diameter, g.ObstructionRatio, g.CollectingArea())
	if *r0 > 0 {
		fmt.Printf("  r0=%.4f m", *r0)
	}
	fmt.Println()

	if mask := tel.Pupil(); mask != nil {
		fmt.Printf("Pupil: %dx%d  open=%d  fill=%.4f\n", mask.Size(), mask.Size(), mask.Open(), mask.FillFraction())
		if *pupilOut != "" {
			if err := writePupil(*pupilOut, tel); err != nil {
				fmt.Println("ERROR writing pupil:", err)
				os.Exit(1)
			}
			fmt.Printf("Pupil written to %s\n", *pupilOut)
		}
	}

	otf, err := ev.OTF(*seps)
	if err != nil {
		fmt.Println("ERROR evaluating OTF:", err)
		os.Exit(1)
	}
	fmt.Println("\nOTF:")
	for i, r := range *seps {
		fmt.Printf("  r=%8.4f m  otf=%.6f\n", r, otf[i])
	}

	ctx := context.Background()
	start := time.Now()
	psf, err := ev.PSF(ctx, *freqs)
	if err != nil {
		fmt.Println("ERROR evaluating PSF:", err)
		os.Exit(1)
	}
	fmt.Printf("\nPSF (%s):\n", time.Since(start).Round(time.Microsecond))
	for i, f := range *freqs {
		fmt.Printf("  f=%8.4f 1/m  psf=%.6e\n", f, psf[i])
	}

	start = time.Now()
	res := ev.FWHM(ctx)
	fmt.Printf("\nFWHM: %.6e 1/m = %.4f arcsec at %.0f nm (converged=%v, iterations=%d, %s)\n",
		res.Value, units.AngularFWHMArcsec(res.Value, *wavelength), *wavelength*1e9,
		res.Converged, res.Iterations, time.Since(start).Round(time.Microsecond))
	if res.Diagnostic != "" {
		fmt.Println("  diagnostic:", res.Diagnostic)
	}
}

func writePupil(path string, tel *telescope.Telescope) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tel.Pupil().WriteTIFF(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
