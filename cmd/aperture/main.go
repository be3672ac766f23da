package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/star/aperture/internal/api"
	"github.com/star/aperture/internal/auth"
	"github.com/star/aperture/internal/catalog"
	"github.com/star/aperture/internal/config"
)

func main() {
	fs := flag.NewFlagSet("aperture", flag.ExitOnError)
	config.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	logger.Info("optics config",
		"workers", cfg.Workers,
		"quad_abs_tol", cfg.QuadAbsTol,
		"quad_rel_tol", cfg.QuadRelTol,
		"quad_order", cfg.QuadOrder,
		"quad_max_panels", cfg.QuadMaxPanels,
		"fwhm_tolerance", cfg.FWHMTolerance,
		"max_samples", cfg.MaxSamples,
	)

	cat, err := catalog.Load(cfg.CatalogPath, cfg.Optics(), logger)
	if err != nil {
		logger.Error("failed to load catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	if cat.Len() == 0 {
		logger.Warn("catalog has no usable telescopes, readiness will fail", "source", cat.Source)
	}
	store := catalog.NewStore()
	store.Set(cat)

	srv := api.NewServer(cfg.HTTPAddr, logger, store, api.Options{
		MaxSamples: cfg.MaxSamples,
		Auth:       auth.Config{Token: cfg.AuthToken},
		TrustProxy: cfg.TrustProxy,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"catalog", cat.Source,
			"telescopes", cat.Len(),
			"auth_enabled", cfg.AuthToken != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
