// Package config resolves service settings from flags, environment, an
// optional config file and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/star/aperture/internal/numeric"
	"github.com/star/aperture/internal/optics"
)

// EnvPrefix prefixes every environment variable, e.g. APERTURE_HTTP_ADDR.
const EnvPrefix = "APERTURE"

// ConfigFileEnv names the environment variable holding an optional config file path.
const ConfigFileEnv = "APERTURE_CONFIG"

// flagBindings maps viper keys to pflag names.
var flagBindings = map[string]string{
	"http_addr":           "http-addr",
	"log_level":           "log-level",
	"catalog_path":        "catalog",
	"workers":             "workers",
	"quad_abs_tol":        "quad-abs-tol",
	"quad_rel_tol":        "quad-rel-tol",
	"quad_order":          "quad-order",
	"quad_max_panels":     "quad-max-panels",
	"fwhm_tolerance":      "fwhm-tolerance",
	"fwhm_max_iterations": "fwhm-max-iterations",
	"max_samples":         "max-samples",
	"auth_token":          "auth-token",
	"trust_proxy":         "trust-proxy",
}

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr    string
	LogLevel    string
	CatalogPath string

	Workers           int
	QuadAbsTol        float64
	QuadRelTol        float64
	QuadOrder         int
	QuadMaxPanels     int
	FWHMTolerance     float64
	FWHMMaxIterations int

	// MaxSamples caps the number of r or f values accepted per request.
	MaxSamples int
	// AuthToken enables bearer-token auth on evaluation endpoints when set.
	AuthToken  string
	TrustProxy bool
}

// RegisterFlags adds the service flags to fs.
func RegisterFlags(fs *flag.FlagSet) {
	quad := numeric.DefaultQuadratureConfig()
	fs.String("http-addr", ":8080", "HTTP listen address")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("catalog", "", "telescope catalog YAML (built-in catalog when empty)")
	fs.Int("workers", runtime.NumCPU(), "parallel Hankel integrals per PSF request")
	fs.Float64("quad-abs-tol", quad.AbsTol, "quadrature absolute tolerance")
	fs.Float64("quad-rel-tol", quad.RelTol, "quadrature relative tolerance")
	fs.Int("quad-order", quad.Order, "Gauss-Legendre points per panel")
	fs.Int("quad-max-panels", quad.MaxPanels, "quadrature panel budget")
	fs.Float64("fwhm-tolerance", 1e-9, "FWHM absolute tolerance (inverse length)")
	fs.Int("fwhm-max-iterations", numeric.DefaultMaxIterations, "FWHM root search iteration cap")
	fs.Int("max-samples", 4096, "maximum samples per API request")
	fs.String("auth-token", "", "bearer token required by evaluation endpoints (disabled when empty)")
	fs.Bool("trust-proxy", false, "log client IPs from X-Forwarded-For / X-Real-IP")
}

// Load resolves and validates the configuration.
// Precedence: flags > env > config file > defaults.
// flagSet may be nil (e.g. in tests that don't set CLI flags).
func Load(flagSet *flag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if flagSet != nil {
		for key, name := range flagBindings {
			if f := flagSet.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	cfg := &Config{
		HTTPAddr:          v.GetString("http_addr"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
		CatalogPath:       v.GetString("catalog_path"),
		Workers:           v.GetInt("workers"),
		QuadAbsTol:        v.GetFloat64("quad_abs_tol"),
		QuadRelTol:        v.GetFloat64("quad_rel_tol"),
		QuadOrder:         v.GetInt("quad_order"),
		QuadMaxPanels:     v.GetInt("quad_max_panels"),
		FWHMTolerance:     v.GetFloat64("fwhm_tolerance"),
		FWHMMaxIterations: v.GetInt("fwhm_max_iterations"),
		MaxSamples:        v.GetInt("max_samples"),
		AuthToken:         v.GetString("auth_token"),
		TrustProxy:        v.GetBool("trust_proxy"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	quad := numeric.DefaultQuadratureConfig()
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("catalog_path", "")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("quad_abs_tol", quad.AbsTol)
	v.SetDefault("quad_rel_tol", quad.RelTol)
	v.SetDefault("quad_order", quad.Order)
	v.SetDefault("quad_max_panels", quad.MaxPanels)
	v.SetDefault("fwhm_tolerance", 1e-9)
	v.SetDefault("fwhm_max_iterations", numeric.DefaultMaxIterations)
	v.SetDefault("max_samples", 4096)
	v.SetDefault("auth_token", "")
	v.SetDefault("trust_proxy", false)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if !(c.QuadAbsTol > 0) {
		errs = append(errs, fmt.Errorf("quad_abs_tol must be positive, got %g", c.QuadAbsTol))
	}
	if !(c.QuadRelTol >= 0) {
		errs = append(errs, fmt.Errorf("quad_rel_tol must not be negative, got %g", c.QuadRelTol))
	}
	if c.QuadOrder < 2 {
		errs = append(errs, fmt.Errorf("quad_order must be at least 2, got %d", c.QuadOrder))
	}
	if c.QuadMaxPanels < 1 {
		errs = append(errs, fmt.Errorf("quad_max_panels must be at least 1, got %d", c.QuadMaxPanels))
	}
	if !(c.FWHMTolerance > 0) {
		errs = append(errs, fmt.Errorf("fwhm_tolerance must be positive, got %g", c.FWHMTolerance))
	}
	if c.FWHMMaxIterations < 1 {
		errs = append(errs, fmt.Errorf("fwhm_max_iterations must be at least 1, got %d", c.FWHMMaxIterations))
	}
	if c.MaxSamples < 1 {
		errs = append(errs, fmt.Errorf("max_samples must be at least 1, got %d", c.MaxSamples))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
}

// Optics returns the evaluator settings.
func (c *Config) Optics() optics.Config {
	return optics.Config{
		Workers: c.Workers,
		Quadrature: numeric.QuadratureConfig{
			AbsTol:    c.QuadAbsTol,
			RelTol:    c.QuadRelTol,
			Order:     c.QuadOrder,
			MaxPanels: c.QuadMaxPanels,
		},
		FWHMTolerance:     c.FWHMTolerance,
		FWHMMaxIterations: c.FWHMMaxIterations,
	}
}
