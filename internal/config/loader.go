package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "ROUNDNESS_"
	envFileVar = "ROUNDNESS_CONFIG"
)

// list keys accept comma separated values from the environment.
var listKeys = map[string]bool{ //nolint:gochecknoglobals // read-only lookup
	"y_steps":           true,
	"poly_coefficients": true,
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ROUNDNESS_CONFIG is set
//  3. env (prefix ROUNDNESS_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// ROUNDNESS_WORKER_COUNT -> worker_count. Underscores are kept to match
	// the flat koanf tags.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if listKeys[key] {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// Slices decode element-wise into existing storage; a shorter list must
	// not inherit default tail values.
	if k.Exists("y_steps") {
		cfg.YSteps = nil
	}
	if k.Exists("poly_coefficients") {
		cfg.PolyCoefficients = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and the test program.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	case c.MaxLagFraction < 0 || c.MaxLagFraction > 1:
		return fmt.Errorf("%w: max_lag_fraction must be within [0, 1]", ErrInvalidConfig)
	}
	switch strings.ToLower(c.FailurePolicy) {
	case "skip", "fail_fast":
	default:
		return fmt.Errorf("%w: failure_policy %q", ErrInvalidConfig, c.FailurePolicy)
	}
	switch strings.ToLower(c.LengthPolicy) {
	case "reject", "pad_zero":
	default:
		return fmt.Errorf("%w: length_policy %q", ErrInvalidConfig, c.LengthPolicy)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if err := c.Kinematics().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
