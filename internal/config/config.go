// Package config defines process configuration and its loading hooks.
//
// Values are layered: defaults from New, an optional YAML file named by
// ROUNDNESS_CONFIG, then ROUNDNESS_* environment variables.
package config

import (
	"runtime"

	"github.com/okian/roundness/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects "text" or "json" log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080". Empty disables
	// the HTTP surface.
	Addr string `koanf:"addr"`

	// DataDir is the directory holding one trace file per measurement.
	DataDir string `koanf:"data_dir"`

	// FilePattern selects trace files inside DataDir.
	FilePattern string `koanf:"file_pattern"`

	// SampleRate is the acquisition rate of the trace files in Hz.
	SampleRate float64 `koanf:"sample_rate"`

	// DBPath points to the SQLite result database. Empty keeps results in memory.
	DBPath string `koanf:"db_path"`

	// WorkerCount sets the number of workers per pipeline stage.
	WorkerCount int `koanf:"worker_count"`

	// FailurePolicy is "skip" or "fail_fast".
	FailurePolicy string `koanf:"failure_policy"`

	// LengthPolicy is "reject" or "pad_zero".
	LengthPolicy string `koanf:"length_policy"`

	// MaxLagFraction bounds alignment lags as a fraction of the profile length.
	MaxLagFraction float64 `koanf:"max_lag_fraction"`

	// Test program.
	YSteps         []float64 `koanf:"y_steps"`
	RevsPerStep    float64   `koanf:"revs_per_step"`
	SecondsPerRev  float64   `koanf:"seconds_per_rev"`
	ClipFraction   float64   `koanf:"clip_fraction"`
	GapSeconds     float64   `koanf:"gap_seconds"`
	FilterSize     int       `koanf:"filter_size"`
	FullScaleVolts float64   `koanf:"full_scale_volts"`

	// Probe calibration.
	PolyCoefficients []float64 `koanf:"poly_coefficients"`
	PolyConstant     float64   `koanf:"poly_constant"`
	ProbeDiameter    float64   `koanf:"probe_diameter"`
}

// New creates a Config populated with defaults.
func New() *Config {
	k := model.DefaultKinematics()
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             "",
		DataDir:          ".",
		FilePattern:      "*.txt",
		SampleRate:       1000,
		WorkerCount:      runtime.NumCPU(),
		FailurePolicy:    "skip",
		LengthPolicy:     "reject",
		MaxLagFraction:   0.4,
		YSteps:           k.YSteps,
		RevsPerStep:      k.RevsPerStep,
		SecondsPerRev:    k.SecondsPerRev,
		ClipFraction:     k.ClipFraction,
		GapSeconds:       k.GapSeconds,
		FilterSize:       k.FilterSize,
		FullScaleVolts:   k.FullScaleVolts,
		PolyCoefficients: k.Calibration.Coefficients,
		PolyConstant:     k.Calibration.Constant,
		ProbeDiameter:    k.Calibration.ProbeDiameter,
	}
}

// Kinematics returns the test program described by c. The slices are copied.
func (c *Config) Kinematics() model.Kinematics {
	return model.Kinematics{
		YSteps:         c.YSteps,
		RevsPerStep:    c.RevsPerStep,
		SecondsPerRev:  c.SecondsPerRev,
		ClipFraction:   c.ClipFraction,
		GapSeconds:     c.GapSeconds,
		FilterSize:     c.FilterSize,
		FullScaleVolts: c.FullScaleVolts,
		Calibration: model.Calibration{
			Coefficients:  c.PolyCoefficients,
			Constant:      c.PolyConstant,
			ProbeDiameter: c.ProbeDiameter,
		},
	}.Clone()
}
