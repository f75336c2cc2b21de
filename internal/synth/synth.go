// Package synth generates deterministic roundness-rig captures for tests and
// demos. Each capture models a probe of unit sensitivity touching an
// eccentric circle in one programmed y-step per traverse direction, with the
// remaining sections held at the rails.
package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/okian/roundness/internal/domain/model"
)

// Default generator constants.
const (
	DefaultSampleRate   = 100.0
	DefaultEccentricity = 0.2
	DefaultSeed         = 42
)

// Config describes a batch of synthetic captures.
type Config struct {
	Kinematics   model.Kinematics
	SampleRate   float64
	Files        int
	Contact      []int   // contact y-step per file; nil cycles through the steps
	Level        float64 // mean contact voltage; zero selects half of full scale
	Eccentricity float64 // centre offset of the circle from the rotation axis
	DriftSamples int     // angular drift per file, in samples
	LeadSamples  int     // samples recorded before the program starts
	Noise        float64 // standard deviation of additive noise, volts
	Seed         int64
}

// DefaultConfig returns a three-file batch on the default kinematics.
func DefaultConfig() Config {
	return Config{
		Kinematics:   model.DefaultKinematics(),
		SampleRate:   DefaultSampleRate,
		Files:        3,
		Eccentricity: DefaultEccentricity,
		DriftSamples: 3,
		Seed:         DefaultSeed,
	}
}

// File is one generated capture and what it was built from.
type File struct {
	Trace   model.Trace
	Contact int     // y-step index in contact
	Phase   int     // sample offset of the angular origin
	Radius  float64 // radius of the generated circle
}

// Generate builds cfg.Files captures. The same Config always yields the same
// samples.
func Generate(cfg Config) ([]File, error) {
	if err := cfg.Kinematics.Validate(); err != nil {
		return nil, err
	}
	layout, err := cfg.Kinematics.Layout(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	if cfg.Files < 1 {
		return nil, fmt.Errorf("synth: need at least one file, got %d", cfg.Files)
	}
	if cfg.Contact != nil && len(cfg.Contact) != cfg.Files {
		return nil, fmt.Errorf("synth: %d contact steps for %d files", len(cfg.Contact), cfg.Files)
	}
	level := cfg.Level
	if level == 0 {
		level = cfg.Kinematics.FullScaleVolts / 2
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	files := make([]File, cfg.Files)
	for i := range files {
		contact := i % layout.Steps
		if cfg.Contact != nil {
			contact = cfg.Contact[i]
		}
		if contact < 0 || contact >= layout.Steps {
			return nil, fmt.Errorf("synth: contact step %d out of range", contact)
		}
		y := cfg.Kinematics.YSteps[contact]
		f := File{
			Contact: contact,
			Phase:   i * cfg.DriftSamples,
			Radius:  level + y,
		}
		f.Trace = model.Trace{
			Samples:    capture(cfg, layout, f, y, rng),
			SampleRate: cfg.SampleRate,
		}
		files[i] = f
	}
	return files, nil
}

// Traces returns the captures of files.
func Traces(files []File) []model.Trace {
	out := make([]model.Trace, len(files))
	for i, f := range files {
		out[i] = f.Trace
	}
	return out
}

func capture(cfg Config, l model.Layout, f File, y float64, rng *rand.Rand) []float64 {
	v := make([]float64, cfg.LeadSamples+l.TotalSamples)
	body := v[cfg.LeadSamples:]
	full := cfg.Kinematics.FullScaleVolts

	for d := range 2 {
		rail := 0
		for s := range l.Steps {
			start := s * l.SectionSamples
			if d == 1 {
				start = (l.Steps+s)*l.SectionSamples + l.GapSamples
			}
			section := body[start : start+l.SectionSamples]
			if s != f.Contact {
				level := 0.0
				if rail%2 == 1 {
					level = full
				}
				rail++
				for j := range section {
					section[j] = level
				}
				continue
			}
			for j := range section {
				th := 2 * math.Pi * float64(start+j-f.Phase) / float64(l.RevolutionSamples)
				section[j] = EccentricRadius(f.Radius, cfg.Eccentricity, th) - y
			}
		}
	}
	if cfg.Noise > 0 {
		for i := range v {
			v[i] += cfg.Noise * rng.NormFloat64()
		}
	}
	return v
}

// EccentricRadius is the distance from the rotation axis to a circle of
// radius r whose centre sits d below the axis, along the ray at angle theta
// measured from the +y axis towards +x. The minimum r-d is at theta = 0.
func EccentricRadius(r, d, theta float64) float64 {
	s, c := math.Sincos(theta)
	return -d*c + math.Sqrt(r*r-d*d*s*s)
}
