package model

import (
	"fmt"
	"math"
)

// Calibration maps probe voltage to radius:
// radius = polyval(Coefficients, v) - Constant + ProbeDiameter/2 + yStep.
type Calibration struct {
	Coefficients  []float64 // highest order first
	Constant      float64
	ProbeDiameter float64
}

// Kinematics describes the mechanical program of a test. It is read-only for
// the duration of a pipeline run.
type Kinematics struct {
	YSteps         []float64 // programmed radial offsets, one contact section per direction each
	RevsPerStep    float64   // nominal revolutions recorded per section
	SecondsPerRev  float64
	ClipFraction   float64 // revolutions discarded at each end of a section
	GapSeconds     float64 // dead time between the positive and negative traverse
	FilterSize     int     // moving-average window in samples
	FullScaleVolts float64 // rescale target range is [0, FullScaleVolts]
	Calibration    Calibration
}

// DefaultKinematics returns the program used by the roundness test rig.
func DefaultKinematics() Kinematics {
	return Kinematics{
		YSteps:         []float64{0.04, 0.03, 0.02, 0.01, 0, -0.01},
		RevsPerStep:    4,
		SecondsPerRev:  1,
		ClipFraction:   0.5,
		GapSeconds:     0.4,
		FilterSize:     50,
		FullScaleVolts: 5,
		Calibration: Calibration{
			Coefficients: []float64{
				-0.000341717477186167,
				0.00459433449011791,
				-0.0237307202784755,
				0.0585315537400639,
				-0.0766338436136931,
				5.15045955887124,
			},
			Constant:      5.1,
			ProbeDiameter: 50,
		},
	}
}

// Validate checks the program is self-consistent.
func (k Kinematics) Validate() error {
	switch {
	case len(k.YSteps) == 0:
		return fmt.Errorf("%w: no y-steps", ErrInvalidKinematics)
	case k.RevsPerStep <= 0:
		return fmt.Errorf("%w: revs per step must be positive", ErrInvalidKinematics)
	case k.SecondsPerRev <= 0:
		return fmt.Errorf("%w: seconds per rev must be positive", ErrInvalidKinematics)
	case k.ClipFraction < 0 || 2*k.ClipFraction >= k.RevsPerStep:
		return fmt.Errorf("%w: clip fraction %v leaves no core window", ErrInvalidKinematics, k.ClipFraction)
	case k.GapSeconds < 0:
		return fmt.Errorf("%w: negative gap", ErrInvalidKinematics)
	case k.FilterSize < 1:
		return fmt.Errorf("%w: filter size must be at least 1", ErrInvalidKinematics)
	case k.FullScaleVolts <= 0:
		return fmt.Errorf("%w: full scale must be positive", ErrInvalidKinematics)
	case len(k.Calibration.Coefficients) == 0:
		return fmt.Errorf("%w: no calibration coefficients", ErrInvalidKinematics)
	}
	return nil
}

// Clone returns a deep copy of k.
func (k Kinematics) Clone() Kinematics {
	k.YSteps = append([]float64(nil), k.YSteps...)
	k.Calibration.Coefficients = append([]float64(nil), k.Calibration.Coefficients...)
	return k
}

// Sections returns the number of sections in a capture (two per y-step).
func (k Kinematics) Sections() int { return 2 * len(k.YSteps) }

// Layout is the sample geometry of a capture at a given sample rate.
type Layout struct {
	SampleRate        float64
	Steps             int // sections per direction
	SectionSamples    int
	GapSamples        int
	ClipSamples       int
	CoreSamples       int // SectionSamples - 2*ClipSamples
	RevolutionSamples int
	TotalSamples      int // trailing samples covering the whole program
}

// Layout converts the program into sample counts. Durations are rounded to
// the nearest sample.
func (k Kinematics) Layout(sampleRate float64) (Layout, error) {
	if err := k.Validate(); err != nil {
		return Layout{}, err
	}
	if sampleRate <= 0 {
		return Layout{}, fmt.Errorf("%w: sample rate %v", ErrInvalidKinematics, sampleRate)
	}
	l := Layout{
		SampleRate:     sampleRate,
		Steps:          len(k.YSteps),
		SectionSamples: samples(k.RevsPerStep*k.SecondsPerRev, sampleRate),
		GapSamples:     samples(k.GapSeconds, sampleRate),
		ClipSamples:    samples(k.ClipFraction*k.SecondsPerRev, sampleRate),
	}
	l.CoreSamples = l.SectionSamples - 2*l.ClipSamples
	if l.CoreSamples <= 0 {
		return Layout{}, fmt.Errorf("%w: empty core window at %v Hz", ErrInvalidKinematics, sampleRate)
	}
	l.RevolutionSamples = int(math.Round(float64(l.CoreSamples) / (k.RevsPerStep - 2*k.ClipFraction)))
	if l.RevolutionSamples < 3 {
		return Layout{}, fmt.Errorf("%w: %d samples per revolution", ErrInvalidKinematics, l.RevolutionSamples)
	}
	l.TotalSamples = k.Sections()*l.SectionSamples + l.GapSamples
	return l, nil
}

func samples(seconds, sampleRate float64) int {
	return int(math.Round(seconds * sampleRate))
}
