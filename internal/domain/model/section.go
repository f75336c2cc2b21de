package model

import "fmt"

// Direction is the traverse direction of a section.
type Direction int

// Traverse directions.
const (
	Positive Direction = iota
	Negative
)

func (d Direction) String() string {
	switch d {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// SectionSet holds the sections of one capture as a fixed-shape array
// indexed by [direction][section][sample].
type SectionSet struct {
	steps  int
	length int
	data   []float64
}

// NewSectionSet allocates a zeroed set of 2*steps sections of equal length.
func NewSectionSet(steps, length int) (*SectionSet, error) {
	if steps < 1 || length < 1 {
		return nil, fmt.Errorf("%w: section shape %dx%d", ErrInvalidKinematics, steps, length)
	}
	return &SectionSet{
		steps:  steps,
		length: length,
		data:   make([]float64, 2*steps*length),
	}, nil
}

// Steps returns the number of sections per direction.
func (s *SectionSet) Steps() int { return s.steps }

// Len returns the sample length shared by every section.
func (s *SectionSet) Len() int { return s.length }

// Section returns a view of section i in direction d. Writes through the
// view modify the set.
func (s *SectionSet) Section(d Direction, i int) []float64 {
	if d != Positive && d != Negative {
		panic(fmt.Sprintf("model: invalid direction %d", int(d)))
	}
	if i < 0 || i >= s.steps {
		panic(fmt.Sprintf("model: section %d out of range [0,%d)", i, s.steps))
	}
	off := (int(d)*s.steps + i) * s.length
	return s.data[off : off+s.length : off+s.length]
}

// Window is the core sampling window of the section chosen for one direction.
type Window struct {
	Direction Direction
	Section   int
	YStep     float64
	Samples   []float64 // volts, after smoothing and rescale
}

// Selection is the pair of windows chosen for one file.
type Selection struct {
	Positive Window
	Negative Window
}
