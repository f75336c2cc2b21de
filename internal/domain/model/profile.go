package model

import "time"

// RadiusWindow is a window converted to physical radius.
type RadiusWindow struct {
	Direction Direction
	YStep     float64
	Radius    []float64
}

// Profile is the direction-merged radius sequence of one file before
// cross-file alignment.
type Profile struct {
	FileIndex int
	PairLag   int // lag of the negative window relative to the positive one
	Radius    []float64
}

// AlignedMatrix is the registered single-revolution radius of every surviving
// file. Rows share the angular origin and length of Theta.
type AlignedMatrix struct {
	FileIndex []int       // original file index of each row
	Lags      []int       // cumulative lag applied to each row
	Rows      [][]float64 // [row][angular sample]
	Theta     []float64   // radians, one full turn
}

// Row returns the row registered for the given file index.
func (m AlignedMatrix) Row(fileIndex int) ([]float64, bool) {
	for i, idx := range m.FileIndex {
		if idx == fileIndex {
			return m.Rows[i], true
		}
	}
	return nil, false
}

// Roundness holds the circle-fit metrics of one file. Metrics of failed or
// degenerate files have Valid set to false and carry the error text.
type Roundness struct {
	FileIndex  int     `json:"file_index"`
	MeanRadius float64 `json:"mean_radius"`
	Runout     float64 `json:"runout"`
	PeakRadius float64 `json:"peak_radius"`
	FormError  float64 `json:"form_error"`
	CenterX    float64 `json:"center_x"`
	CenterY    float64 `json:"center_y"`
	Valid      bool    `json:"valid"`
	Error      string  `json:"error,omitempty"`
}

// Result is the output of one pipeline run.
type Result struct {
	RunID      string
	CreatedAt  time.Time
	Files      int
	SampleRate float64
	Matrix     AlignedMatrix
	Metrics    []Roundness // one per input file, in file order
	Failures   []*FileError
}

// Survivors returns the number of files present in the aligned matrix.
func (r *Result) Survivors() int { return len(r.Matrix.Rows) }
