// Package loader supplies raw voltage traces to the pipeline, one per
// measurement file, addressed by index.
package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/roundness/internal/domain/model"
)

// DefaultPattern matches the trace files read by DirSource.
const DefaultPattern = "*.txt"

// Source returns the traces of one batch in file order.
type Source interface {
	Len() int
	ReadTrace(ctx context.Context, index int) (model.Trace, error)
}

// MemorySource serves traces held in memory.
type MemorySource struct {
	traces []model.Trace
}

// NewMemorySource creates a source over traces. The slice is not copied.
func NewMemorySource(traces ...model.Trace) *MemorySource {
	return &MemorySource{traces: traces}
}

// Len returns the number of traces.
func (s *MemorySource) Len() int { return len(s.traces) }

// ReadTrace returns the trace at index.
func (s *MemorySource) ReadTrace(ctx context.Context, index int) (model.Trace, error) {
	if err := ctx.Err(); err != nil {
		return model.Trace{}, err
	}
	if index < 0 || index >= len(s.traces) {
		return model.Trace{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, index, len(s.traces))
	}
	return s.traces[index], nil
}

// DirSource reads text traces from a directory: one sample per line, blank
// lines and lines starting with '#' ignored. Files are ordered by name.
type DirSource struct {
	paths      []string
	sampleRate float64
}

// NewDirSource lists the files in dir matching pattern. An empty pattern
// uses DefaultPattern.
func NewDirSource(dir, pattern string, sampleRate float64) (*DirSource, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	files := paths[:0]
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTraces, filepath.Join(dir, pattern))
	}
	sort.Strings(files)
	return &DirSource{paths: files, sampleRate: sampleRate}, nil
}

// Len returns the number of trace files.
func (s *DirSource) Len() int { return len(s.paths) }

// Path returns the file backing index.
func (s *DirSource) Path(index int) string {
	if index < 0 || index >= len(s.paths) {
		return ""
	}
	return s.paths[index]
}

// ReadTrace parses the file at index.
func (s *DirSource) ReadTrace(ctx context.Context, index int) (model.Trace, error) {
	if err := ctx.Err(); err != nil {
		return model.Trace{}, err
	}
	if index < 0 || index >= len(s.paths) {
		return model.Trace{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, index, len(s.paths))
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return model.Trace{}, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	samples, err := ParseSamples(bufio.NewScanner(f))
	if err != nil {
		return model.Trace{}, fmt.Errorf("%s: %w", filepath.Base(s.paths[index]), err)
	}
	return model.Trace{Samples: samples, SampleRate: s.sampleRate}, nil
}

// ParseSamples reads one float per line from sc.
func ParseSamples(sc *bufio.Scanner) ([]float64, error) {
	var samples []float64
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q", model.ErrMalformedTrace, line, text)
		}
		samples = append(samples, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return samples, nil
}

// WriteSamples writes samples to path in the format read by DirSource.
func WriteSamples(path string, samples []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, v := range samples {
		w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return f.Close()
}
