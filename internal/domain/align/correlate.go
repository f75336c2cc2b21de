// Package align estimates and removes phase offsets between radius
// sequences: between the two traverse directions of one file, and across the
// successive files of a batch.
package align

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ZeroMean returns a copy of x with its mean removed.
func ZeroMean(x []float64) []float64 {
	out := append([]float64(nil), x...)
	if len(out) > 0 {
		floats.AddConst(-stat.Mean(out, nil), out)
	}
	return out
}

// Roll returns x circularly shifted by k samples: out[i] = x[(i-k) mod n].
func Roll(x []float64, k int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	k %= n
	if k < 0 {
		k += n
	}
	copy(out[k:], x[:n-k])
	copy(out[:k], x[n-k:])
	return out
}

// CrossCorrelate returns the linear cross-correlation of ref and sig,
// c[m] = sum_i ref[i]*sig[i+m] over the overlapping samples, trimmed to n
// lags so that index n/2 holds zero lag. Both sequences are zero-padded to
// at least 2n-1 samples before the transform, so a lag is weighted by its
// overlap n-|m|.
func CrossCorrelate(ref, sig []float64) ([]float64, error) {
	n, err := sameLength(ref, sig)
	if err != nil {
		return nil, err
	}
	return centre(correlate(ref, sig, paddedSize(n)), n), nil
}

// CircularCorrelate returns the circular cross-correlation of ref and sig,
// c[m] = sum_i ref[i]*sig[(i+m) mod n], rotated so that index n/2 holds zero
// lag.
func CircularCorrelate(ref, sig []float64) ([]float64, error) {
	n, err := sameLength(ref, sig)
	if err != nil {
		return nil, err
	}
	return centre(correlate(ref, sig, n), n), nil
}

// Lag returns the integer shift k, in [-n/2, n-n/2), that best aligns sig
// with ref. The peak of the linear correlation picks the candidate, so of
// the aliases of a periodic profile the one with the largest overlap, the
// smallest |k|, wins. The overlap weighting pulls that peak towards zero,
// so k is then refined to the circular correlation maximum inside the
// positive lobe around it, where sig matches Roll(ref, k) exactly.
func Lag(ref, sig []float64) (int, error) {
	linear, err := CrossCorrelate(ref, sig)
	if err != nil {
		return 0, err
	}
	circular, err := CircularCorrelate(ref, sig)
	if err != nil {
		return 0, err
	}
	n := len(linear)
	best := floats.MaxIdx(linear)
	if circular[best] > 0 {
		best = lobeMax(circular, best)
	}
	return best - n/2, nil
}

// lobeMax returns the index of the largest value in the run of positive
// values of c around start. The run wraps around the ends of c.
func lobeMax(c []float64, start int) int {
	n := len(c)
	best := start
	for _, step := range []int{1, -1} {
		j := start
		for range n - 1 {
			j = (j + step + n) % n
			if c[j] <= 0 {
				break
			}
			if c[j] > c[best] {
				best = j
			}
		}
	}
	return best
}

func sameLength(ref, sig []float64) (int, error) {
	n := len(ref)
	if n != len(sig) {
		return 0, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, n, len(sig))
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty sequences", ErrLengthMismatch)
	}
	return n, nil
}

// paddedSize returns the smallest power of two holding 2n-1 samples.
func paddedSize(n int) int {
	m := 1
	for m < 2*n-1 {
		m <<= 1
	}
	return m
}

// correlate returns the circular cross-correlation of ref and sig after
// zero-padding both to m samples, indexed by lag modulo m.
func correlate(ref, sig []float64, m int) []float64 {
	a := make([]float64, m)
	copy(a, ref)
	b := make([]float64, m)
	copy(b, sig)

	fft := fourier.NewFFT(m)
	r := fft.Coefficients(nil, a)
	s := fft.Coefficients(nil, b)
	for i := range s {
		s[i] *= cmplx.Conj(r[i])
	}
	c := fft.Sequence(nil, s)
	floats.Scale(1/float64(m), c)
	return c
}

// centre picks lags [-n/2, n-n/2) out of a lag-modulo-m correlation.
func centre(c []float64, n int) []float64 {
	m := len(c)
	out := make([]float64, n)
	for j := range out {
		out[j] = c[((j-n/2)%m+m)%m]
	}
	return out
}
