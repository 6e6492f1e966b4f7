package anyhtk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/ioutil"
	"math"

	"github.com/unixpickle/essentials"
)

// ReadStats reads dim global statistics (e.g. a mean or
// an inverse standard deviation vector) from a raw binary
// file.
//
// Files of 8*dim bytes hold little-endian float64 values.
// Files of 4*dim bytes hold little-endian float32 values.
func ReadStats(path string, dim int) ([]float64, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("read stats", err)
	}
	res := make([]float64, dim)
	switch len(data) {
	case dim * 8:
		for i := range res {
			res[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case dim * 4:
		for i := range res {
			res[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	default:
		return nil, fmt.Errorf("read stats: %s has %d bytes, expected %d values",
			path, len(data), dim)
	}
	return res, nil
}

// WriteStats writes statistics as little-endian float64
// values.
func WriteStats(path string, stats []float64) error {
	data := make([]byte, len(stats)*8)
	for i, x := range stats {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(x))
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("write stats", err)
	}
	return nil
}

// A Normalizer standardizes feature vectors as
//
//	(x - Mean) .* InvStd
type Normalizer struct {
	Mean   []float64
	InvStd []float64
}

// LoadNormalizer reads a mean file and an inverse standard
// deviation file.
func LoadNormalizer(meanPath, invStdPath string, dim int) (*Normalizer, error) {
	mean, err := ReadStats(meanPath, dim)
	if err != nil {
		return nil, essentials.AddCtx("load normalizer", err)
	}
	invStd, err := ReadStats(invStdPath, dim)
	if err != nil {
		return nil, essentials.AddCtx("load normalizer", err)
	}
	return &Normalizer{Mean: mean, InvStd: invStd}, nil
}

// ComputeNormalizer computes the mean and inverse standard
// deviation of a set of frames.
// Dimensions with (near-)zero variance get an InvStd of 1.
func ComputeNormalizer(frames [][]float64) (*Normalizer, error) {
	if len(frames) == 0 {
		return nil, errors.New("compute normalizer: no frames")
	}
	dim := len(frames[0])
	mean := make([]float64, dim)
	sqMean := make([]float64, dim)
	for _, f := range frames {
		if len(f) != dim {
			return nil, errors.New("compute normalizer: inconsistent frame size")
		}
		for i, x := range f {
			mean[i] += x
			sqMean[i] += x * x
		}
	}
	scale := 1 / float64(len(frames))
	invStd := make([]float64, dim)
	for i := range mean {
		mean[i] *= scale
		variance := sqMean[i]*scale - mean[i]*mean[i]
		if variance < 1e-10 {
			invStd[i] = 1
		} else {
			invStd[i] = 1 / math.Sqrt(variance)
		}
	}
	return &Normalizer{Mean: mean, InvStd: invStd}, nil
}

// Dim returns the vector size the normalizer expects.
func (n *Normalizer) Dim() int {
	return len(n.Mean)
}

// Apply normalizes a vector in place.
func (n *Normalizer) Apply(vec []float64) {
	if len(vec) != len(n.Mean) {
		panic(fmt.Sprintf("vector size %d does not match normalizer size %d",
			len(vec), len(n.Mean)))
	}
	for i, x := range vec {
		vec[i] = (x - n.Mean[i]) * n.InvStd[i]
	}
}

// Splice stacks each frame with left preceding and right
// following frames.
// Frames beyond either end are copies of the first or last
// frame.
func Splice(frames [][]float64, left, right int) [][]float64 {
	if left == 0 && right == 0 {
		return frames
	}
	res := make([][]float64, len(frames))
	for t := range frames {
		var spliced []float64
		for o := -left; o <= right; o++ {
			idx := t + o
			if idx < 0 {
				idx = 0
			} else if idx >= len(frames) {
				idx = len(frames) - 1
			}
			spliced = append(spliced, frames[idx]...)
		}
		res[t] = spliced
	}
	return res
}
