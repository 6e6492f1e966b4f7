package anyhtk

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/unixpickle/essentials"
)

const (
	htkHeaderSize = 12

	// Parameter kind qualifier bits.
	htkCompressed = 02000
	htkChecksum   = 010000

	// HTKUser is the parameter kind for generic features.
	HTKUser = 9
)

// An HTKHeader is the header of an HTK feature file.
type HTKHeader struct {
	NumSamples   int32
	SamplePeriod int32
	SampleSize   int16
	ParmKind     int16
}

// Dim returns the number of float32 values per frame.
func (h *HTKHeader) Dim() int {
	return int(h.SampleSize) / 4
}

func (h *HTKHeader) validate() error {
	if h.NumSamples < 0 {
		return errors.New("negative sample count")
	}
	if h.ParmKind&htkCompressed != 0 {
		return errors.New("compressed feature files are not supported")
	}
	if h.SampleSize <= 0 || h.SampleSize%4 != 0 {
		return fmt.Errorf("invalid sample size: %d", h.SampleSize)
	}
	return nil
}

// ReadHTKHeader reads the header of an HTK feature file.
func ReadHTKHeader(path string) (*HTKHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read HTK header", err)
	}
	defer f.Close()
	h, err := readHeader(f)
	if err != nil {
		return nil, essentials.AddCtx("read HTK header", err)
	}
	return h, nil
}

// ReadFeatures reads frames from an HTK feature file.
//
// If all is true, every frame is returned.
// Otherwise, frames start through end (inclusive) are
// returned.
func ReadFeatures(path string, start, end int, all bool) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("read features", err)
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return nil, essentials.AddCtx("read features", err)
	}
	if all {
		start, end = 0, int(h.NumSamples)-1
	} else if start < 0 || end < start || end >= int(h.NumSamples) {
		return nil, fmt.Errorf("read features: range [%d,%d] out of bounds for %d frames",
			start, end, h.NumSamples)
	}

	offset := int64(htkHeaderSize) + int64(start)*int64(h.SampleSize)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, essentials.AddCtx("read features", err)
	}

	r := bufio.NewReader(f)
	dim := h.Dim()
	buf := make([]byte, h.SampleSize)
	res := make([][]float64, end-start+1)
	for i := range res {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, essentials.AddCtx("read features", err)
		}
		frame := make([]float64, dim)
		for j := range frame {
			bits := binary.BigEndian.Uint32(buf[j*4:])
			frame[j] = float64(math.Float32frombits(bits))
		}
		res[i] = frame
	}
	return res, nil
}

// WriteFeatures writes frames as an uncompressed HTK
// feature file.
// Every frame must have the same length.
func WriteFeatures(w io.Writer, period int32, kind int16, frames [][]float64) error {
	var dim int
	if len(frames) > 0 {
		dim = len(frames[0])
	}
	h := &HTKHeader{
		NumSamples:   int32(len(frames)),
		SamplePeriod: period,
		SampleSize:   int16(dim * 4),
		ParmKind:     kind &^ (htkCompressed | htkChecksum),
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.BigEndian, h); err != nil {
		return essentials.AddCtx("write features", err)
	}
	buf := make([]byte, dim*4)
	for _, frame := range frames {
		if len(frame) != dim {
			return errors.New("write features: inconsistent frame size")
		}
		for j, x := range frame {
			binary.BigEndian.PutUint32(buf[j*4:], math.Float32bits(float32(x)))
		}
		if _, err := bw.Write(buf); err != nil {
			return essentials.AddCtx("write features", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return essentials.AddCtx("write features", err)
	}
	return nil
}

func readHeader(r io.Reader) (*HTKHeader, error) {
	var h HTKHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, err
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return &h, nil
}
