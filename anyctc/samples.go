package anyctc

import (
	"github.com/unixpickle/anyspeech/anysgd"
	"github.com/unixpickle/anyvec"
)

// A Sample is a training sequence paired with its
// corresponding label.
type Sample struct {
	Input []anyvec.Vector
	Label []int
}

// A SampleList is an anysgd.SampleList that produces
// CTC samples.
type SampleList interface {
	anysgd.SampleList

	// GetSample loads the sample at the index.
	// Loading may involve I/O, so it can fail.
	GetSample(idx int) (*Sample, error)

	// Creator returns the creator for the sample vectors.
	Creator() anyvec.Creator
}

// A SliceSampleList is a concrete SampleList with
// predetermined samples.
type SliceSampleList struct {
	C       anyvec.Creator
	Samples []*Sample
}

// Len returns the number of samples.
func (s *SliceSampleList) Len() int {
	return len(s.Samples)
}

// Swap swaps two samples.
func (s *SliceSampleList) Swap(i, j int) {
	s.Samples[i], s.Samples[j] = s.Samples[j], s.Samples[i]
}

// Slice copies a sub-slice of the list.
func (s *SliceSampleList) Slice(i, j int) anysgd.SampleList {
	return &SliceSampleList{
		C:       s.C,
		Samples: append([]*Sample{}, s.Samples[i:j]...),
	}
}

// GetSample returns the sample at the index.
func (s *SliceSampleList) GetSample(idx int) (*Sample, error) {
	return s.Samples[idx], nil
}

// Creator returns s.C.
func (s *SliceSampleList) Creator() anyvec.Creator {
	return s.C
}
