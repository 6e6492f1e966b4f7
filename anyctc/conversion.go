package anyctc

import (
	"fmt"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// vectorFloats copies a vector into a []float64.
func vectorFloats(v anyvec.Vector) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return d
	case []float32:
		s := make([]float64, len(d))
		for i, x := range d {
			s[i] = float64(x)
		}
		return s
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", d))
	}
}

func floatsVector(c anyvec.Creator, f []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(f))
}

// seqFrames splits a batch of sequences into per-sequence
// lists of frames.
// Sequences with no timesteps yield empty lists.
func seqFrames(batches []*anyseq.Batch) [][][]float64 {
	seqs := anyseq.SeparateSeqs(batches)
	res := make([][][]float64, len(seqs))
	for i, seq := range seqs {
		res[i] = make([][]float64, len(seq))
		for t, vec := range seq {
			res[i][t] = vectorFloats(vec)
		}
	}
	return res
}
