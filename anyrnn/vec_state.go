package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A VecState is a State or StateGrad stored as one packed
// vector, with an equal-sized chunk per running
// utterance.
type VecState struct {
	Vector     anyvec.Vector
	PresentMap PresentMap
}

// NewVecState tiles v once for each of n utterances.
func NewVecState(v anyvec.Vector, n int) *VecState {
	rep := v.Creator().MakeVector(v.Len() * n)
	anyvec.AddRepeated(rep, v)
	return &VecState{
		Vector:     rep,
		PresentMap: FullPresentMap(n),
	}
}

// Present returns the PresentMap.
func (v *VecState) Present() PresentMap {
	return v.PresentMap
}

// Reduce keeps only the chunks of utterances in p.
func (v *VecState) Reduce(p PresentMap) State {
	for i, pres := range p {
		if pres && !v.PresentMap[i] {
			panic("argument to Reduce must be a subset")
		}
	}
	return &VecState{
		Vector:     v.remap(p),
		PresentMap: p,
	}
}

// Expand inserts zero chunks for utterances in p that v
// does not have.
func (v *VecState) Expand(p PresentMap) StateGrad {
	for i, pres := range v.PresentMap {
		if pres && !p[i] {
			panic("argument to Expand must be a superset")
		}
	}
	return &VecState{
		Vector:     v.remap(p),
		PresentMap: p,
	}
}

// PropagateStart sums the per-utterance gradients and
// adds them to the gradient of va.
//
// All utterances must be present.
func (v *VecState) PropagateStart(va *anydiff.Var, g anydiff.Grad) {
	for _, x := range v.PresentMap {
		if !x {
			panic("all sequences must be present")
		}
	}
	if dest, ok := g[va]; ok {
		dest.Add(anyvec.SumRows(v.Vector, len(v.PresentMap)))
	}
}

// remap builds a vector with one chunk per entry of p.
// Chunks of utterances in both maps are copied, chunks of
// new utterances are zero, and the rest are dropped.
// Runs of consecutive kept chunks are sliced together.
func (v *VecState) remap(p PresentMap) anyvec.Vector {
	c := v.Vector.Creator()
	chunkSize := v.Vector.Len() / v.PresentMap.NumPresent()

	var pieces []anyvec.Vector
	var runStart, runLen, offset int
	flush := func() {
		if runLen > 0 {
			pieces = append(pieces, v.Vector.Slice(runStart, runStart+runLen))
		}
		runLen = 0
	}
	for i, want := range p {
		have := v.PresentMap[i]
		switch {
		case have && want:
			if runLen == 0 {
				runStart = offset
			}
			runLen += chunkSize
		case want:
			flush()
			pieces = append(pieces, c.MakeVector(chunkSize))
		default:
			flush()
		}
		if have {
			offset += chunkSize
		}
	}
	flush()
	return c.Concat(pieces...)
}
