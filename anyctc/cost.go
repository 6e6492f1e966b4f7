package anyctc

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Cost computes the cost for a batch of output sequences.
// The cost for each sequence is the negative log
// likelihood of the corresponding label.
//
// For a sequence, suppose that all of the labels are
// bounded between 0 and N.
// Then there should be N+1 outputs at each timestep.
// The first N outputs correspond to the N labels.
// The last output is the special "blank" symbol.
// The outputs are all in the log domain.
//
// The result has one component per sequence.
// A label that cannot be aligned with its sequence (for
// example, one that is longer than the sequence) gets an
// infinite cost and contributes no gradient.
//
// Cost panics if a label contains a symbol which is out
// of range.
func Cost(seqs anyseq.Seq, labels [][]int) anydiff.Res {
	c := seqs.Creator()
	frames := seqFrames(seqs.Output())
	if len(frames) == 0 {
		// No timesteps at all, so every sequence is empty.
		frames = make([][][]float64, len(labels))
	}
	if len(frames) != len(labels) {
		panic(fmt.Sprintf("have %d sequences but %d labels", len(frames), len(labels)))
	}

	res := &costRes{
		In:     seqs,
		Aligns: make([]*Alignment, len(labels)),
	}
	costs := make([]float64, len(labels))
	for i, label := range labels {
		align, err := sequenceAlignment(frames[i], label)
		if err != nil {
			panic(essentials.AddCtx(fmt.Sprintf("sequence %d", i), err))
		}
		res.Aligns[i] = align
		costs[i] = -align.LogLikelihood
	}
	res.OutVec = floatsVector(c, costs)
	return res
}

// sequenceAlignment runs forward-backward for a label
// using the last output of each frame as the blank.
func sequenceAlignment(frames [][]float64, label []int) (*Alignment, error) {
	blank := 0
	if len(frames) > 0 {
		blank = len(frames[0]) - 1
	} else {
		for _, x := range label {
			if x >= blank {
				blank = x + 1
			}
		}
	}
	g, err := LabelsToGraph(label, blank)
	if err != nil {
		return nil, err
	}
	return ForwardBackward(g, frames)
}

type costRes struct {
	In     anyseq.Seq
	Aligns []*Alignment
	OutVec anyvec.Vector
}

func (c *costRes) Output() anyvec.Vector {
	return c.OutVec
}

func (c *costRes) Vars() anydiff.VarSet {
	return c.In.Vars()
}

func (c *costRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	if !g.Intersects(c.In.Vars()) || len(c.In.Output()) == 0 {
		return
	}
	cr := u.Creator()
	upstream := vectorFloats(u)
	downstream := make([][]anyvec.Vector, len(c.Aligns))
	for i, align := range c.Aligns {
		grad := align.Gradient()
		downstream[i] = make([]anyvec.Vector, len(grad))
		for t, frameGrad := range grad {
			for k := range frameGrad {
				frameGrad[k] *= -upstream[i]
			}
			downstream[i][t] = floatsVector(cr, frameGrad)
		}
	}
	c.In.Propagate(anyseq.ConstSeqList(cr, downstream).Output(), g)
}
