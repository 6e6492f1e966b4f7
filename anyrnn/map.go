package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// Map runs b over every frame of a batch of utterances.
// Each utterance starts from the block's initial state and
// its state is dropped once the utterance ends.
func Map(in anyseq.Seq, b Block) anyseq.Seq {
	frames := in.Output()
	res := &mapped{in: in, block: b, vars: in.Vars()}
	if len(frames) == 0 {
		return res
	}

	res.start = FullPresentMap(len(frames[0].Present))
	state := b.Start(len(res.start))
	for _, frame := range frames {
		if frame.NumPresent() != state.Present().NumPresent() {
			state = state.Reduce(frame.Present)
		}
		step := b.Step(state, frame.Packed)
		res.steps = append(res.steps, step)
		res.vars = anydiff.MergeVarSets(res.vars, step.Vars())
		res.out = append(res.out, &anyseq.Batch{
			Packed:  step.Output(),
			Present: frame.Present,
		})
		state = step.State()
	}
	return res
}

type mapped struct {
	in    anyseq.Seq
	block Block
	start PresentMap
	steps []Res
	out   []*anyseq.Batch
	vars  anydiff.VarSet
}

func (m *mapped) Creator() anyvec.Creator {
	return m.in.Creator()
}

func (m *mapped) Output() []*anyseq.Batch {
	return m.out
}

func (m *mapped) Vars() anydiff.VarSet {
	return m.vars
}

func (m *mapped) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	if len(u) == 0 {
		return
	}

	var inGrads []*anyseq.Batch
	if g.Intersects(m.in.Vars()) {
		inGrads = make([]*anyseq.Batch, len(u))
	}

	// Nothing depends on the final state.
	var sg StateGrad
	for t := len(m.steps) - 1; t >= 0; t-- {
		step := m.steps[t]
		if sg != nil {
			sg = expandTo(sg, step.State().Present())
		}
		inGrad, prev := step.Propagate(u[t].Packed, sg, g)
		if inGrads != nil {
			inGrads[t] = &anyseq.Batch{Packed: inGrad, Present: u[t].Present}
		}
		sg = prev
	}
	if sg != nil {
		m.block.PropagateStart(expandTo(sg, m.start), g)
	}

	if inGrads != nil {
		m.in.Propagate(inGrads, g)
	}
}

func expandTo(sg StateGrad, p PresentMap) StateGrad {
	if sg.Present().NumPresent() == p.NumPresent() {
		return sg
	}
	return sg.Expand(p)
}
