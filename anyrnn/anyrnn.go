// Package anyrnn implements the recurrent blocks of an
// acoustic model.
//
// A Block is stepped over a batch of utterances one frame
// at a time.
// Utterances in a batch usually have different lengths,
// so each State records which utterances are still
// running.
package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A PresentMap marks the utterances of a batch that are
// still running.
// Entry i is true if utterance i has a state.
type PresentMap []bool

// FullPresentMap creates a PresentMap with all n entries
// set.
func FullPresentMap(n int) PresentMap {
	res := make(PresentMap, n)
	for i := range res {
		res[i] = true
	}
	return res
}

// NumPresent counts the running utterances.
func (p PresentMap) NumPresent() int {
	var i int
	for _, x := range p {
		if x {
			i++
		}
	}
	return i
}

// A State is a batch of Block states, one for every
// running utterance.
type State interface {
	// Present reports which utterances have a state.
	Present() PresentMap

	// Reduce drops the states of utterances that ended.
	// Every true entry of the argument must also be true
	// in Present().
	Reduce(PresentMap) State
}

// A StateGrad is the upstream gradient of a State.
type StateGrad interface {
	// Present reports which utterances have a gradient.
	Present() PresentMap

	// Expand adds zero gradients for utterances that are
	// present in the argument but not in Present().
	// It undoes State.Reduce.
	Expand(PresentMap) StateGrad
}

// A Block is one differentiable recurrent unit.
// Each step maps a batch of input frames and states to a
// batch of outputs and next states.
type Block interface {
	// Start creates the initial state for n utterances.
	Start(n int) State

	// PropagateStart back-propagates into the initial
	// state's parameters.
	// The StateGrad must not be reused afterwards.
	PropagateStart(s StateGrad, g anydiff.Grad)

	// Step applies the block to one frame of input.
	Step(s State, in anyvec.Vector) Res
}

// A Res is the result of one Block step.
type Res interface {
	// State returns the next state.
	State() State

	// Output returns the packed outputs, one chunk per
	// running utterance.
	Output() anyvec.Vector

	// Vars returns every variable the output depends on,
	// including the ones reached through earlier states.
	Vars() anydiff.VarSet

	// Propagate back-propagates one step.
	// The upstream u is for Output() and s is for State();
	// s may be nil for the last frame of an utterance.
	// Gradients for variables are added to g.
	//
	// It returns the gradient with respect to the input
	// frame and the gradient for the previous state.
	// Propagate may overwrite u and s.
	// The caller may overwrite the returned input gradient.
	Propagate(u anyvec.Vector, s StateGrad, g anydiff.Grad) (anyvec.Vector, StateGrad)
}
