package anyctc

import (
	"fmt"
	"math"
)

// An Alignment is the result of running the
// forward-backward algorithm on a Graph.
//
// All quantities are natural logarithms.
type Alignment struct {
	Graph    *Graph
	LogProbs [][]float64

	// Alpha[t][s] is the probability of emitting frames
	// 0 through t and being at node s at frame t.
	Alpha [][]float64

	// Beta[t][s] is the probability of emitting frames
	// t+1 through the end, given node s at frame t.
	// It does not include the emission at frame t.
	Beta [][]float64

	// LogLikelihood is the log probability of the label
	// given the frames.
	LogLikelihood float64
}

// ForwardBackward computes the forward and backward
// variables of g over a sequence of per-frame log
// probabilities.
//
// Each frame must contain an entry for every symbol in the
// graph, including the blank.
// Frames are not required to be normalized, in which case
// the result is an unnormalized score.
func ForwardBackward(g *Graph, logProbs [][]float64) (*Alignment, error) {
	minWidth := g.MaxSymbol() + 1
	for t, frame := range logProbs {
		if len(frame) < minWidth {
			return nil, fmt.Errorf("forward-backward: frame %d has %d symbols, need %d",
				t, len(frame), minWidth)
		}
		if len(frame) != len(logProbs[0]) {
			return nil, fmt.Errorf("forward-backward: frame %d has %d symbols but frame 0 has %d",
				t, len(frame), len(logProbs[0]))
		}
	}

	res := &Alignment{Graph: g, LogProbs: logProbs}
	if len(logProbs) == 0 {
		if len(g.Label) == 0 {
			res.LogLikelihood = 0
		} else {
			res.LogLikelihood = math.Inf(-1)
		}
		return res, nil
	}

	res.forward()
	res.backward()

	res.LogLikelihood = math.Inf(-1)
	last := res.Alpha[len(logProbs)-1]
	for s, x := range last {
		if g.IsFinal(s) {
			res.LogLikelihood = addLogs(res.LogLikelihood, x)
		}
	}
	return res, nil
}

// Feasible checks if at least one path explains the
// frames.
func (a *Alignment) Feasible() bool {
	return !math.IsInf(a.LogLikelihood, -1)
}

// Occupancy returns the posterior probability of being
// at node s at frame t.
func (a *Alignment) Occupancy(t, s int) float64 {
	if !a.Feasible() {
		return 0
	}
	return math.Exp(a.Alpha[t][s] + a.Beta[t][s] - a.LogLikelihood)
}

// Gradient computes the partial derivatives of the log
// likelihood with respect to every entry of LogProbs.
//
// The derivative for symbol k at frame t is the total
// occupancy of the nodes which emit k at frame t.
// If the alignment is infeasible, the gradient is zero.
func (a *Alignment) Gradient() [][]float64 {
	res := make([][]float64, len(a.LogProbs))
	for t, frame := range a.LogProbs {
		res[t] = make([]float64, len(frame))
		if !a.Feasible() {
			continue
		}
		for s := 0; s < a.Graph.Len(); s++ {
			res[t][a.Graph.Symbol(s)] += a.Occupancy(t, s)
		}
	}
	return res
}

// LogitGradient computes the gradient of the negative log
// likelihood with respect to the inputs of a softmax,
// assuming that LogProbs is the output of a log-softmax.
//
// At every frame, the entries sum to zero.
// If the alignment is infeasible, the gradient is zero.
func (a *Alignment) LogitGradient() [][]float64 {
	res := a.Gradient()
	if !a.Feasible() {
		return res
	}
	for t, frame := range a.LogProbs {
		for k, x := range frame {
			res[t][k] = math.Exp(x) - res[t][k]
		}
	}
	return res
}

func (a *Alignment) forward() {
	g := a.Graph
	n := g.Len()
	a.Alpha = negInfMatrix(len(a.LogProbs), n)

	first := a.LogProbs[0]
	for s := 0; s < n; s++ {
		if g.IsStart(s) {
			a.Alpha[0][s] = first[g.Symbol(s)]
		}
	}

	for t := 1; t < len(a.LogProbs); t++ {
		last := a.Alpha[t-1]
		frame := a.LogProbs[t]
		for s := 0; s < n; s++ {
			sum := last[s]
			if s > 0 {
				sum = addLogs(sum, last[s-1])
			}
			if g.Skippable(s) {
				sum = addLogs(sum, last[s-2])
			}
			if !math.IsInf(sum, -1) {
				a.Alpha[t][s] = sum + frame[g.Symbol(s)]
			}
		}
	}
}

func (a *Alignment) backward() {
	g := a.Graph
	n := g.Len()
	numFrames := len(a.LogProbs)
	a.Beta = negInfMatrix(numFrames, n)

	for s := 0; s < n; s++ {
		if g.IsFinal(s) {
			a.Beta[numFrames-1][s] = 0
		}
	}

	for t := numFrames - 2; t >= 0; t-- {
		next := a.Beta[t+1]
		frame := a.LogProbs[t+1]
		for s := 0; s < n; s++ {
			sum := next[s] + frame[g.Symbol(s)]
			if s+1 < n {
				sum = addLogs(sum, next[s+1]+frame[g.Symbol(s+1)])
			}
			if s+2 < n && g.Skippable(s+2) {
				sum = addLogs(sum, next[s+2]+frame[g.Symbol(s+2)])
			}
			a.Beta[t][s] = sum
		}
	}
}

func negInfMatrix(rows, cols int) [][]float64 {
	res := make([][]float64, rows)
	for i := range res {
		res[i] = make([]float64, cols)
		for j := range res[i] {
			res[i][j] = math.Inf(-1)
		}
	}
	return res
}

// addLogs adds two numbers in the log domain.
func addLogs(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	} else if math.IsInf(b, -1) {
		return a
	}
	normalizer := math.Max(a, b)
	exp1 := math.Exp(a - normalizer)
	exp2 := math.Exp(b - normalizer)
	return math.Log(exp1+exp2) + normalizer
}
