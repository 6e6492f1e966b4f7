package anysgd

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Shuffle shuffles a list of samples.
// If the list implements PostShuffler, then PostShuffle
// is called after the shuffle completes.
func Shuffle(s SampleList) {
	for i := 0; i < s.Len(); i++ {
		j := i + rand.Intn(s.Len()-i)
		s.Swap(i, j)
	}
	if p, ok := s.(PostShuffler); ok {
		p.PostShuffle()
	}
}

// A ConstRater is a Rater which always returns the same
// constant learning rate.
type ConstRater float64

// Rate returns float64(c).
func (c ConstRater) Rate(epoch float64) float64 {
	return float64(c)
}

// ExpRater decays the learning rate exponentially with
// the epoch:
//
//	rate := max(Start * Decay^epoch, Min)
type ExpRater struct {
	Start float64
	Decay float64
	Min   float64
}

// Rate computes the learning rate for the epoch.
func (e *ExpRater) Rate(epoch float64) float64 {
	return math.Max(e.Start*math.Pow(e.Decay, epoch), e.Min)
}

// CosterGrad computes the gradient of a Coster's total
// cost with respect to a list of parameters.
// It also returns the total cost.
func CosterGrad(c Coster, b Batch, params []*anydiff.Var) (anydiff.Grad, anyvec.Numeric) {
	res := anydiff.NewGrad(params...)
	cost := c.TotalCost(b)
	total := anyvec.Sum(cost.Output())

	cr := cost.Output().Creator()
	upstream := cr.MakeVectorData(cr.MakeNumericList([]float64{1}))
	cost.Propagate(upstream, res)

	return res, total
}

// Clip is a Transformer that rescales gradients whose
// Euclidean norm exceeds Threshold.
type Clip struct {
	Threshold float64
}

// Transform clips the gradient in place.
func (c *Clip) Transform(g anydiff.Grad) anydiff.Grad {
	norm := math.Sqrt(GradNormSquared(g))
	if norm > c.Threshold && norm > 0 {
		scaleGrad(g, c.Threshold/norm)
	}
	return g
}

// GradNormSquared computes the squared Euclidean norm of a
// gradient.
func GradNormSquared(g anydiff.Grad) float64 {
	var sum float64
	for _, v := range g {
		sq := v.Copy()
		anyvec.Pow(sq, sq.Creator().MakeNumeric(2))
		sum += NumericFloat(anyvec.Sum(sq))
	}
	return sum
}

// NumericFloat converts a float32 or float64 numeric to a
// float64.
func NumericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", n))
	}
}

func valueOrDefault(value, def float64) float64 {
	if value == 0 {
		return def
	}
	return value
}

// Chain is a Transformer that applies each of its
// Transformers in order.
type Chain []Transformer

// Transform applies the chain.
func (c Chain) Transform(g anydiff.Grad) anydiff.Grad {
	for _, t := range c {
		g = t.Transform(g)
	}
	return g
}
