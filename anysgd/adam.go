package anysgd

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Adam scales each gradient component by running
// estimates of its first and second moments, as in
// https://arxiv.org/abs/1412.6980.
//
// Zero fields select the defaults from the paper
// (0.9, 0.999, and 1e-8).
type Adam struct {
	Beta1   float64
	Beta2   float64
	Epsilon float64

	mean     anydiff.Grad
	variance anydiff.Grad
	steps    float64
}

// Transform replaces the gradient with the Adam step
// direction.
//
// This is not thread-safe.
func (a *Adam) Transform(g anydiff.Grad) anydiff.Grad {
	beta1 := valueOrDefault(a.Beta1, 0.9)
	beta2 := valueOrDefault(a.Beta2, 0.999)
	eps := valueOrDefault(a.Epsilon, 1e-8)

	if a.mean == nil {
		a.mean = zeroGrad(g)
		a.variance = zeroGrad(g)
	}
	a.steps++

	// Bias correction for both moments, folded into one
	// factor on the mean.
	correction := math.Sqrt(1-math.Pow(beta2, a.steps)) / (1 - math.Pow(beta1, a.steps))

	for v, x := range g {
		c := x.Creator()
		mean, variance := a.mean[v], a.variance[v]

		squared := x.Copy()
		anyvec.Pow(squared, c.MakeNumeric(2))
		decayInto(variance, squared, beta2)
		decayInto(mean, x.Copy(), beta1)

		x.Set(mean)
		x.Scale(c.MakeNumeric(correction))
		denom := variance.Copy()
		denom.AddScalar(c.MakeNumeric(eps))
		anyvec.Pow(denom, c.MakeNumeric(0.5))
		x.Div(denom)
	}
	return g
}

// decayInto sets avg to rate*avg + (1-rate)*x.
// It overwrites x.
func decayInto(avg, x anyvec.Vector, rate float64) {
	avg.Scale(avg.Creator().MakeNumeric(rate))
	x.Scale(x.Creator().MakeNumeric(1 - rate))
	avg.Add(x)
}

func zeroGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, x := range g {
		res[v] = x.Creator().MakeVector(x.Len())
	}
	return res
}
