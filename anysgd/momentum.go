package anysgd

import "github.com/unixpickle/anydiff"

// Momentum implements SGD with momentum.
//
// The transformed gradient v is computed as
//
//	v := momentum * v + grad
//
// or, if UnitGain is set,
//
//	v := momentum * v + (1 - momentum) * grad
//
// Unit-gain momentum keeps the effective step size
// independent of the momentum coefficient.
type Momentum struct {
	Momentum float64
	UnitGain bool

	rolling anydiff.Grad
}

// Transform transforms the gradient using momentum.
//
// This is not thread-safe.
func (m *Momentum) Transform(g anydiff.Grad) anydiff.Grad {
	gain := 1.0
	if m.UnitGain {
		gain = 1 - m.Momentum
	}
	if m.rolling == nil {
		m.rolling = copyGrad(g)
		scaleGrad(m.rolling, gain)
		for v, x := range m.rolling {
			g[v].Set(x)
		}
		return g
	}
	for v, x := range m.rolling {
		x.Scale(x.Creator().MakeNumeric(m.Momentum))
		scaled := g[v].Copy()
		scaled.Scale(scaled.Creator().MakeNumeric(gain))
		x.Add(scaled)
		g[v].Set(x)
	}
	return g
}
