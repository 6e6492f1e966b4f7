package anysgd

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestAdam(t *testing.T) {
	g := newTestGradienter(anyvec32.DefaultCreator{})
	s := &SGD{
		Gradienter:  g,
		Transformer: &Adam{},
		Samples:     newTestSampleList(),
		Rater:       ConstRater(0.001),
		BatchSize:   1,
	}

	runIterations(t, s, 100000)

	if g.errorMargin() > 1e-2 {
		x, y := g.current()
		t.Errorf("bad solution: %f, %f", x, y)
	}
}

func TestAdamFirstStep(t *testing.T) {
	c := anyvec64.CurrentCreator()
	v := anydiff.NewVar(c.MakeVector(2))
	g := anydiff.Grad{v: c.MakeVectorData([]float64{3, -0.5})}
	(&Adam{}).Transform(g)

	// With bias correction, the first step is the sign of
	// each component.
	actual := g[v].Data().([]float64)
	for i, expected := range []float64{1, -1} {
		if math.Abs(actual[i]-expected) > 1e-4 {
			t.Errorf("component %d: expected %f but got %f", i, expected, actual[i])
		}
	}
}
