package anyasr

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyspeech/anyctc"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func testModel(t *testing.T, keepProb float64) *Model {
	m, err := NewModel(anyvec64.CurrentCreator(), &ModelConfig{
		InputDim:  3,
		HiddenDim: 4,
		Layers:    2,
		OutputDim: 3,
		KeepProb:  keepProb,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testInputs(c anyvec.Creator) [][]anyvec.Vector {
	var res [][]anyvec.Vector
	for _, length := range []int{4, 2, 3} {
		var seq []anyvec.Vector
		for i := 0; i < length; i++ {
			v := c.MakeVector(3)
			anyvec.Rand(v, anyvec.Normal, nil)
			seq = append(seq, v)
		}
		res = append(res, seq)
	}
	return res
}

func TestModelOutput(t *testing.T) {
	c := anyvec64.CurrentCreator()
	m := testModel(t, 1)
	if n := len(m.Parameters()); n != 2*17+2 {
		t.Errorf("expected %d parameters but got %d", 2*17+2, n)
	}
	if m.OutputDim() != 3 {
		t.Errorf("expected output dim 3 but got %d", m.OutputDim())
	}
	out := m.Apply(anyseq.ConstSeqList(c, testInputs(c))).Output()
	if len(out) != 4 {
		t.Fatalf("expected 4 timesteps but got %d", len(out))
	}
	for i, batch := range out {
		data := batch.Packed.Data().([]float64)
		if len(data) != 3*batch.NumPresent() {
			t.Fatalf("step %d: bad output size %d", i, len(data))
		}
		for j := 0; j < len(data); j += 3 {
			sum := math.Exp(data[j]) + math.Exp(data[j+1]) + math.Exp(data[j+2])
			if math.Abs(sum-1) > 1e-8 {
				t.Errorf("step %d: probabilities sum to %f", i, sum)
			}
		}
	}
}

func TestModelDropout(t *testing.T) {
	m := testModel(t, 0.5)
	if len(m.Block) != 5 {
		t.Fatalf("expected 5 blocks but got %d", len(m.Block))
	}
	if n := len(m.Parameters()); n != 2*17+2 {
		t.Errorf("expected %d parameters but got %d", 2*17+2, n)
	}
	m.SetDropout(true)
	c := anyvec64.CurrentCreator()
	out := m.Apply(anyseq.ConstSeqList(c, testInputs(c))).Output()
	if len(out) != 4 {
		t.Errorf("expected 4 timesteps but got %d", len(out))
	}
}

func TestModelConfigErrors(t *testing.T) {
	c := anyvec64.CurrentCreator()
	for _, cfg := range []*ModelConfig{
		{InputDim: 0, HiddenDim: 4, Layers: 1, OutputDim: 3},
		{InputDim: 3, HiddenDim: 4, Layers: 0, OutputDim: 3},
		{InputDim: 3, HiddenDim: 4, Layers: 1, OutputDim: 1},
	} {
		if _, err := NewModel(c, cfg); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestModelSaveLoad(t *testing.T) {
	m := testModel(t, 0.9)
	path := filepath.Join(t.TempDir(), "model.out")
	if err := SaveModel(path, m); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m, loaded) {
		t.Error("loaded model differs from saved model")
	}
	if _, err := LoadModel(filepath.Join(t.TempDir(), "missing.out")); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestEvaluate(t *testing.T) {
	c := anyvec64.CurrentCreator()
	m := testModel(t, 0.5)
	inputs := testInputs(c)
	samples := &anyctc.SliceSampleList{
		C: c,
		Samples: []*anyctc.Sample{
			{Input: inputs[0], Label: []int{0, 1}},
			{Input: inputs[1], Label: []int{1}},
			{Input: inputs[2], Label: []int{0, 0, 0}},
		},
	}
	res, err := Evaluate(m, samples, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Infeasible != 1 {
		t.Errorf("expected 1 infeasible sequence but got %d", res.Infeasible)
	}
	if len(res.Hyps) != 3 || len(res.Refs) != 3 {
		t.Fatalf("bad result sizes: %d hyps, %d refs", len(res.Hyps), len(res.Refs))
	}
	if res.Cost <= 0 || math.IsInf(res.Cost, 0) || math.IsNaN(res.Cost) {
		t.Errorf("unexpected cost: %f", res.Cost)
	}
	if expected := anyctc.ErrorRate(res.Hyps, res.Refs); res.ErrorRate != expected {
		t.Errorf("expected error rate %f but got %f", expected, res.ErrorRate)
	}

	single, err := Evaluate(m, samples, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(single.Cost-res.Cost) > 1e-8 {
		t.Errorf("batch size changed cost: %f vs %f", single.Cost, res.Cost)
	}

	if _, err := Evaluate(m, &anyctc.SliceSampleList{C: c}, 2, nil); err == nil {
		t.Error("expected error for empty sample list")
	}
}
