// Package anyasr builds, trains, and evaluates CTC
// acoustic models made of stacked LSTMs.
package anyasr

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyspeech"
	"github.com/unixpickle/anyspeech/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m Model
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeModel)
}

// ModelConfig describes the shape of a Model.
type ModelConfig struct {
	InputDim  int
	HiddenDim int
	Layers    int

	// OutputDim is the number of output symbols, including
	// the blank.
	OutputDim int

	// KeepProb is the dropout keep probability applied to
	// the output of every LSTM layer.
	// Values of 0 or 1 disable dropout.
	KeepProb float64
}

// A Model maps feature sequences to per-frame log
// probabilities over the symbol set.
type Model struct {
	Block anyrnn.Stack
}

// NewModel creates a randomly initialized Model.
func NewModel(c anyvec.Creator, cfg *ModelConfig) (*Model, error) {
	if cfg.InputDim <= 0 || cfg.HiddenDim <= 0 || cfg.Layers <= 0 {
		return nil, fmt.Errorf("new model: invalid size %d -> %d x %d", cfg.InputDim,
			cfg.Layers, cfg.HiddenDim)
	}
	if cfg.OutputDim < 2 {
		return nil, fmt.Errorf("new model: need at least 2 outputs but got %d", cfg.OutputDim)
	}
	dropout := cfg.KeepProb > 0 && cfg.KeepProb < 1

	var block anyrnn.Stack
	inSize := cfg.InputDim
	for i := 0; i < cfg.Layers; i++ {
		block = append(block, anyrnn.NewLSTM(c, inSize, cfg.HiddenDim))
		if dropout {
			block = append(block, &anyrnn.LayerBlock{
				Layer: &anyspeech.Dropout{KeepProb: cfg.KeepProb},
			})
		}
		inSize = cfg.HiddenDim
	}
	block = append(block, &anyrnn.LayerBlock{
		Layer: anyspeech.Net{
			anyspeech.NewFC(c, cfg.HiddenDim, cfg.OutputDim),
			anyspeech.LogSoftmax,
		},
	})
	return &Model{Block: block}, nil
}

// DeserializeModel deserializes a Model.
func DeserializeModel(d []byte) (*Model, error) {
	block, err := anyrnn.DeserializeStack(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Model", err)
	}
	if len(block) == 0 {
		return nil, errors.New("deserialize Model: empty block")
	}
	return &Model{Block: block}, nil
}

// Apply computes log probabilities for a batch of
// sequences.
func (m *Model) Apply(in anyseq.Seq) anyseq.Seq {
	return anyrnn.Map(in, m.Block)
}

// Parameters returns the learnable parameters.
func (m *Model) Parameters() []*anydiff.Var {
	return m.Block.Parameters()
}

// SetDropout enables or disables dropout.
// It should be enabled during training only.
func (m *Model) SetDropout(enabled bool) {
	m.Block.SetDropout(enabled)
}

// Creator returns the creator of the model's parameters.
func (m *Model) Creator() anyvec.Creator {
	return m.Parameters()[0].Vector.Creator()
}

// OutputDim returns the number of output symbols.
func (m *Model) OutputDim() int {
	layer, ok := m.Block[len(m.Block)-1].(*anyrnn.LayerBlock)
	if !ok {
		return 0
	}
	net, ok := layer.Layer.(anyspeech.Net)
	if !ok {
		return 0
	}
	for i := len(net) - 1; i >= 0; i-- {
		if fc, ok := net[i].(*anyspeech.FC); ok {
			return fc.OutCount
		}
	}
	return 0
}

// SerializerType returns the unique ID used to serialize
// a Model with the serializer package.
func (m *Model) SerializerType() string {
	return "github.com/unixpickle/anyspeech/anyasr.Model"
}

// Serialize serializes the Model.
func (m *Model) Serialize() ([]byte, error) {
	return m.Block.Serialize()
}

// SaveModel writes the model to a file.
// The file is replaced atomically, so an interrupted save
// leaves the previous checkpoint intact.
func SaveModel(path string, m *Model) error {
	data, err := serializer.SerializeWithType(m)
	if err != nil {
		return essentials.AddCtx("save model", err)
	}
	tmpPath := path + ".tmp"
	if err := ioutil.WriteFile(tmpPath, data, 0644); err != nil {
		return essentials.AddCtx("save model", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return essentials.AddCtx("save model", err)
	}
	return nil
}

// LoadModel reads a model saved with SaveModel.
func LoadModel(path string) (*Model, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load model", err)
	}
	obj, err := serializer.DeserializeWithType(data)
	if err != nil {
		return nil, essentials.AddCtx("load model", err)
	}
	m, ok := obj.(*Model)
	if !ok {
		return nil, fmt.Errorf("load model: unexpected type %T", obj)
	}
	return m, nil
}
