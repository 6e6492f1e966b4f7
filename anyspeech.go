// Package anyspeech provides the feed-forward building
// blocks used by CTC acoustic models.
//
// Recurrent blocks live in anyrnn, the CTC loss and
// decoders in anyctc, and HTK data loading in anyhtk.
package anyspeech

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n Net
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNet)
}

// A Parameterizer is anything with learnable variables.
//
// The parameters of a Parameterizer must be in the same
// order every time Parameters() is called.
type Parameterizer interface {
	Parameters() []*anydiff.Var
}

// A Layer is a batched computation unit.
//
// The input's length must be divisible by the batch size,
// since the batch size indicates how many equally-long
// vectors are packed into the input vector.
type Layer interface {
	Apply(in anydiff.Res, batchSize int) anydiff.Res
}

// A Net evaluates a list of layers, one after another.
type Net []Layer

// DeserializeNet attempts to deserialize the network.
func DeserializeNet(d []byte) (Net, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Net", err)
	}
	res := make(Net, len(slice))
	for i, x := range slice {
		layer, ok := x.(Layer)
		if !ok {
			return nil, fmt.Errorf("deserialize Net: not a Layer: %T", x)
		}
		res[i] = layer
	}
	return res, nil
}

// Apply applies the network to a batch.
// An empty Net is the identity.
func (n Net) Apply(in anydiff.Res, batchSize int) anydiff.Res {
	for _, l := range n {
		in = l.Apply(in, batchSize)
	}
	return in
}

// Parameters returns the parameters of every layer that
// implements Parameterizer, first layer first.
func (n Net) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, x := range n {
		if p, ok := x.(Parameterizer); ok {
			res = append(res, p.Parameters()...)
		}
	}
	return res
}

// SetDropout enables or disables every Dropout layer in
// the network.
// Dropout should be enabled for training and disabled for
// evaluation.
func (n Net) SetDropout(enabled bool) {
	for _, x := range n {
		if d, ok := x.(*Dropout); ok {
			d.Enabled = enabled
		}
	}
}

// SerializerType returns the unique ID used to serialize
// a Net with the serializer package.
func (n Net) SerializerType() string {
	return "github.com/unixpickle/anyspeech.Net"
}

// Serialize serializes the network.
// It fails if any Layer is not a serializer.Serializer.
func (n Net) Serialize() ([]byte, error) {
	var slice []serializer.Serializer
	for _, x := range n {
		s, ok := x.(serializer.Serializer)
		if !ok {
			return nil, fmt.Errorf("serialize Net: not a Serializer: %T", x)
		}
		slice = append(slice, s)
	}
	return serializer.SerializeSlice(slice)
}
