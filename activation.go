package anyspeech

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/serializer"
)

func init() {
	var a Activation
	serializer.RegisterTypedDeserializer(a.SerializerType(), DeserializeActivation)
}

// An Activation is an element-wise (or, for LogSoftmax,
// row-wise) nonlinearity.
type Activation int

// These are the supported activation functions.
const (
	Tanh Activation = iota
	Sigmoid
	LogSoftmax
	ReLU
)

var activationNames = map[Activation]string{
	Tanh:       "tanh",
	Sigmoid:    "sigmoid",
	LogSoftmax: "logsoftmax",
	ReLU:       "relu",
}

// ParseActivation looks up an activation by name.
func ParseActivation(name string) (Activation, error) {
	for a, n := range activationNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown activation: %s", name)
}

// DeserializeActivation deserializes an Activation.
func DeserializeActivation(d []byte) (Activation, error) {
	if len(d) != 1 {
		return 0, fmt.Errorf("deserialize Activation: data length (%d) should be 1", len(d))
	}
	a := Activation(d[0])
	if _, ok := activationNames[a]; !ok {
		return 0, fmt.Errorf("deserialize Activation: unknown activation ID: %d", a)
	}
	return a, nil
}

// Apply applies the activation function.
//
// For LogSoftmax, each of the n packed vectors is
// normalized separately.
func (a Activation) Apply(in anydiff.Res, n int) anydiff.Res {
	switch a {
	case Tanh:
		return anydiff.Tanh(in)
	case Sigmoid:
		return anydiff.Sigmoid(in)
	case LogSoftmax:
		inLen := in.Output().Len()
		if inLen%n != 0 {
			panic("batch size must divide input length")
		}
		return anydiff.LogSoftmax(in, inLen/n)
	case ReLU:
		return anydiff.ClipPos(in)
	default:
		panic(fmt.Sprintf("unknown activation: %d", a))
	}
}

// String returns the activation's name.
func (a Activation) String() string {
	if n, ok := activationNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// SerializerType returns the unique ID used to serialize
// an Activation.
func (a Activation) SerializerType() string {
	return "github.com/unixpickle/anyspeech.Activation"
}

// Serialize serializes the activation.
func (a Activation) Serialize() ([]byte, error) {
	return []byte{byte(a)}, nil
}
