package anyrnn

import (
	"errors"
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyspeech"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const lstmRememberBias = 1

func init() {
	var l LSTMGate
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeLSTMGate)
	var lstm LSTM
	serializer.RegisterTypedDeserializer(lstm.SerializerType(), DeserializeLSTM)
}

// LSTM is a long short-term memory block with peephole
// connections.
//
// For input x, previous output h, and previous cell c,
// one timestep computes
//
//	i  := sigmoid(Wi*x + Ui*h + Pi.*c + bi)
//	f  := sigmoid(Wf*x + Uf*h + Pf.*c + bf)
//	c' := f.*c + i.*tanh(Wc*x + Uc*h + bc)
//	o  := sigmoid(Wo*x + Uo*h + Po.*c' + bo)
//	h' := o.*tanh(c')
//
// The block's output is h'.
type LSTM struct {
	InValue  *LSTMGate
	In       *LSTMGate
	Remember *LSTMGate
	Output   *LSTMGate

	InPeephole       *anydiff.Var
	RememberPeephole *anydiff.Var
	OutPeephole      *anydiff.Var

	InitOut  *anydiff.Var
	InitCell *anydiff.Var
}

// DeserializeLSTM deserializes an LSTM.
func DeserializeLSTM(d []byte) (*LSTM, error) {
	var inVal, in, rem, out *LSTMGate
	var inPeep, remPeep, outPeep, initOut, initCell *anyvecsave.S
	err := serializer.DeserializeAny(d, &inVal, &in, &rem, &out, &inPeep, &remPeep,
		&outPeep, &initOut, &initCell)
	if err != nil {
		return nil, essentials.AddCtx("deserialize LSTM", err)
	}
	cells := inVal.Biases.Vector.Len()
	for _, g := range []*LSTMGate{in, rem, out} {
		if g.Biases.Vector.Len() != cells {
			return nil, errors.New("deserialize LSTM: inconsistent gate sizes")
		}
	}
	for _, v := range []*anyvecsave.S{inPeep, remPeep, outPeep, initOut, initCell} {
		if v.Vector.Len() != cells {
			return nil, errors.New("deserialize LSTM: incorrect state vector size")
		}
	}
	return &LSTM{
		InValue:          inVal,
		In:               in,
		Remember:         rem,
		Output:           out,
		InPeephole:       anydiff.NewVar(inPeep.Vector),
		RememberPeephole: anydiff.NewVar(remPeep.Vector),
		OutPeephole:      anydiff.NewVar(outPeep.Vector),
		InitOut:          anydiff.NewVar(initOut.Vector),
		InitCell:         anydiff.NewVar(initCell.Vector),
	}, nil
}

// NewLSTM creates a new, randomized LSTM.
//
// The remember gates of the LSTM are initially biased to
// remember things.
// The peephole weights and the initial state start at
// zero.
func NewLSTM(c anyvec.Creator, in, state int) *LSTM {
	res := &LSTM{
		InValue:          NewLSTMGate(c, in, state, anyspeech.Tanh),
		In:               NewLSTMGate(c, in, state, anyspeech.Sigmoid),
		Remember:         NewLSTMGate(c, in, state, anyspeech.Sigmoid),
		Output:           NewLSTMGate(c, in, state, anyspeech.Sigmoid),
		InPeephole:       anydiff.NewVar(c.MakeVector(state)),
		RememberPeephole: anydiff.NewVar(c.MakeVector(state)),
		OutPeephole:      anydiff.NewVar(c.MakeVector(state)),
		InitOut:          anydiff.NewVar(c.MakeVector(state)),
		InitCell:         anydiff.NewVar(c.MakeVector(state)),
	}
	res.Remember.Biases.Vector.AddScalar(c.MakeNumeric(lstmRememberBias))
	return res
}

// NewLSTMZero creates a zero'd LSTM.
func NewLSTMZero(c anyvec.Creator, in, state int) *LSTM {
	return &LSTM{
		InValue:          NewLSTMGateZero(c, in, state, anyspeech.Tanh),
		In:               NewLSTMGateZero(c, in, state, anyspeech.Sigmoid),
		Remember:         NewLSTMGateZero(c, in, state, anyspeech.Sigmoid),
		Output:           NewLSTMGateZero(c, in, state, anyspeech.Sigmoid),
		InPeephole:       anydiff.NewVar(c.MakeVector(state)),
		RememberPeephole: anydiff.NewVar(c.MakeVector(state)),
		OutPeephole:      anydiff.NewVar(c.MakeVector(state)),
		InitOut:          anydiff.NewVar(c.MakeVector(state)),
		InitCell:         anydiff.NewVar(c.MakeVector(state)),
	}
}

// Start produces the start state.
func (l *LSTM) Start(n int) State {
	return &lstmState{
		Out:  NewVecState(l.InitOut.Vector, n),
		Cell: NewVecState(l.InitCell.Vector, n),
	}
}

// PropagateStart propagates through the start state.
func (l *LSTM) PropagateStart(s StateGrad, g anydiff.Grad) {
	sg := s.(*lstmState)
	sg.Out.PropagateStart(l.InitOut, g)
	sg.Cell.PropagateStart(l.InitCell, g)
}

// Step performs one timestep.
func (l *LSTM) Step(s State, in anyvec.Vector) Res {
	st := s.(*lstmState)
	n := s.Present().NumPresent()
	res := &lstmRes{
		InPool:   anydiff.NewVar(in),
		OutPool:  anydiff.NewVar(st.Out.Vector),
		CellPool: anydiff.NewVar(st.Cell.Vector),
	}

	inVal := l.InValue.Apply(res.InPool, res.OutPool, nil, n)
	inGate := l.In.Apply(res.InPool, res.OutPool,
		peephole(l.InPeephole, res.CellPool, n), n)
	remGate := l.Remember.Apply(res.InPool, res.OutPool,
		peephole(l.RememberPeephole, res.CellPool, n), n)
	newCell := anydiff.Add(
		anydiff.Mul(remGate, res.CellPool),
		anydiff.Mul(inGate, inVal),
	)
	outGate := l.Output.Apply(res.InPool, res.OutPool,
		peephole(l.OutPeephole, newCell, n), n)
	newOut := anydiff.Mul(outGate, anydiff.Tanh(newCell))

	res.Joined = anydiff.Concat(newOut, newCell)
	res.OutVec = newOut.Output()
	res.OutState = &lstmState{
		Out:  &VecState{Vector: newOut.Output(), PresentMap: s.Present()},
		Cell: &VecState{Vector: newCell.Output(), PresentMap: s.Present()},
	}

	res.V = anydiff.MergeVarSets(res.Joined.Vars())
	for _, p := range []*anydiff.Var{res.InPool, res.OutPool, res.CellPool} {
		res.V.Del(p)
	}
	res.V.Add(l.InitOut)
	res.V.Add(l.InitCell)

	return res
}

// Parameters returns the parameters of the block.
func (l *LSTM) Parameters() []*anydiff.Var {
	res := []*anydiff.Var{l.InitOut, l.InitCell, l.InPeephole, l.RememberPeephole,
		l.OutPeephole}
	for _, g := range []*LSTMGate{l.InValue, l.In, l.Remember, l.Output} {
		res = append(res, g.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// an LSTM with the serializer package.
func (l *LSTM) SerializerType() string {
	return "github.com/unixpickle/anyspeech/anyrnn.LSTM"
}

// Serialize serializes the LSTM.
func (l *LSTM) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		l.InValue, l.In, l.Remember, l.Output,
		&anyvecsave.S{Vector: l.InPeephole.Vector},
		&anyvecsave.S{Vector: l.RememberPeephole.Vector},
		&anyvecsave.S{Vector: l.OutPeephole.Vector},
		&anyvecsave.S{Vector: l.InitOut.Vector},
		&anyvecsave.S{Vector: l.InitCell.Vector},
	)
}

// An LSTMGate computes a value based on the previous
// output and the input.
type LSTMGate struct {
	StateWeights *anydiff.Var
	InputWeights *anydiff.Var
	Biases       *anydiff.Var
	Activation   anyspeech.Activation
}

// DeserializeLSTMGate deserializes an LSTMGate.
func DeserializeLSTMGate(d []byte) (*LSTMGate, error) {
	var sw, iw, b *anyvecsave.S
	var a anyspeech.Activation
	if err := serializer.DeserializeAny(d, &sw, &iw, &b, &a); err != nil {
		return nil, essentials.AddCtx("deserialize LSTMGate", err)
	}
	state := b.Vector.Len()
	if state == 0 || sw.Vector.Len() != state*state ||
		iw.Vector.Len()%state != 0 {
		return nil, errors.New("deserialize LSTMGate: invalid matrix dimensions")
	}
	return &LSTMGate{
		StateWeights: anydiff.NewVar(sw.Vector),
		InputWeights: anydiff.NewVar(iw.Vector),
		Biases:       anydiff.NewVar(b.Vector),
		Activation:   a,
	}, nil
}

// NewLSTMGate creates a randomized LSTM gate.
func NewLSTMGate(c anyvec.Creator, in, state int, activation anyspeech.Activation) *LSTMGate {
	res := NewLSTMGateZero(c, in, state, activation)
	anyvec.Rand(res.StateWeights.Vector, anyvec.Normal, nil)
	anyvec.Rand(res.InputWeights.Vector, anyvec.Normal, nil)
	res.StateWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(state))))
	res.InputWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	return res
}

// NewLSTMGateZero creates a zero'd LSTM gate.
func NewLSTMGateZero(c anyvec.Creator, in, state int, activation anyspeech.Activation) *LSTMGate {
	return &LSTMGate{
		StateWeights: anydiff.NewVar(c.MakeVector(state * state)),
		InputWeights: anydiff.NewVar(c.MakeVector(state * in)),
		Biases:       anydiff.NewVar(c.MakeVector(state)),
		Activation:   activation,
	}
}

// Apply computes the gate for a batch of n inputs and
// previous outputs.
// If extra is non-nil, it is added to the gate's input
// before the activation.
func (l *LSTMGate) Apply(in, lastOut, extra anydiff.Res, n int) anydiff.Res {
	state := l.Biases.Vector.Len()
	inCount := l.InputWeights.Vector.Len() / state
	sum := anydiff.Add(
		applyWeights(inCount, state, l.InputWeights, in),
		applyWeights(state, state, l.StateWeights, lastOut),
	)
	if extra != nil {
		sum = anydiff.Add(sum, extra)
	}
	return l.Activation.Apply(anydiff.AddRepeated(sum, l.Biases), n)
}

// Parameters returns the parameters of the gate.
func (l *LSTMGate) Parameters() []*anydiff.Var {
	return []*anydiff.Var{l.StateWeights, l.InputWeights, l.Biases}
}

// SerializerType returns the unique ID used to serialize
// an LSTM gate with the serializer package.
func (l *LSTMGate) SerializerType() string {
	return "github.com/unixpickle/anyspeech/anyrnn.LSTMGate"
}

// Serialize serializes the gate.
func (l *LSTMGate) Serialize() ([]byte, error) {
	sw := &anyvecsave.S{Vector: l.StateWeights.Vector}
	iw := &anyvecsave.S{Vector: l.InputWeights.Vector}
	b := &anyvecsave.S{Vector: l.Biases.Vector}
	return serializer.SerializeAny(sw, iw, b, l.Activation)
}

type lstmState struct {
	Out  *VecState
	Cell *VecState
}

func (l *lstmState) Present() PresentMap {
	return l.Out.PresentMap
}

func (l *lstmState) Reduce(p PresentMap) State {
	return &lstmState{
		Out:  l.Out.Reduce(p).(*VecState),
		Cell: l.Cell.Reduce(p).(*VecState),
	}
}

func (l *lstmState) Expand(p PresentMap) StateGrad {
	return &lstmState{
		Out:  l.Out.Expand(p).(*VecState),
		Cell: l.Cell.Expand(p).(*VecState),
	}
}

type lstmRes struct {
	InPool   *anydiff.Var
	OutPool  *anydiff.Var
	CellPool *anydiff.Var

	// Joined is the concatenation of the new output and
	// the new cell, so that both upstream gradients can
	// be propagated at once.
	Joined anydiff.Res

	OutVec   anyvec.Vector
	OutState *lstmState
	V        anydiff.VarSet
}

func (l *lstmRes) State() State {
	return l.OutState
}

func (l *lstmRes) Output() anyvec.Vector {
	return l.OutVec
}

func (l *lstmRes) Vars() anydiff.VarSet {
	return l.V
}

func (l *lstmRes) Propagate(u anyvec.Vector, s StateGrad, g anydiff.Grad) (anyvec.Vector,
	StateGrad) {
	c := u.Creator()
	var upstream anyvec.Vector
	if s != nil {
		sg := s.(*lstmState)
		u.Add(sg.Out.Vector)
		upstream = c.Concat(u, sg.Cell.Vector)
	} else {
		upstream = c.Concat(u, c.MakeVector(u.Len()))
	}

	pools := []*anydiff.Var{l.InPool, l.OutPool, l.CellPool}
	for _, p := range pools {
		g[p] = c.MakeVector(p.Vector.Len())
	}
	l.Joined.Propagate(upstream, g)
	down := g[l.InPool]
	downState := &lstmState{
		Out:  &VecState{Vector: g[l.OutPool], PresentMap: l.OutState.Present()},
		Cell: &VecState{Vector: g[l.CellPool], PresentMap: l.OutState.Present()},
	}
	for _, p := range pools {
		delete(g, p)
	}
	return down, downState
}

// peephole multiplies each row of a batch of cell values
// by a peephole weight vector.
func peephole(weights *anydiff.Var, cell anydiff.Res, n int) anydiff.Res {
	c := weights.Vector.Creator()
	repeated := anydiff.AddRepeated(anydiff.NewConst(c.MakeVector(n*weights.Vector.Len())),
		weights)
	return anydiff.Mul(cell, repeated)
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
