package anyctc

import (
	"errors"
	"math"
	"runtime"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyspeech/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A Batch stores a batch of input sequences and the
// corresponding labels for each.
type Batch struct {
	Inputs anyseq.Seq
	Labels [][]int
}

// A Trainer creates batches, computes gradients, and adds
// up costs for CTC.
type Trainer struct {
	// Func maps input sequences to per-timestep log
	// probabilities, with the blank last.
	Func   func(anyseq.Seq) anyseq.Seq
	Params []*anydiff.Var

	// Average indicates whether or not the total cost should
	// be averaged before computing gradients.
	// This affects gradients, LastCost, and the output of
	// TotalCost().
	Average bool

	// MaxGos specifies the maximum goroutines to use
	// simultaneously for fetching samples.
	// If it is 0, GOMAXPROCS is used.
	MaxGos int

	// After every gradient computation, LastCost is set to
	// the cost from the batch.
	LastCost anyvec.Numeric
}

// Fetch produces a *Batch for the subset of samples.
// The s argument must implement SampleList.
// The batch may not be empty.
//
// Samples are loaded concurrently.
func (t *Trainer) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}

	l := s.(SampleList)
	ins := make([][]anyvec.Vector, l.Len())
	labels := make([][]int, l.Len())

	idxChan := make(chan int, l.Len())
	for i := 0; i < l.Len(); i++ {
		idxChan <- i
	}
	close(idxChan)

	maxGos := t.MaxGos
	if maxGos == 0 {
		maxGos = runtime.GOMAXPROCS(0)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, maxGos)
	for i := 0; i < maxGos; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxChan {
				sample, err := l.GetSample(i)
				if err != nil {
					errChan <- essentials.AddCtx("fetch batch", err)
					return
				}
				ins[i] = sample.Input
				labels[i] = sample.Label
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	return &Batch{
		Inputs: anyseq.ConstSeqList(l.Creator(), ins),
		Labels: labels,
	}, nil
}

// TotalCost computes the total cost for the *Batch.
//
// For more information on how this works, see Cost().
func (t *Trainer) TotalCost(batch anysgd.Batch) anydiff.Res {
	b := batch.(*Batch)
	actual := t.Func(b.Inputs)
	costs := Cost(actual, b.Labels)
	sum := anydiff.Sum(costs)
	if t.Average {
		scaler := sum.Output().Creator().MakeNumeric(1 / float64(costs.Output().Len()))
		return anydiff.Scale(sum, scaler)
	}
	return sum
}

// Gradient computes the gradient for the batch's cost.
// It also sets t.LastCost to the numerical value of the
// total cost.
//
// The b argument must be a *Batch.
func (t *Trainer) Gradient(b anysgd.Batch) anydiff.Grad {
	grad, lc := anysgd.CosterGrad(t, b, t.Params)
	t.LastCost = lc
	return grad
}

// Evaluation summarizes how well a function labels a
// batch.
type Evaluation struct {
	// Cost is the mean negative log likelihood per
	// sequence, ignoring infeasible sequences.
	Cost float64

	// Infeasible counts the sequences that could not be
	// aligned with their labels.
	Infeasible int

	Hyps [][]int
	Refs [][]int
}

// ErrorRate computes the label error rate of e.Hyps,
// ignoring the given symbols.
func (e *Evaluation) ErrorRate(ignore ...int) float64 {
	return ErrorRate(e.Hyps, e.Refs, ignore...)
}

// Evaluate runs t.Func on the *Batch without computing
// gradients, decodes the outputs with best path decoding,
// and measures the cost.
func (t *Trainer) Evaluate(batch anysgd.Batch) *Evaluation {
	b := batch.(*Batch)
	actual := t.Func(b.Inputs)
	costs := vectorFloats(Cost(actual, b.Labels).Output())

	res := &Evaluation{
		Hyps: BestPath(actual),
		Refs: b.Labels,
	}
	for len(res.Hyps) < len(res.Refs) {
		res.Hyps = append(res.Hyps, []int{})
	}
	var feasible int
	for _, c := range costs {
		if math.IsInf(c, 1) {
			res.Infeasible++
			continue
		}
		res.Cost += c
		feasible++
	}
	if feasible > 0 {
		res.Cost /= float64(feasible)
	}
	return res
}
