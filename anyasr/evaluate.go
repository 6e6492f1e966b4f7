package anyasr

import (
	"errors"

	"github.com/unixpickle/anyspeech/anyctc"
	"github.com/unixpickle/essentials"
)

// EvalResult summarizes a model's performance on a list
// of samples.
type EvalResult struct {
	// Cost is the mean CTC cost per feasible sequence.
	Cost float64

	// ErrorRate is the label error rate of the greedy
	// decoding.
	ErrorRate float64

	// Infeasible counts sequences that were too short for
	// their labels.
	Infeasible int

	Hyps [][]int
	Refs [][]int
}

// Evaluate runs the model over every sample in batches of
// batchSize and decodes the outputs greedily.
// Symbols in ignore are removed before computing the
// label error rate.
//
// Dropout is disabled during evaluation and remains
// disabled afterwards.
func Evaluate(m *Model, samples anyctc.SampleList, batchSize int,
	ignore []int) (*EvalResult, error) {
	if samples.Len() == 0 {
		return nil, errors.New("evaluate: no samples")
	}
	if batchSize <= 0 {
		batchSize = samples.Len()
	}
	m.SetDropout(false)
	trainer := &anyctc.Trainer{Func: m.Apply}

	res := &EvalResult{}
	var totalCost float64
	var feasible int
	for i := 0; i < samples.Len(); i += batchSize {
		end := i + batchSize
		if end > samples.Len() {
			end = samples.Len()
		}
		batch, err := trainer.Fetch(samples.Slice(i, end))
		if err != nil {
			return nil, essentials.AddCtx("evaluate", err)
		}
		eval := trainer.Evaluate(batch)
		n := len(eval.Refs) - eval.Infeasible
		totalCost += eval.Cost * float64(n)
		feasible += n
		res.Infeasible += eval.Infeasible
		res.Hyps = append(res.Hyps, eval.Hyps...)
		res.Refs = append(res.Refs, eval.Refs...)
	}
	if feasible > 0 {
		res.Cost = totalCost / float64(feasible)
	}
	res.ErrorRate = anyctc.ErrorRate(res.Hyps, res.Refs, ignore...)
	return res, nil
}
