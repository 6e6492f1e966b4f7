// Package anysgd provides tools for Stochastic Gradient
// Descent.
package anysgd

import (
	"errors"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/essentials"
)

// SGD performs stochastic gradient descent.
type SGD struct {
	// Fetcher is used to load each mini-batch.
	// If it is nil, the SampleList for the mini-batch is
	// passed to the Gradienter as-is.
	Fetcher Fetcher

	// Gradienter is used to compute initial, untransformed
	// gradients for each mini-batch.
	Gradienter Gradienter

	// Transformer, if non-nil, is used to transform each
	// gradient before the step.
	Transformer Transformer

	// Samples is the list of training samples to use for
	// training.
	// It will be shuffled and re-shuffled as needed.
	//
	// The list may not be empty.
	Samples SampleList

	// Rater determines the learning rate for each step.
	Rater Rater

	// StatusFunc, if non-nil, is called before every
	// iteration with the next mini-batch.
	StatusFunc func(b Batch)

	// BatchSize is the mini-batch size.
	// If it is 0, then the entire sample list is used at
	// every iteration.
	BatchSize int

	// NumProcessed keeps track of the number of samples that
	// have been passed to Gradienter so far.
	// It is used to compute the epoch for Rater.
	// Most of the time, this should be initialized to 0.
	NumProcessed int
}

// Run runs SGD until done is closed or a batch cannot be
// fetched.
//
// The next mini-batch is fetched in the background while
// the current one is used.
// The Samples list is only accessed by the background
// fetcher while Run is executing.
func (s *SGD) Run(done <-chan struct{}) error {
	if s.Samples.Len() == 0 {
		return errors.New("run SGD: empty sample list")
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	batches := s.prefetch(stop, &wg)
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for {
		var next *fetchedBatch
		select {
		case <-done:
			return nil
		case next = <-batches:
		}
		if next.Err != nil {
			return essentials.AddCtx("run SGD", next.Err)
		}

		if s.StatusFunc != nil {
			s.StatusFunc(next.Batch)
			select {
			case <-done:
				return nil
			default:
			}
		}

		grad := s.Gradienter.Gradient(next.Batch)
		if s.Transformer != nil {
			grad = s.Transformer.Transform(grad)
		}

		epoch := float64(s.NumProcessed) / float64(s.Samples.Len())
		scaleGrad(grad, -s.Rater.Rate(epoch))
		grad.AddToVars()

		s.NumProcessed += next.Size
	}
}

// Epoch returns the number of passes made over the
// samples so far.
func (s *SGD) Epoch() float64 {
	return float64(s.NumProcessed) / float64(s.Samples.Len())
}

type fetchedBatch struct {
	Batch Batch
	Size  int
	Err   error
}

func (s *SGD) prefetch(stop <-chan struct{}, wg *sync.WaitGroup) <-chan *fetchedBatch {
	res := make(chan *fetchedBatch, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		idx := s.Samples.Len()
		for {
			remaining := s.Samples.Len() - idx
			if remaining == 0 {
				Shuffle(s.Samples)
				idx = 0
				remaining = s.Samples.Len()
			}
			batchSize := s.batchSize(remaining)
			samples := s.Samples.Slice(idx, idx+batchSize)
			idx += batchSize

			item := &fetchedBatch{Batch: samples, Size: batchSize}
			if s.Fetcher != nil {
				item.Batch, item.Err = s.Fetcher.Fetch(samples)
			}
			select {
			case res <- item:
			case <-stop:
				return
			}
			if item.Err != nil {
				return
			}
		}
	}()
	return res
}

func (s *SGD) batchSize(remaining int) int {
	if s.BatchSize == 0 || s.BatchSize > remaining {
		return remaining
	}
	return s.BatchSize
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, v := range g {
		v.Scale(v.Creator().MakeNumeric(s))
	}
}

func copyGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, x := range g {
		res[v] = x.Copy()
	}
	return res
}
