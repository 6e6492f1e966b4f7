package anysgd

import "github.com/unixpickle/anydiff"

// A Transformer transforms gradients.
// Momentum, Adam, and gradient clipping are implemented
// as Transformers.
//
// After its first call, a Transformer expects to see
// gradients of the same form (i.e. containing the same
// variables).
//
// A Transformer may modify its input and return it as
// the output, but it should not retain a reference to
// the input after Transform returns.
// If a Transformer needs to cache things relating to its
// inputs, it must allocate a separate gradient.
//
// A Transformer's output is only guaranteed to be valid
// until the next time Transform is called.
type Transformer interface {
	Transform(g anydiff.Grad) anydiff.Grad
}

// A Batch is an immutable, loaded list of samples.
//
// In contrast to a SampleList, a Batch is not assumed to
// use lazy evaluation.
// Batches are obtained using a Fetcher and then used as
// arguments to a Gradienter.
type Batch interface{}

// A Fetcher is responsible for fetching Batches for
// SampleLists.
//
// SGD calls Fetch from a background goroutine, so the
// next Batch is usually ready as soon as the previous one
// is done being used.
type Fetcher interface {
	Fetch(s SampleList) (Batch, error)
}

// A Gradienter computes a gradient for a Batch.
//
// The same gradient instance may be re-used by successive
// calls to Gradient.
type Gradienter interface {
	Gradient(b Batch) anydiff.Grad
}

// A Rater determines the learning rate given the epoch
// number.
// An "epoch" is a full pass over the training set, so
// fractional epochs are possible.
type Rater interface {
	Rate(epoch float64) float64
}

// A SampleList represents a list of training samples.
type SampleList interface {
	// Len returns the number of samples.
	Len() int

	// Swap swaps two samples.
	Swap(i, j int)

	// Slice generates a shallow copy of a subset of the
	// list.
	Slice(i, j int) SampleList
}

// PostShuffler is used to notify a SampleList that it has
// been shuffled, allowing it to perform any sample
// re-ordering it likes.
//
// For example, a PostShuffler can group utterances of
// similar lengths so that they end up in the same
// mini-batch.
type PostShuffler interface {
	PostShuffle()
}

// A Coster computes differentiable costs for a Batch.
// The resulting cost vectors should have one component.
type Coster interface {
	TotalCost(b Batch) anydiff.Res
}
