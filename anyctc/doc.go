// Package anyctc implements Connectionist Temporal
// Classification (CTC).
// For more information on CTC, see this paper:
// http://www.cs.toronto.edu/~graves/icml_2006.pdf.
//
// A label is first expanded into an alignment Graph with
// LabelsToGraph.
// ForwardBackward then scores the graph against a
// sequence of per-frame log probabilities, giving the
// log likelihood of the label and its gradient.
// Cost and Trainer wrap the same computation for batches
// of anyseq sequences.
//
// Throughout the package, the blank symbol is the last
// component of every frame.
package anyctc
