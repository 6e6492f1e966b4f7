// Package metrics exports training progress to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrainingIterations counts completed SGD steps.
	TrainingIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anyspeech_training_iterations_total",
			Help: "Number of SGD iterations completed.",
		},
	)

	// SamplesProcessed counts utterances used for training.
	SamplesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anyspeech_samples_processed_total",
			Help: "Number of training utterances processed.",
		},
	)

	// TrainingCost is the CTC cost of the latest mini-batch.
	TrainingCost = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anyspeech_training_cost",
			Help: "CTC cost of the most recent training mini-batch.",
		},
	)

	// ValidationCost is the latest validation CTC cost.
	ValidationCost = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anyspeech_validation_cost",
			Help: "CTC cost of the most recent validation batch.",
		},
	)

	// ValidationErrorRate is the latest label error rate.
	ValidationErrorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anyspeech_validation_label_error_rate",
			Help: "Label error rate of the most recent validation batch.",
		},
	)

	// LearningRate is the current step size.
	LearningRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anyspeech_learning_rate",
			Help: "Learning rate used for the most recent step.",
		},
	)

	// Epoch is the number of passes over the training set.
	Epoch = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anyspeech_epoch",
			Help: "Fractional number of passes over the training set.",
		},
	)

	// StepSeconds is a histogram of SGD step durations.
	StepSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anyspeech_step_seconds",
			Help:    "Histogram of wall-clock time per SGD iteration (seconds).",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// BatchFrames is a histogram of frames per mini-batch.
	BatchFrames = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anyspeech_batch_frames",
			Help:    "Histogram of the total number of frames per mini-batch.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		},
	)

	// InfeasibleSequences counts sequences too short for
	// their labels.
	InfeasibleSequences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anyspeech_infeasible_sequences_total",
			Help: "Number of sequences whose label could not be aligned.",
		},
	)

	// Checkpoints counts saved models, by outcome.
	Checkpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anyspeech_checkpoints_total",
			Help: "Number of model checkpoints written.",
		},
		[]string{"result"},
	)
)

// RecordStep records a completed training step.
func RecordStep(cost, rate, epoch, seconds float64, samples int) {
	TrainingIterations.Inc()
	SamplesProcessed.Add(float64(samples))
	TrainingCost.Set(cost)
	LearningRate.Set(rate)
	Epoch.Set(epoch)
	StepSeconds.Observe(seconds)
}

// RecordBatch records the size of a fetched mini-batch.
func RecordBatch(frames int) {
	BatchFrames.Observe(float64(frames))
}

// RecordValidation records the result of a validation
// pass.
func RecordValidation(cost, errorRate float64, infeasible int) {
	ValidationCost.Set(cost)
	ValidationErrorRate.Set(errorRate)
	InfeasibleSequences.Add(float64(infeasible))
}

// RecordCheckpoint records a checkpoint attempt.
func RecordCheckpoint(err error) {
	if err != nil {
		Checkpoints.WithLabelValues("error").Inc()
	} else {
		Checkpoints.WithLabelValues("ok").Inc()
	}
}
