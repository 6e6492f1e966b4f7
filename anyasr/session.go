package anyasr

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unixpickle/anyspeech/anyctc"
	"github.com/unixpickle/anyspeech/anyhtk"
	"github.com/unixpickle/anyspeech/anysgd"
	"github.com/unixpickle/anyspeech/internal/config"
	"github.com/unixpickle/anyspeech/internal/metrics"
	"github.com/unixpickle/anyspeech/internal/tracing"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// A Session trains a Model on a corpus.
type Session struct {
	Config *config.Config
	RunID  string

	Model      *Model
	Corpus     *anyhtk.Corpus
	Train      anyctc.SampleList
	Validation anyctc.SampleList

	Trainer *anyctc.Trainer
	SGD     *anysgd.SGD

	// Iter is the number of completed iterations.
	Iter int

	lastBatchSize int
	lastStep      time.Time
}

// Creator returns the vector creator for a precision
// setting ("float32" or "float64").
func Creator(precision string) (anyvec.Creator, error) {
	switch precision {
	case "float32", "":
		return anyvec32.CurrentCreator(), nil
	case "float64":
		return anyvec64.CurrentCreator(), nil
	default:
		return nil, fmt.Errorf("unknown precision: %s", precision)
	}
}

// LoadCorpus loads the corpus described by cfg.
// If cache is non-nil, it is used for raw feature frames.
func LoadCorpus(cfg *config.Config, cache anyhtk.FrameCache) (*anyhtk.Corpus, error) {
	c, err := Creator(cfg.Precision)
	if err != nil {
		return nil, err
	}
	corpus, err := anyhtk.LoadCorpus(c, &anyhtk.CorpusConfig{
		SCPPath:     cfg.SCP,
		FeatureRoot: cfg.FeatureRoot,
		MLFPath:     cfg.MLF,
		SymbolsPath: cfg.Symbols,
		MeanPath:    cfg.Mean,
		InvStdPath:  cfg.InvStd,
		FeatureDim:  cfg.FeatureDim,
		Left:        cfg.ContextLeft,
		Right:       cfg.ContextRight,
	})
	if err != nil {
		return nil, err
	}
	corpus.Cache = cache
	corpus.SortWindow = cfg.SortWindow
	if corpus.Unlabeled > 0 || corpus.TooShort > 0 {
		log.Printf("skipped %d unlabeled and %d too-short utterances",
			corpus.Unlabeled, corpus.TooShort)
	}
	return corpus, nil
}

// NewSession loads the corpus and either loads the model
// from cfg.ModelPath or creates a new one.
func NewSession(cfg *config.Config, cache anyhtk.FrameCache) (*Session, error) {
	corpus, err := LoadCorpus(cfg, cache)
	if err != nil {
		return nil, essentials.AddCtx("new session", err)
	}
	if corpus.Len() == 0 {
		return nil, fmt.Errorf("new session: no usable utterances in %s", cfg.SCP)
	}
	inputDim := corpus.InputDim(cfg.FeatureDim)

	var model *Model
	if _, err := os.Stat(cfg.ModelPath); err == nil {
		log.Println("Loading model from", cfg.ModelPath)
		model, err = LoadModel(cfg.ModelPath)
		if err != nil {
			return nil, essentials.AddCtx("new session", err)
		}
		if out := model.OutputDim(); out != corpus.Symbols.Len() {
			return nil, fmt.Errorf("new session: model has %d outputs but there are %d symbols",
				out, corpus.Symbols.Len())
		}
		corpus.C = model.Creator()
	} else {
		log.Println("Creating new model")
		model, err = NewModel(corpus.Creator(), &ModelConfig{
			InputDim:  inputDim,
			HiddenDim: cfg.Hidden,
			Layers:    cfg.Layers,
			OutputDim: corpus.Symbols.Len(),
			KeepProb:  cfg.KeepProb,
		})
		if err != nil {
			return nil, essentials.AddCtx("new session", err)
		}
	}

	validation, train := anysgd.HashSplit(corpus, cfg.ValidationFraction)
	if train.Len() == 0 {
		return nil, fmt.Errorf("new session: validation split left no training data")
	}
	log.Printf("Using %d training and %d validation utterances", train.Len(),
		validation.Len())

	s := &Session{
		Config:     cfg,
		RunID:      uuid.New().String(),
		Model:      model,
		Corpus:     corpus,
		Train:      train.(anyctc.SampleList),
		Validation: validation.(anyctc.SampleList),
	}
	s.Trainer = &anyctc.Trainer{
		Func:   model.Apply,
		Params: model.Parameters(),
		MaxGos: cfg.MaxGos,
	}
	s.SGD = &anysgd.SGD{
		Fetcher:     s.Trainer,
		Gradienter:  s.Trainer,
		Transformer: Transformer(cfg),
		Samples:     train,
		Rater:       Rater(cfg),
		BatchSize:   cfg.BatchSize,
	}
	return s, nil
}

// Transformer creates the gradient transformer for the
// learner settings.
// The gradient is clipped before momentum or Adam is
// applied.
func Transformer(cfg *config.Config) anysgd.Transformer {
	var chain anysgd.Chain
	if cfg.GradClip > 0 {
		chain = append(chain, &anysgd.Clip{Threshold: cfg.GradClip})
	}
	if cfg.Optimizer == "adam" {
		chain = append(chain, &anysgd.Adam{})
	} else if cfg.Momentum > 0 {
		chain = append(chain, &anysgd.Momentum{
			Momentum: cfg.Momentum,
			UnitGain: cfg.UnitGain,
		})
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// Rater creates the learning rate schedule.
func Rater(cfg *config.Config) anysgd.Rater {
	if cfg.LearningRateDecay > 0 && cfg.LearningRateDecay < 1 {
		return &anysgd.ExpRater{
			Start: cfg.LearningRate,
			Decay: cfg.LearningRateDecay,
			Min:   cfg.MinLearningRate,
		}
	}
	return anysgd.ConstRater(cfg.LearningRate)
}

// Run trains until done is closed, the iteration limit is
// reached, or a batch fails to load.
// The model is saved before Run returns.
func (s *Session) Run(done <-chan struct{}) error {
	log.Printf("Starting run %s", s.RunID)
	s.Model.SetDropout(true)
	defer s.Model.SetDropout(false)

	stop := make(chan struct{})
	var stopOnce sync.Once
	closeStop := func() {
		stopOnce.Do(func() {
			close(stop)
		})
	}
	defer closeStop()

	s.SGD.StatusFunc = func(b anysgd.Batch) {
		s.status(b)
		if s.Config.MaxIters > 0 && s.Iter >= s.Config.MaxIters {
			closeStop()
		}
	}
	go func() {
		select {
		case <-done:
			closeStop()
		case <-stop:
		}
	}()

	s.lastStep = time.Now()
	runErr := s.SGD.Run(stop)
	if err := s.Checkpoint(); err != nil {
		if runErr != nil {
			log.Printf("Checkpoint failed: %v", err)
			return runErr
		}
		return err
	}
	return runErr
}

// status is called with every mini-batch before its
// gradient is computed.
func (s *Session) status(b anysgd.Batch) {
	batch := b.(*anyctc.Batch)
	frames := 0
	for _, step := range batch.Inputs.Output() {
		frames += step.NumPresent()
	}
	metrics.RecordBatch(frames)

	if s.Trainer.LastCost != nil && s.lastBatchSize > 0 {
		now := time.Now()
		cost := anysgd.NumericFloat(s.Trainer.LastCost) / float64(s.lastBatchSize)
		rate := s.SGD.Rater.Rate(s.SGD.Epoch())
		metrics.RecordStep(cost, rate, s.SGD.Epoch(), now.Sub(s.lastStep).Seconds(),
			s.lastBatchSize)
		s.lastStep = now
		s.Iter++

		if s.Iter%s.Config.LogInterval == 0 {
			log.Printf("iter %d: epoch=%.3f cost=%f lr=%g", s.Iter, s.SGD.Epoch(), cost, rate)
			s.validate()
		}
		if s.Iter%s.Config.SaveInterval == 0 {
			if err := s.Checkpoint(); err != nil {
				log.Printf("Checkpoint failed: %v", err)
			}
		}
	}
	s.lastBatchSize = len(batch.Labels)
}

// Validate evaluates the model on a random mini-batch of
// validation utterances.
// It returns nil if there is no validation data.
func (s *Session) Validate() (*EvalResult, error) {
	if s.Validation.Len() == 0 {
		return nil, nil
	}
	anysgd.Shuffle(s.Validation)
	n := s.Validation.Len()
	if n > s.Config.BatchSize {
		n = s.Config.BatchSize
	}
	samples := s.Validation.Slice(0, n).(anyctc.SampleList)

	_, span := tracing.Tracer().Start(context.Background(), "validate")
	defer span.End()
	span.SetAttributes(attribute.Int("iter", s.Iter), attribute.Int("samples", n))

	res, err := Evaluate(s.Model, samples, n, s.Config.IgnoreTokens)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Float64("cost", res.Cost),
		attribute.Float64("error_rate", res.ErrorRate))
	return res, nil
}

func (s *Session) validate() {
	defer s.Model.SetDropout(true)
	res, err := s.Validate()
	if err != nil {
		log.Printf("validation failed: %v", err)
		return
	}
	if res == nil {
		return
	}
	metrics.RecordValidation(res.Cost, res.ErrorRate, res.Infeasible)
	log.Printf("validation: cost=%f ler=%f infeasible=%d", res.Cost, res.ErrorRate,
		res.Infeasible)
}

// Checkpoint saves the model to the configured path.
func (s *Session) Checkpoint() error {
	_, span := tracing.Tracer().Start(context.Background(), "checkpoint")
	defer span.End()
	span.SetAttributes(attribute.String("path", s.Config.ModelPath),
		attribute.String("run_id", s.RunID), attribute.Int("iter", s.Iter))

	err := SaveModel(s.Config.ModelPath, s.Model)
	metrics.RecordCheckpoint(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	log.Printf("Saved model to %s (iter %d)", s.Config.ModelPath, s.Iter)
	return nil
}
