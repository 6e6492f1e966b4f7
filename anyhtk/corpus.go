package anyhtk

import (
	"crypto/sha256"
	"fmt"
	"log"
	"sort"

	"github.com/unixpickle/anyspeech/anyctc"
	"github.com/unixpickle/anyspeech/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// CorpusConfig describes where to find the files of a
// training corpus.
type CorpusConfig struct {
	SCPPath     string
	FeatureRoot string
	MLFPath     string
	SymbolsPath string

	// MeanPath and InvStdPath are optional normalization
	// statistics with FeatureDim values each.
	// FeatureDim may be the per-frame size or the spliced
	// size.
	MeanPath   string
	InvStdPath string
	FeatureDim int

	// Left and Right are the context window sizes used to
	// splice neighbouring frames.
	Left  int
	Right int
}

// A FrameCache stores raw feature frames keyed by
// utterance and frame range.
// Frames passed to or returned from a FrameCache are
// modified by the caller, so implementations must copy.
type FrameCache interface {
	GetFrames(key string) ([][]float64, bool, error)
	PutFrames(key string, frames [][]float64) error
}

// An Utterance is one labeled feature sequence.
type Utterance struct {
	ID        string
	Features  *SCPEntry
	Label     []int
	NumFrames int
}

// A Corpus is a list of labeled utterances.
// It implements anyctc.SampleList and anysgd.Hasher.
type Corpus struct {
	C          anyvec.Creator
	Symbols    *SymbolTable
	Normalizer *Normalizer
	Utterances []*Utterance

	Left  int
	Right int

	// SortWindow, if greater than 1, makes PostShuffle sort
	// each consecutive window of utterances by length, so
	// that mini-batches need less padding.
	SortWindow int

	// Unlabeled counts SCP entries with no transcription.
	// TooShort counts utterances with too few frames for
	// their labels.
	// Both kinds of utterances are left out of the corpus.
	Unlabeled int
	TooShort  int

	// Cache, if non-nil, is consulted for raw frames before
	// reading feature files.
	// Cache failures are logged and otherwise ignored.
	Cache FrameCache
}

// LoadCorpus reads the SCP, MLF, and symbol files of a
// corpus and matches utterances with their labels.
func LoadCorpus(c anyvec.Creator, cfg *CorpusConfig) (*Corpus, error) {
	entries, err := ReadSCP(cfg.SCPPath, cfg.FeatureRoot)
	if err != nil {
		return nil, essentials.AddCtx("load corpus", err)
	}
	mlf, err := ReadMLF(cfg.MLFPath)
	if err != nil {
		return nil, essentials.AddCtx("load corpus", err)
	}
	symbols, err := ReadSymbols(cfg.SymbolsPath)
	if err != nil {
		return nil, essentials.AddCtx("load corpus", err)
	}
	res := &Corpus{
		C:       c,
		Symbols: symbols,
		Left:    cfg.Left,
		Right:   cfg.Right,
	}
	if cfg.MeanPath != "" || cfg.InvStdPath != "" {
		res.Normalizer, err = LoadNormalizer(cfg.MeanPath, cfg.InvStdPath, cfg.FeatureDim)
		if err != nil {
			return nil, essentials.AddCtx("load corpus", err)
		}
	}

	for _, entry := range entries {
		trans, ok := mlf[entry.ID]
		if !ok {
			res.Unlabeled++
			continue
		}
		label, err := symbols.Encode(trans.Symbols())
		if err != nil {
			return nil, essentials.AddCtx("load corpus: utterance "+entry.ID, err)
		}
		numFrames := entry.NumFrames()
		if numFrames < 0 {
			h, err := ReadHTKHeader(entry.Path)
			if err != nil {
				return nil, essentials.AddCtx("load corpus", err)
			}
			numFrames = int(h.NumSamples)
		}
		g, err := anyctc.LabelsToGraph(label, symbols.Blank())
		if err != nil {
			return nil, essentials.AddCtx("load corpus: utterance "+entry.ID, err)
		}
		if numFrames < g.MinFrames() {
			res.TooShort++
			continue
		}
		res.Utterances = append(res.Utterances, &Utterance{
			ID:        entry.ID,
			Features:  entry,
			Label:     label,
			NumFrames: numFrames,
		})
	}
	return res, nil
}

// Len returns the number of utterances.
func (c *Corpus) Len() int {
	return len(c.Utterances)
}

// Swap swaps two utterances.
func (c *Corpus) Swap(i, j int) {
	c.Utterances[i], c.Utterances[j] = c.Utterances[j], c.Utterances[i]
}

// Slice creates a shallow copy of part of the corpus.
func (c *Corpus) Slice(i, j int) anysgd.SampleList {
	res := *c
	res.Utterances = append([]*Utterance{}, c.Utterances[i:j]...)
	return &res
}

// PostShuffle sorts windows of utterances by length if
// c.SortWindow is greater than 1.
func (c *Corpus) PostShuffle() {
	if c.SortWindow < 2 {
		return
	}
	for i := 0; i < len(c.Utterances); i += c.SortWindow {
		window := c.Utterances[i:minInt(i+c.SortWindow, len(c.Utterances))]
		sort.SliceStable(window, func(a, b int) bool {
			return window[a].NumFrames < window[b].NumFrames
		})
	}
}

// Hash hashes the utterance ID.
func (c *Corpus) Hash(i int) []byte {
	sum := sha256.Sum256([]byte(c.Utterances[i].ID))
	return sum[:]
}

// Creator returns c.C.
func (c *Corpus) Creator() anyvec.Creator {
	return c.C
}

// InputDim returns the size of each spliced input vector
// for a per-frame feature size.
func (c *Corpus) InputDim(featureDim int) int {
	return featureDim * (c.Left + c.Right + 1)
}

// GetSample loads, normalizes, and splices the features of
// an utterance.
func (c *Corpus) GetSample(idx int) (*anyctc.Sample, error) {
	u := c.Utterances[idx]
	frames, err := c.LoadFrames(u)
	if err != nil {
		return nil, err
	}
	inputs := make([]anyvec.Vector, len(frames))
	for t, frame := range frames {
		inputs[t] = c.C.MakeVectorData(c.C.MakeNumericList(frame))
	}
	return &anyctc.Sample{
		Input: inputs,
		Label: append([]int{}, u.Label...),
	}, nil
}

// LoadFrames loads the normalized, spliced frames for an
// utterance.
func (c *Corpus) LoadFrames(u *Utterance) ([][]float64, error) {
	frames, err := c.rawFrames(u)
	if err != nil {
		return nil, essentials.AddCtx("load utterance "+u.ID, err)
	}
	if len(frames) == 0 {
		return frames, nil
	}
	baseDim := len(frames[0])
	if c.Normalizer != nil && c.Normalizer.Dim() == baseDim {
		for _, f := range frames {
			c.Normalizer.Apply(f)
		}
	}
	frames = Splice(frames, c.Left, c.Right)
	if c.Normalizer != nil && c.Normalizer.Dim() != baseDim {
		if c.Normalizer.Dim() != len(frames[0]) {
			return nil, fmt.Errorf("load utterance %s: normalizer size %d does not match "+
				"feature size %d", u.ID, c.Normalizer.Dim(), len(frames[0]))
		}
		for _, f := range frames {
			c.Normalizer.Apply(f)
		}
	}
	return frames, nil
}

func (c *Corpus) rawFrames(u *Utterance) ([][]float64, error) {
	entry := u.Features
	if c.Cache == nil {
		return ReadFeatures(entry.Path, entry.Start, entry.End, !entry.HasRange)
	}
	key := fmt.Sprintf("%s:%d:%d", u.ID, entry.Start, entry.End)
	if !entry.HasRange {
		key = u.ID + ":all"
	}
	frames, ok, err := c.Cache.GetFrames(key)
	if err != nil {
		log.Printf("frame cache: %v", err)
	} else if ok {
		return frames, nil
	}
	frames, err = ReadFeatures(entry.Path, entry.Start, entry.End, !entry.HasRange)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.PutFrames(key, frames); err != nil {
		log.Printf("frame cache: %v", err)
	}
	return frames, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
