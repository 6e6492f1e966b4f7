package anyasr

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anyspeech/anyctc"
	"github.com/unixpickle/anyspeech/anyhtk"
	"github.com/unixpickle/anyspeech/anysgd"
	"github.com/unixpickle/anyspeech/internal/config"
)

func writeCorpus(t *testing.T) *config.Config {
	dir := t.TempDir()
	var scp bytes.Buffer
	mlf := bytes.NewBufferString("#!MLF!#\n")
	labels := [][]string{{"a"}, {"b", "a"}, {"a", "b"}, {"b"}}
	for i, label := range labels {
		frames := make([][]float64, 4+i)
		for j := range frames {
			frames[j] = []float64{float64(j), float64(i)}
		}
		var buf bytes.Buffer
		require.NoError(t, anyhtk.WriteFeatures(&buf, 100000, anyhtk.HTKUser, frames))
		name := "utt" + string(rune('1'+i))
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name+".htk"), buf.Bytes(),
			0644))
		scp.WriteString(name + "=" + name + ".htk\n")
		mlf.WriteString("\"*/" + name + ".lab\"\n")
		for _, sym := range label {
			mlf.WriteString(sym + "\n")
		}
		mlf.WriteString(".\n")
	}
	files := map[string][]byte{
		"train.scp":   scp.Bytes(),
		"train.mlf":   mlf.Bytes(),
		"states.list": []byte("a\nb\nblank\n"),
	}
	for name, data := range files {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return &config.Config{
		SCP:          filepath.Join(dir, "train.scp"),
		MLF:          filepath.Join(dir, "train.mlf"),
		Symbols:      filepath.Join(dir, "states.list"),
		FeatureRoot:  dir,
		FeatureDim:   2,
		ContextLeft:  1,
		ContextRight: 1,
		ModelPath:    filepath.Join(dir, "model.out"),
		Hidden:       4,
		Layers:       1,
		KeepProb:     1,
		Precision:    "float64",

		LearningRate:      0.001,
		LearningRateDecay: 1,
		Momentum:          0.9,
		GradClip:          5,
		BatchSize:         2,
		MaxIters:          3,
		LogInterval:       1,
		SaveInterval:      2,
	}
}

func TestNewSession(t *testing.T) {
	cfg := writeCorpus(t)
	s, err := NewSession(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Train.Len())
	assert.Equal(t, 0, s.Validation.Len())
	assert.Equal(t, 3, s.Model.OutputDim())
	assert.NotEmpty(t, s.RunID)
	assert.Len(t, s.Trainer.Params, 17+2)

	res, err := s.Validate()
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestSessionRun(t *testing.T) {
	cfg := writeCorpus(t)
	s, err := NewSession(cfg, nil)
	require.NoError(t, err)
	s.Validation = s.Train.Slice(0, 2).(anyctc.SampleList)

	require.NoError(t, s.Run(make(chan struct{})))
	assert.Equal(t, 3, s.Iter)
	assert.Equal(t, 6, s.SGD.NumProcessed)

	_, err = os.Stat(cfg.ModelPath)
	require.NoError(t, err)
	loaded, err := LoadModel(cfg.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.OutputDim())

	res, err := s.Validate()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Hyps, 2)

	// A second session resumes from the checkpoint.
	resumed, err := NewSession(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, loaded.Parameters()[0].Vector.Data(),
		resumed.Model.Parameters()[0].Vector.Data())
}

func TestSessionStop(t *testing.T) {
	cfg := writeCorpus(t)
	cfg.MaxIters = 0
	s, err := NewSession(cfg, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	close(done)
	require.NoError(t, s.Run(done))
	_, err = os.Stat(cfg.ModelPath)
	assert.NoError(t, err)
}

func TestSessionFetchError(t *testing.T) {
	cfg := writeCorpus(t)
	s, err := NewSession(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(cfg.FeatureRoot, "utt1.htk")))
	require.NoError(t, os.Remove(filepath.Join(cfg.FeatureRoot, "utt2.htk")))
	require.NoError(t, os.Remove(filepath.Join(cfg.FeatureRoot, "utt3.htk")))
	require.NoError(t, os.Remove(filepath.Join(cfg.FeatureRoot, "utt4.htk")))
	cfg.MaxIters = 0
	assert.Error(t, s.Run(make(chan struct{})))
}

func TestTransformerAndRater(t *testing.T) {
	cfg := &config.Config{LearningRate: 0.01, LearningRateDecay: 1}
	assert.Nil(t, Transformer(cfg))
	assert.Equal(t, anysgd.ConstRater(0.01), Rater(cfg))

	cfg.Momentum = 0.9
	cfg.GradClip = 1
	chain, ok := Transformer(cfg).(anysgd.Chain)
	require.True(t, ok)
	require.Len(t, chain, 2)
	assert.IsType(t, &anysgd.Clip{}, chain[0])
	assert.IsType(t, &anysgd.Momentum{}, chain[1])

	cfg.Optimizer = "adam"
	chain, ok = Transformer(cfg).(anysgd.Chain)
	require.True(t, ok)
	require.Len(t, chain, 2)
	assert.IsType(t, &anysgd.Adam{}, chain[1])

	cfg.LearningRateDecay = 0.5
	cfg.MinLearningRate = 0.001
	rater, ok := Rater(cfg).(*anysgd.ExpRater)
	require.True(t, ok)
	assert.InDelta(t, 0.005, rater.Rate(1), 1e-12)
}

func TestCreator(t *testing.T) {
	_, err := Creator("float16")
	assert.Error(t, err)
	_, err = Creator("float64")
	assert.NoError(t, err)
}
