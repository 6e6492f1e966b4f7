package anyhtk

import (
	"bytes"
	"errors"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anyspeech/anysgd"
	"github.com/unixpickle/anyvec/anyvec64"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
	return path
}

func writeFeatureFile(t *testing.T, dir, name string, frames [][]float64) string {
	var buf bytes.Buffer
	require.NoError(t, WriteFeatures(&buf, 100000, HTKUser, frames))
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func rampFrames(n, dim int) [][]float64 {
	res := make([][]float64, n)
	for i := range res {
		res[i] = make([]float64, dim)
		for j := range res[i] {
			res[i][j] = float64(i*dim + j)
		}
	}
	return res
}

func TestReadSCP(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "train.scp", "an4/train/utt1.mfc=feats/utt1.mfc[0,9]\n"+
		"\n"+
		"/abs/utt2.mfc\n"+
		"utt3=feats/utt3.mfc\n")
	entries, err := ReadSCP(path, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "utt1", entries[0].ID)
	assert.Equal(t, "/data/feats/utt1.mfc", entries[0].Path)
	assert.True(t, entries[0].HasRange)
	assert.Equal(t, 10, entries[0].NumFrames())

	assert.Equal(t, "utt2", entries[1].ID)
	assert.Equal(t, "/abs/utt2.mfc", entries[1].Path)
	assert.Equal(t, -1, entries[1].NumFrames())

	assert.Equal(t, "utt3", entries[2].ID)
	assert.False(t, entries[2].HasRange)
}

func TestReadSCPErrors(t *testing.T) {
	dir := t.TempDir()
	for _, contents := range []string{
		"utt=feats.mfc[3,1]",
		"utt=feats.mfc[1]",
		"utt=",
		"a/utt1.mfc\nb/utt1.mfc",
		"utt1=x.mfc[0,4]\nfoo/utt1.mfc=x.mfc[5,9]",
	} {
		path := writeFile(t, dir, "bad.scp", contents+"\n")
		_, err := ReadSCP(path, "")
		assert.Error(t, err, contents)
	}
	_, err := ReadSCP(filepath.Join(dir, "missing.scp"), "")
	assert.Error(t, err)
}

func TestReadMLF(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "train.mlf", `#!MLF!#
"*/utt1.lab"
0 100000 s1 extra
100000 300000 s2
.
"utt2.rec"
s3
s1
.
`)
	mlf, err := ReadMLF(path)
	require.NoError(t, err)
	require.Len(t, mlf, 2)

	utt1 := mlf["utt1"]
	require.NotNil(t, utt1)
	assert.Equal(t, []string{"s1", "s2"}, utt1.Symbols())
	assert.Equal(t, int64(100000), utt1.Segments[1].Start)
	assert.Equal(t, int64(300000), utt1.Segments[1].End)

	utt2 := mlf["utt2"]
	require.NotNil(t, utt2)
	assert.Equal(t, []string{"s3", "s1"}, utt2.Symbols())
	assert.Equal(t, int64(-1), utt2.Segments[0].Start)
}

func TestReadMLFErrors(t *testing.T) {
	dir := t.TempDir()
	for _, contents := range []string{
		"\"utt1.lab\"\ns1\n.\n",
		"#!MLF!#\n\"utt1.lab\"\ns1\n",
		"#!MLF!#\nutt1.lab\ns1\n.\n",
		"#!MLF!#\n\"utt1.lab\"\n10 5 s1\n.\n",
		"#!MLF!#\n\"*/utt1.lab\"\ns1\n.\n\"other/utt1.rec\"\ns2\n.\n",
	} {
		path := writeFile(t, dir, "bad.mlf", contents)
		_, err := ReadMLF(path)
		assert.Error(t, err, contents)
	}
}

func TestSymbolTable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "states.list", "s1\ns2\n\ns3\nblank\n")
	table, err := ReadSymbols(path)
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, 3, table.Blank())

	idx, ok := table.Index("s2")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	label, err := table.Encode([]string{"s3", "s1", "s1"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 0}, label)
	assert.Equal(t, []string{"s3", "s1", "s1"}, table.Decode(label))

	_, err = table.Encode([]string{"s4"})
	assert.Error(t, err)
	_, err = table.Encode([]string{"blank"})
	assert.Error(t, err)

	_, err = NewSymbolTable([]string{"a", "a", "blank"})
	assert.Error(t, err)
	_, err = NewSymbolTable([]string{"blank"})
	assert.Error(t, err)
}

func TestFeaturesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	frames := rampFrames(5, 3)
	path := writeFeatureFile(t, dir, "utt.mfc", frames)

	h, err := ReadHTKHeader(path)
	require.NoError(t, err)
	assert.Equal(t, int32(5), h.NumSamples)
	assert.Equal(t, 3, h.Dim())
	assert.Equal(t, int16(HTKUser), h.ParmKind)

	all, err := ReadFeatures(path, 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, frames, all)

	part, err := ReadFeatures(path, 1, 3, false)
	require.NoError(t, err)
	assert.Equal(t, frames[1:4], part)

	_, err = ReadFeatures(path, 2, 5, false)
	assert.Error(t, err)
}

func TestFeaturesBigEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFeatures(&buf, 100000, HTKUser, [][]float64{{1}}))
	expected := []byte{
		0, 0, 0, 1,
		0, 1, 0x86, 0xa0,
		0, 4,
		0, 9,
		0x3f, 0x80, 0, 0,
	}
	assert.Equal(t, expected, buf.Bytes())
}

func TestFeaturesCompressed(t *testing.T) {
	dir := t.TempDir()
	data := []byte{
		0, 0, 0, 1,
		0, 1, 0x86, 0xa0,
		0, 4,
		0x04, 9,
		0x3f, 0x80, 0, 0,
	}
	path := filepath.Join(dir, "compressed.mfc")
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	_, err := ReadFeatures(path, 0, 0, true)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mean.bin")
	require.NoError(t, WriteStats(path, []float64{1.5, -2, 3}))

	stats, err := ReadStats(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2, 3}, stats)

	_, err = ReadStats(path, 4)
	assert.Error(t, err)

	f32 := []byte{0, 0, 0xc0, 0x3f, 0, 0, 0, 0xc0}
	path32 := filepath.Join(dir, "mean32.bin")
	require.NoError(t, ioutil.WriteFile(path32, f32, 0644))
	stats, err = ReadStats(path32, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, stats)
}

func TestNormalizer(t *testing.T) {
	frames := [][]float64{{1, 5}, {3, 5}}
	n, err := ComputeNormalizer(frames)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, n.Mean)
	assert.InDelta(t, 1, n.InvStd[0], 1e-8)
	assert.Equal(t, 1.0, n.InvStd[1])

	vec := []float64{3, 7}
	n.Apply(vec)
	assert.InDelta(t, 1, vec[0], 1e-8)
	assert.InDelta(t, 2, vec[1], 1e-8)

	assert.Panics(t, func() {
		n.Apply([]float64{1})
	})
}

func TestSplice(t *testing.T) {
	frames := [][]float64{{1}, {2}, {3}}
	spliced := Splice(frames, 1, 2)
	assert.Equal(t, [][]float64{
		{1, 1, 2, 3},
		{1, 2, 3, 3},
		{2, 3, 3, 3},
	}, spliced)
	assert.Equal(t, frames, Splice(frames, 0, 0))
}

func TestCorpus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "feats"), 0755))
	writeFeatureFile(t, dir, "feats/utt1.mfc", rampFrames(4, 2))
	writeFeatureFile(t, dir, "feats/utt2.mfc", rampFrames(1, 2))
	writeFeatureFile(t, dir, "feats/utt3.mfc", rampFrames(3, 2))
	writeFeatureFile(t, dir, "feats/utt4.mfc", rampFrames(6, 2))

	cfg := &CorpusConfig{
		SCPPath: writeFile(t, dir, "train.scp", "utt1=feats/utt1.mfc\n"+
			"utt2=feats/utt2.mfc\n"+
			"utt3=feats/utt3.mfc\n"+
			"utt4=feats/utt4.mfc[1,5]\n"),
		FeatureRoot: dir,
		MLFPath: writeFile(t, dir, "train.mlf", "#!MLF!#\n"+
			"\"*/utt1.lab\"\na\nb\n.\n"+
			"\"*/utt2.lab\"\na\na\n.\n"+
			"\"*/utt4.lab\"\nb\n.\n"),
		SymbolsPath: writeFile(t, dir, "states.list", "a\nb\nblank\n"),
		Left:        1,
		Right:       0,
	}
	corpus, err := LoadCorpus(anyvec64.CurrentCreator(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, corpus.Len())
	assert.Equal(t, 1, corpus.Unlabeled)
	assert.Equal(t, 1, corpus.TooShort)
	assert.Equal(t, 4, corpus.InputDim(2))

	sample, err := corpus.GetSample(1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sample.Label)
	require.Len(t, sample.Input, 5)
	assert.Equal(t, []float64{2, 3, 2, 3}, sample.Input[0].Data())
	assert.Equal(t, []float64{6, 7, 8, 9}, sample.Input[3].Data())

	// Hashes depend only on the utterance ID.
	h1 := corpus.Hash(0)
	corpus.Swap(0, 1)
	assert.Equal(t, h1, corpus.Hash(1))

	left, right := anysgd.HashSplit(corpus, 0.5)
	assert.Equal(t, 2, left.Len()+right.Len())

	corpus.SortWindow = 2
	corpus.PostShuffle()
	assert.Equal(t, "utt1", corpus.Utterances[0].ID)
	assert.Equal(t, "utt4", corpus.Utterances[1].ID)
}

func TestCorpusNormalizer(t *testing.T) {
	dir := t.TempDir()
	writeFeatureFile(t, dir, "utt1.mfc", [][]float64{{1, 2}, {3, 4}})
	meanPath := filepath.Join(dir, "mean.bin")
	invStdPath := filepath.Join(dir, "invstd.bin")
	require.NoError(t, WriteStats(meanPath, []float64{1, 2}))
	require.NoError(t, WriteStats(invStdPath, []float64{0.5, 2}))

	corpus, err := LoadCorpus(anyvec64.CurrentCreator(), &CorpusConfig{
		SCPPath:     writeFile(t, dir, "train.scp", filepath.Join(dir, "utt1.mfc")+"\n"),
		MLFPath:     writeFile(t, dir, "train.mlf", "#!MLF!#\n\"utt1.lab\"\na\n.\n"),
		SymbolsPath: writeFile(t, dir, "states.list", "a\nblank\n"),
		MeanPath:    meanPath,
		InvStdPath:  invStdPath,
		FeatureDim:  2,
	})
	require.NoError(t, err)
	require.Equal(t, 1, corpus.Len())
	frames, err := corpus.LoadFrames(corpus.Utterances[0])
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []float64{0, 0}, frames[0])
	assert.True(t, math.Abs(frames[1][0]-1) < 1e-8)
	assert.True(t, math.Abs(frames[1][1]-4) < 1e-8)
}

func TestCorpusMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCorpus(anyvec64.CurrentCreator(), &CorpusConfig{
		SCPPath:     filepath.Join(dir, "missing.scp"),
		MLFPath:     filepath.Join(dir, "missing.mlf"),
		SymbolsPath: filepath.Join(dir, "missing.list"),
	})
	assert.Error(t, err)
}

func TestCorpusDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCorpus(anyvec64.CurrentCreator(), &CorpusConfig{
		SCPPath:     writeFile(t, dir, "train.scp", "a/utt1.mfc\nb/utt1.mfc\n"),
		FeatureRoot: dir,
		MLFPath:     writeFile(t, dir, "train.mlf", "#!MLF!#\n\"*/utt1.lab\"\na\n.\n"),
		SymbolsPath: writeFile(t, dir, "states.list", "a\nblank\n"),
		FeatureDim:  2,
	})
	assert.Error(t, err)
}

type memFrameCache struct {
	entries map[string][][]float64
	gets    int
	fail    bool
}

func (m *memFrameCache) GetFrames(key string) ([][]float64, bool, error) {
	m.gets++
	if m.fail {
		return nil, false, errors.New("cache unavailable")
	}
	frames, ok := m.entries[key]
	return copyFrames(frames), ok, nil
}

func (m *memFrameCache) PutFrames(key string, frames [][]float64) error {
	if m.fail {
		return errors.New("cache unavailable")
	}
	m.entries[key] = copyFrames(frames)
	return nil
}

func copyFrames(frames [][]float64) [][]float64 {
	if frames == nil {
		return nil
	}
	res := make([][]float64, len(frames))
	for i, f := range frames {
		res[i] = append([]float64{}, f...)
	}
	return res
}

func TestCorpusCache(t *testing.T) {
	dir := t.TempDir()
	featPath := writeFeatureFile(t, dir, "utt1.mfc", rampFrames(5, 2))
	corpus, err := LoadCorpus(anyvec64.CurrentCreator(), &CorpusConfig{
		SCPPath:     writeFile(t, dir, "train.scp", "utt1="+featPath+"[1,3]\n"),
		MLFPath:     writeFile(t, dir, "train.mlf", "#!MLF!#\n\"utt1.lab\"\na\n.\n"),
		SymbolsPath: writeFile(t, dir, "states.list", "a\nblank\n"),
		Right:       1,
	})
	require.NoError(t, err)
	cache := &memFrameCache{entries: map[string][][]float64{}}
	corpus.Cache = cache

	expected, err := corpus.LoadFrames(corpus.Utterances[0])
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 3, 4, 5}, {4, 5, 6, 7}, {6, 7, 6, 7}}, expected)
	assert.Equal(t, rampFrames(4, 2)[1:], cache.entries["utt1:1:3"])

	require.NoError(t, os.Remove(featPath))
	actual, err := corpus.LoadFrames(corpus.Utterances[0])
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
	assert.Equal(t, 2, cache.gets)

	cache.fail = true
	_, err = corpus.LoadFrames(corpus.Utterances[0])
	assert.Error(t, err, "cache failures fall back to the missing file")
}
