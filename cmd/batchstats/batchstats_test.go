package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/batchfeed/datasets"
	"github.com/Noofbiz/batchfeed/minibatch"
)

// writeRun writes ten rows of x,y (y = 2x) and a csv run configuration.
func writeRun(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	var rows strings.Builder
	rows.WriteString("x,y\n")
	for i := range 10 {
		rows.WriteString(strconv.Itoa(i) + "," + strconv.Itoa(2*i) + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte(rows.String()), 0o644))

	cfg := `
[source]
kind = "csv"
path = "data.csv"
rows_per_chunk = 3

[[streams]]
name = "x"
columns = ["x"]

[[streams]]
name = "y"
id = 1
columns = ["y"]

[minibatch]
size = 4
seed = 11
` + extra
	path := filepath.Join(dir, "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// execute runs the root command with args and returns its output. Flags of
// every subcommand are put back to their defaults first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// A slice flag appends once it has been set, so train gets fresh flags.
	trainCmd.ResetFlags()
	addTrainFlags(trainCmd.Flags())
	for _, c := range rootCmd.Commands() {
		c.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
			var err error
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				err = sv.Replace(sliceDefault(f.DefValue))
			} else {
				err = f.Value.Set(f.DefValue)
			}
			if err != nil {
				t.Fatalf("resetting --%s of %s to %q: %v", f.Name, c.Name(), f.DefValue, err)
			}
			f.Changed = false
		})
	}
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

// sliceDefault splits a slice flag default such as "[32,16]".
func sliceDefault(def string) []string {
	def = strings.TrimSuffix(strings.TrimPrefix(def, "["), "]")
	if def == "" {
		return []string{}
	}
	return strings.Split(def, ",")
}

func TestRun_DrainsSource(t *testing.T) {
	path := writeRun(t, "")
	out, err := execute(t, "run", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "batches:  3 (1 truncated)")
	assert.Contains(t, out, "samples:  10 ")
	assert.Contains(t, out, "chunks:   4 loaded over 1 epoch(s)")
	assert.Contains(t, out, "stream x")
	assert.Contains(t, out, "stream y")
}

func TestRun_Plot(t *testing.T) {
	path := writeRun(t, "repeat_infinitely = true\nmax_batches = 6\n")
	dir := t.TempDir()
	out, err := execute(t, "run", "--config", path, "--plot", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "batches:  6 (0 truncated)")
	assert.FileExists(t, filepath.Join(dir, "batchstats.png"))
}

func TestRun_MaxBatchesFlag(t *testing.T) {
	path := writeRun(t, "")
	out, err := execute(t, "run", "--config", path, "--max-batches", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "batches:  1 (0 truncated)")
}

func TestImportThenOrder(t *testing.T) {
	path := writeRun(t, "randomize = false\n")
	db := filepath.Join(t.TempDir(), "data.db")

	out, err := execute(t, "import", "--config", path, "--out", db)
	require.NoError(t, err)
	assert.Contains(t, out, "4 chunks, 2 streams")

	out, err = execute(t, "order", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "0 1 2 3\n", out)

	// Importing twice refuses to overwrite.
	_, err = execute(t, "import", "--config", path, "--out", db)
	assert.Error(t, err)
}

func TestRun_MissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestDrain_Means(t *testing.T) {
	samples := map[string][]minibatch.Sample{"a": {{1}, {3}, {5}, {7}}}
	mem, err := datasets.NewMemorySourceFromSamples(
		[]minibatch.StreamDescriptor{{Name: "a", SampleShape: []int{1}, ElementType: minibatch.Float64}},
		samples, 4)
	require.NoError(t, err)
	src, err := minibatch.New(mem, minibatch.WithRandomize(false))
	require.NoError(t, err)

	rep, err := drain(src, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Batches)
	assert.Equal(t, uint64(4*8), rep.Bytes)
	require.Len(t, rep.Means, 2)
	assert.Equal(t, 2.0, rep.Means[0].Y)
	assert.Equal(t, 6.0, rep.Means[1].Y)
}

func TestTrain(t *testing.T) {
	path := writeRun(t, "")
	out, err := execute(t, "train", "--config", path, "--input", "x", "--label", "y",
		"--epochs", "3", "--learning-rate", "0.001", "--hidden", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "epoch   0")
	assert.Contains(t, out, "epoch   2")

	_, err = execute(t, "train", "--config", path, "--input", "nope")
	assert.ErrorContains(t, err, "nope")
}

func TestTrain_HiddenFlagDoesNotLeak(t *testing.T) {
	path := writeRun(t, "")

	_, err := execute(t, "train", "--config", path, "--input", "nope", "--hidden", "4")
	require.Error(t, err)
	assert.Equal(t, []int{4}, trainHidden)

	_, err = execute(t, "train", "--config", path, "--input", "nope", "--hidden", "3")
	require.Error(t, err)
	assert.Equal(t, []int{3}, trainHidden)

	_, err = execute(t, "train", "--config", path, "--input", "nope")
	require.Error(t, err)
	assert.Equal(t, []int{32, 16}, trainHidden)
}

func TestSliceDefault(t *testing.T) {
	assert.Equal(t, []string{"32", "16"}, sliceDefault("[32,16]"))
	assert.Equal(t, []string{}, sliceDefault("[]"))
}
