package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/plotter"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/batchfeed/minibatch"
)

var (
	plotDir    string
	maxBatches int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Draw minibatches from the configured source and summarise them",
	Long: `Builds the configured chunk source and draws minibatches until it is
exhausted or max_batches is reached, then prints a summary. With --plot, a PNG
of batch sizes and the per-batch mean of the first stream is written too.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&plotDir, "plot", "", "directory to write batchstats.png to (no plot when empty)")
	runCmd.Flags().IntVar(&maxBatches, "max-batches", 0, "stop after this many batches (overrides minibatch.max_batches)")
	rootCmd.AddCommand(runCmd)
}

// runReport is what a drain of a source observed.
type runReport struct {
	Batches   int
	Samples   int
	Bytes     uint64
	Epochs    int
	Stats     minibatch.Stats
	Elapsed   time.Duration
	MeanOf    string
	Sizes     plotter.XYs
	Means     plotter.XYs
	Truncated int
}

// drain draws batches of size from src until it is exhausted or limit
// batches (when limit > 0) were drawn.
func drain(src *minibatch.Source, size, limit int) (*runReport, error) {
	names := src.StreamNames()
	rep := &runReport{}
	if len(names) > 0 {
		rep.MeanOf = names[0]
	}

	start := time.Now()
	for src.HasNext() && (limit == 0 || rep.Batches < limit) {
		mb, err := src.Next(size)
		if errors.Is(err, minibatch.ErrNoMoreMinibatches) {
			break
		}
		if err != nil {
			return nil, err
		}

		n := mb.NumSamples()
		step := float64(rep.Batches)
		rep.Batches++
		rep.Samples += n
		if n < size {
			rep.Truncated++
		}
		rep.Epochs = mb.Epoch + 1
		for _, sd := range mb.Streams {
			rep.Bytes += uint64(len(sd.Flat) * sd.Stream.ElementType.Size())
		}
		rep.Sizes = append(rep.Sizes, plotter.XY{X: step, Y: float64(n)})
		if sd, ok := mb.Stream(rep.MeanOf); ok {
			rep.Means = append(rep.Means, plotter.XY{X: step, Y: mean(sd.Flat)})
		}
	}
	rep.Elapsed = time.Since(start)
	rep.Stats = src.Stats()
	return rep, nil
}

func mean(xs []float32) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	return sum / float64(len(xs))
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	chunks, closeSource, err := cfg.OpenSource()
	if err != nil {
		return err
	}
	defer closeSource()

	src, err := minibatch.New(chunks, cfg.Options()...)
	if err != nil {
		return err
	}

	limit := cfg.Minibatch.MaxBatches
	if cmd.Flags().Changed("max-batches") {
		limit = maxBatches
	}
	if limit <= 0 && cfg.Minibatch.RepeatInfinitely {
		return fmt.Errorf("a repeating source needs --max-batches > 0")
	}

	runID := uuid.NewString()
	klog.Infof("run %s: drawing batches of %d from %d chunks", runID, cfg.Minibatch.Size, chunks.NumChunks())
	rep, err := drain(src, cfg.Minibatch.Size, limit)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	printReport(cmd.OutOrStdout(), runID, src, rep)

	if plotDir != "" {
		path, err := plotRun(plotDir, rep)
		if err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "plot: %s\n", path)
	}
	return nil
}

func printReport(w io.Writer, runID string, src *minibatch.Source, rep *runReport) {
	fmt.Fprintf(w, "run %s\n", runID)
	descs := src.StreamDescriptors()
	for _, name := range src.StreamNames() {
		d := descs[name]
		fmt.Fprintf(w, "  stream %-12s id=%d shape=%v %s %s\n", name, d.ID, d.SampleShape, d.ElementType, d.StorageFormat)
	}
	fmt.Fprintf(w, "batches:  %s (%s truncated)\n", humanize.Comma(int64(rep.Batches)), humanize.Comma(int64(rep.Truncated)))
	fmt.Fprintf(w, "samples:  %s (%s packed)\n", humanize.Comma(int64(rep.Samples)), humanize.Bytes(rep.Bytes))
	fmt.Fprintf(w, "chunks:   %s loaded over %d epoch(s)\n", humanize.Comma(int64(rep.Stats.ChunksLoaded)), rep.Epochs)
	fmt.Fprintf(w, "buffered: %s samples left\n", humanize.Comma(int64(rep.Stats.Buffered)))
	rate := 0.0
	if secs := rep.Elapsed.Seconds(); secs > 0 {
		rate = float64(rep.Samples) / secs
	}
	fmt.Fprintf(w, "elapsed:  %s (%s samples/s)\n", rep.Elapsed.Round(time.Millisecond), humanize.CommafWithDigits(rate, 0))
	if rep.MeanOf != "" && len(rep.Means) > 0 {
		fmt.Fprintf(w, "mean of %s: first %.4g, last %.4g\n", rep.MeanOf, rep.Means[0].Y, rep.Means[len(rep.Means)-1].Y)
	}
	fmt.Fprintln(w, strings.Repeat("-", 40))
}
