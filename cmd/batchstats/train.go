package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/batchfeed/minibatch"
	"github.com/Noofbiz/batchfeed/simple"
)

var (
	trainInput  string
	trainLabel  string
	trainEpochs int
	trainLR     float64
	trainHidden []int
	trainSeed   int64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a small MLP regressor on minibatches from the configured source",
	Long: `Trains a pure-Go MLP that predicts the --label stream from the --input
stream, drawing minibatches of minibatch.size. Each epoch resets the source;
with repeat_infinitely, an epoch is max_batches batches.`,
	RunE: runTrain,
}

func init() {
	addTrainFlags(trainCmd.Flags())
	rootCmd.AddCommand(trainCmd)
}

func addTrainFlags(fs *pflag.FlagSet) {
	fs.StringVar(&trainInput, "input", "features", "stream fed to the model")
	fs.StringVar(&trainLabel, "label", "labels", "stream the model predicts")
	fs.IntVar(&trainEpochs, "epochs", 10, "number of training epochs")
	fs.Float64Var(&trainLR, "learning-rate", 0.005, "SGD learning rate")
	fs.IntSliceVar(&trainHidden, "hidden", []int{32, 16}, "hidden layer sizes")
	fs.Int64Var(&trainSeed, "seed", 1, "weight initialization seed")
}

func runTrain(cmd *cobra.Command, _ []string) error {
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
	descs := src.StreamDescriptors()
	in, ok := descs[trainInput]
	if !ok {
		return fmt.Errorf("no stream %q (have %v)", trainInput, src.StreamNames())
	}
	out, ok := descs[trainLabel]
	if !ok {
		return fmt.Errorf("no stream %q (have %v)", trainLabel, src.StreamNames())
	}

	model, err := simple.NewModel(simple.Config{
		HiddenSizes:   trainHidden,
		LearningRate:  trainLR,
		Epochs:        trainEpochs,
		StepsPerEpoch: cfg.Minibatch.MaxBatches,
		Seed:          trainSeed,
	}, in.SampleSize(), out.SampleSize())
	if err != nil {
		return err
	}

	klog.Infof("training %v -> %s for %d epochs", in.SampleShape, trainLabel, trainEpochs)
	losses, err := model.Train(src, trainInput, trainLabel, cfg.Minibatch.Size)
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}
	w := cmd.OutOrStdout()
	for ep, loss := range losses {
		fmt.Fprintf(w, "epoch %3d  loss %.6g\n", ep, loss)
	}
	return nil
}
