// Package simple is a small multi-layer perceptron regressor trained from a
// minibatch.Source. It is implemented in pure Go so it runs anywhere the
// minibatch engine runs and gives batchstats a real consumer to drive.
package simple

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"k8s.io/klog/v2"

	"github.com/Noofbiz/batchfeed/minibatch"
)

// Config holds the hyperparameters of the model and its training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	LearningRate float64

	// Epochs to train for (default 10).
	Epochs int

	// StepsPerEpoch bounds the batches drawn per epoch. Zero means until the
	// source is exhausted, which requires a source that does not repeat.
	StepsPerEpoch int

	// Seed controls weight initialization. If zero, time-based seed is used.
	Seed int64
}

// Model is a fully connected network with ReLU hidden layers and a linear
// output layer, trained with averaged minibatch SGD on mean squared error.
type Model struct {
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	rng *rand.Rand
}

// NewModel creates a model mapping inputDim values to outputDim values.
func NewModel(cfg Config, inputDim, outputDim int) (*Model, error) {
	if inputDim <= 0 || outputDim <= 0 {
		return nil, fmt.Errorf("model dimensions must be positive, got %d -> %d", inputDim, outputDim)
	}
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, inputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, outputDim)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := range L {
		in, out := sizes[l], sizes[l+1]
		if out <= 0 {
			return nil, fmt.Errorf("hidden layer %d has size %d", l, out)
		}
		// Xavier/Glorot uniform initialization heuristic
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := range out {
			row := make([]float32, in)
			for i := range in {
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}

	return m, nil
}

// InputDim returns the number of values the model reads per sample.
func (m *Model) InputDim() int { return m.layerSizes[0] }

// OutputDim returns the number of values the model predicts per sample.
func (m *Model) OutputDim() int { return m.layerSizes[len(m.layerSizes)-1] }

func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forwardSingle returns the pre-activations of every layer (len L) and the
// activations (len L+1, acts[0] = input).
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, fmt.Errorf("input has %d values, model expects %d", len(input), m.layerSizes[0])
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = input

	preActs = make([][]float32, L)
	for l := range L {
		inVec := acts[l]
		W := m.weights[l]
		b := m.biases[l]
		pre := make([]float32, len(b))
		for j := range pre {
			sum := b[j]
			for i, v := range inVec {
				sum += W[j][i] * v
			}
			pre[j] = sum
		}
		preActs[l] = pre

		// ReLU for hidden, linear for last layer
		act := append([]float32(nil), pre...)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// PredictBatch returns model predictions for a batch of inputs.
func (m *Model) PredictBatch(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		_, acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		out[i] = acts[len(acts)-1]
	}
	return out, nil
}

// TrainStep applies one averaged SGD update from aligned input and label
// stream data and returns the batch's mean squared error before the update.
func (m *Model) TrainStep(inputs, labels *minibatch.StreamData) (float64, error) {
	if inputs.NumSamples != labels.NumSamples {
		return 0, fmt.Errorf("%d inputs but %d labels", inputs.NumSamples, labels.NumSamples)
	}
	if labels.Stream.SampleSize() != m.OutputDim() {
		return 0, fmt.Errorf("label stream %q has %d values, model predicts %d",
			labels.Stream.Name, labels.Stream.SampleSize(), m.OutputDim())
	}
	batchN := inputs.NumSamples
	if batchN == 0 {
		return 0, nil
	}

	L := len(m.weights)
	gradW := make([][][]float32, L)
	gradB := make([][]float32, L)
	for l := range L {
		gradW[l] = make([][]float32, len(m.biases[l]))
		for j := range gradW[l] {
			gradW[l][j] = make([]float32, len(m.weights[l][j]))
		}
		gradB[l] = make([]float32, len(m.biases[l]))
	}

	var sqErr float64
	for ex := range batchN {
		label := labels.Sample(ex)
		preacts, acts, err := m.forwardSingle(inputs.Sample(ex))
		if err != nil {
			return 0, err
		}

		// dLoss/dOutput = 2*(pred - label)
		outAct := acts[L]
		delta := make([]float32, len(outAct))
		for j := range outAct {
			d := outAct[j] - label[j]
			sqErr += float64(d) * float64(d)
			delta[j] = 2.0 * d
		}

		for l := L - 1; l >= 0; l-- {
			inAct := acts[l]
			for j := range delta {
				gradB[l][j] += delta[j]
				for i, a := range inAct {
					gradW[l][j][i] += delta[j] * a
				}
			}
			if l == 0 {
				break
			}
			prev := make([]float32, len(inAct))
			for i := range prev {
				if preacts[l-1][i] <= 0 {
					continue
				}
				var sum float32
				for j := range delta {
					sum += m.weights[l][j][i] * delta[j]
				}
				prev[i] = sum
			}
			delta = prev
		}
	}

	lr := float32(m.Config.LearningRate)
	bInv := float32(1.0 / float64(batchN))
	for l := range L {
		for j := range m.biases[l] {
			m.biases[l][j] -= lr * gradB[l][j] * bInv
			for i := range m.weights[l][j] {
				m.weights[l][j][i] -= lr * gradW[l][j][i] * bInv
			}
		}
	}
	return sqErr / float64(batchN*m.OutputDim()), nil
}

// Train runs Config.Epochs passes over src, drawing batches of batchSize and
// feeding the input and label streams to TrainStep. The source is Reset
// between epochs. It returns the mean batch loss of each epoch.
func (m *Model) Train(src *minibatch.Source, input, label string, batchSize int) ([]float64, error) {
	if src == nil {
		return nil, errors.New("source is nil")
	}
	descs := src.StreamDescriptors()
	for _, name := range []string{input, label} {
		if _, ok := descs[name]; !ok {
			return nil, fmt.Errorf("source has no stream %q", name)
		}
	}
	if got := descs[input].SampleSize(); got != m.InputDim() {
		return nil, fmt.Errorf("input stream %q has %d values, model expects %d", input, got, m.InputDim())
	}

	losses := make([]float64, 0, m.Config.Epochs)
	for ep := range m.Config.Epochs {
		if ep > 0 {
			src.Reset()
		}
		var total float64
		steps := 0
		for src.HasNext() && (m.Config.StepsPerEpoch == 0 || steps < m.Config.StepsPerEpoch) {
			mb, err := src.Next(batchSize)
			if errors.Is(err, minibatch.ErrNoMoreMinibatches) {
				break
			}
			if err != nil {
				return losses, err
			}
			in, _ := mb.Stream(input)
			la, _ := mb.Stream(label)
			loss, err := m.TrainStep(in, la)
			if err != nil {
				return losses, err
			}
			total += loss
			steps++
		}
		if steps == 0 {
			return losses, errors.New("source produced no batches")
		}
		losses = append(losses, total/float64(steps))
		klog.V(1).Infof("simple: epoch %d: %d steps, mean loss %.6g", ep, steps, losses[ep])
	}
	return losses, nil
}
