package minibatch

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/x448/float16"
)

// StreamData is one stream's share of a minibatch, stored in a flat contiguous
// buffer: sample i occupies Flat[i*SampleSize : (i+1)*SampleSize].
type StreamData struct {
	Stream     StreamDescriptor
	NumSamples int
	Flat       []float32
}

func packStream(d StreamDescriptor, samples []Sample) *StreamData {
	size := d.SampleSize()
	flat := make([]float32, len(samples)*size)
	for i, s := range samples {
		copy(flat[i*size:], s)
	}
	return &StreamData{Stream: d, NumSamples: len(samples), Flat: flat}
}

// Sample returns sample i of the batch. The slice aliases Flat.
func (s *StreamData) Sample(i int) []float32 {
	size := s.Stream.SampleSize()
	return s.Flat[i*size : (i+1)*size]
}

// Dimensions returns the batch shape: the sample count followed by the
// stream's sample shape.
func (s *StreamData) Dimensions() []int {
	return append([]int{s.NumSamples}, s.Stream.SampleShape...)
}

// Tensor converts the batch into a gomlx tensor shaped by Dimensions, in the
// stream's element type.
func (s *StreamData) Tensor() *tensors.Tensor {
	dims := s.Dimensions()
	switch s.Stream.ElementType {
	case Float64:
		data := make([]float64, len(s.Flat))
		for i, v := range s.Flat {
			data[i] = float64(v)
		}
		return tensors.FromFlatDataAndDimensions(data, dims...)
	case Float16:
		data := make([]float16.Float16, len(s.Flat))
		for i, v := range s.Flat {
			data[i] = float16.Fromfloat32(v)
		}
		return tensors.FromFlatDataAndDimensions(data, dims...)
	default:
		return tensors.FromFlatDataAndDimensions(s.Flat, dims...)
	}
}

// Minibatch is a set of aligned samples across all streams of a source. It is
// built fresh by every Next call and owned by the caller.
type Minibatch struct {
	// Epoch is the epoch of the last chunk loaded to fill this batch.
	Epoch   int
	Streams map[string]*StreamData
}

// Stream returns the data of the named stream.
func (m *Minibatch) Stream(name string) (*StreamData, bool) {
	s, ok := m.Streams[name]
	return s, ok
}

// NumSamples returns the number of samples in the batch, which is the same for
// every stream.
func (m *Minibatch) NumSamples() int {
	for _, s := range m.Streams {
		return s.NumSamples
	}
	return 0
}

// Tensors converts every stream of the batch into a gomlx tensor.
func (m *Minibatch) Tensors() map[string]*tensors.Tensor {
	out := make(map[string]*tensors.Tensor, len(m.Streams))
	for name, s := range m.Streams {
		out[name] = s.Tensor()
	}
	return out
}
