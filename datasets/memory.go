package datasets

import (
	"fmt"

	"github.com/Noofbiz/batchfeed/minibatch"
)

// MemorySource is a ChunkSource over chunks held in memory.
type MemorySource struct {
	streams map[string]minibatch.StreamDescriptor
	chunks  []minibatch.Chunk
}

// NewMemorySource creates a source serving chunks in the given order.
func NewMemorySource(streams []minibatch.StreamDescriptor, chunks []minibatch.Chunk) (*MemorySource, error) {
	m := descriptorMap(streams)
	if len(m) != len(streams) {
		return nil, fmt.Errorf("duplicate stream names in %d streams", len(streams))
	}
	return &MemorySource{streams: m, chunks: chunks}, nil
}

// NewMemorySourceFromSamples cuts aligned per-stream sample lists into chunks
// of chunkSize records (the last chunk may be shorter).
func NewMemorySourceFromSamples(streams []minibatch.StreamDescriptor, samples map[string][]minibatch.Sample, chunkSize int) (*MemorySource, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	total := -1
	for _, d := range streams {
		n := len(samples[d.Name])
		if total >= 0 && n != total {
			return nil, fmt.Errorf("stream %q has %d samples, expected %d", d.Name, n, total)
		}
		total = n
	}

	var chunks []minibatch.Chunk
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		c := make(minibatch.Chunk, len(streams))
		for _, d := range streams {
			c[d.Name] = samples[d.Name][start:end:end]
		}
		chunks = append(chunks, c)
	}
	return NewMemorySource(streams, chunks)
}

func (m *MemorySource) StreamDescriptors() map[string]minibatch.StreamDescriptor {
	return m.streams
}

func (m *MemorySource) NumChunks() int {
	return len(m.chunks)
}

// Chunk returns chunk id. The samples are shared with the source and must not
// be modified.
func (m *MemorySource) Chunk(id int) (minibatch.Chunk, error) {
	if id < 0 || id >= len(m.chunks) {
		return nil, fmt.Errorf("chunk %d out of range [0, %d)", id, len(m.chunks))
	}
	return m.chunks[id], nil
}
