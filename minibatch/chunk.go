package minibatch

// Sample is one record of one stream, flattened. Its length is the stream's
// SampleSize.
type Sample []float32

// Chunk is the unit of bulk retrieval from a ChunkSource: for every stream
// (keyed by name) the ordered samples of that chunk. All streams of a chunk
// hold the same number of samples, and sample i of every stream belongs to the
// same record.
type Chunk map[string][]Sample

// Len returns the sample count of the chunk, taken from any one stream.
func (c Chunk) Len() int {
	for _, samples := range c {
		return len(samples)
	}
	return 0
}

// ChunkSource supplies chunked, multi-stream data to a Source.
//
// StreamDescriptors and NumChunks must be stable for the lifetime of the
// source; they are read once when a Source is built. Chunk is called lazily,
// at most once per chunk per epoch, in the order chosen by the Source. A
// Source never retries a failing Chunk call.
//
// Implementations need not be safe for concurrent use unless several Sources
// share one ChunkSource from different goroutines.
type ChunkSource interface {
	StreamDescriptors() map[string]StreamDescriptor
	NumChunks() int
	Chunk(id int) (Chunk, error)
}
