package minibatch

// sampleBuffer holds the samples of loaded chunks that have not been served
// yet, one FIFO queue per stream. Between operations every queue has the same
// length, so a single count describes the buffer.
type sampleBuffer struct {
	streams map[string]StreamDescriptor
	queues  map[string][]Sample
	// head is the index of the first unserved sample in every queue.
	head  int
	count int
}

func newSampleBuffer(streams map[string]StreamDescriptor) *sampleBuffer {
	b := &sampleBuffer{streams: streams}
	b.reset()
	return b
}

// reset drops every buffered sample.
func (b *sampleBuffer) reset() {
	b.queues = make(map[string][]Sample, len(b.streams))
	for name := range b.streams {
		b.queues[name] = nil
	}
	b.head = 0
	b.count = 0
}

func (b *sampleBuffer) remaining() int {
	return b.count
}

// checkChunk verifies a chunk against the declared streams before anything
// from it is buffered.
func (b *sampleBuffer) checkChunk(id int, chunk Chunk) error {
	want := -1
	var first string
	for name, d := range b.streams {
		samples, ok := chunk[name]
		if !ok {
			return &AlignmentError{ChunkID: id, Stream: name, Reason: "stream missing from chunk"}
		}
		if want < 0 {
			want, first = len(samples), name
		} else if len(samples) != want {
			return &AlignmentError{
				ChunkID: id,
				Stream:  name,
				Reason:  "sample count differs from stream " + first,
				Got:     len(samples),
				Want:    want,
			}
		}
		size := d.SampleSize()
		for _, s := range samples {
			if len(s) != size {
				return &AlignmentError{ChunkID: id, Stream: name, Reason: "sample size mismatch", Got: len(s), Want: size}
			}
		}
	}
	for name := range chunk {
		if _, ok := b.streams[name]; !ok {
			return &AlignmentError{ChunkID: id, Stream: name, Reason: "undeclared stream in chunk"}
		}
	}
	return nil
}

// enqueueChunk appends every stream of the chunk to its queue, keeping the
// chunk-internal order.
func (b *sampleBuffer) enqueueChunk(id int, chunk Chunk) error {
	if err := b.checkChunk(id, chunk); err != nil {
		return err
	}
	n := 0
	for name, samples := range chunk {
		b.queues[name] = append(b.queues[name], samples...)
		n = len(samples)
	}
	b.count += n
	return nil
}

// dequeue removes the first n samples of every stream. n must not exceed
// remaining().
func (b *sampleBuffer) dequeue(n int) map[string][]Sample {
	if n > b.count {
		panic("minibatch: dequeue past the end of the sample buffer")
	}
	out := make(map[string][]Sample, len(b.queues))
	for name, q := range b.queues {
		out[name] = q[b.head : b.head+n : b.head+n]
	}
	b.head += n
	b.count -= n
	b.compact()
	return out
}

// compact releases the served prefix once it dominates the queues. The slices
// handed out by dequeue keep their own backing arrays alive.
func (b *sampleBuffer) compact() {
	if b.count == 0 {
		for name := range b.queues {
			b.queues[name] = nil
		}
		b.head = 0
		return
	}
	if b.head < b.count {
		return
	}
	for name, q := range b.queues {
		fresh := make([]Sample, b.count, 2*b.count)
		copy(fresh, q[b.head:])
		b.queues[name] = fresh
	}
	b.head = 0
}
