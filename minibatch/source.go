package minibatch

import (
	"math/rand"
	"slices"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Source assembles fixed-size minibatches from a ChunkSource. It pulls whole
// chunks on demand, buffers them per stream and serves aligned batches until
// the chunk source is exhausted, or forever when repeating.
//
// A Source is not safe for concurrent use. Independent Sources share no state
// and may run on different goroutines.
type Source struct {
	src       ChunkSource
	streams   map[string]StreamDescriptor
	randomize bool
	repeat    bool
	rng       *rand.Rand

	buffer    *sampleBuffer
	scheduler *epochScheduler

	// starved is set when a full epoch of chunks produced no samples at all,
	// which would otherwise make a repeating source spin forever.
	starved bool
	// emptyRun counts consecutive loaded chunks that held no samples.
	emptyRun int
	// pendingErr is a load failure hit by HasNext, returned by the next Next.
	pendingErr error

	chunksLoaded  int
	samplesServed int
}

// Option configures a Source.
type Option func(*Source)

// WithRandomize sets whether chunk order is shuffled every epoch. Default true.
func WithRandomize(randomize bool) Option {
	return func(s *Source) {
		s.randomize = randomize
	}
}

// WithRepeatInfinitely makes the source start a new epoch instead of running
// out of chunks. Default false.
func WithRepeatInfinitely(repeat bool) Option {
	return func(s *Source) {
		s.repeat = repeat
	}
}

// WithSeed sets the random seed for reproducible chunk orders.
func WithSeed(seed int64) Option {
	return func(s *Source) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand sets the random number generator used for shuffling. The Source
// takes ownership of r.
func WithRand(r *rand.Rand) Option {
	return func(s *Source) {
		s.rng = r
	}
}

// New creates a Source over src. Stream descriptors and the chunk count are
// read from src once, here; src must outlive the Source.
func New(src ChunkSource, opts ...Option) (*Source, error) {
	if src == nil {
		return nil, errors.New("minibatch: nil chunk source")
	}

	s := &Source{
		src:       src,
		randomize: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	declared := src.StreamDescriptors()
	if err := validateStreams(declared); err != nil {
		return nil, err
	}
	s.streams = make(map[string]StreamDescriptor, len(declared))
	for name, d := range declared {
		s.streams[name] = d.clone()
	}

	numChunks := src.NumChunks()
	if numChunks < 0 {
		return nil, errors.Errorf("minibatch: chunk source reports %d chunks", numChunks)
	}

	s.buffer = newSampleBuffer(s.streams)
	s.scheduler = newEpochScheduler(numChunks, s.randomize, s.repeat, s.rng)
	klog.V(1).Infof("minibatch: source over %d streams, %d chunks (randomize=%t, repeat=%t)",
		len(s.streams), numChunks, s.randomize, s.repeat)
	return s, nil
}

// HasNext reports whether Next can return a batch. When nothing is buffered
// it loads chunks until one holds samples or the epoch order runs out, so a
// true result is never followed by ErrNoMoreMinibatches. A load failure met
// here is returned by the following Next.
func (s *Source) HasNext() bool {
	if s.pendingErr != nil || s.buffer.remaining() > 0 {
		return true
	}
	if s.starved || s.scheduler.exhausted() {
		return false
	}
	if err := s.fill(1); err != nil {
		s.pendingErr = err
		return true
	}
	return s.buffer.remaining() > 0
}

// Next returns the next batch of up to size samples per stream. When the
// chunk source runs out before size samples are available the batch is
// truncated to what remains; only a call made after everything was served
// fails, with ErrNoMoreMinibatches.
func (s *Source) Next(size int) (*Minibatch, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "requested %d samples", size)
	}
	if !s.HasNext() {
		return nil, ErrNoMoreMinibatches
	}
	if err := s.pendingErr; err != nil {
		s.pendingErr = nil
		return nil, err
	}

	if err := s.fill(size); err != nil {
		return nil, err
	}

	n := min(size, s.buffer.remaining())
	if n == 0 {
		return nil, ErrNoMoreMinibatches
	}

	samples := s.buffer.dequeue(n)
	mb := &Minibatch{
		Epoch:   s.scheduler.epoch(),
		Streams: make(map[string]*StreamData, len(s.streams)),
	}
	for name, d := range s.streams {
		mb.Streams[name] = packStream(d, samples[name])
	}
	s.samplesServed += n
	return mb, nil
}

// fill loads chunks until size samples are buffered or no chunk is left.
// A chunk whose load fails is still consumed from the current epoch.
func (s *Source) fill(size int) error {
	for s.buffer.remaining() < size && !s.starved {
		id, ok := s.scheduler.next()
		if !ok {
			return nil
		}
		chunk, err := s.src.Chunk(id)
		if err != nil {
			s.emptyRun = 0
			return errors.Wrapf(err, "minibatch: loading chunk %d", id)
		}
		if err := s.buffer.enqueueChunk(id, chunk); err != nil {
			s.emptyRun = 0
			return err
		}
		s.chunksLoaded++
		klog.V(2).Infof("minibatch: loaded chunk %d (epoch %d, %d samples, %d buffered)",
			id, s.scheduler.epoch(), chunk.Len(), s.buffer.remaining())

		if chunk.Len() > 0 {
			s.emptyRun = 0
			continue
		}
		s.emptyRun++
		// Epochs are contiguous runs of chunkCount loads, so 2*chunkCount-1
		// consecutive empty loads cover at least one whole epoch.
		if s.repeat && s.emptyRun >= 2*s.scheduler.chunkCount-1 {
			klog.Warningf("minibatch: a whole epoch of %d chunks held no samples, giving up", s.scheduler.chunkCount)
			s.starved = true
		}
	}
	return nil
}

// StreamDescriptors returns the streams captured at construction. The
// returned map is a copy.
func (s *Source) StreamDescriptors() map[string]StreamDescriptor {
	out := make(map[string]StreamDescriptor, len(s.streams))
	for name, d := range s.streams {
		out[name] = d.clone()
	}
	return out
}

// StreamNames returns the stream names in sorted order.
func (s *Source) StreamNames() []string {
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Epoch returns the index of the current epoch, starting at 0.
func (s *Source) Epoch() int {
	return s.scheduler.epoch()
}

// ChunkOrder returns the chunk visitation order of the current epoch.
func (s *Source) ChunkOrder() []int {
	return s.scheduler.order()
}

// Reset drops all buffered samples and restarts at epoch 0 with a new chunk
// order. It also revives an exhausted source.
func (s *Source) Reset() {
	s.buffer.reset()
	s.scheduler.reset()
	s.starved = false
	s.emptyRun = 0
	s.pendingErr = nil
}

// Stats is a snapshot of a Source's progress.
type Stats struct {
	Epoch         int
	ChunksLoaded  int
	SamplesServed int
	Buffered      int
}

// Stats returns counters accumulated since construction. Reset does not clear
// them.
func (s *Source) Stats() Stats {
	return Stats{
		Epoch:         s.scheduler.epoch(),
		ChunksLoaded:  s.chunksLoaded,
		SamplesServed: s.samplesServed,
		Buffered:      s.buffer.remaining(),
	}
}
