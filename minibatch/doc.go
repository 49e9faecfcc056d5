// Package minibatch assembles fixed-size minibatches for supervised training
// loops out of chunked, multi-stream data.
//
// A ChunkSource provides the data in chunks, each holding the same number of
// samples for every stream ("features", "labels", ...). A Source loads chunks
// lazily in a per-epoch order (shuffled unless WithRandomize(false)), buffers
// them per stream and serves aligned batches:
//
//	src, err := minibatch.New(chunks, minibatch.WithSeed(42))
//	for src.HasNext() {
//		mb, err := src.Next(32)
//		...
//		features := mb.Streams["features"].Tensor()
//	}
//
// Sample i of every stream in a batch always comes from the same record. When
// the chunk source runs out the last batch is truncated; the call after it
// returns ErrNoMoreMinibatches. With WithRepeatInfinitely(true) a new epoch
// starts instead and the source never runs out.
package minibatch
