// Package datasets provides minibatch.ChunkSource implementations.
//
// Every source here presents a dataset as a fixed number of chunks. Chunks are
// read lazily: a source only keeps its layout (file paths, row counts, stream
// declarations) in memory and loads the samples of a chunk when the minibatch
// engine asks for it.
//
//   - MemorySource serves chunks that are already in memory. It is mostly used
//     for tests and small fixtures.
//   - CSVSource reads CSV files matching a glob pattern. Each file is cut into
//     chunks of RowsPerChunk rows, and each stream takes its sample values from
//     a list of named columns.
//   - SQLiteSource reads a single-file SQLite store written by CreateSQLite,
//     which can snapshot any other ChunkSource.
package datasets

import "github.com/Noofbiz/batchfeed/minibatch"

var (
	_ minibatch.ChunkSource = (*MemorySource)(nil)
	_ minibatch.ChunkSource = (*CSVSource)(nil)
	_ minibatch.ChunkSource = (*SQLiteSource)(nil)
)

func descriptorMap(streams []minibatch.StreamDescriptor) map[string]minibatch.StreamDescriptor {
	out := make(map[string]minibatch.StreamDescriptor, len(streams))
	for _, d := range streams {
		out[d.Name] = d
	}
	return out
}
