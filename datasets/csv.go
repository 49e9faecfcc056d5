package datasets

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/batchfeed/minibatch"
)

// CSVStream binds a stream to the CSV columns its samples are read from, in
// order. The number of columns must equal the stream's sample size.
type CSVStream struct {
	Descriptor minibatch.StreamDescriptor
	Columns    []string
}

// CSVSource provides a minibatch.ChunkSource that lazily loads CSV files
// matching a glob pattern. Each file is split into chunks of RowsPerChunk
// rows; a chunk never spans two files, so the last chunk of a file may be
// shorter.
type CSVSource struct {
	// Pattern used to find CSV files (e.g., "assets/train/*.csv")
	Pattern string

	// RowsPerChunk is the number of rows loaded per chunk
	RowsPerChunk int

	// List of CSV file paths matching the pattern
	csvPaths []string

	streams     []CSVStream
	descriptors map[string]minibatch.StreamDescriptor

	// Row counts per file (excluding the header)
	rowCounts []int

	// chunkStarts[i] is the id of the first chunk of file i; the last entry
	// is the total number of chunks
	chunkStarts []int
}

// NewCSVSource creates a CSV chunk source. Only the header and row counts of
// the files are read here.
func NewCSVSource(pattern string, rowsPerChunk int, streams []CSVStream) (*CSVSource, error) {
	if rowsPerChunk <= 0 {
		return nil, fmt.Errorf("rows per chunk must be positive, got %d", rowsPerChunk)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("no streams configured for %s", pattern)
	}

	csvPaths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
	}
	if len(csvPaths) == 0 {
		return nil, fmt.Errorf("no CSV files found matching pattern: %s", pattern)
	}

	d := &CSVSource{
		Pattern:      pattern,
		RowsPerChunk: rowsPerChunk,
		csvPaths:     csvPaths,
		streams:      streams,
		descriptors:  make(map[string]minibatch.StreamDescriptor, len(streams)),
	}
	for _, s := range streams {
		if _, dup := d.descriptors[s.Descriptor.Name]; dup {
			return nil, fmt.Errorf("stream %q declared twice", s.Descriptor.Name)
		}
		if len(s.Columns) != s.Descriptor.SampleSize() {
			return nil, fmt.Errorf("stream %q maps %d columns onto samples of size %d",
				s.Descriptor.Name, len(s.Columns), s.Descriptor.SampleSize())
		}
		d.descriptors[s.Descriptor.Name] = s.Descriptor
	}

	// Read the first file to check the columns exist
	if err := d.initializeColumns(); err != nil {
		return nil, err
	}

	// Count rows in all files to build the chunk index
	if err := d.buildIndex(); err != nil {
		return nil, err
	}

	return d, nil
}

// initializeColumns reads the header of the first CSV and verifies every
// configured column is present.
func (d *CSVSource) initializeColumns() error {
	file, err := os.Open(d.csvPaths[0])
	if err != nil {
		return fmt.Errorf("failed to open first CSV %s: %w", d.csvPaths[0], err)
	}
	defer file.Close()

	colIndex, err := readHeader(csv.NewReader(file))
	if err != nil {
		return fmt.Errorf("%s: %w", d.csvPaths[0], err)
	}

	for _, s := range d.streams {
		for _, col := range s.Columns {
			if _, ok := colIndex[normalizeColumn(col)]; !ok {
				return fmt.Errorf("column %q of stream %q not found in CSV", col, s.Descriptor.Name)
			}
		}
	}
	return nil
}

// buildIndex counts rows in all files and assigns chunk ids to file windows.
func (d *CSVSource) buildIndex() error {
	d.rowCounts = make([]int, len(d.csvPaths))
	d.chunkStarts = make([]int, len(d.csvPaths)+1)

	for i, path := range d.csvPaths {
		count, err := countCSVRows(path)
		if err != nil {
			return fmt.Errorf("failed to count rows in %s: %w", path, err)
		}
		d.rowCounts[i] = count
		chunks := (count + d.RowsPerChunk - 1) / d.RowsPerChunk
		d.chunkStarts[i+1] = d.chunkStarts[i] + chunks
	}
	return nil
}

func (d *CSVSource) StreamDescriptors() map[string]minibatch.StreamDescriptor {
	return d.descriptors
}

// NumChunks returns the total number of chunks across all CSV files.
func (d *CSVSource) NumChunks() int {
	return d.chunkStarts[len(d.csvPaths)]
}

// NumRows returns the total number of data rows across all CSV files.
func (d *CSVSource) NumRows() int {
	total := 0
	for _, n := range d.rowCounts {
		total += n
	}
	return total
}

// mapChunk maps a chunk id to (file index, first row within file)
func (d *CSVSource) mapChunk(id int) (fileIdx, firstRow int) {
	for i := range len(d.csvPaths) {
		if id < d.chunkStarts[i+1] {
			return i, (id - d.chunkStarts[i]) * d.RowsPerChunk
		}
	}
	// Should never reach here if id is valid
	last := len(d.csvPaths) - 1
	return last, (d.chunkStarts[last+1] - d.chunkStarts[last] - 1) * d.RowsPerChunk
}

// Chunk reads the rows of chunk id and splits them into streams.
func (d *CSVSource) Chunk(id int) (minibatch.Chunk, error) {
	if id < 0 || id >= d.NumChunks() {
		return nil, fmt.Errorf("chunk %d out of range [0, %d)", id, d.NumChunks())
	}

	fileIdx, first := d.mapChunk(id)
	last := min(first+d.RowsPerChunk, d.rowCounts[fileIdx])
	path := d.csvPaths[fileIdx]

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	// Files may order their columns differently; resolve per file
	colIndex, err := readHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cols := make([][]int, len(d.streams))
	for i, s := range d.streams {
		cols[i] = make([]int, len(s.Columns))
		for j, col := range s.Columns {
			idx, ok := colIndex[normalizeColumn(col)]
			if !ok {
				return nil, fmt.Errorf("%s: column %q of stream %q not found", path, col, s.Descriptor.Name)
			}
			cols[i][j] = idx
		}
	}

	// Skip to the first row of the chunk
	for row := range first {
		if _, err := reader.Read(); err != nil {
			return nil, fmt.Errorf("%s: failed to skip to row %d: %w", path, row, err)
		}
	}

	chunk := make(minibatch.Chunk, len(d.streams))
	for _, s := range d.streams {
		chunk[s.Descriptor.Name] = make([]minibatch.Sample, 0, last-first)
	}

	for row := first; row < last; row++ {
		record, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read row %d: %w", path, row, err)
		}
		for i, s := range d.streams {
			sample := make(minibatch.Sample, len(cols[i]))
			for j, idx := range cols[i] {
				if idx >= len(record) {
					return nil, fmt.Errorf("%s: row %d has no column %q", path, row, s.Columns[j])
				}
				val, err := parseFloat32(record[idx])
				if err != nil {
					return nil, fmt.Errorf("%s: row %d: failed to parse %s: %w", path, row, s.Columns[j], err)
				}
				sample[j] = val
			}
			name := s.Descriptor.Name
			chunk[name] = append(chunk[name], sample)
		}
	}

	return chunk, nil
}

func normalizeColumn(col string) string {
	return strings.TrimSpace(strings.ToLower(col))
}
