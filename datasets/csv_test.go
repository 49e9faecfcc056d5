package datasets

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Noofbiz/batchfeed/minibatch"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

func xyStreams() []CSVStream {
	return []CSVStream{
		{
			Descriptor: minibatch.StreamDescriptor{Name: "features", ID: 0, SampleShape: []int{2}},
			Columns:    []string{"x", "y"},
		},
		{
			Descriptor: minibatch.StreamDescriptor{Name: "labels", ID: 1, SampleShape: []int{1}},
			Columns:    []string{"Label"},
		},
	}
}

// writeXYFiles writes two files: p1 with rows 0..4 and p2 (columns reordered)
// with rows 5..7. Row r has x=r, y=10r, label=100r.
func writeXYFiles(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	writeCSV(t, filepath.Join(tmp, "p1.csv"), "x,y,label", []string{
		"0,0,0",
		"1,10,100",
		"2,20,200",
		"3,30,300",
		"4,40,400",
	})
	writeCSV(t, filepath.Join(tmp, "p2.csv"), "label,y,x", []string{
		"500,50,5",
		"600,60,6",
		"700,70,7",
	})
	return filepath.Join(tmp, "*.csv")
}

func TestCSVSource_ChunkLayout(t *testing.T) {
	ds, err := NewCSVSource(writeXYFiles(t), 2, xyStreams())
	if err != nil {
		t.Fatalf("NewCSVSource error: %v", err)
	}

	// p1: [0,1] [2,3] [4]   p2: [5,6] [7]
	if ds.NumChunks() != 5 || ds.NumRows() != 8 {
		t.Fatalf("expected 5 chunks of 8 rows, got %d chunks of %d rows", ds.NumChunks(), ds.NumRows())
	}

	wantRows := [][]int{{0, 1}, {2, 3}, {4}, {5, 6}, {7}}
	for id, rows := range wantRows {
		chunk, err := ds.Chunk(id)
		if err != nil {
			t.Fatalf("chunk %d error: %v", id, err)
		}
		if chunk.Len() != len(rows) {
			t.Fatalf("chunk %d holds %d rows, want %d", id, chunk.Len(), len(rows))
		}
		for i, r := range rows {
			if got, want := chunk["features"][i], (minibatch.Sample{float32(r), float32(10 * r)}); !slices.Equal(got, want) {
				t.Errorf("chunk %d features[%d] = %v, want %v", id, i, got, want)
			}
			if got, want := chunk["labels"][i], (minibatch.Sample{float32(100 * r)}); !slices.Equal(got, want) {
				t.Errorf("chunk %d labels[%d] = %v, want %v", id, i, got, want)
			}
		}
	}

	for _, id := range []int{5, -1} {
		if _, err := ds.Chunk(id); err == nil {
			t.Errorf("expected an error for chunk %d", id)
		}
	}
}

func TestCSVSource_FeedsMinibatchSource(t *testing.T) {
	ds, err := NewCSVSource(writeXYFiles(t), 3, xyStreams())
	if err != nil {
		t.Fatalf("NewCSVSource error: %v", err)
	}
	src, err := minibatch.New(ds, minibatch.WithRandomize(false))
	if err != nil {
		t.Fatalf("minibatch.New error: %v", err)
	}

	var xs []float32
	for src.HasNext() {
		mb, err := src.Next(3)
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		features, _ := mb.Stream("features")
		labels, _ := mb.Stream("labels")
		for i := range mb.NumSamples() {
			if x, l := features.Sample(i)[0], labels.Sample(i)[0]; l != 100*x {
				t.Fatalf("label %v does not belong to x %v", l, x)
			}
			xs = append(xs, features.Sample(i)[0])
		}
	}
	if want := []float32{0, 1, 2, 3, 4, 5, 6, 7}; !slices.Equal(xs, want) {
		t.Fatalf("xs = %v, want %v", xs, want)
	}
}

func TestCSVSource_Errors(t *testing.T) {
	tmp := t.TempDir()
	writeCSV(t, filepath.Join(tmp, "a.csv"), "x,y", []string{"1,2", "3,oops"})
	pattern := filepath.Join(tmp, "*.csv")

	t.Run("missing column", func(t *testing.T) {
		_, err := NewCSVSource(pattern, 2, xyStreams())
		if err == nil || !strings.Contains(err.Error(), "label") {
			t.Fatalf("expected an error naming the label column, got %v", err)
		}
	})

	t.Run("column count does not match shape", func(t *testing.T) {
		streams := []CSVStream{{
			Descriptor: minibatch.StreamDescriptor{Name: "features", SampleShape: []int{3}},
			Columns:    []string{"x", "y"},
		}}
		if _, err := NewCSVSource(pattern, 2, streams); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("no files", func(t *testing.T) {
		if _, err := NewCSVSource(filepath.Join(tmp, "*.tsv"), 2, xyStreams()); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("bad rows per chunk", func(t *testing.T) {
		if _, err := NewCSVSource(pattern, 0, xyStreams()); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("unparsable value", func(t *testing.T) {
		streams := []CSVStream{{
			Descriptor: minibatch.StreamDescriptor{Name: "features", SampleShape: []int{2}},
			Columns:    []string{"x", "y"},
		}}
		ds, err := NewCSVSource(pattern, 1, streams)
		if err != nil {
			t.Fatalf("NewCSVSource error: %v", err)
		}

		if _, err := ds.Chunk(0); err != nil {
			t.Fatalf("chunk 0 error: %v", err)
		}
		if _, err := ds.Chunk(1); err == nil || !strings.Contains(err.Error(), "row 1") {
			t.Fatalf("expected an error naming row 1, got %v", err)
		}
	})
}
