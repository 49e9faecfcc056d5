package datasets

import (
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/Noofbiz/batchfeed/minibatch"
)

func TestSQLite_RoundTrip(t *testing.T) {
	streams := []minibatch.StreamDescriptor{
		{Name: "features", ID: 3, ElementType: minibatch.Float64, SampleShape: []int{2, 1}},
		{Name: "labels", ID: 7, StorageFormat: minibatch.Sparse, SampleShape: []int{1}, IsSequence: true},
	}
	mem, err := NewMemorySource(streams, []minibatch.Chunk{
		{"features": {{1, 2}, {3, 4}}, "labels": {{0.5}, {-1}}},
		{"features": {}, "labels": {}},
		{"features": {{5, 6}}, "labels": {{2.25}}},
	})
	if err != nil {
		t.Fatalf("NewMemorySource error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "data.db")
	if err := CreateSQLite(path, mem); err != nil {
		t.Fatalf("CreateSQLite error: %v", err)
	}

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path = %q, want %q", db.Path(), path)
	}
	if db.NumChunks() != 3 {
		t.Errorf("expected 3 chunks, got %d", db.NumChunks())
	}
	if !reflect.DeepEqual(db.StreamDescriptors(), mem.StreamDescriptors()) {
		t.Errorf("descriptors = %+v, want %+v", db.StreamDescriptors(), mem.StreamDescriptors())
	}

	for id := range mem.NumChunks() {
		want, err := mem.Chunk(id)
		if err != nil {
			t.Fatalf("memory chunk %d error: %v", id, err)
		}
		got, err := db.Chunk(id)
		if err != nil {
			t.Fatalf("sqlite chunk %d error: %v", id, err)
		}
		for _, d := range streams {
			if len(got[d.Name]) != len(want[d.Name]) {
				t.Fatalf("chunk %d stream %s: %d samples, want %d", id, d.Name, len(got[d.Name]), len(want[d.Name]))
			}
			for i := range want[d.Name] {
				if !slices.Equal(got[d.Name][i], want[d.Name][i]) {
					t.Errorf("chunk %d stream %s sample %d = %v, want %v", id, d.Name, i, got[d.Name][i], want[d.Name][i])
				}
			}
		}
	}

	if _, err := db.Chunk(3); err == nil {
		t.Fatal("expected an error for chunk 3")
	}
}

func TestSQLite_RefusesToOverwrite(t *testing.T) {
	mem, err := NewMemorySourceFromSamples(
		[]minibatch.StreamDescriptor{{Name: "x", SampleShape: []int{1}}},
		map[string][]minibatch.Sample{"x": {{1}, {2}, {3}}},
		2,
	)
	if err != nil {
		t.Fatalf("NewMemorySourceFromSamples error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "data.db")
	if err := CreateSQLite(path, mem); err != nil {
		t.Fatalf("CreateSQLite error: %v", err)
	}
	if err := CreateSQLite(path, mem); err == nil {
		t.Fatal("expected the second CreateSQLite to fail")
	}

	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Fatal("expected an error opening a missing database")
	}
}

func TestSQLite_ServesMinibatches(t *testing.T) {
	samples := map[string][]minibatch.Sample{"x": {}, "y": {}}
	for i := range 10 {
		samples["x"] = append(samples["x"], minibatch.Sample{float32(i), float32(i)})
		samples["y"] = append(samples["y"], minibatch.Sample{float32(i)})
	}
	mem, err := NewMemorySourceFromSamples([]minibatch.StreamDescriptor{
		{Name: "x", ID: 0, SampleShape: []int{2}},
		{Name: "y", ID: 1, SampleShape: []int{1}},
	}, samples, 3)
	if err != nil {
		t.Fatalf("NewMemorySourceFromSamples error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "data.db")
	if err := CreateSQLite(path, mem); err != nil {
		t.Fatalf("CreateSQLite error: %v", err)
	}
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer db.Close()

	src, err := minibatch.New(db, minibatch.WithSeed(1))
	if err != nil {
		t.Fatalf("minibatch.New error: %v", err)
	}

	seen := map[float32]bool{}
	for src.HasNext() {
		mb, err := src.Next(4)
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		x, _ := mb.Stream("x")
		y, _ := mb.Stream("y")
		for i := range mb.NumSamples() {
			if x.Sample(i)[0] != y.Sample(i)[0] {
				t.Fatalf("x %v and y %v are out of step", x.Sample(i), y.Sample(i))
			}
			seen[y.Sample(i)[0]] = true
		}
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 distinct samples, got %d", len(seen))
	}
}
