package minibatch

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StorageFormat describes how a stream stores its samples on the producer side.
// The engine always packs batches densely; the format is carried as metadata.
type StorageFormat int

const (
	Dense StorageFormat = iota
	Sparse
)

func (f StorageFormat) String() string {
	switch f {
	case Dense:
		return "dense"
	case Sparse:
		return "sparse"
	}
	return fmt.Sprintf("StorageFormat(%d)", int(f))
}

// ParseStorageFormat parses "dense" or "sparse" (case-insensitive).
func ParseStorageFormat(s string) (StorageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dense":
		return Dense, nil
	case "sparse":
		return Sparse, nil
	}
	return Dense, errors.Wrapf(ErrInvalidStream, "unknown storage format %q", s)
}

// ElementType is the numeric type a stream's batches are packed into.
type ElementType int

const (
	Float32 ElementType = iota
	Float64
	Float16
)

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	}
	return fmt.Sprintf("ElementType(%d)", int(t))
}

// Size returns the number of bytes of one element.
func (t ElementType) Size() int {
	switch t {
	case Float64:
		return 8
	case Float16:
		return 2
	}
	return 4
}

// ParseElementType parses an element type name such as "float32".
// An empty string selects Float32.
func ParseElementType(s string) (ElementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float", "float32":
		return Float32, nil
	case "double", "float64":
		return Float64, nil
	case "half", "float16":
		return Float16, nil
	}
	return Float32, errors.Wrapf(ErrInvalidStream, "unknown element type %q", s)
}

// StreamDescriptor is the static metadata of one named data stream, e.g.
// "features" or "labels". Descriptors are values and are never mutated once a
// Source has captured them.
type StreamDescriptor struct {
	Name          string
	ID            uint32
	StorageFormat StorageFormat
	ElementType   ElementType
	// SampleShape holds the dimensions of a single sample. A sample vector has
	// SampleSize() elements.
	SampleShape []int
	IsSequence  bool
}

// SampleSize returns the number of elements of one sample.
func (d StreamDescriptor) SampleSize() int {
	size := 1
	for _, dim := range d.SampleShape {
		size *= dim
	}
	return size
}

// Equal reports whether both descriptors name the same stream.
func (d StreamDescriptor) Equal(other StreamDescriptor) bool {
	return d.Name == other.Name && d.ID == other.ID
}

// Validate checks the descriptor is usable for batching.
func (d StreamDescriptor) Validate() error {
	if d.Name == "" {
		return errors.Wrap(ErrInvalidStream, "stream name is empty")
	}
	if len(d.SampleShape) == 0 {
		return errors.Wrapf(ErrInvalidStream, "stream %q has no sample shape", d.Name)
	}
	for i, dim := range d.SampleShape {
		if dim <= 0 {
			return errors.Wrapf(ErrInvalidStream, "stream %q: dimension %d is %d, must be positive", d.Name, i, dim)
		}
	}
	return nil
}

func (d StreamDescriptor) clone() StreamDescriptor {
	d.SampleShape = append([]int(nil), d.SampleShape...)
	return d
}

// validateStreams checks a source's declared streams: keys match names, and
// names and ids are unique.
func validateStreams(streams map[string]StreamDescriptor) error {
	if len(streams) == 0 {
		return errors.Wrap(ErrInvalidStream, "chunk source declares no streams")
	}
	ids := make(map[uint32]string, len(streams))
	for key, d := range streams {
		if key != d.Name {
			return errors.Wrapf(ErrInvalidStream, "stream registered as %q is named %q", key, d.Name)
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if other, ok := ids[d.ID]; ok {
			return errors.Wrapf(ErrInvalidStream, "streams %q and %q share id %d", other, d.Name, d.ID)
		}
		ids[d.ID] = d.Name
	}
	return nil
}
