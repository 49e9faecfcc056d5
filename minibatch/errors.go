package minibatch

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoMoreMinibatches is returned by Next once the source is exhausted.
	// It is never returned for a request larger than what remains; that
	// request gets a truncated batch instead.
	ErrNoMoreMinibatches = errors.New("there are no more minibatches (consider enabling repeat-infinitely)")

	// ErrInvalidStreamAlignment marks a chunk whose streams disagree on their
	// sample counts or sample sizes.
	ErrInvalidStreamAlignment = errors.New("invalid stream alignment")

	// ErrInvalidStream marks a malformed stream declaration.
	ErrInvalidStream = errors.New("invalid stream")

	// ErrInvalidBatchSize is returned for non-positive batch sizes.
	ErrInvalidBatchSize = errors.New("minibatch size must be positive")
)

// AlignmentError describes a chunk that breaks the chunk source contract.
// Nothing from the offending chunk is buffered.
type AlignmentError struct {
	ChunkID int
	Stream  string
	Reason  string
	// Got and Want are the mismatching sample counts or sizes. Both are zero
	// for a missing or undeclared stream.
	Got  int
	Want int
}

func (e *AlignmentError) Error() string {
	msg := fmt.Sprintf("chunk %d, stream %q: %s", e.ChunkID, e.Stream, e.Reason)
	if e.Got != e.Want {
		msg += fmt.Sprintf(" (got %d, want %d)", e.Got, e.Want)
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidStreamAlignment.
func (e *AlignmentError) Unwrap() error {
	return ErrInvalidStreamAlignment
}
