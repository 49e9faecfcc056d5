package minibatch

import (
	"math/rand"

	"k8s.io/klog/v2"
)

// epochScheduler hands out chunk ids in per-epoch order. The order of an epoch
// is replaced wholesale at each epoch boundary, never edited in place.
type epochScheduler struct {
	chunkCount int
	randomize  bool
	repeat     bool
	rng        *rand.Rand

	permutation []int
	cursor      int
	epochIdx    int
}

func newEpochScheduler(chunkCount int, randomize, repeat bool, rng *rand.Rand) *epochScheduler {
	s := &epochScheduler{
		chunkCount: chunkCount,
		randomize:  randomize,
		repeat:     repeat,
		rng:        rng,
	}
	s.reset()
	return s
}

// reset starts over at epoch 0 with a fresh order.
func (s *epochScheduler) reset() {
	s.permutation = s.newPermutation()
	s.cursor = 0
	s.epochIdx = 0
}

// newPermutation returns [0, chunkCount) in identity order, or uniformly
// shuffled (Fisher-Yates) when randomizing.
func (s *epochScheduler) newPermutation() []int {
	perm := make([]int, s.chunkCount)
	for i := range perm {
		perm[i] = i
	}
	if s.randomize {
		s.rng.Shuffle(len(perm), func(i, j int) {
			perm[i], perm[j] = perm[j], perm[i]
		})
	}
	return perm
}

// exhausted reports whether no chunk will ever be handed out again.
func (s *epochScheduler) exhausted() bool {
	if s.chunkCount == 0 {
		return true
	}
	return !s.repeat && s.cursor >= s.chunkCount
}

// next returns the next chunk id, starting a new epoch first when the current
// one is finished and repeating is enabled. ok is false once exhausted.
func (s *epochScheduler) next() (id int, ok bool) {
	if s.exhausted() {
		return 0, false
	}
	if s.cursor >= s.chunkCount {
		s.permutation = s.newPermutation()
		s.cursor = 0
		s.epochIdx++
		klog.V(1).Infof("minibatch: starting epoch %d over %d chunks", s.epochIdx, s.chunkCount)
	}
	id = s.permutation[s.cursor]
	s.cursor++
	return id, true
}

func (s *epochScheduler) epoch() int {
	return s.epochIdx
}

// order returns a copy of the current epoch's chunk order.
func (s *epochScheduler) order() []int {
	return append([]int(nil), s.permutation...)
}
