package server

import (
	"hash/fnv"
	"math/rand"
)

// DeterministicSeedValue hashes a root seed and a stream label into a
// non-zero source seed. Identical inputs always yield the same value, so
// stochastic jobs replay exactly when rerun with the same seed.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministicRNG builds a rand stream for the seed and label pair.
func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	seedValue := DeterministicSeedValue(rootSeed, label)
	return rand.New(rand.NewSource(seedValue))
}
