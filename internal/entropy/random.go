// Package entropy provides the injected random sources used by the simulation.
// Every stochastic decision draws from a Source handed in by the caller so that
// a dynasty replayed from the same seed produces the same history.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
)

// Source is the random stream consumed by lifecycle and succession rules.
// *math/rand.Rand satisfies it.
type Source interface {
	Float64() float64
	Intn(n int) int
	NormFloat64() float64
}

// Stream offsets keep independent concerns from sharing one sequence, so that
// adding a draw to one rule does not reshuffle every other rule.
const (
	StreamLifecycle  int64 = 100
	StreamSuccession int64 = 200
	StreamNames      int64 = 300
	StreamHardship   int64 = 400
)

// New returns a deterministic source for the given seed.
func New(seed int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed))
}

// Derive returns a deterministic source for one stream of a seed.
func Derive(seed, stream int64) *mrand.Rand {
	return New(seed + stream)
}

// NewSeed generates a seed from crypto/rand for callers that do not pin one.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1), nil
}

// Chance reports whether an event with probability p happens on this draw.
// p <= 0 never happens and p >= 1 always does; both still consume no draw
// so that certain outcomes do not shift the stream.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}
