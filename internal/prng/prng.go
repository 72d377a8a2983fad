// Package prng provides a deterministic, seedable byte stream used by the
// scheduler's simplePortAssignment mode. It wraps golang.org/x/crypto/blake2b
// instead of math/rand so that two simulator runs built from the same seed
// produce bit-identical port assignments, independent of any process-global
// random state.
package prng

import "golang.org/x/crypto/blake2b"

// Stream is a deterministic pseudo-random byte source. It repeatedly
// rehashes its own 64-byte state with Blake2b-512, the same refill strategy
// the teacher's blake2Generator used to stream VM opcode entropy — here
// retargeted to stream port-choice bytes.
type Stream struct {
	data [64]byte
	pos  int
}

// New creates a Stream seeded deterministically from seed.
func New(seed []byte) *Stream {
	s := &Stream{pos: 64}
	h := blake2b.Sum512(seed)
	copy(s.data[:], h[:])
	return s
}

func (s *Stream) refill() {
	h := blake2b.Sum512(s.data[:])
	s.data = h
	s.pos = 0
}

// Byte returns the next pseudo-random byte.
func (s *Stream) Byte() byte {
	if s.pos >= len(s.data) {
		s.refill()
	}
	b := s.data[s.pos]
	s.pos++
	return b
}

// Intn returns a deterministic pseudo-random value in [0, n).
// n must be positive.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	// Rejection sampling against a byte-sized domain keeps the distribution
	// uniform for the small n (port-set sizes) this is ever called with.
	limit := 256 - (256 % n)
	for {
		b := int(s.Byte())
		if b < limit {
			return b % n
		}
	}
}
