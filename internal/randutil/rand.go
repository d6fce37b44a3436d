// Package randutil derives random number generators and 256-bit words for the
// local randomness oracle.
package randutil

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	rand "math/rand/v2"
	"sync"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15

	// WordBytes is the width of a random word
	WordBytes = 32
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// Both PCG seeds are mixed from the one value so nearby seeds diverge.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// WordSource produces unsigned 256-bit words
type WordSource interface {
	Word() (*big.Int, error)
}

// SeededWords is a reproducible WordSource. It is safe for concurrent use.
type SeededWords struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededWords creates a WordSource whose sequence depends only on seed
func NewSeededWords(seed int64) *SeededWords {
	return &SeededWords{rng: New(seed)}
}

// Word returns the next word of the sequence
func (s *SeededWords) Word() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf [WordBytes]byte
	for i := 0; i < WordBytes; i += 8 {
		binary.BigEndian.PutUint64(buf[i:], s.rng.Uint64())
	}
	return new(big.Int).SetBytes(buf[:]), nil
}

// CryptoWords reads words from crypto/rand
type CryptoWords struct{}

// Word returns a uniformly random word
func (CryptoWords) Word() (*big.Int, error) {
	var buf [WordBytes]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("failed to read random word: %w", err)
	}
	return new(big.Int).SetBytes(buf[:]), nil
}
