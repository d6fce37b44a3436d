// Package gameid generates round identifiers: UUIDv7 values rendered as
// 26-character Crockford base32 strings, so they sort by creation time.
package gameid

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/coder/quartz"
)

// Crockford's base32 alphabet, lowercase
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of an encoded identifier
const Length = 26

// Generator creates identifiers from a clock and an entropy source
type Generator struct {
	mu      sync.Mutex
	clock   quartz.Clock
	entropy io.Reader
}

// NewGenerator creates a generator. A nil clock means the real clock and a
// nil entropy source means crypto/rand.
func NewGenerator(clock quartz.Clock, entropy io.Reader) *Generator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{clock: clock, entropy: entropy}
}

var defaultGenerator = NewGenerator(nil, nil)

// Generate creates an identifier with the default generator
func Generate() string {
	id, err := defaultGenerator.Generate()
	if err != nil {
		panic("gameid: " + err.Error())
	}
	return id
}

// Generate creates a new identifier
func (g *Generator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var uuid [16]byte

	// 48-bit millisecond timestamp, then 80 random bits with the version
	// and variant fields overwritten
	now := g.clock.Now().UnixMilli()
	for i := range 6 {
		uuid[i] = byte(now >> (40 - 8*i))
	}
	if _, err := io.ReadFull(g.entropy, uuid[6:]); err != nil {
		return "", fmt.Errorf("failed to read entropy: %w", err)
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return encodeBase32(uuid), nil
}

// encodeBase32 encodes 128 bits as 26 characters, two zero bits of padding
// leading
func encodeBase32(data [16]byte) string {
	var out [Length]byte

	// Walk the 130-bit value in 5-bit groups from the least significant end
	var acc uint32
	var bits uint
	pos := Length - 1
	for i := len(data) - 1; i >= 0; i-- {
		acc |= uint32(data[i]) << bits
		bits += 8
		for bits >= 5 {
			out[pos] = alphabet[acc&0x1f]
			pos--
			acc >>= 5
			bits -= 5
		}
	}
	out[pos] = alphabet[acc&0x1f]
	return string(out[:])
}

// Validate checks that id is a well formed identifier
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("round ID must be exactly %d characters, got %d", Length, len(id))
	}
	// 26 characters hold 130 bits; the top two must be zero
	if id[0] > '7' {
		return fmt.Errorf("round ID first character must be 0-7, got %c", id[0])
	}
	for i, char := range id {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}
