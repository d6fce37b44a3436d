package deck

import (
	"encoding/binary"
	"errors"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// Size is the number of cards in a full deck
const Size = NumRanks * NumSuits

var (
	// ErrEmptyDeck is returned when drawing from or shuffling a deck with no cards
	ErrEmptyDeck = errors.New("deck: empty deck")

	// ErrInvalidSeed is returned for nil, negative or wider than 256-bit seeds
	ErrInvalidSeed = errors.New("deck: seed must be an unsigned 256-bit integer")
)

// Deck is an ordered stack of cards. Cards are drawn from the end.
type Deck struct {
	cards []Card
}

// New creates a full deck in canonical order: rank-major ascending, suit-minor.
// The first card is the Ace of clubs and the last card is the King of spades.
func New() *Deck {
	d := &Deck{cards: make([]Card, 0, Size)}
	d.Reset()
	return d
}

// NewFromCards creates a deck holding exactly the given cards, in order.
// The last card in the slice is the next one drawn.
func NewFromCards(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// Reset restores the deck to the full canonical 52-card order
func (d *Deck) Reset() {
	d.cards = d.cards[:0]
	for rank := Ace; rank <= King; rank++ {
		for suit := Club; suit <= Spade; suit++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
}

// Shuffle permutes the deck in place with a Fisher-Yates pass driven by seed.
// The swap index for position i is keccak256(seed || i) mod (i+1), both
// encoded as 32-byte big-endian words, so every position gets its own
// derived value and the same seed always produces the same order.
func (d *Deck) Shuffle(seed *big.Int) error {
	if len(d.cards) == 0 {
		return ErrEmptyDeck
	}
	if seed == nil || seed.Sign() < 0 || seed.BitLen() > 256 {
		return ErrInvalidSeed
	}

	var buf [64]byte
	seed.FillBytes(buf[:32])

	h := sha3.NewLegacyKeccak256()
	digest := make([]byte, 0, 32)
	n := new(big.Int)
	mod := new(big.Int)

	for i := len(d.cards) - 1; i > 0; i-- {
		clear(buf[32:])
		binary.BigEndian.PutUint64(buf[56:], uint64(i))

		h.Reset()
		h.Write(buf[:])
		digest = h.Sum(digest[:0])

		n.SetBytes(digest)
		j := int(mod.Mod(n, big.NewInt(int64(i+1))).Int64())
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return nil
}

// Draw removes and returns the last card of the deck
func (d *Deck) Draw() (Card, error) {
	if d == nil || len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}

	last := len(d.cards) - 1
	card := d.cards[last]
	d.cards = d.cards[:last]
	return card, nil
}

// Peek returns the next card to be drawn without removing it
func (d *Deck) Peek() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	return d.cards[len(d.cards)-1], true
}

// Len returns the number of cards left in the deck
func (d *Deck) Len() int {
	if d == nil {
		return 0
	}
	return len(d.cards)
}

// IsEmpty returns true if the deck has no cards left
func (d *Deck) IsEmpty() bool {
	return d.Len() == 0
}

// Cards returns a copy of the remaining cards, bottom first
func (d *Deck) Cards() []Card {
	if d == nil {
		return nil
	}
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
