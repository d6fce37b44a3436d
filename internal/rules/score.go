// Package rules implements blackjack scoring and the house dealer policy.
package rules

import (
	"strings"

	"github.com/lox/vrfjack/internal/deck"
)

// Blackjack is the best valid score a hand can hold
const Blackjack = 21

// softBonus is what an Ace adds when counted as 11 instead of 1
const softBonus = 10

// Hand is an ordered set of cards held by the player or the dealer
type Hand []deck.Card

// String returns the cards separated by spaces, e.g. "As Td"
func (h Hand) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Clone returns a copy that does not share backing storage with h
func (h Hand) Clone() Hand {
	if h == nil {
		return nil
	}
	out := make(Hand, len(h))
	copy(out, h)
	return out
}

// CardPoints returns the hard value of a card: Ace 1, Two to Ten their face
// value, Jack, Queen and King 10.
func CardPoints(c deck.Card) int {
	switch {
	case c.Rank == deck.Ace:
		return 1
	case c.Rank >= deck.Ten:
		return 10
	default:
		return int(c.Rank) + 1
	}
}

// Score returns the hard score of a hand with every Ace counted as 1
func Score(h Hand) int {
	total := 0
	for _, c := range h {
		total += CardPoints(c)
	}
	return total
}

// RemoveFirstAce returns the hand without its first Ace. The input is never
// modified; when the hand holds no Ace it is returned as is with false.
func RemoveFirstAce(h Hand) (bool, Hand) {
	for i, c := range h {
		if c.IsAce() {
			out := make(Hand, 0, len(h)-1)
			out = append(out, h[:i]...)
			out = append(out, h[i+1:]...)
			return true, out
		}
	}
	return false, h
}

// HighestValidScore returns the hand score with at most one Ace promoted to 11,
// and only when doing so keeps the total at or below 21.
func HighestValidScore(h Hand) int {
	base := Score(h)
	hasAce, _ := RemoveFirstAce(h)
	if hasAce && base+softBonus <= Blackjack {
		return base + softBonus
	}
	return base
}

// IsSoft reports whether the highest valid score counts an Ace as 11
func IsSoft(h Hand) bool {
	return HighestValidScore(h) != Score(h)
}

// IsBust reports whether the hand is above 21 even with all Aces low
func IsBust(h Hand) bool {
	return HighestValidScore(h) > Blackjack
}

// IsPair reports whether the hand is exactly two cards of the same rank
func IsPair(h Hand) bool {
	return len(h) == 2 && h[0].Rank == h[1].Rank
}
