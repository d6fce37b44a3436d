package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit. The numeric order is part of the canonical deck
// layout and must not change.
type Suit uint8

const (
	Club Suit = iota
	Diamond
	Heart
	Spade
)

// NumSuits is the number of suits in a standard deck
const NumSuits = 4

// String returns the single-letter representation of a suit
func (s Suit) String() string {
	switch s {
	case Club:
		return "c"
	case Diamond:
		return "d"
	case Heart:
		return "h"
	case Spade:
		return "s"
	default:
		return "?"
	}
}

// Symbol returns the unicode glyph for a suit
func (s Suit) Symbol() string {
	switch s {
	case Club:
		return "♣"
	case Diamond:
		return "♦"
	case Heart:
		return "♥"
	case Spade:
		return "♠"
	default:
		return "?"
	}
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Heart || s == Diamond
}

// Rank represents a card rank. Ace is the lowest rank (0) and King the highest (12).
type Rank uint8

const (
	Ace Rank = iota
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
)

// NumRanks is the number of ranks in a standard deck
const NumRanks = 13

const rankChars = "A23456789TJQK"

// String returns the single-character representation of a rank
func (r Rank) String() string {
	if r > King {
		return "?"
	}
	return string(rankChars[r])
}

// Card is an immutable playing card value
type Card struct {
	Rank Rank
	Suit Suit
}

// NewCard creates a new card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// String returns the compact representation of a card (e.g. "As", "Td")
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// MarshalText encodes the card in its compact form
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid card rank=%d suit=%d", c.Rank, c.Suit)
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses the compact form written by MarshalText
func (c *Card) UnmarshalText(text []byte) error {
	card, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = card
	return nil
}

// IsAce returns true if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// IsFaceCard returns true if the card is a face card (J, Q, K)
func (c Card) IsFaceCard() bool {
	return c.Rank >= Jack && c.Rank <= King
}

// Valid reports whether rank and suit are both in range
func (c Card) Valid() bool {
	return c.Rank <= King && c.Suit <= Spade
}

// ParseCard parses a two character card such as "Ah" or "td"
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q: expected two characters", s)
	}

	idx := strings.IndexByte(rankChars, strings.ToUpper(s[:1])[0])
	if idx < 0 {
		return Card{}, fmt.Errorf("invalid rank %q in card %q", s[:1], s)
	}

	var suit Suit
	switch strings.ToLower(s[1:]) {
	case "c":
		suit = Club
	case "d":
		suit = Diamond
	case "h":
		suit = Heart
	case "s":
		suit = Spade
	default:
		return Card{}, fmt.Errorf("invalid suit %q in card %q", s[1:], s)
	}

	return Card{Rank: Rank(idx), Suit: suit}, nil
}

// ParseCards parses a run of cards, optionally separated by whitespace,
// e.g. "AsKd" or "As Kd 9c".
func ParseCards(s string) ([]Card, error) {
	compact := strings.Join(strings.Fields(s), "")
	if len(compact)%2 != 0 {
		return nil, fmt.Errorf("invalid card string %q: odd length", s)
	}

	cards := make([]Card, 0, len(compact)/2)
	for i := 0; i < len(compact); i += 2 {
		card, err := ParseCard(compact[i : i+2])
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// MustParseCards is like ParseCards but panics on error. Intended for tests.
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}
