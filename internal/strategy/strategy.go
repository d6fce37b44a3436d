// Package strategy decides player actions for simulated rounds.
package strategy

import (
	"fmt"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/rules"
)

// Action is a player decision
type Action uint8

const (
	Hit Action = iota
	Stand
	DoubleDown
	Split
	Surrender
)

func (a Action) String() string {
	switch a {
	case Hit:
		return "hit"
	case Stand:
		return "stand"
	case DoubleDown:
		return "double"
	case Split:
		return "split"
	case Surrender:
		return "surrender"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// Policy picks the next action for a hand. upcard is the dealer's first card.
type Policy interface {
	Name() string
	Decide(player rules.Hand, upcard deck.Card) Action
}

// Options restricts what a policy may choose
type Options struct {
	AllowDouble    bool
	AllowSplit     bool
	AllowSurrender bool
}

// Basic plays textbook basic strategy, falling back to hit or stand when an
// action is not allowed
type Basic struct {
	Options Options
}

// NewBasic creates a basic strategy policy with every action allowed
func NewBasic() *Basic {
	return &Basic{Options: Options{AllowDouble: true, AllowSplit: true, AllowSurrender: true}}
}

// Name returns "basic"
func (b *Basic) Name() string { return "basic" }

// Decide returns the basic strategy action
func (b *Basic) Decide(player rules.Hand, upcard deck.Card) Action {
	up := upcardValue(upcard)
	opening := len(player) == 2

	if opening && b.Options.AllowSplit && rules.IsPair(player) {
		if splitPair(player[0].Rank, up) {
			return Split
		}
	}

	if opening && b.Options.AllowSurrender && !rules.IsSoft(player) {
		score := rules.Score(player)
		if (score == 16 && up >= 9) || (score == 15 && up == 10) {
			return Surrender
		}
	}

	action := b.totals(player, up)
	if action == DoubleDown && (!opening || !b.Options.AllowDouble) {
		if rules.IsSoft(player) && rules.HighestValidScore(player) >= 18 {
			return Stand
		}
		return Hit
	}
	return action
}

func (b *Basic) totals(player rules.Hand, up int) Action {
	total := rules.HighestValidScore(player)

	if rules.IsSoft(player) {
		switch {
		case total >= 19:
			return Stand
		case total == 18:
			if up >= 3 && up <= 6 {
				return DoubleDown
			}
			if up <= 8 {
				return Stand
			}
			return Hit
		case total == 17:
			return doubleIf(up >= 3 && up <= 6)
		case total >= 15:
			return doubleIf(up >= 4 && up <= 6)
		default:
			return doubleIf(up >= 5 && up <= 6)
		}
	}

	switch {
	case total >= 17:
		return Stand
	case total >= 13:
		if up <= 6 {
			return Stand
		}
		return Hit
	case total == 12:
		if up >= 4 && up <= 6 {
			return Stand
		}
		return Hit
	case total == 11:
		return DoubleDown
	case total == 10:
		return doubleIf(up <= 9)
	case total == 9:
		return doubleIf(up >= 3 && up <= 6)
	default:
		return Hit
	}
}

func doubleIf(cond bool) Action {
	if cond {
		return DoubleDown
	}
	return Hit
}

func splitPair(rank deck.Rank, up int) bool {
	switch rank {
	case deck.Ace, deck.Eight:
		return true
	case deck.Nine:
		return up <= 9 && up != 7
	case deck.Seven, deck.Two, deck.Three:
		return up <= 7
	case deck.Six:
		return up <= 6
	case deck.Four:
		return up == 5 || up == 6
	default:
		return false
	}
}

// upcardValue counts an Ace as 11
func upcardValue(c deck.Card) int {
	if c.IsAce() {
		return 11
	}
	return rules.CardPoints(c)
}

// Mimic plays like the dealer: hit below 17, otherwise stand
type Mimic struct{}

// Name returns "mimic"
func (Mimic) Name() string { return "mimic" }

// Decide hits below 17
func (Mimic) Decide(player rules.Hand, _ deck.Card) Action {
	if rules.HighestValidScore(player) < rules.DealerStandsOn {
		return Hit
	}
	return Stand
}

// ByName returns the policy called name
func ByName(name string) (Policy, error) {
	switch name {
	case "basic", "":
		return NewBasic(), nil
	case "mimic":
		return Mimic{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
