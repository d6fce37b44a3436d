package game

import (
	"context"
	"fmt"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/rules"
)

// Hit draws one card into the player's hand. Going over 21 loses the round;
// anything else leaves the turn open.
func (e *Engine) Hit(ctx context.Context, account ledger.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		t, err := e.activeTable(account)
		if err != nil {
			return nil, err
		}
		card, err := t.deck.Draw()
		if err != nil {
			return nil, fmt.Errorf("hit: %w", err)
		}
		t.player = append(t.player, card)
		events := []GameEvent{e.hitEvent(account, t, card)}
		if rules.IsBust(t.player) {
			events = append(events, e.bust(account, t))
		}
		return events, nil
	})
}

// Stand ends the player's turn; the dealer plays and the round resolves
func (e *Engine) Stand(ctx context.Context, account ledger.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		t, err := e.activeTable(account)
		if err != nil {
			return nil, err
		}
		return []GameEvent{e.showdown(account, t)}, nil
	})
}

// DoubleDown doubles the wager, draws exactly one card and ends the turn.
// paid must equal the current wager.
func (e *Engine) DoubleDown(ctx context.Context, account ledger.AccountID, paid ledger.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		t, err := e.activeTable(account)
		if err != nil {
			return nil, err
		}
		if paid != e.ledger.Proceeds(account) {
			return nil, ErrWrongAmountToDoubleWager
		}
		if t.deck.IsEmpty() {
			return nil, fmt.Errorf("double down: %w", deck.ErrEmptyDeck)
		}
		if err := e.ledger.Raise(account, paid); err != nil {
			return nil, fmt.Errorf("double down: %w", err)
		}

		events := []GameEvent{GameDoubledDownEvent{
			Account:   account,
			Round:     t.round,
			Paid:      paid,
			timestamp: e.clock.Now(),
		}}

		card, _ := t.deck.Draw()
		t.player = append(t.player, card)
		events = append(events, e.hitEvent(account, t, card))

		if rules.IsBust(t.player) {
			return append(events, e.bust(account, t)), nil
		}
		return append(events, e.showdown(account, t)), nil
	})
}

// Split takes one card off a pair and doubles the wager. Play continues on
// the remaining card. paid must equal the current wager.
func (e *Engine) Split(ctx context.Context, account ledger.AccountID, paid ledger.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		t, err := e.activeTable(account)
		if err != nil {
			return nil, err
		}
		if paid != e.ledger.Proceeds(account) {
			return nil, ErrWrongAmountToDoubleWager
		}
		if !rules.IsPair(t.player) {
			return nil, ErrPlayerHandMustBeAPair
		}
		if err := e.ledger.Raise(account, paid); err != nil {
			return nil, fmt.Errorf("split: %w", err)
		}

		t.player = t.player[:1:1]
		e.logger.Debug("Split pair", "account", account, "round", t.round, "player", t.player)

		return []GameEvent{GameSplitEvent{
			Account:    account,
			Round:      t.round,
			Paid:       paid,
			PlayerHand: t.player.Clone(),
			timestamp:  e.clock.Now(),
		}}, nil
	})
}

// Surrender gives up the round for half the wager
func (e *Engine) Surrender(ctx context.Context, account ledger.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		t, err := e.activeTable(account)
		if err != nil {
			return nil, err
		}
		return []GameEvent{e.finish(account, t, OutcomeSurrendered, e.ledger.Proceeds(account)/2, true)}, nil
	})
}

func (e *Engine) hitEvent(account ledger.AccountID, t *table, card deck.Card) GameEvent {
	e.logger.Debug("Player hit", "account", account, "card", card, "score", rules.HighestValidScore(t.player))
	return GameHitEvent{
		Account:   account,
		Round:     t.round,
		Card:      card,
		timestamp: e.clock.Now(),
	}
}

// bust settles a round the player lost by going over 21. The event carries
// no hand, the cards were already reported by GameHit.
func (e *Engine) bust(account ledger.AccountID, t *table) GameEvent {
	return e.finish(account, t, OutcomeLost, 0, false)
}

// showdown lets the dealer play out and compares the highest valid scores
func (e *Engine) showdown(account ledger.AccountID, t *table) GameEvent {
	t.dealer = rules.DealerPlays(t.dealer, t.deck)

	wager := e.ledger.Proceeds(account)
	outcome := Compare(t.player, t.dealer)

	var proceeds ledger.Amount
	switch outcome {
	case OutcomeWon:
		proceeds = wager * 2
	case OutcomeTied:
		proceeds = wager
	}
	return e.finish(account, t, outcome, proceeds, true)
}

// Compare resolves a finished round from the player's point of view
func Compare(player, dealer rules.Hand) Outcome {
	p := rules.HighestValidScore(player)
	d := rules.HighestValidScore(dealer)
	switch {
	case p > rules.Blackjack:
		return OutcomeLost
	case d > rules.Blackjack:
		return OutcomeWon
	case d == p:
		return OutcomeTied
	case d > p:
		return OutcomeLost
	default:
		return OutcomeWon
	}
}

// finish settles the ledger, clears the table and builds the resolution event
func (e *Engine) finish(account ledger.AccountID, t *table, outcome Outcome, proceeds ledger.Amount, withHands bool) GameEvent {
	event := GameResolvedEvent{
		Account:   account,
		Round:     t.round,
		Outcome:   outcome,
		Proceeds:  proceeds,
		timestamp: e.clock.Now(),
	}
	if withHands {
		event.PlayerHand = t.player.Clone()
		event.DealerHand = t.dealer.Clone()
		event.PlayerScore = rules.HighestValidScore(t.player)
		event.DealerScore = rules.HighestValidScore(t.dealer)
	}

	e.ledger.Settle(account, proceeds)
	delete(e.tables, account)

	e.logger.Debug("Round finished", "account", account, "round", t.round,
		"outcome", outcome, "player", t.player, "dealer", t.dealer, "proceeds", proceeds)
	return event
}
