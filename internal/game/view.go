package game

import (
	"fmt"
	"maps"
	"slices"

	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
	"github.com/lox/vrfjack/internal/rules"
)

// Snapshot is a copy of one account's state
type Snapshot struct {
	Account        ledger.AccountID `json:"account"`
	Status         Status           `json:"status"`
	Proceeds       ledger.Amount    `json:"proceeds"`
	InPlayers      bool             `json:"in_players"`
	PlayerHand     rules.Hand       `json:"player_hand"`
	DealerHand     rules.Hand       `json:"dealer_hand"`
	PlayerScore    int              `json:"player_score"`
	DealerScore    int              `json:"dealer_score"`
	DeckLen        int              `json:"deck_len"`
	PendingRequest oracle.RequestID `json:"pending_request,omitempty"`
	Round          string           `json:"round,omitempty"`
}

// PoolSnapshot is a copy of the pool accounting
type PoolSnapshot struct {
	Pool         ledger.Amount      `json:"pool"`
	Locked       ledger.Amount      `json:"locked"`
	Available    ledger.Amount      `json:"available"`
	Withdrawable ledger.Amount      `json:"withdrawable"`
	Owed         ledger.Amount      `json:"owed"`
	Players      []ledger.AccountID `json:"players"`
	Pending      int                `json:"pending_requests"`
}

// Snapshot returns the state of account
func (e *Engine) Snapshot(account ledger.AccountID) Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot(account)
}

func (e *Engine) snapshot(account ledger.AccountID) Snapshot {
	s := Snapshot{
		Account:   account,
		Status:    e.status(account),
		Proceeds:  e.ledger.Proceeds(account),
		InPlayers: e.ledger.InPlayers(account),
	}
	if t, ok := e.tables[account]; ok {
		s.PlayerHand = t.player.Clone()
		s.DealerHand = t.dealer.Clone()
		s.DeckLen = t.deck.Len()
		s.PendingRequest = t.pending
		s.Round = t.round
		if len(t.player) > 0 {
			s.PlayerScore = rules.HighestValidScore(t.player)
		}
		if len(t.dealer) > 0 {
			s.DealerScore = rules.HighestValidScore(t.dealer)
		}
	}
	return s
}

// Accounts returns snapshots of every account with a ledger record or a
// table, sorted by account
func (e *Engine) Accounts() []Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make(map[ledger.AccountID]struct{})
	for _, acct := range e.ledger.Accounts() {
		ids[acct.ID] = struct{}{}
	}
	for id := range e.tables {
		ids[id] = struct{}{}
	}

	out := make([]Snapshot, 0, len(ids))
	for _, id := range slices.Sorted(maps.Keys(ids)) {
		out = append(out, e.snapshot(id))
	}
	return out
}

// Status returns where the account is in the round lifecycle
func (e *Engine) Status(account ledger.AccountID) Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status(account)
}

func (e *Engine) status(account ledger.AccountID) Status {
	if t, ok := e.tables[account]; ok && t.pending != 0 {
		return StatusAwaitingRandomness
	}
	if e.ledger.IsPlaying(account) {
		return StatusActive
	}
	if e.ledger.Proceeds(account) > 0 {
		return StatusFunded
	}
	return StatusIdle
}

// PlayerHand returns a copy of the player's hand
func (e *Engine) PlayerHand(account ledger.AccountID) rules.Hand {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.tables[account]; ok {
		return t.player.Clone()
	}
	return nil
}

// DealerHand returns a copy of the dealer's hand
func (e *Engine) DealerHand(account ledger.AccountID) rules.Hand {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.tables[account]; ok {
		return t.dealer.Clone()
	}
	return nil
}

// DeckLen returns the number of cards left in the account's deck
func (e *Engine) DeckLen(account ledger.AccountID) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.tables[account]; ok {
		return t.deck.Len()
	}
	return 0
}

// Proceeds returns the account's proceeds
func (e *Engine) Proceeds(account ledger.AccountID) ledger.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Proceeds(account)
}

// IsPlaying reports whether the account has a dealt, unresolved round
func (e *Engine) IsPlaying(account ledger.AccountID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.IsPlaying(account)
}

// Players returns the players set
func (e *Engine) Players() []ledger.AccountID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Players()
}

// Pool returns the pooled balance
func (e *Engine) Pool() ledger.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Pool()
}

// PoolSnapshot returns the pool accounting
func (e *Engine) PoolSnapshot() PoolSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return PoolSnapshot{
		Pool:         e.ledger.Pool(),
		Locked:       e.ledger.Locked(),
		Available:    e.ledger.Available(),
		Withdrawable: e.ledger.Withdrawable(),
		Owed:         e.ledger.Owed(),
		Players:      e.ledger.Players(),
		Pending:      e.gateway.Pending(),
	}
}

// CheckInvariants verifies the pool accounting. It returns nil when the pool
// covers every locked stake twice plus every owed balance, and every player
// in the set has proceeds.
func (e *Engine) CheckInvariants() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ledger.Solvent() {
		reserve, _ := e.ledger.Reserve()
		return fmt.Errorf("pool %d below reserve %d", e.ledger.Pool(), reserve)
	}
	for _, id := range e.ledger.Players() {
		if e.ledger.Proceeds(id) == 0 && !e.ledger.IsPlaying(id) {
			return fmt.Errorf("player %s in set without proceeds", id)
		}
	}
	for id, t := range e.tables {
		if t.pending == 0 && !e.ledger.IsPlaying(id) {
			return fmt.Errorf("account %s has a table but no round", id)
		}
	}
	return nil
}
