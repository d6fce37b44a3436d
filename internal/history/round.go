// Package history records completed blackjack rounds.
//
// A Recorder subscribes to the engine's event bus, assembles the events of
// each round keyed by round id, and hands finished rounds to a Sink from a
// background goroutine. Sinks write TOML documents to disk or rows to
// Postgres.
package history

import (
	"time"

	"github.com/lox/vrfjack/internal/rules"
)

// Round is the persisted record of one dealt round
type Round struct {
	ID        string    `toml:"id" json:"id"`
	Account   string    `toml:"account" json:"account"`
	RequestID uint64    `toml:"request_id" json:"request_id"`
	Wager     uint64    `toml:"wager" json:"wager"`
	Requested time.Time `toml:"requested,omitempty" json:"requested,omitzero"`
	Dealt     time.Time `toml:"dealt,omitempty" json:"dealt,omitzero"`
	Resolved  time.Time `toml:"resolved" json:"resolved"`

	InitialPlayer []string `toml:"initial_player" json:"initial_player"`
	InitialDealer []string `toml:"initial_dealer" json:"initial_dealer"`
	Actions       []string `toml:"actions" json:"actions"`

	FinalPlayer []string `toml:"final_player,omitempty" json:"final_player,omitempty"`
	FinalDealer []string `toml:"final_dealer,omitempty" json:"final_dealer,omitempty"`
	PlayerScore int      `toml:"player_score" json:"player_score"`
	DealerScore int      `toml:"dealer_score" json:"dealer_score"`
	Outcome     string   `toml:"outcome" json:"outcome"`
	Proceeds    uint64   `toml:"proceeds" json:"proceeds"`
}

// Complete reports whether the round has been resolved
func (r *Round) Complete() bool {
	return r.Outcome != ""
}

func cardStrings(h rules.Hand) []string {
	out := make([]string, len(h))
	for i, c := range h {
		out[i] = c.String()
	}
	return out
}
