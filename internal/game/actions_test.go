package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/ledger"
)

func TestHit(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts if the game is not already started", func(t *testing.T) {
		e, _, _ := newEngine(t)
		assert.ErrorIs(t, e.Hit(ctx, alice), ErrGameMustBeStarted)

		require.NoError(t, e.Fund(ctx, alice, wager))
		assert.ErrorIs(t, e.Hit(ctx, alice), ErrGameMustBeStarted)
	})

	t.Run("draws a card to player hand", func(t *testing.T) {
		e, _, rec := newEngine(t)
		rig(t, e, alice, "2c 5d", "2h 3h", "Kd 7d")
		rec.Reset()

		require.NoError(t, e.Hit(ctx, alice))
		assert.Equal(t, hand("2h 3h 5d"), e.PlayerHand(alice))
		assert.Equal(t, 1, e.DeckLen(alice))
		assert.True(t, e.IsPlaying(alice))

		require.Equal(t, []EventType{EventTypeGameHit}, rec.Types())
		assert.Equal(t, deck.MustParseCards("5d")[0], rec.Last().(GameHitEvent).Card)
	})

	t.Run("keeps the turn open at exactly 21", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "6s", "Tc 5c", "Kd 7d")

		require.NoError(t, e.Hit(ctx, alice))
		assert.Equal(t, StatusActive, e.Status(alice))
		assert.Equal(t, 21, e.Snapshot(alice).PlayerScore)
	})

	t.Run("finishes the game if the score is above 21", func(t *testing.T) {
		e, _, rec := newEngine(t)
		rig(t, e, alice, "Td", "Kc Qc", "Kd 7d")
		rec.Reset()

		require.NoError(t, e.Hit(ctx, alice))
		require.Equal(t, []EventType{EventTypeGameHit, EventTypeGameLost}, rec.Types())

		lost := rec.Last().(GameResolvedEvent)
		assert.Equal(t, alice, lost.Account)
		assert.Empty(t, lost.PlayerHand)
		assert.Equal(t, ledger.Amount(0), lost.Proceeds)

		assert.Equal(t, ledger.Amount(0), e.Proceeds(alice))
		assert.False(t, e.IsPlaying(alice))
		assert.Empty(t, e.PlayerHand(alice))
		assert.Empty(t, e.DealerHand(alice))
		assert.Zero(t, e.DeckLen(alice))
		assert.Empty(t, e.Players())
		assert.Equal(t, StatusIdle, e.Status(alice))
		require.NoError(t, e.CheckInvariants())
	})

	t.Run("counts a soft ace before busting", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "Kh", "As 5c", "Kd 7d")

		require.NoError(t, e.Hit(ctx, alice))
		assert.Equal(t, StatusActive, e.Status(alice), "A+5+K is 16, not a bust")
	})

	t.Run("rejects a hit on an exhausted deck without changing state", func(t *testing.T) {
		e, _, rec := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		require.NoError(t, RigRound(e, alice, deck.NewFromCards(nil), hand("2h 3h"), hand("Kd 7d")))
		rec.Reset()

		require.ErrorIs(t, e.Hit(ctx, alice), deck.ErrEmptyDeck)
		assert.Equal(t, hand("2h 3h"), e.PlayerHand(alice))
		assert.True(t, e.IsPlaying(alice))
		assert.Empty(t, rec.Events())
	})
}

func TestStand(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts if the game is not already started", func(t *testing.T) {
		e, _, _ := newEngine(t)
		assert.ErrorIs(t, e.Stand(ctx, alice), ErrGameMustBeStarted)
	})

	tests := []struct {
		name     string
		cards    string
		player   string
		dealer   string
		outcome  Outcome
		event    EventType
		proceeds ledger.Amount
	}{
		{
			name:     "tie when both scores match",
			cards:    "2c",
			player:   "Kc Qc",
			dealer:   "Kd Qd",
			outcome:  OutcomeTied,
			event:    EventTypeGameTied,
			proceeds: wager,
		},
		{
			name:     "tie at 21",
			cards:    "2c",
			player:   "Ac Kc",
			dealer:   "Ad Qd",
			outcome:  OutcomeTied,
			event:    EventTypeGameTied,
			proceeds: wager,
		},
		{
			name:     "lost when dealer is higher",
			cards:    "2c",
			player:   "Kc 7c",
			dealer:   "Kd Qd",
			outcome:  OutcomeLost,
			event:    EventTypeGameLost,
			proceeds: 0,
		},
		{
			name:     "won when player is higher",
			cards:    "2c",
			player:   "Kc Qc",
			dealer:   "Kd 8d",
			outcome:  OutcomeWon,
			event:    EventTypeGameWon,
			proceeds: 2 * wager,
		},
		{
			name:     "won when dealer busts",
			cards:    "2c Kh",
			player:   "Kc 2c",
			dealer:   "Kd 6d",
			outcome:  OutcomeWon,
			event:    EventTypeGameWon,
			proceeds: 2 * wager,
		},
		{
			name:     "won with 21 against a dealer drawing to 18",
			cards:    "3c 2h",
			player:   "Ac Kc",
			dealer:   "Kd 6d",
			outcome:  OutcomeWon,
			event:    EventTypeGameWon,
			proceeds: 2 * wager,
		},
		{
			name:     "lost when dealer draws to 21",
			cards:    "2c Kh",
			player:   "Kc Qc",
			dealer:   "5d 6d",
			outcome:  OutcomeLost,
			event:    EventTypeGameLost,
			proceeds: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, rec := newEngine(t)
			rig(t, e, alice, tt.cards, tt.player, tt.dealer)
			rec.Reset()

			require.NoError(t, e.Stand(ctx, alice))
			require.Equal(t, []EventType{tt.event}, rec.Types())

			resolved := rec.Last().(GameResolvedEvent)
			assert.Equal(t, tt.outcome, resolved.Outcome)
			assert.Equal(t, tt.proceeds, resolved.Proceeds)
			assert.Equal(t, hand(tt.player), resolved.PlayerHand)

			assert.Equal(t, tt.proceeds, e.Proceeds(alice))
			assert.False(t, e.IsPlaying(alice))
			assert.Empty(t, e.Players())
			assert.Empty(t, e.PlayerHand(alice))
			require.NoError(t, e.CheckInvariants())
		})
	}
}

func TestDoubleDown(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts if the game is not already started", func(t *testing.T) {
		e, _, _ := newEngine(t)
		assert.ErrorIs(t, e.DoubleDown(ctx, alice, wager), ErrGameMustBeStarted)
	})

	t.Run("reverts on the wrong amount", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "Ts", "5c 6c", "Kd 7d")
		assert.ErrorIs(t, e.DoubleDown(ctx, alice, 2*wager), ErrWrongAmountToDoubleWager)
		assert.Equal(t, wager, e.Proceeds(alice))
		assert.Equal(t, 9*wager, e.Pool())
	})

	t.Run("doubles the wager and wins 4 times the wager", func(t *testing.T) {
		e, _, rec := newEngine(t)
		rig(t, e, alice, "Ts", "5c 6c", "Kd 7d")
		rec.Reset()

		require.NoError(t, e.DoubleDown(ctx, alice, wager))
		assert.Equal(t, []EventType{EventTypeGameDoubledDown, EventTypeGameHit, EventTypeGameWon}, rec.Types())
		assert.Equal(t, 4*wager, e.Proceeds(alice))
		assert.Equal(t, 10*wager, e.Pool())
		assert.False(t, e.IsPlaying(alice))
		require.NoError(t, e.CheckInvariants())
	})

	t.Run("loses both stakes on a bust", func(t *testing.T) {
		e, _, rec := newEngine(t)
		rig(t, e, alice, "Ks", "Kc 6c", "Kd 7d")
		rec.Reset()

		require.NoError(t, e.DoubleDown(ctx, alice, wager))
		assert.Equal(t, []EventType{EventTypeGameDoubledDown, EventTypeGameHit, EventTypeGameLost}, rec.Types())
		assert.Equal(t, ledger.Amount(0), e.Proceeds(alice))
		assert.Equal(t, 10*wager, e.Pool())
	})

	t.Run("needs collateral for the extra stake", func(t *testing.T) {
		e, _, _ := newEngine(t, WithCollateral(wager))
		rig(t, e, alice, "Ts", "5c 6c", "Kd 7d")

		err := e.DoubleDown(ctx, alice, wager)
		require.ErrorIs(t, err, ledger.ErrInsufficientPoolCollateral)
		assert.Equal(t, wager, e.Proceeds(alice))
		assert.Equal(t, hand("5c 6c"), e.PlayerHand(alice))
		assert.True(t, e.IsPlaying(alice))
	})

	t.Run("rejects an exhausted deck before taking the stake", func(t *testing.T) {
		e, _, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		require.NoError(t, RigRound(e, alice, deck.NewFromCards(nil), hand("5c 6c"), hand("Kd 7d")))

		require.ErrorIs(t, e.DoubleDown(ctx, alice, wager), deck.ErrEmptyDeck)
		assert.Equal(t, wager, e.Proceeds(alice))
	})
}

func TestSplit(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts if the game is not already started", func(t *testing.T) {
		e, _, _ := newEngine(t)
		assert.ErrorIs(t, e.Split(ctx, alice, wager), ErrGameMustBeStarted)
	})

	t.Run("reverts on the wrong amount", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "2c", "Kc Qc", "Kd 7d")
		assert.ErrorIs(t, e.Split(ctx, alice, 2*wager), ErrWrongAmountToDoubleWager)
	})

	t.Run("reverts if the player hand is not a pair", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "2c", "Kc Qc", "Kd 7d")
		assert.ErrorIs(t, e.Split(ctx, alice, wager), ErrPlayerHandMustBeAPair)
		assert.Equal(t, wager, e.Proceeds(alice))
	})

	t.Run("removes one card of the pair and doubles the wager", func(t *testing.T) {
		e, _, rec := newEngine(t)
		rig(t, e, alice, "2c 9h", "Tc Td", "Kd 7d")
		rec.Reset()

		require.NoError(t, e.Split(ctx, alice, wager))
		require.Equal(t, []EventType{EventTypeGameSplit}, rec.Types())
		assert.Equal(t, 2*wager, e.Proceeds(alice))

		player := e.PlayerHand(alice)
		require.Len(t, player, 1)
		assert.Equal(t, deck.Ten, player[0].Rank)
		assert.Equal(t, player, rec.Last().(GameSplitEvent).PlayerHand)

		// play continues on the remaining card
		require.NoError(t, e.Hit(ctx, alice))
		require.NoError(t, e.Stand(ctx, alice))
		assert.Equal(t, 4*wager, e.Proceeds(alice), "T+9 beats 17")
		require.NoError(t, e.CheckInvariants())
	})
}

func TestSurrender(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts if the game is not already started", func(t *testing.T) {
		e, _, _ := newEngine(t)
		assert.ErrorIs(t, e.Surrender(ctx, alice), ErrGameMustBeStarted)
	})

	t.Run("ends the game with half the wager for the player", func(t *testing.T) {
		e, _, rec := newEngine(t)
		rig(t, e, alice, "2c", "Kc 6c", "Kd 7d")
		rec.Reset()

		require.NoError(t, e.Surrender(ctx, alice))
		require.Equal(t, []EventType{EventTypeGameSurrendered}, rec.Types())
		assert.Equal(t, wager/2, e.Proceeds(alice))
		assert.False(t, e.IsPlaying(alice))
		assert.Empty(t, e.Players())
		assert.Equal(t, StatusFunded, e.Status(alice))
		require.NoError(t, e.CheckInvariants())
	})
}

func TestCompare(t *testing.T) {
	tests := []struct {
		player, dealer string
		want           Outcome
	}{
		{"Kc Qc 2c", "Kd 6d Td", OutcomeLost},
		{"Kc 9c", "Kd 6d Td", OutcomeWon},
		{"Kc 9c", "Kd 9d", OutcomeTied},
		{"Kc 8c", "Kd 9d", OutcomeLost},
		{"Ac Kc", "Kd 9d", OutcomeWon},
	}
	for _, tt := range tests {
		t.Run(tt.player+" vs "+tt.dealer, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(hand(tt.player), hand(tt.dealer)))
		})
	}
}
