package game

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
	"github.com/lox/vrfjack/internal/rules"
)

const (
	alice ledger.AccountID = "alice"
	bob   ledger.AccountID = "bob"
	carol ledger.AccountID = "carol"

	wager ledger.Amount = 1000
)

func newEngine(t *testing.T, opts ...TestEngineOption) (*Engine, *oracle.Mock, *EventRecorder) {
	t.Helper()
	bus := NewEventBus()
	opts = append([]TestEngineOption{WithCollateral(8 * wager), WithEventBus(bus)}, opts...)
	engine, coord := NewTestEngine(opts...)
	return engine, coord, NewEventRecorder(bus)
}

func hand(s string) rules.Hand {
	return rules.Hand(deck.MustParseCards(s))
}

// rig funds account with wager and deals the given hands. cards is the deck
// bottom first, so its last card is drawn next.
func rig(t *testing.T, e *Engine, account ledger.AccountID, cards, player, dealer string) {
	t.Helper()
	require.NoError(t, e.Fund(context.Background(), account, wager))
	require.NoError(t, RigRound(e, account, deck.NewFromCards(deck.MustParseCards(cards)), hand(player), hand(dealer)))
}

func startAndFulfill(t *testing.T, e *Engine, coord *oracle.Mock, account ledger.AccountID, word int64) oracle.RequestID {
	t.Helper()
	id, err := e.Start(context.Background(), account)
	require.NoError(t, err)
	require.NoError(t, coord.Fulfill(id, big.NewInt(word)))
	return id
}

func TestNewEngineValidatesConfig(t *testing.T) {
	_, err := NewEngine(Config{Owner: "house"})
	assert.Error(t, err)

	_, err = NewEngine(Config{Coordinator: oracle.NewMock()})
	assert.Error(t, err)
}

func TestFund(t *testing.T) {
	ctx := context.Background()

	t.Run("funds a game and emits game funded", func(t *testing.T) {
		e, _, rec := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))

		assert.Equal(t, wager, e.Proceeds(alice))
		assert.Equal(t, []ledger.AccountID{alice}, e.Players())
		assert.Equal(t, StatusFunded, e.Status(alice))
		require.Equal(t, []EventType{EventTypeGameFunded}, rec.Types())
		funded := rec.Last().(GameFundedEvent)
		assert.Equal(t, alice, funded.Account)
		assert.Equal(t, wager, funded.Amount)
	})

	t.Run("rejects insufficient collateral without changing state", func(t *testing.T) {
		e, _, rec := newEngine(t)
		before := e.PoolSnapshot()

		err := e.Fund(ctx, alice, 10*wager)
		require.ErrorIs(t, err, ledger.ErrInsufficientPoolCollateral)

		assert.Equal(t, before, e.PoolSnapshot())
		assert.Equal(t, ledger.Amount(0), e.Proceeds(alice))
		assert.Equal(t, StatusIdle, e.Status(alice))
		assert.Empty(t, rec.Events())
	})

	t.Run("rejects zero", func(t *testing.T) {
		e, _, _ := newEngine(t)
		assert.ErrorIs(t, e.Fund(ctx, alice, 0), ledger.ErrZeroAmount)
	})

	t.Run("rejects while playing", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "2c 3c", "Kc 5c", "Kd 7d")
		assert.ErrorIs(t, e.Fund(ctx, alice, wager), ErrGameMustNotBeStarted)
	})

	t.Run("rejects while awaiting randomness", func(t *testing.T) {
		e, _, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		_, err := e.Start(ctx, alice)
		require.NoError(t, err)
		assert.ErrorIs(t, e.Fund(ctx, alice, wager), ErrGameMustNotBeStarted)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		e, _, _ := newEngine(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, e.Fund(cctx, alice, wager), context.Canceled)
	})
}

func TestFundAfterSettledRound(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, WithCollateral(wager))
	rig(t, e, alice, "2c 3c", "Kc 5c", "Kd 7d")
	require.NoError(t, e.Surrender(ctx, alice))
	require.NoError(t, e.CheckInvariants())
	assert.Equal(t, 2*wager, e.Pool())
	assert.Equal(t, wager/2, e.Proceeds(alice))

	err := e.Fund(ctx, alice, 3*wager/2)
	require.ErrorIs(t, err, ledger.ErrInsufficientPoolCollateral)
	assert.Equal(t, 2*wager, e.Pool())
	require.NoError(t, e.CheckInvariants())

	require.NoError(t, e.Fund(ctx, alice, wager/2))
	assert.Equal(t, wager, e.PoolSnapshot().Locked)
	require.NoError(t, e.CheckInvariants())
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts if the game is not funded", func(t *testing.T) {
		e, coord, _ := newEngine(t)
		_, err := e.Start(ctx, alice)
		assert.ErrorIs(t, err, ErrGameNotFunded)
		assert.Empty(t, coord.Requests())
	})

	t.Run("calls the coordinator", func(t *testing.T) {
		e, coord, rec := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		rec.Reset()

		id, err := e.Start(ctx, alice)
		require.NoError(t, err)
		assert.Positive(t, uint64(id))
		assert.Equal(t, []oracle.RequestID{id}, coord.Requests())
		assert.Equal(t, StatusAwaitingRandomness, e.Status(alice))

		snap := e.Snapshot(alice)
		assert.Equal(t, id, snap.PendingRequest)
		assert.NotEmpty(t, snap.Round)

		require.Equal(t, []EventType{EventTypeRequestedRandomWord}, rec.Types())
		requested := rec.Last().(RequestedRandomWordEvent)
		assert.Equal(t, id, requested.RequestID)
		assert.Equal(t, wager, requested.Wager)
		assert.Equal(t, snap.Round, requested.Round)
	})

	t.Run("reverts if already started", func(t *testing.T) {
		e, _, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		_, err := e.Start(ctx, alice)
		require.NoError(t, err)

		_, err = e.Start(ctx, alice)
		assert.ErrorIs(t, err, ErrGameMustNotBeStarted)
	})

	t.Run("reverts while playing", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "2c", "Kc 5c", "Kd 7d")
		_, err := e.Start(ctx, alice)
		assert.ErrorIs(t, err, ErrGameMustNotBeStarted)
	})

	t.Run("rolls back when the coordinator refuses", func(t *testing.T) {
		e, coord, rec := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		rec.Reset()
		coord.Close()

		_, err := e.Start(ctx, alice)
		require.ErrorIs(t, err, oracle.ErrMockClosed)

		assert.Equal(t, StatusFunded, e.Status(alice))
		assert.Zero(t, e.PoolSnapshot().Pending)
		assert.Equal(t, []ledger.AccountID{alice}, e.Players())
		assert.Empty(t, rec.Events())
		require.NoError(t, e.CheckInvariants())
	})

	t.Run("locks settled winnings again", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "Kh", "Kc Qc", "Kd 6d")
		require.NoError(t, e.Stand(ctx, alice))
		require.Equal(t, 2*wager, e.Proceeds(alice))
		assert.Empty(t, e.Players())

		_, err := e.Start(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, []ledger.AccountID{alice}, e.Players())
		assert.Equal(t, 2*wager, e.PoolSnapshot().Locked)
		require.NoError(t, e.CheckInvariants())
	})
}

func TestFulfillRandomWords(t *testing.T) {
	ctx := context.Background()

	t.Run("can only be called after start", func(t *testing.T) {
		e, _, _ := newEngine(t)
		err := e.FulfillRandomWords(oracle.MockSource, 1, big.NewInt(1))
		assert.ErrorIs(t, err, oracle.ErrNoSuchRequest)
	})

	t.Run("initializes the game state", func(t *testing.T) {
		e, coord, rec := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		id := startAndFulfill(t, e, coord, alice, 42)

		assert.Len(t, e.PlayerHand(alice), 2)
		assert.Len(t, e.DealerHand(alice), 2)
		assert.Equal(t, deck.Size-4, e.DeckLen(alice))
		assert.True(t, e.IsPlaying(alice))
		assert.Equal(t, StatusActive, e.Status(alice))

		dealt, ok := rec.Last().(GameDealtEvent)
		require.True(t, ok)
		assert.Equal(t, id, dealt.RequestID)
		assert.Equal(t, e.PlayerHand(alice), dealt.PlayerHand)
	})

	t.Run("deals player dealer player dealer from the seeded deck", func(t *testing.T) {
		e, coord, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		startAndFulfill(t, e, coord, alice, 7)

		d := deck.New()
		require.NoError(t, d.Shuffle(big.NewInt(7)))
		var drawn []deck.Card
		for range 4 {
			c, err := d.Draw()
			require.NoError(t, err)
			drawn = append(drawn, c)
		}
		assert.Equal(t, rules.Hand{drawn[0], drawn[2]}, e.PlayerHand(alice))
		assert.Equal(t, rules.Hand{drawn[1], drawn[3]}, e.DealerHand(alice))
	})

	t.Run("second fulfilment fails without dealing again", func(t *testing.T) {
		e, coord, rec := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		id := startAndFulfill(t, e, coord, alice, 42)

		player := e.PlayerHand(alice)
		events := len(rec.Events())

		err := coord.Fulfill(id, big.NewInt(43))
		require.ErrorIs(t, err, oracle.ErrNoSuchRequest)
		assert.Equal(t, player, e.PlayerHand(alice))
		assert.Equal(t, deck.Size-4, e.DeckLen(alice))
		assert.Len(t, rec.Events(), events)
	})

	t.Run("rejects untrusted sources", func(t *testing.T) {
		e, coord, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		id, err := e.Start(ctx, alice)
		require.NoError(t, err)

		err = e.FulfillRandomWords(oracle.LocalSource, id, big.NewInt(1))
		require.ErrorIs(t, err, oracle.ErrUntrustedOracle)
		assert.Equal(t, StatusAwaitingRandomness, e.Status(alice))

		require.NoError(t, coord.Fulfill(id, big.NewInt(1)))
		assert.Equal(t, StatusActive, e.Status(alice))
	})

	t.Run("rejects invalid words and keeps the request pending", func(t *testing.T) {
		e, coord, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		id, err := e.Start(ctx, alice)
		require.NoError(t, err)

		require.ErrorIs(t, coord.Fulfill(id, nil), deck.ErrInvalidSeed)
		require.ErrorIs(t, coord.Fulfill(id, big.NewInt(-1)), deck.ErrInvalidSeed)
		assert.Equal(t, StatusAwaitingRandomness, e.Status(alice))

		require.NoError(t, coord.Fulfill(id, big.NewInt(5)))
		assert.Equal(t, StatusActive, e.Status(alice))
	})

	t.Run("out of order fulfilments reach the right accounts", func(t *testing.T) {
		e, coord, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		require.NoError(t, e.Fund(ctx, bob, wager))
		idA, err := e.Start(ctx, alice)
		require.NoError(t, err)
		idB, err := e.Start(ctx, bob)
		require.NoError(t, err)

		require.NoError(t, coord.Fulfill(idB, big.NewInt(2)))
		assert.Equal(t, StatusActive, e.Status(bob))
		assert.Equal(t, StatusAwaitingRandomness, e.Status(alice))

		require.NoError(t, coord.Fulfill(idA, big.NewInt(1)))
		assert.Equal(t, StatusActive, e.Status(alice))
	})
}

func TestThreePlayersOneSurrenders(t *testing.T) {
	ctx := context.Background()
	e, coord, _ := newEngine(t)

	for i, account := range []ledger.AccountID{alice, bob, carol} {
		require.NoError(t, e.Fund(ctx, account, wager))
		startAndFulfill(t, e, coord, account, int64(100+i))
		require.True(t, e.IsPlaying(account))
	}
	assert.Equal(t, 3*wager, e.PoolSnapshot().Locked)

	require.NoError(t, e.Surrender(ctx, bob))
	assert.Equal(t, wager/2, e.Proceeds(bob))
	assert.False(t, e.IsPlaying(bob))
	assert.Equal(t, 2*wager, e.PoolSnapshot().Locked)
	assert.Equal(t, []ledger.AccountID{alice, carol}, e.Players())
	require.NoError(t, e.CheckInvariants())
}

func TestWithdrawToPlayer(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts if game already started", func(t *testing.T) {
		e, _, _ := newEngine(t)
		rig(t, e, alice, "2c", "Kc 5c", "Kd 7d")
		_, err := e.WithdrawToPlayer(ctx, alice)
		assert.ErrorIs(t, err, ErrGameMustNotBeStarted)
		assert.Equal(t, wager, e.Proceeds(alice))
	})

	t.Run("reverts while awaiting randomness", func(t *testing.T) {
		e, _, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		_, err := e.Start(ctx, alice)
		require.NoError(t, err)
		_, err = e.WithdrawToPlayer(ctx, alice)
		assert.ErrorIs(t, err, ErrGameMustNotBeStarted)
	})

	t.Run("allows player to withdraw when game not started", func(t *testing.T) {
		e, _, rec := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))

		paid, err := e.WithdrawToPlayer(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, wager, paid)
		assert.Equal(t, ledger.Amount(0), e.Proceeds(alice))
		assert.Equal(t, 8*wager, e.Pool())
		assert.Empty(t, e.Players())
		assert.Equal(t, StatusIdle, e.Status(alice))
		assert.Equal(t, EventTypePlayerWithdrawAllFunds, rec.Last().EventType())
	})
}

func TestOwnerOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit", func(t *testing.T) {
		e, _, rec := newEngine(t)
		require.NoError(t, e.Deposit(ctx, DefaultTestOwner, 4*wager))
		assert.Equal(t, 12*wager, e.Pool())
		assert.Equal(t, EventTypeCollateralDeposited, rec.Last().EventType())

		assert.ErrorIs(t, e.Deposit(ctx, alice, wager), ledger.ErrOnlyOwner)
	})

	t.Run("withdraw only by owner", func(t *testing.T) {
		e, _, _ := newEngine(t)
		assert.ErrorIs(t, e.WithdrawToOwner(ctx, alice, wager), ledger.ErrOnlyOwner)
		assert.Equal(t, 8*wager, e.Pool())
	})

	t.Run("withdraw below available proceeds", func(t *testing.T) {
		e, _, rec := newEngine(t)
		require.NoError(t, e.WithdrawToOwner(ctx, DefaultTestOwner, wager))
		assert.Equal(t, 7*wager, e.Pool())

		withdrawn := rec.Last().(OwnerWithdrawEvent)
		assert.Equal(t, wager, withdrawn.Amount)
		assert.Equal(t, 7*wager, withdrawn.Pool)
	})

	t.Run("withdraw is bounded by locked stakes", func(t *testing.T) {
		e, _, _ := newEngine(t)
		require.NoError(t, e.Fund(ctx, alice, wager))
		require.NoError(t, e.Fund(ctx, bob, wager))

		pool := e.PoolSnapshot()
		assert.Equal(t, pool.Pool-2*pool.Locked, pool.Available)
		assert.ErrorIs(t, e.WithdrawToOwner(ctx, DefaultTestOwner, pool.Available+1), ledger.ErrInsufficientAvailableProceeds)
		require.NoError(t, e.WithdrawToOwner(ctx, DefaultTestOwner, pool.Available))
		require.NoError(t, e.CheckInvariants())
	})
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	require.NoError(t, e.Fund(ctx, bob, wager))
	rig(t, e, alice, "2c", "Kc 5c", "Kd 7d")

	accounts := e.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, alice, accounts[0].Account)
	assert.Equal(t, StatusActive, accounts[0].Status)
	assert.Equal(t, 15, accounts[0].PlayerScore)
	assert.Equal(t, 17, accounts[0].DealerScore)
	assert.Equal(t, 1, accounts[0].DeckLen)
	assert.Equal(t, bob, accounts[1].Account)
	assert.Equal(t, StatusFunded, accounts[1].Status)
}

func TestReadSurfaceReturnsCopies(t *testing.T) {
	e, _, _ := newEngine(t)
	rig(t, e, alice, "2c", "Kc 5c", "Kd 7d")

	h := e.PlayerHand(alice)
	h[0] = deck.NewCard(deck.Ace, deck.Spade)
	assert.Equal(t, hand("Kc 5c"), e.PlayerHand(alice))

	players := e.Players()
	players[0] = "mallory"
	assert.Equal(t, []ledger.AccountID{alice}, e.Players())
}

func TestSubscribersMayCallBack(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	var seen []Status
	e.EventBus().Subscribe(EventSubscriberFunc(func(event GameEvent) {
		if ev, ok := event.(AccountEvent); ok {
			seen = append(seen, e.Status(ev.AccountID()))
		}
	}))

	require.NoError(t, e.Fund(ctx, alice, wager))
	assert.Equal(t, []Status{StatusFunded}, seen)
}

func TestConcurrentRounds(t *testing.T) {
	ctx := context.Background()
	e, coord, _ := newEngine(t, WithCollateral(1000*wager))

	accounts := []ledger.AccountID{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for i, account := range accounts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 5 {
				if err := e.Fund(ctx, account, wager); err != nil {
					t.Errorf("fund %s: %v", account, err)
					return
				}
				id, err := e.Start(ctx, account)
				if err != nil {
					t.Errorf("start %s: %v", account, err)
					return
				}
				if err := coord.Fulfill(id, big.NewInt(int64(i*100+round))); err != nil {
					t.Errorf("fulfil %s: %v", account, err)
					return
				}
				if err := e.Stand(ctx, account); err != nil {
					t.Errorf("stand %s: %v", account, err)
					return
				}
				if _, err := e.WithdrawToPlayer(ctx, account); err != nil {
					t.Errorf("withdraw %s: %v", account, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.NoError(t, e.CheckInvariants())
	pool := e.PoolSnapshot()
	assert.Empty(t, pool.Players)
	assert.Zero(t, pool.Locked)
	assert.Zero(t, pool.Owed)
	assert.Zero(t, pool.Pending)
}
