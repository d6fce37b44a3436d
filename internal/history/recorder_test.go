package history

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/rules"
)

type memorySink struct {
	mu     sync.Mutex
	rounds map[string]*Round
	fail   int
	closed bool
}

func newMemorySink() *memorySink {
	return &memorySink{rounds: make(map[string]*Round)}
}

func (s *memorySink) WriteRounds(_ context.Context, rounds []*Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != 0 {
		if s.fail > 0 {
			s.fail--
		}
		return errors.New("disk on fire")
	}
	for _, r := range rounds {
		s.rounds[r.ID] = r
	}
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) get(id string) (*Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	return r, ok
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rounds)
}

func cards(s string) rules.Hand {
	return rules.Hand(deck.MustParseCards(s))
}

func resolved(round string) game.GameResolvedEvent {
	return game.GameResolvedEvent{
		Account:     "alice",
		Round:       round,
		Outcome:     game.OutcomeWon,
		PlayerHand:  cards("KhQh"),
		DealerHand:  cards("Kd6dTd"),
		PlayerScore: 20,
		DealerScore: 26,
		Proceeds:    2000,
	}
}

func newTestRecorder(t *testing.T, sink Sink, cfg Config) *Recorder {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewMock(t)
	}
	r := NewRecorder(sink, cfg)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func TestRecorderRecordsEngineRound(t *testing.T) {
	ctx := context.Background()
	sink := newMemorySink()
	rec := newTestRecorder(t, sink, Config{})

	e, coord := game.NewTestEngine(game.WithCollateral(10_000))
	e.EventBus().Subscribe(rec)

	require.NoError(t, e.Fund(ctx, "alice", 1000))
	id, err := e.Start(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, coord.Fulfill(id, big.NewInt(42)))

	snap := e.Snapshot("alice")
	require.NotEmpty(t, snap.Round)
	require.NoError(t, e.Stand(ctx, "alice"))
	require.NoError(t, rec.Flush(ctx))

	round, ok := sink.get(snap.Round)
	require.True(t, ok)
	assert.Equal(t, "alice", round.Account)
	assert.Equal(t, uint64(id), round.RequestID)
	assert.Equal(t, uint64(1000), round.Wager)
	assert.Equal(t, cardStrings(snap.PlayerHand), round.InitialPlayer)
	assert.Equal(t, cardStrings(snap.DealerHand), round.InitialDealer)
	assert.Empty(t, round.Actions)
	assert.True(t, round.Complete())
	assert.Contains(t, []string{"won", "lost", "tied"}, round.Outcome)
	assert.NotEmpty(t, round.FinalDealer)

	stats := rec.Stats()
	assert.Equal(t, 0, stats.Open)
	assert.Equal(t, 1, stats.Written)
}

func TestRecorderCollectsActions(t *testing.T) {
	sink := newMemorySink()
	rec := newTestRecorder(t, sink, Config{})

	rec.OnEvent(game.RequestedRandomWordEvent{Account: "alice", RequestID: 7, Round: "r1", Wager: 1000})
	rec.OnEvent(game.GameDealtEvent{Account: "alice", RequestID: 7, Round: "r1",
		PlayerHand: cards("5h6h"), DealerHand: cards("Kd6d")})
	rec.OnEvent(game.GameDoubledDownEvent{Account: "alice", Round: "r1", Paid: 1000})
	rec.OnEvent(game.GameHitEvent{Account: "alice", Round: "r1", Card: deck.NewCard(deck.Nine, deck.Club)})
	rec.OnEvent(resolved("r1"))

	require.NoError(t, rec.Flush(context.Background()))
	round, ok := sink.get("r1")
	require.True(t, ok)
	assert.Equal(t, []string{"double 1000", "hit 9c"}, round.Actions)
	assert.Equal(t, []string{"5h", "6h"}, round.InitialPlayer)
	assert.Equal(t, "won", round.Outcome)
	assert.Equal(t, uint64(2000), round.Proceeds)
}

func TestRecorderToleratesEventOrder(t *testing.T) {
	sink := newMemorySink()
	rec := newTestRecorder(t, sink, Config{})

	// Fast oracles deliver the deal before the request is announced
	rec.OnEvent(game.GameDealtEvent{Account: "alice", RequestID: 3, Round: "r1",
		PlayerHand: cards("5h6h"), DealerHand: cards("Kd6d")})
	rec.OnEvent(game.RequestedRandomWordEvent{Account: "alice", RequestID: 3, Round: "r1", Wager: 500})
	rec.OnEvent(resolved("r1"))

	require.NoError(t, rec.Flush(context.Background()))
	round, ok := sink.get("r1")
	require.True(t, ok)
	assert.Equal(t, uint64(500), round.Wager)
	assert.Equal(t, []string{"5h", "6h"}, round.InitialPlayer)
}

func TestRecorderIgnoresAccountEvents(t *testing.T) {
	sink := newMemorySink()
	rec := newTestRecorder(t, sink, Config{})

	rec.OnEvent(game.GameFundedEvent{Account: "alice", Amount: 1000})
	rec.OnEvent(game.PlayerWithdrawEvent{Account: "alice", Amount: 1000})

	assert.Equal(t, Stats{}, rec.Stats())
}

func TestRecorderKeepsRoundsSeparate(t *testing.T) {
	sink := newMemorySink()
	rec := newTestRecorder(t, sink, Config{})

	rec.OnEvent(game.GameHitEvent{Account: "alice", Round: "a", Card: deck.NewCard(deck.Two, deck.Club)})
	rec.OnEvent(game.GameHitEvent{Account: "bob", Round: "b", Card: deck.NewCard(deck.Three, deck.Club)})
	assert.Equal(t, 2, rec.Stats().Open)

	rec.OnEvent(resolved("a"))
	require.NoError(t, rec.Flush(context.Background()))

	stats := rec.Stats()
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Written)
	round, _ := sink.get("a")
	assert.Equal(t, []string{"hit 2c"}, round.Actions)
}

func TestRecorderFlushesWhenBufferFills(t *testing.T) {
	sink := newMemorySink()
	rec := newTestRecorder(t, sink, Config{FlushRounds: 2})

	rec.OnEvent(resolved("r1"))
	assert.Equal(t, 1, rec.Stats().Buffered)
	rec.OnEvent(resolved("r2"))

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	sink := newMemorySink()
	rec := newTestRecorder(t, sink, Config{Clock: clock, FlushInterval: time.Second})

	rec.OnEvent(resolved("r1"))
	require.Eventually(t, func() bool {
		clock.Advance(time.Second).MustWait(ctx)
		return sink.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecorderRetriesFailedFlush(t *testing.T) {
	ctx := context.Background()
	sink := newMemorySink()
	sink.fail = 1
	rec := newTestRecorder(t, sink, Config{})

	rec.OnEvent(resolved("r1"))
	err := rec.Flush(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRecorderDisabled)
	assert.Equal(t, 1, rec.Stats().Buffered)

	require.NoError(t, rec.Flush(ctx))
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 0, rec.Stats().Buffered)
}

func TestRecorderDisablesAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	sink := newMemorySink()
	sink.fail = -1
	rec := newTestRecorder(t, sink, Config{MaxFailures: 2})

	rec.OnEvent(resolved("r1"))
	require.Error(t, rec.Flush(ctx))
	require.ErrorIs(t, rec.Flush(ctx), ErrRecorderDisabled)

	stats := rec.Stats()
	assert.True(t, stats.Disabled)
	assert.Equal(t, 1, stats.Dropped)

	rec.OnEvent(resolved("r2"))
	assert.Equal(t, 0, rec.Stats().Buffered)
}

func TestRecorderShutdownFlushesAndClosesSink(t *testing.T) {
	sink := newMemorySink()
	rec := NewRecorder(sink, Config{Clock: quartz.NewMock(t)})

	rec.OnEvent(resolved("r1"))
	require.NoError(t, rec.Shutdown(context.Background()))
	require.NoError(t, rec.Shutdown(context.Background()))

	assert.Equal(t, 1, sink.count())
	assert.True(t, sink.closed)
}
