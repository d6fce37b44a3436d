package game

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
	"github.com/lox/vrfjack/internal/rules"
)

// DefaultTestOwner is the house account of engines built by NewTestEngine
const DefaultTestOwner ledger.AccountID = "house"

// TestEngineOption configures test engine creation
type TestEngineOption func(*testEngineBuilder)

type testEngineBuilder struct {
	owner      ledger.AccountID
	collateral ledger.Amount
	eventBus   EventBus
	clock      quartz.Clock
	logger     *log.Logger
}

// Test engine options
func WithOwner(owner ledger.AccountID) TestEngineOption {
	return func(b *testEngineBuilder) { b.owner = owner }
}

func WithCollateral(amount ledger.Amount) TestEngineOption {
	return func(b *testEngineBuilder) { b.collateral = amount }
}

func WithEventBus(eventBus EventBus) TestEngineOption {
	return func(b *testEngineBuilder) { b.eventBus = eventBus }
}

func WithClock(clock quartz.Clock) TestEngineOption {
	return func(b *testEngineBuilder) { b.clock = clock }
}

func WithLogger(logger *log.Logger) TestEngineOption {
	return func(b *testEngineBuilder) { b.logger = logger }
}

// NewTestEngine creates an engine on a mock coordinator. Fulfilments are
// delivered by calling Fulfill on the returned mock.
func NewTestEngine(opts ...TestEngineOption) (*Engine, *oracle.Mock) {
	builder := &testEngineBuilder{
		owner:    DefaultTestOwner,
		eventBus: NewEventBus(),
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(builder)
	}

	coord := oracle.NewMock()
	engine, err := NewEngine(Config{
		Owner:       builder.owner,
		Coordinator: coord,
		EventBus:    builder.eventBus,
		Clock:       builder.clock,
		Logger:      builder.logger,
	})
	if err != nil {
		panic(err)
	}
	if builder.collateral > 0 {
		if err := engine.Deposit(context.Background(), builder.owner, builder.collateral); err != nil {
			panic(err)
		}
	}
	return engine, coord
}

// RigRound puts a funded, idle account into an active round with the given
// deck and hands, skipping the oracle. The next card drawn is the last card
// of d.
func RigRound(e *Engine, account ledger.AccountID, d *deck.Deck, player, dealer rules.Hand) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ledger.Proceeds(account) == 0 {
		return ErrGameNotFunded
	}
	if e.busy(account) {
		return ErrGameMustNotBeStarted
	}
	if err := e.ledger.Commit(account); err != nil {
		return err
	}

	t := e.table(account)
	t.deck = d
	t.player = player.Clone()
	t.dealer = dealer.Clone()
	t.round = "rigged"
	e.ledger.SetPlaying(account, true)
	return nil
}

// EventRecorder collects published events for assertions
type EventRecorder struct {
	mu     sync.Mutex
	events []GameEvent
}

// NewEventRecorder creates a recorder and subscribes it to bus
func NewEventRecorder(bus EventBus) *EventRecorder {
	r := &EventRecorder{}
	bus.Subscribe(r)
	return r
}

// OnEvent records the event
func (r *EventRecorder) OnEvent(event GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns the recorded events
func (r *EventRecorder) Events() []GameEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GameEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the types of the recorded events in order
func (r *EventRecorder) Types() []EventType {
	events := r.Events()
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

// Last returns the most recent event, or nil
func (r *EventRecorder) Last() GameEvent {
	events := r.Events()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

// Reset drops the recorded events
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
