package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/gameid"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
	"github.com/lox/vrfjack/internal/rules"
)

var (
	// ErrGameNotFunded is returned when starting a round with no proceeds
	ErrGameNotFunded = errors.New("game: game not funded")

	// ErrGameMustNotBeStarted is returned when an operation needs the account idle
	ErrGameMustNotBeStarted = errors.New("game: game must not be started")

	// ErrGameMustBeStarted is returned when a player action arrives with no dealt round
	ErrGameMustBeStarted = errors.New("game: game must be started")

	// ErrWrongAmountToDoubleWager is returned when a double or split does not match the wager
	ErrWrongAmountToDoubleWager = errors.New("game: wrong amount to double wager")

	// ErrPlayerHandMustBeAPair is returned when splitting anything but a pair
	ErrPlayerHandMustBeAPair = errors.New("game: player hand must be a pair")
)

// table is the per-account round state
type table struct {
	deck    *deck.Deck
	player  rules.Hand
	dealer  rules.Hand
	pending oracle.RequestID
	round   string
}

// Config holds the dependencies of an Engine
type Config struct {
	// Owner is the house account allowed to deposit and withdraw collateral
	Owner ledger.AccountID

	// Coordinator requests randomness. If it has a Bind(oracle.Fulfiller)
	// method the engine binds itself as the fulfiller.
	Coordinator oracle.Coordinator

	EventBus EventBus
	Clock    quartz.Clock
	RoundIDs *gameid.Generator
	Logger   *log.Logger
}

// Engine runs one blackjack round per account against a shared pool. All
// state transitions are serialized and events are published after the
// transition is complete, so subscribers may call back into the engine.
type Engine struct {
	mu          sync.RWMutex
	ledger      *ledger.Ledger
	gateway     *oracle.Gateway
	coordinator oracle.Coordinator
	tables      map[ledger.AccountID]*table

	bus      EventBus
	clock    quartz.Clock
	roundIDs *gameid.Generator
	logger   *log.Logger
}

// NewEngine creates an engine from cfg
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Coordinator == nil {
		return nil, errors.New("game: coordinator is required")
	}
	if cfg.Owner == "" {
		return nil, errors.New("game: owner is required")
	}
	if cfg.EventBus == nil {
		cfg.EventBus = NewEventBus()
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.RoundIDs == nil {
		cfg.RoundIDs = gameid.NewGenerator(cfg.Clock, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	e := &Engine{
		ledger:      ledger.New(cfg.Owner),
		gateway:     oracle.NewGateway(cfg.Coordinator.Source()),
		coordinator: cfg.Coordinator,
		tables:      make(map[ledger.AccountID]*table),
		bus:         cfg.EventBus,
		clock:       cfg.Clock,
		roundIDs:    cfg.RoundIDs,
		logger:      cfg.Logger.WithPrefix("engine"),
	}

	if b, ok := cfg.Coordinator.(interface{ Bind(oracle.Fulfiller) }); ok {
		b.Bind(e)
	}
	return e, nil
}

// EventBus returns the bus events are published on
func (e *Engine) EventBus() EventBus {
	return e.bus
}

// Owner returns the house account
func (e *Engine) Owner() ledger.AccountID {
	return e.ledger.Owner()
}

// apply runs fn under the write lock and publishes its events afterwards
func (e *Engine) apply(fn func() ([]GameEvent, error)) error {
	e.mu.Lock()
	events, err := fn()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(events...)
	return nil
}

func (e *Engine) publish(events ...GameEvent) {
	for _, event := range events {
		e.bus.Publish(event)
	}
}

// Deposit adds owner collateral to the pool
func (e *Engine) Deposit(ctx context.Context, from ledger.AccountID, amount ledger.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		if err := e.ledger.Deposit(from, amount); err != nil {
			return nil, fmt.Errorf("deposit: %w", err)
		}
		e.logger.Info("Collateral deposited", "amount", amount, "pool", e.ledger.Pool())
		return []GameEvent{CollateralDepositedEvent{
			Owner:     from,
			Amount:    amount,
			Pool:      e.ledger.Pool(),
			timestamp: e.clock.Now(),
		}}, nil
	})
}

// Fund adds amount to the account's wager
func (e *Engine) Fund(ctx context.Context, account ledger.AccountID, amount ledger.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		if e.busy(account) {
			return nil, ErrGameMustNotBeStarted
		}
		if err := e.ledger.Fund(account, amount); err != nil {
			return nil, fmt.Errorf("fund: %w", err)
		}
		e.logger.Debug("Game funded", "account", account, "amount", amount, "proceeds", e.ledger.Proceeds(account))
		return []GameEvent{GameFundedEvent{
			Account:   account,
			Amount:    amount,
			timestamp: e.clock.Now(),
		}}, nil
	})
}

// Start asks the oracle for a seed for a new round. The round is dealt when
// the seed arrives through FulfillRandomWords.
func (e *Engine) Start(ctx context.Context, account ledger.AccountID) (oracle.RequestID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	wager := e.ledger.Proceeds(account)
	if wager == 0 {
		e.mu.Unlock()
		return 0, ErrGameNotFunded
	}
	if e.busy(account) {
		e.mu.Unlock()
		return 0, ErrGameMustNotBeStarted
	}
	round, err := e.roundIDs.Generate()
	if err != nil {
		e.mu.Unlock()
		return 0, fmt.Errorf("start: %w", err)
	}
	committed := !e.ledger.InPlayers(account)
	if err := e.ledger.Commit(account); err != nil {
		e.mu.Unlock()
		return 0, fmt.Errorf("start: %w", err)
	}
	id := e.gateway.Register(account)
	t := e.table(account)
	t.pending = id
	t.round = round
	e.mu.Unlock()

	if err := e.coordinator.RequestRandomWords(ctx, id); err != nil {
		e.mu.Lock()
		e.gateway.Cancel(id)
		if t, ok := e.tables[account]; ok && t.pending == id {
			delete(e.tables, account)
		}
		if committed {
			e.ledger.Release(account)
		}
		e.mu.Unlock()
		e.logger.Warn("Randomness request failed", "account", account, "request", id, "error", err)
		return 0, fmt.Errorf("request randomness: %w", err)
	}

	e.logger.Debug("Requested random word", "account", account, "request", id, "round", round)
	e.publish(RequestedRandomWordEvent{
		Account:   account,
		RequestID: id,
		Round:     round,
		Wager:     wager,
		timestamp: e.clock.Now(),
	})
	return id, nil
}

// FulfillRandomWords deals a round with the delivered word. It fails for
// untrusted sources and for request IDs that are unknown or already used,
// without changing any state.
func (e *Engine) FulfillRandomWords(src oracle.Source, id oracle.RequestID, word *big.Int) error {
	return e.apply(func() ([]GameEvent, error) {
		account, err := e.gateway.Lookup(src, id)
		if err != nil {
			return nil, err
		}

		d := deck.New()
		if err := d.Shuffle(word); err != nil {
			return nil, fmt.Errorf("fulfil request %d: %w", id, err)
		}
		player, dealer, err := deal(d)
		if err != nil {
			return nil, fmt.Errorf("fulfil request %d: %w", id, err)
		}
		if _, err := e.gateway.Consume(src, id); err != nil {
			return nil, err
		}

		t := e.table(account)
		t.deck = d
		t.pending = 0
		t.player = player
		t.dealer = dealer
		e.ledger.SetPlaying(account, true)

		e.logger.Debug("Dealt hand", "account", account, "round", t.round,
			"player", t.player, "dealer", t.dealer)

		return []GameEvent{GameDealtEvent{
			Account:    account,
			RequestID:  id,
			Round:      t.round,
			PlayerHand: t.player.Clone(),
			DealerHand: t.dealer.Clone(),
			timestamp:  e.clock.Now(),
		}}, nil
	})
}

// WithdrawToPlayer pays out all of the account's proceeds
func (e *Engine) WithdrawToPlayer(ctx context.Context, account ledger.AccountID) (ledger.Amount, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var paid ledger.Amount
	err := e.apply(func() ([]GameEvent, error) {
		if e.busy(account) {
			return nil, ErrGameMustNotBeStarted
		}
		var err error
		paid, err = e.ledger.WithdrawToPlayer(account)
		if err != nil {
			return nil, fmt.Errorf("withdraw: %w", err)
		}
		delete(e.tables, account)
		e.logger.Info("Player withdrew", "account", account, "amount", paid)
		return []GameEvent{PlayerWithdrawEvent{
			Account:   account,
			Amount:    paid,
			timestamp: e.clock.Now(),
		}}, nil
	})
	return paid, err
}

// WithdrawToOwner moves amount from the pool to the owner
func (e *Engine) WithdrawToOwner(ctx context.Context, caller ledger.AccountID, amount ledger.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(func() ([]GameEvent, error) {
		if err := e.ledger.WithdrawToOwner(caller, amount); err != nil {
			return nil, fmt.Errorf("owner withdraw: %w", err)
		}
		e.logger.Info("Owner withdrew", "amount", amount, "pool", e.ledger.Pool())
		return []GameEvent{OwnerWithdrawEvent{
			Owner:     caller,
			Amount:    amount,
			Pool:      e.ledger.Pool(),
			timestamp: e.clock.Now(),
		}}, nil
	})
}

// busy reports whether the account is playing or waiting for a seed
func (e *Engine) busy(account ledger.AccountID) bool {
	if e.ledger.IsPlaying(account) {
		return true
	}
	t, ok := e.tables[account]
	return ok && t.pending != 0
}

func (e *Engine) table(account ledger.AccountID) *table {
	t, ok := e.tables[account]
	if !ok {
		t = &table{}
		e.tables[account] = t
	}
	return t
}

// activeTable returns the table of a dealt, unresolved round
func (e *Engine) activeTable(account ledger.AccountID) (*table, error) {
	t, ok := e.tables[account]
	if !ok || !e.ledger.IsPlaying(account) || t.deck == nil {
		return nil, ErrGameMustBeStarted
	}
	return t, nil
}

// deal draws player, dealer, player, dealer
func deal(d *deck.Deck) (player, dealer rules.Hand, err error) {
	player = make(rules.Hand, 0, 2)
	dealer = make(rules.Hand, 0, 2)
	for range 2 {
		for _, hand := range []*rules.Hand{&player, &dealer} {
			card, err := d.Draw()
			if err != nil {
				return nil, nil, err
			}
			*hand = append(*hand, card)
		}
	}
	return player, dealer, nil
}
