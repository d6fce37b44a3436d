// Package simulator plays many concurrent blackjack rounds against a local
// oracle and reports how the pool and the players fared.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
	"github.com/lox/vrfjack/internal/randutil"
	"github.com/lox/vrfjack/internal/statistics"
	"github.com/lox/vrfjack/internal/strategy"
)

const owner ledger.AccountID = "house"

// Config holds configuration for running simulations
type Config struct {
	Players    int           // Concurrent player accounts
	Rounds     int           // Rounds per player
	Wager      ledger.Amount // Smallest opening wager
	MaxWager   ledger.Amount // Largest opening wager; zero means always Wager
	Collateral ledger.Amount // House deposit; zero sizes it from players and wagers
	Seed       int64         // Zero draws words from crypto/rand
	Policy     strategy.Policy
	Delay      time.Duration // Oracle fulfilment delay
	Timeout    time.Duration // How long to wait for a deal
	Subscriber game.EventSubscriber
	Logger     *log.Logger
}

// Simulator runs blackjack round simulations
type Simulator struct {
	config Config
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	if config.Players <= 0 {
		config.Players = 1
	}
	if config.Wager == 0 {
		config.Wager = 100
	}
	if config.MaxWager < config.Wager {
		config.MaxWager = config.Wager
	}
	if config.Collateral == 0 {
		// Enough for every player to double twice and win a streak
		config.Collateral = ledger.Amount(config.Players) * config.MaxWager * ledger.Amount(max(8, config.Rounds))
	}
	if config.Policy == nil {
		config.Policy = strategy.NewBasic()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5*time.Second + config.Delay
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard)
	}
	return &Simulator{config: config}
}

// Run plays every round and returns the report. The pool invariants are
// checked after each round.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	cfg := s.config
	logger := cfg.Logger.WithPrefix("simulator")

	opts := []oracle.LocalOption{oracle.WithDelay(cfg.Delay), oracle.WithLogger(cfg.Logger)}
	if cfg.Seed != 0 {
		opts = append(opts, oracle.WithWords(randutil.NewSeededWords(cfg.Seed)))
	}
	coordinator := oracle.NewLocal(opts...)
	defer func() { _ = coordinator.Close() }()

	bus := game.NewEventBus()
	dispatch := newDispatcher()
	bus.Subscribe(dispatch)
	if cfg.Subscriber != nil {
		bus.Subscribe(cfg.Subscriber)
	}

	engine, err := game.NewEngine(game.Config{
		Owner:       owner,
		Coordinator: coordinator,
		EventBus:    bus,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Deposit(ctx, owner, cfg.Collateral); err != nil {
		return nil, fmt.Errorf("deposit collateral: %w", err)
	}

	report := &Report{
		Policy:    cfg.Policy.Name(),
		Players:   cfg.Players,
		Rounds:    cfg.Rounds,
		Seed:      cfg.Seed,
		PoolStart: engine.Pool(),
		Stats:     &statistics.Statistics{},
	}
	started := time.Now()

	logger.Info("Starting simulation", "players", cfg.Players, "rounds", cfg.Rounds,
		"policy", report.Policy, "collateral", cfg.Collateral)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Players; i++ {
		id := ledger.AccountID(fmt.Sprintf("player-%d", i+1))
		p := &player{
			id:     id,
			engine: engine,
			config: cfg,
			rng:    randutil.New(cfg.Seed + int64(i)),
			stats:  &statistics.Statistics{},
			events: dispatch.register(id),
			logger: logger.With("player", id),
		}
		g.Go(func() error {
			if err := p.play(ctx); err != nil {
				return err
			}
			mu.Lock()
			report.Stats.Merge(p.stats)
			report.Wagered += p.wagered
			report.Paid += p.paid
			report.Refused += p.refused
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.PoolEnd = engine.Pool()
	report.Elapsed = time.Since(started)

	if report.Stats.Rounds > 0 {
		if err := report.Stats.Validate(); err != nil {
			return nil, fmt.Errorf("statistics validation failed: %w", err)
		}
	}
	if err := report.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Simulation complete", "rounds", report.Stats.Rounds,
		"house_profit", report.HouseProfit(), "elapsed", report.Elapsed)
	return report, nil
}

// player drives one account through its rounds
type player struct {
	id     ledger.AccountID
	engine *game.Engine
	config Config
	rng    *rand.Rand
	stats  *statistics.Statistics
	events <-chan game.GameEvent
	logger *log.Logger

	wagered ledger.Amount
	paid    ledger.Amount
	refused int
}

// errHouseCovered ends a player's session when the pool can no longer take
// their wager
var errHouseCovered = errors.New("pool cannot cover wager")

func (p *player) play(ctx context.Context) error {
	for round := 0; round < p.config.Rounds; round++ {
		result, err := p.playRound(ctx)
		if errors.Is(err, errHouseCovered) {
			p.refused = p.config.Rounds - round
			p.logger.Warn("Pool exhausted, leaving table", "rounds_left", p.refused)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s round %d: %w", p.id, round+1, err)
		}
		p.stats.Add(result)
		if err := p.engine.CheckInvariants(); err != nil {
			return fmt.Errorf("%s round %d: invariant violated: %w", p.id, round+1, err)
		}
	}
	return nil
}

func (p *player) wager() ledger.Amount {
	spread := uint64(p.config.MaxWager - p.config.Wager)
	if spread == 0 {
		return p.config.Wager
	}
	return p.config.Wager + ledger.Amount(p.rng.Uint64N(spread+1))
}

func (p *player) playRound(ctx context.Context) (statistics.RoundResult, error) {
	wager := p.wager()
	if err := p.engine.Fund(ctx, p.id, wager); err != nil {
		if errors.Is(err, ledger.ErrInsufficientPoolCollateral) {
			return statistics.RoundResult{}, errHouseCovered
		}
		return statistics.RoundResult{}, fmt.Errorf("fund: %w", err)
	}
	paidIn := wager

	id, err := p.engine.Start(ctx, p.id)
	if errors.Is(err, ledger.ErrInsufficientPoolCollateral) {
		if _, werr := p.engine.WithdrawToPlayer(ctx, p.id); werr != nil {
			return statistics.RoundResult{}, fmt.Errorf("withdraw unplayed wager: %w", werr)
		}
		return statistics.RoundResult{}, errHouseCovered
	}
	if err != nil {
		return statistics.RoundResult{}, fmt.Errorf("start: %w", err)
	}

	ev, err := p.waitFor(ctx, func(ev game.GameEvent) bool {
		d, ok := ev.(game.GameDealtEvent)
		return ok && d.RequestID == id
	})
	if err != nil {
		return statistics.RoundResult{}, fmt.Errorf("waiting for request %d: %w", id, err)
	}
	round := ev.(game.GameDealtEvent).Round

	var doubled, split bool
	for p.engine.IsPlaying(p.id) {
		snap := p.engine.Snapshot(p.id)
		action := p.config.Policy.Decide(snap.PlayerHand, snap.DealerHand[0])

		switch action {
		case strategy.DoubleDown, strategy.Split:
			stake := snap.Proceeds
			if action == strategy.DoubleDown {
				err = p.engine.DoubleDown(ctx, p.id, stake)
			} else {
				err = p.engine.Split(ctx, p.id, stake)
			}
			if errors.Is(err, ledger.ErrInsufficientPoolCollateral) {
				p.logger.Debug("Pool cannot cover raise, playing on", "action", action)
				err = p.fallback(ctx, snap)
				break
			}
			if err == nil {
				paidIn += stake
				doubled = doubled || action == strategy.DoubleDown
				split = split || action == strategy.Split
			}
		case strategy.Surrender:
			err = p.engine.Surrender(ctx, p.id)
		case strategy.Hit:
			err = p.engine.Hit(ctx, p.id)
		default:
			err = p.engine.Stand(ctx, p.id)
		}
		if err != nil {
			return statistics.RoundResult{}, fmt.Errorf("%s: %w", action, err)
		}
	}

	ev, err = p.waitFor(ctx, func(ev game.GameEvent) bool {
		r, ok := ev.(game.GameResolvedEvent)
		return ok && r.Round == round
	})
	if err != nil {
		return statistics.RoundResult{}, fmt.Errorf("waiting for round %s: %w", round, err)
	}
	resolved := ev.(game.GameResolvedEvent)

	paidOut, err := p.engine.WithdrawToPlayer(ctx, p.id)
	if err != nil {
		return statistics.RoundResult{}, fmt.Errorf("withdraw: %w", err)
	}
	p.wagered += paidIn
	p.paid += paidOut
	p.drain()

	return statistics.RoundResult{
		Net:     (float64(paidOut) - float64(paidIn)) / float64(wager),
		Outcome: resolved.Outcome.String(),
		Doubled: doubled,
		Split:   split,
		Busted:  resolved.Outcome == game.OutcomeLost && len(resolved.PlayerHand) == 0,
		Seed:    p.config.Seed,
	}, nil
}

// fallback plays a hand the way the dealer would
func (p *player) fallback(ctx context.Context, snap game.Snapshot) error {
	if (strategy.Mimic{}).Decide(snap.PlayerHand, snap.DealerHand[0]) == strategy.Hit {
		return p.engine.Hit(ctx, p.id)
	}
	return p.engine.Stand(ctx, p.id)
}

// waitFor reads account events until match returns true
func (p *player) waitFor(ctx context.Context, match func(game.GameEvent) bool) (game.GameEvent, error) {
	timer := time.NewTimer(p.config.Timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-p.events:
			if match(ev) {
				return ev, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("timed out after %v", p.config.Timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// drain discards events left over from the finished round
func (p *player) drain() {
	for {
		select {
		case <-p.events:
		default:
			return
		}
	}
}

// dispatcher routes account events to the goroutine playing that account.
// A round publishes a bounded number of events and the player drains its
// channel after every round, so sends never block for long.
type dispatcher struct {
	mu    sync.RWMutex
	chans map[ledger.AccountID]chan game.GameEvent
}

func newDispatcher() *dispatcher {
	return &dispatcher{chans: make(map[ledger.AccountID]chan game.GameEvent)}
}

func (d *dispatcher) register(id ledger.AccountID) <-chan game.GameEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan game.GameEvent, 128)
	d.chans[id] = ch
	return ch
}

func (d *dispatcher) OnEvent(event game.GameEvent) {
	ae, ok := event.(game.AccountEvent)
	if !ok {
		return
	}
	d.mu.RLock()
	ch, ok := d.chans[ae.AccountID()]
	d.mu.RUnlock()
	if ok {
		ch <- event
	}
}
