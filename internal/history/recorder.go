package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/vrfjack/internal/game"
)

// ErrRecorderDisabled is returned by Flush once repeated sink failures have
// switched recording off
var ErrRecorderDisabled = errors.New("history: recording disabled after repeated failures")

// Sink persists finished rounds. WriteRounds may be called again with rounds
// it already stored when an earlier call failed part way, so writes must be
// idempotent per round id.
type Sink interface {
	WriteRounds(ctx context.Context, rounds []*Round) error
	Close() error
}

// Config configures a Recorder
type Config struct {
	FlushInterval time.Duration
	FlushRounds   int
	MaxFailures   int
	Clock         quartz.Clock
	Logger        *log.Logger
}

// Stats summarises what the recorder has seen
type Stats struct {
	Open     int  `json:"open"`
	Buffered int  `json:"buffered"`
	Written  int  `json:"written"`
	Dropped  int  `json:"dropped"`
	Disabled bool `json:"disabled"`
}

// Recorder assembles engine events into rounds and flushes finished rounds
// to a sink. Events may arrive in any order within a round.
type Recorder struct {
	cfg    Config
	sink   Sink
	logger *log.Logger

	mu       sync.Mutex
	open     map[string]*Round
	buffer   []*Round
	failures int
	written  int
	dropped  int
	disabled bool

	flushMu  sync.Mutex
	flushReq chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRecorder creates a recorder and starts its flush loop
func NewRecorder(sink Sink, cfg Config) *Recorder {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.FlushRounds <= 0 {
		cfg.FlushRounds = 100
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	r := &Recorder{
		cfg:      cfg,
		sink:     sink,
		logger:   cfg.Logger.WithPrefix("history"),
		open:     make(map[string]*Round),
		flushReq: make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// OnEvent implements game.EventSubscriber. Events that do not belong to a
// round are ignored.
func (r *Recorder) OnEvent(event game.GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled {
		return
	}

	switch e := event.(type) {
	case game.RequestedRandomWordEvent:
		round := r.round(e.Round, string(e.Account))
		round.RequestID = uint64(e.RequestID)
		round.Wager = uint64(e.Wager)
		round.Requested = e.Timestamp()
	case game.GameDealtEvent:
		round := r.round(e.Round, string(e.Account))
		round.RequestID = uint64(e.RequestID)
		round.InitialPlayer = cardStrings(e.PlayerHand)
		round.InitialDealer = cardStrings(e.DealerHand)
		round.Dealt = e.Timestamp()
	case game.GameHitEvent:
		round := r.round(e.Round, string(e.Account))
		round.Actions = append(round.Actions, "hit "+e.Card.String())
	case game.GameDoubledDownEvent:
		round := r.round(e.Round, string(e.Account))
		round.Actions = append(round.Actions, fmt.Sprintf("double %d", e.Paid))
	case game.GameSplitEvent:
		round := r.round(e.Round, string(e.Account))
		round.Actions = append(round.Actions, fmt.Sprintf("split %d", e.Paid))
	case game.GameResolvedEvent:
		round := r.round(e.Round, string(e.Account))
		round.Outcome = e.Outcome.String()
		round.Proceeds = uint64(e.Proceeds)
		round.FinalPlayer = cardStrings(e.PlayerHand)
		round.FinalDealer = cardStrings(e.DealerHand)
		round.PlayerScore = e.PlayerScore
		round.DealerScore = e.DealerScore
		round.Resolved = e.Timestamp()

		delete(r.open, e.Round)
		r.buffer = append(r.buffer, round)
		r.logger.Debug("Round complete", "round", round.ID, "account", round.Account, "outcome", round.Outcome)
		if len(r.buffer) >= r.cfg.FlushRounds {
			r.requestFlush()
		}
	}
}

// round returns the open record for id, creating it on first sight
func (r *Recorder) round(id, account string) *Round {
	if round, ok := r.open[id]; ok {
		return round
	}
	round := &Round{ID: id, Account: account, Actions: []string{}}
	r.open[id] = round
	return round
}

// Flush writes buffered rounds to the sink. On failure the rounds stay
// buffered; after MaxFailures consecutive failures recording is disabled and
// buffered rounds are dropped.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if r.disabled {
		r.mu.Unlock()
		return ErrRecorderDisabled
	}
	rounds := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(rounds) == 0 {
		return nil
	}

	err := r.sink.WriteRounds(ctx, rounds)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.failures++
		if r.failures >= r.cfg.MaxFailures {
			r.disabled = true
			r.dropped += len(rounds) + len(r.buffer)
			r.buffer = nil
			r.open = make(map[string]*Round)
			r.logger.Error("Round history disabled after repeated failures", "dropped", r.dropped, "error", err)
			return fmt.Errorf("%w: %w", ErrRecorderDisabled, err)
		}
		r.buffer = append(rounds, r.buffer...)
		return fmt.Errorf("history: write rounds: %w", err)
	}

	r.failures = 0
	r.written += len(rounds)
	r.logger.Debug("Flushed rounds", "count", len(rounds))
	return nil
}

// Stats returns counters for the recorder
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Open:     len(r.open),
		Buffered: len(r.buffer),
		Written:  r.written,
		Dropped:  r.dropped,
		Disabled: r.disabled,
	}
}

// Shutdown stops the flush loop, flushes what is buffered and closes the
// sink. Rounds that never resolved are discarded.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()

	err := r.Flush(ctx)
	if errors.Is(err, ErrRecorderDisabled) {
		err = nil
	}
	return errors.Join(err, r.sink.Close())
}

func (r *Recorder) run() {
	defer r.wg.Done()
	ticker := r.cfg.Clock.NewTicker(r.cfg.FlushInterval, "history", "flush")
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flushLogged()
		case <-r.flushReq:
			r.flushLogged()
		case <-r.stop:
			return
		}
	}
}

func (r *Recorder) flushLogged() {
	if err := r.Flush(context.Background()); err != nil && !errors.Is(err, ErrRecorderDisabled) {
		r.logger.Error("Round history flush failed", "error", err)
	}
}

func (r *Recorder) requestFlush() {
	select {
	case r.flushReq <- struct{}{}:
	default:
	}
}
