package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/simulator"
	"github.com/lox/vrfjack/internal/strategy"
)

// SimulateCmd plays rounds against a local oracle and prints a report
type SimulateCmd struct {
	Players    int           `short:"p" default:"4" help:"Concurrent player accounts"`
	Rounds     int           `short:"n" default:"1000" help:"Rounds per player"`
	Wager      uint64        `default:"100" help:"Opening wager"`
	MaxWager   uint64        `help:"Largest opening wager; wagers are drawn between --wager and this"`
	Collateral uint64        `help:"House collateral (0 sizes it from players and rounds)"`
	Seed       int64         `help:"Seed for reproducible runs (0 uses crypto randomness)"`
	Strategy   string        `default:"basic" enum:"basic,mimic" help:"Player policy (basic, mimic)"`
	Delay      time.Duration `help:"Oracle fulfilment delay"`
	Verbose    bool          `short:"v" help:"Print every engine event"`
	Debug      bool          `help:"Enable debug logging"`
}

func (c *SimulateCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, os.Stdout)
}

func (c *SimulateCmd) run(ctx context.Context, out io.Writer) error {
	policy, err := strategy.ByName(c.Strategy)
	if err != nil {
		return err
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive")
	}

	level := "warn"
	if c.Debug {
		level = "debug"
	}

	cfg := simulator.Config{
		Players:    c.Players,
		Rounds:     c.Rounds,
		Wager:      ledger.Amount(c.Wager),
		MaxWager:   ledger.Amount(c.MaxWager),
		Collateral: ledger.Amount(c.Collateral),
		Seed:       c.Seed,
		Policy:     policy,
		Delay:      c.Delay,
		Logger:     newLogger(level),
	}
	if c.Verbose {
		cfg.Subscriber = &eventPrinter{out: out, formatter: game.NewEventFormatter(true)}
	}

	report, err := simulator.New(cfg).Run(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, report.Render(game.NewDisplayStyles()))
	return err
}

// eventPrinter writes one line per engine event. Players publish
// concurrently, so writes are serialized.
type eventPrinter struct {
	mu        sync.Mutex
	out       io.Writer
	formatter *game.EventFormatter
}

func (p *eventPrinter) OnEvent(event game.GameEvent) {
	line := p.formatter.Format(event)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, line)
}
