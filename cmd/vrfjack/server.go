package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/lox/vrfjack/internal/config"
	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/history"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
	"github.com/lox/vrfjack/internal/randutil"
	"github.com/lox/vrfjack/internal/server"
)

const auditInterval = time.Minute

// ServerCmd runs the HTTP server
type ServerCmd struct {
	Config      string  `short:"c" default:"vrfjack.hcl" type:"path" help:"HCL configuration file (defaults apply when missing)"`
	Env         string  `default:".env" help:"Dotenv file with secrets"`
	Addr        string  `help:"Listen address, overrides the configuration file"`
	Debug       bool    `help:"Enable debug logging"`
	Coordinator string  `help:"Randomness coordinator: mock, local or nats"`
	Sink        string  `help:"History sink: none, file or postgres"`
	Collateral  *uint64 `help:"House collateral deposited at startup"`
	Seed        *int64  `help:"Seed for the local coordinator's words (testing only)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.ServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}
	a, err := newApp(ctx, cfg, addr, logger)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

// loadConfig merges the file, the environment and the flags, in that order
func (c *ServerCmd) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadEnv(c.Env); err != nil {
		return nil, err
	}

	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if c.Coordinator != "" {
		cfg.Oracle.Coordinator = c.Coordinator
	}
	if c.Sink != "" {
		cfg.History.Sink = c.Sink
	}
	if c.Collateral != nil {
		cfg.House.Collateral = *c.Collateral
	}
	if c.Seed != nil {
		cfg.Oracle.Seed = *c.Seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app is a wired engine with its coordinator, recorder and HTTP server
type app struct {
	cfg      *config.Config
	addr     string
	logger   *log.Logger
	clock    quartz.Clock
	engine   *game.Engine
	server   *server.Server
	recorder *history.Recorder
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, addr string, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, addr: addr, logger: logger, clock: quartz.NewReal()}
	if err := a.wire(ctx); err != nil {
		_ = a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	coordinator, mock, err := a.coordinator()
	if err != nil {
		return err
	}

	owner := ledger.AccountID(cfg.House.Owner)
	a.engine, err = game.NewEngine(game.Config{
		Owner:       owner,
		Coordinator: coordinator,
		Clock:       a.clock,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if n, ok := coordinator.(*oracle.NATS); ok {
		if err := n.Subscribe(); err != nil {
			return err
		}
	}

	if cfg.House.Collateral > 0 {
		if err := a.engine.Deposit(ctx, owner, ledger.Amount(cfg.House.Collateral)); err != nil {
			return fmt.Errorf("deposit collateral: %w", err)
		}
	}

	var stats func() any
	if a.recorder, err = a.historyRecorder(ctx); err != nil {
		return err
	}
	if a.recorder != nil {
		a.engine.EventBus().Subscribe(a.recorder)
		stats = func() any { return a.recorder.Stats() }
	}

	a.server, err = server.New(a.engine, server.Config{
		Addr:           a.addr,
		JWTSecret:      cfg.Secrets.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		Mock:           mock,
		Stats:          stats,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("server: %w (set VRFJACK_JWT_SECRET)", err)
	}
	return nil
}

// coordinator builds the configured randomness coordinator. The mock is
// returned separately so the server can expose manual fulfilment.
func (a *app) coordinator() (oracle.Coordinator, *oracle.Mock, error) {
	switch a.cfg.Oracle.Coordinator {
	case config.CoordinatorMock:
		m := oracle.NewMock()
		a.closers = append(a.closers, func() error { m.Close(); return nil })
		a.logger.Warn("Using mock coordinator, the owner fulfils requests by hand")
		return m, m, nil

	case config.CoordinatorNATS:
		conn, err := oracle.DialNATS(a.cfg.NATS())
		if err != nil {
			return nil, nil, err
		}
		n := oracle.NewNATS(conn, a.cfg.NATS(), a.logger)
		a.closers = append(a.closers, n.Close, drainer(conn))
		return n, nil, nil

	default:
		delay, err := a.cfg.OracleDelay()
		if err != nil {
			return nil, nil, err
		}
		opts := []oracle.LocalOption{oracle.WithClock(a.clock), oracle.WithDelay(delay), oracle.WithLogger(a.logger)}
		if a.cfg.Oracle.Seed != 0 {
			a.logger.Warn("Local coordinator words are seeded and predictable", "seed", a.cfg.Oracle.Seed)
			opts = append(opts, oracle.WithWords(randutil.NewSeededWords(a.cfg.Oracle.Seed)))
		}
		l := oracle.NewLocal(opts...)
		a.closers = append(a.closers, l.Close)
		return l, nil, nil
	}
}

func drainer(conn *nats.Conn) func() error {
	return func() error {
		if err := conn.Drain(); err != nil {
			conn.Close()
			return err
		}
		return nil
	}
}

// historyRecorder returns nil when recording is disabled
func (a *app) historyRecorder(ctx context.Context) (*history.Recorder, error) {
	var sink history.Sink
	switch a.cfg.History.Sink {
	case config.SinkFile:
		fs, err := history.NewFileSink(a.cfg.History.Dir)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Recording rounds to files", "dir", fs.Dir())
		sink = fs
	case config.SinkPostgres:
		ps, err := history.NewPostgresSink(ctx, a.cfg.Secrets.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Recording rounds to postgres")
		sink = ps
	default:
		return nil, nil
	}

	interval, err := a.cfg.FlushInterval()
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	return history.NewRecorder(sink, history.Config{
		FlushInterval: interval,
		FlushRounds:   a.cfg.History.FlushRounds,
		Clock:         a.clock,
		Logger:        a.logger,
	}), nil
}

// run serves until ctx is cancelled, auditing the pool meanwhile
func (a *app) run(ctx context.Context) error {
	a.logger.Info("Starting vrfjack server",
		"addr", a.addr,
		"owner", a.cfg.House.Owner,
		"coordinator", a.cfg.Oracle.Coordinator,
		"history", a.cfg.History.Sink,
		"pool", a.engine.Pool())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		a.audit(gctx, auditInterval)
		return nil
	})
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := a.close(shutdownCtx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// audit logs whenever the pool stops covering its obligations
func (a *app) audit(ctx context.Context, every time.Duration) {
	ticker := a.clock.NewTicker(every, "server", "audit")
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.engine.CheckInvariants(); err != nil {
				a.logger.Error("Pool invariant violated", "error", err)
				continue
			}
			a.logger.Debug("Pool audited", "pool", a.engine.Pool())
		}
	}
}

// close flushes history and releases the coordinator
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		if err := a.recorder.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
		a.recorder = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
