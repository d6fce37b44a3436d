package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createRoundsTable = `
	CREATE TABLE IF NOT EXISTS rounds (
		id            TEXT PRIMARY KEY,
		account       TEXT NOT NULL,
		request_id    BIGINT NOT NULL,
		wager         BIGINT NOT NULL,
		requested_at  TIMESTAMPTZ,
		dealt_at      TIMESTAMPTZ,
		resolved_at   TIMESTAMPTZ NOT NULL,
		initial_player TEXT[] NOT NULL,
		initial_dealer TEXT[] NOT NULL,
		actions       TEXT[] NOT NULL,
		final_player  TEXT[],
		final_dealer  TEXT[],
		player_score  INTEGER NOT NULL,
		dealer_score  INTEGER NOT NULL,
		outcome       TEXT NOT NULL,
		proceeds      BIGINT NOT NULL
	)
`

const insertRound = `
	INSERT INTO rounds (
		id, account, request_id, wager, requested_at, dealt_at, resolved_at,
		initial_player, initial_dealer, actions, final_player, final_dealer,
		player_score, dealer_score, outcome, proceeds
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO NOTHING
`

// db is the part of pgxpool.Pool the sink uses
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresSink stores rounds in a rounds table
type PostgresSink struct {
	db    db
	close func()
}

// NewPostgresSink connects a pool to url and ensures the rounds table exists
func NewPostgresSink(ctx context.Context, url string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("history: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping postgres: %w", err)
	}

	s := &PostgresSink{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the rounds table if it is missing
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createRoundsTable); err != nil {
		return fmt.Errorf("history: create rounds table: %w", err)
	}
	return nil
}

// WriteRounds implements Sink. Rounds already stored are skipped.
func (s *PostgresSink) WriteRounds(ctx context.Context, rounds []*Round) error {
	if len(rounds) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rounds {
		batch.Queue(insertRound, roundArgs(r)...)
	}

	results := s.db.SendBatch(ctx, batch)
	for _, r := range rounds {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("history: insert round %s: %w", r.ID, err)
		}
	}
	return results.Close()
}

// Close implements Sink
func (s *PostgresSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func roundArgs(r *Round) []any {
	return []any{
		r.ID,
		r.Account,
		int64(r.RequestID),
		int64(r.Wager),
		nullTime(r.Requested),
		nullTime(r.Dealt),
		r.Resolved,
		nonNil(r.InitialPlayer),
		nonNil(r.InitialDealer),
		nonNil(r.Actions),
		r.FinalPlayer,
		r.FinalDealer,
		r.PlayerScore,
		r.DealerScore,
		r.Outcome,
		int64(r.Proceeds),
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
