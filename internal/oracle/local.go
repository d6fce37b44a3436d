package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/vrfjack/internal/randutil"
)

// LocalSource is the source name used by Local
const LocalSource Source = "local"

// ErrCoordinatorClosed is returned for requests made after Close
var ErrCoordinatorClosed = errors.New("oracle: coordinator closed")

// Local is an in-process coordinator. Each request is answered with a word
// from a WordSource once the configured delay has elapsed on the clock.
type Local struct {
	clock  quartz.Clock
	delay  time.Duration
	words  randutil.WordSource
	logger *log.Logger

	mu        sync.Mutex
	fulfiller Fulfiller
	timers    map[RequestID]*quartz.Timer
	wg        sync.WaitGroup
	closed    bool
}

// LocalOption configures a Local coordinator
type LocalOption func(*Local)

// WithClock sets the clock used for fulfilment delays
func WithClock(clock quartz.Clock) LocalOption {
	return func(l *Local) {
		l.clock = clock
	}
}

// WithDelay sets how long a request waits before it is fulfilled
func WithDelay(d time.Duration) LocalOption {
	return func(l *Local) {
		l.delay = d
	}
}

// WithWords sets the word source
func WithWords(words randutil.WordSource) LocalOption {
	return func(l *Local) {
		l.words = words
	}
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal creates a local coordinator. Without options it uses the real
// clock, no delay and crypto/rand words.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		clock:  quartz.NewReal(),
		words:  randutil.CryptoWords{},
		logger: log.New(io.Discard),
		timers: make(map[RequestID]*quartz.Timer),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithPrefix("oracle")
	return l
}

// Bind sets where fulfilments are delivered
func (l *Local) Bind(f Fulfiller) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fulfiller = f
}

// Source returns LocalSource
func (l *Local) Source() Source {
	return LocalSource
}

// RequestRandomWords draws the word now and schedules its delivery
func (l *Local) RequestRandomWords(ctx context.Context, id RequestID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	word, err := l.words.Word()
	if err != nil {
		return fmt.Errorf("request %d: %w", id, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrCoordinatorClosed
	}
	if l.fulfiller == nil {
		return fmt.Errorf("oracle: local coordinator has no fulfiller bound")
	}

	f := l.fulfiller
	deliver := func() {
		defer l.wg.Done()

		l.mu.Lock()
		delete(l.timers, id)
		l.mu.Unlock()

		if err := f.FulfillRandomWords(LocalSource, id, word); err != nil {
			l.logger.Warn("Fulfilment rejected", "request", id, "error", err)
			return
		}
		l.logger.Debug("Fulfilled request", "request", id)
	}

	l.wg.Add(1)
	if l.delay <= 0 {
		go deliver()
		return nil
	}
	l.timers[id] = l.clock.AfterFunc(l.delay, deliver, "oracle", "fulfil")
	return nil
}

// InFlight returns the number of scheduled but undelivered fulfilments
func (l *Local) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Close cancels scheduled fulfilments and waits for running ones to finish
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	for id, timer := range l.timers {
		if timer.Stop() {
			l.wg.Done()
		}
		delete(l.timers, id)
	}
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}
