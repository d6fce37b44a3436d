// Package oracle implements the request/fulfil protocol with an external
// verifiable randomness service.
//
// The Gateway hands out request identifiers and remembers which account each
// request belongs to until it is fulfilled exactly once. A Coordinator is the
// transport to the randomness service itself.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/lox/vrfjack/internal/ledger"
)

var (
	// ErrNoSuchRequest is returned for fulfilments of unknown or already consumed requests
	ErrNoSuchRequest = errors.New("oracle: nonexistent request")

	// ErrUntrustedOracle is returned when a fulfilment arrives from an unexpected source
	ErrUntrustedOracle = errors.New("oracle: fulfilment from untrusted source")
)

// RequestID identifies a randomness request. IDs start at 1 and increase by one.
type RequestID uint64

// Source names the channel a fulfilment arrived on
type Source string

// Coordinator asks the randomness service for a word. The word is delivered
// later, out of band, through a Fulfiller.
type Coordinator interface {
	Source() Source
	RequestRandomWords(ctx context.Context, id RequestID) error
}

// Fulfiller receives random words from a coordinator
type Fulfiller interface {
	FulfillRandomWords(src Source, id RequestID, word *big.Int) error
}

// FulfillerFunc adapts a function to the Fulfiller interface
type FulfillerFunc func(src Source, id RequestID, word *big.Int) error

// FulfillRandomWords calls f
func (f FulfillerFunc) FulfillRandomWords(src Source, id RequestID, word *big.Int) error {
	return f(src, id, word)
}

// Gateway maps outstanding request IDs to the accounts that made them
type Gateway struct {
	mu      sync.Mutex
	trusted Source
	lastID  RequestID
	pending map[RequestID]ledger.AccountID
}

// NewGateway creates a gateway that accepts fulfilments only from trusted
func NewGateway(trusted Source) *Gateway {
	return &Gateway{
		trusted: trusted,
		pending: make(map[RequestID]ledger.AccountID),
	}
}

// Trusted returns the source fulfilments must come from
func (g *Gateway) Trusted() Source {
	return g.trusted
}

// Register records a new request for account and returns its ID
func (g *Gateway) Register(account ledger.AccountID) RequestID {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastID++
	g.pending[g.lastID] = account
	return g.lastID
}

// Lookup returns the account waiting on id without consuming it
func (g *Gateway) Lookup(src Source, id RequestID) (ledger.AccountID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookup(src, id)
}

// Consume removes id from the pending table and returns its account. A second
// call for the same id fails with ErrNoSuchRequest.
func (g *Gateway) Consume(src Source, id RequestID) (ledger.AccountID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	account, err := g.lookup(src, id)
	if err != nil {
		return "", err
	}
	delete(g.pending, id)
	return account, nil
}

// Cancel drops a pending request. It is used when the coordinator refused to
// take the request in the first place.
func (g *Gateway) Cancel(id RequestID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, id)
}

// Pending returns the number of outstanding requests
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Gateway) lookup(src Source, id RequestID) (ledger.AccountID, error) {
	if src != g.trusted {
		return "", fmt.Errorf("%w: got %q, want %q", ErrUntrustedOracle, src, g.trusted)
	}
	account, ok := g.pending[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNoSuchRequest, id)
	}
	return account, nil
}
