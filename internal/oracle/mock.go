package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
)

// MockSource is the source name used by Mock
const MockSource Source = "mock"

// ErrMockClosed is returned by Mock.RequestRandomWords after Close
var ErrMockClosed = errors.New("oracle: mock coordinator closed")

// Mock is a coordinator that only records requests. Tests deliver words
// explicitly with Fulfill, in any order and at any time.
type Mock struct {
	mu        sync.Mutex
	fulfiller Fulfiller
	requests  []RequestID
	closed    bool
}

// NewMock creates a mock coordinator
func NewMock() *Mock {
	return &Mock{}
}

// Bind sets where fulfilments are delivered
func (m *Mock) Bind(f Fulfiller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fulfiller = f
}

// Source returns MockSource
func (m *Mock) Source() Source {
	return MockSource
}

// RequestRandomWords records the request
func (m *Mock) RequestRandomWords(_ context.Context, id RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	m.requests = append(m.requests, id)
	return nil
}

// Requests returns every request ID seen so far
func (m *Mock) Requests() []RequestID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

// Last returns the most recent request ID, or 0
func (m *Mock) Last() RequestID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return 0
	}
	return m.requests[len(m.requests)-1]
}

// Fulfill delivers word for id from MockSource
func (m *Mock) Fulfill(id RequestID, word *big.Int) error {
	m.mu.Lock()
	f := m.fulfiller
	m.mu.Unlock()

	if f == nil {
		return fmt.Errorf("oracle: mock has no fulfiller bound")
	}
	return f.FulfillRandomWords(MockSource, id, word)
}

// Close makes further requests fail, simulating an unreachable oracle
func (m *Mock) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
