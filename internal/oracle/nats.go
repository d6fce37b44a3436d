package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// NATSSource is the source name used by the NATS coordinator
const NATSSource Source = "nats"

// Default subjects for the NATS coordinator
const (
	DefaultRequestSubject = "vrf.requests"
	DefaultFulfilSubject  = "vrf.fulfilments"
)

var errMalformedWord = errors.New("oracle: malformed random word")

// RequestMessage is published for every randomness request
type RequestMessage struct {
	RequestID RequestID `json:"request_id"`
}

// FulfilmentMessage is what the randomness service publishes back
type FulfilmentMessage struct {
	RequestID  RequestID `json:"request_id"`
	RandomWord string    `json:"random_word"`
}

// Word decodes the hex encoded random word
func (m FulfilmentMessage) Word() (*big.Int, error) {
	return ParseWord(m.RandomWord)
}

// ParseWord parses a 0x-prefixed hex string holding at most 256 bits
func ParseWord(s string) (*big.Int, error) {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok || hex == "" {
		return nil, fmt.Errorf("%w: %q", errMalformedWord, s)
	}
	word, ok := new(big.Int).SetString(hex, 16)
	if !ok || word.Sign() < 0 || word.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %q", errMalformedWord, s)
	}
	return word, nil
}

// FormatWord renders a word the way ParseWord reads it
func FormatWord(word *big.Int) string {
	return "0x" + word.Text(16)
}

// NATSConfig holds connection settings for the NATS coordinator
type NATSConfig struct {
	URL            string
	Token          string
	RequestSubject string
	FulfilSubject  string
}

// DialNATS connects to the NATS server described by cfg
func DialNATS(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("vrfjack oracle"),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return conn, nil
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS is a coordinator that talks to an external randomness service over
// NATS subjects.
type NATS struct {
	pub            publisher
	conn           *nats.Conn
	requestSubject string
	fulfilSubject  string
	logger         *log.Logger

	mu        sync.Mutex
	fulfiller Fulfiller
	sub       *nats.Subscription
}

// NewNATS creates a coordinator on an existing connection
func NewNATS(conn *nats.Conn, cfg NATSConfig, logger *log.Logger) *NATS {
	n := newNATS(conn, cfg, logger)
	n.conn = conn
	return n
}

func newNATS(pub publisher, cfg NATSConfig, logger *log.Logger) *NATS {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	n := &NATS{
		pub:            pub,
		requestSubject: cfg.RequestSubject,
		fulfilSubject:  cfg.FulfilSubject,
		logger:         logger.WithPrefix("oracle"),
	}
	if n.requestSubject == "" {
		n.requestSubject = DefaultRequestSubject
	}
	if n.fulfilSubject == "" {
		n.fulfilSubject = DefaultFulfilSubject
	}
	return n
}

// Source returns NATSSource
func (n *NATS) Source() Source {
	return NATSSource
}

// Bind sets where fulfilments are delivered
func (n *NATS) Bind(f Fulfiller) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fulfiller = f
}

// Subscribe starts consuming fulfilments
func (n *NATS) Subscribe() error {
	if n.conn == nil {
		return fmt.Errorf("oracle: nats coordinator has no connection")
	}
	sub, err := n.conn.Subscribe(n.fulfilSubject, n.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", n.fulfilSubject, err)
	}

	n.mu.Lock()
	n.sub = sub
	n.mu.Unlock()

	n.logger.Info("Listening for fulfilments", "subject", n.fulfilSubject)
	return nil
}

// RequestRandomWords publishes the request
func (n *NATS) RequestRandomWords(ctx context.Context, id RequestID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(RequestMessage{RequestID: id})
	if err != nil {
		return err
	}
	if err := n.pub.Publish(n.requestSubject, data); err != nil {
		return fmt.Errorf("failed to publish request %d: %w", id, err)
	}
	n.logger.Debug("Published request", "request", id, "subject", n.requestSubject)
	return nil
}

// Close drops the subscription. The connection belongs to the caller.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub == nil {
		return nil
	}
	err := n.sub.Unsubscribe()
	n.sub = nil
	return err
}

func (n *NATS) handleMessage(msg *nats.Msg) {
	var m FulfilmentMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		n.logger.Warn("Dropping malformed fulfilment", "error", err)
		return
	}
	word, err := m.Word()
	if err != nil {
		n.logger.Warn("Dropping malformed fulfilment", "request", m.RequestID, "error", err)
		return
	}

	n.mu.Lock()
	f := n.fulfiller
	n.mu.Unlock()
	if f == nil {
		n.logger.Warn("Dropping fulfilment, nothing bound", "request", m.RequestID)
		return
	}

	if err := f.FulfillRandomWords(NATSSource, m.RequestID, word); err != nil {
		n.logger.Warn("Fulfilment rejected", "request", m.RequestID, "error", err)
	}
}
