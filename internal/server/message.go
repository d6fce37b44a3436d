package server

import (
	"encoding/json"
	"time"

	"github.com/lox/vrfjack/internal/game"
)

// Message is the envelope for every websocket frame
type Message struct {
	Type      game.EventType  `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps an engine event
func NewMessage(event game.GameEvent) (*Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      event.EventType(),
		Data:      data,
		Timestamp: event.Timestamp(),
	}, nil
}

// Request bodies

type AmountRequest struct {
	Amount uint64 `json:"amount"`
}

type FulfilRequest struct {
	RequestID uint64 `json:"request_id"`
	Word      string `json:"random_word"`
}

// Response bodies

type StartResponse struct {
	RequestID uint64        `json:"request_id"`
	Account   game.Snapshot `json:"account"`
}

type WithdrawResponse struct {
	Amount  uint64        `json:"amount"`
	Account game.Snapshot `json:"account"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
