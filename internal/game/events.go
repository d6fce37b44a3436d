package game

import (
	"slices"
	"sync"
	"time"

	"github.com/lox/vrfjack/internal/deck"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/oracle"
	"github.com/lox/vrfjack/internal/rules"
)

// EventType represents a game event type with type safety
type EventType string

// EventType constants for game domain events
const (
	EventTypeGameFunded             EventType = "game_funded"
	EventTypeRequestedRandomWord    EventType = "requested_random_word"
	EventTypeGameDealt              EventType = "game_dealt"
	EventTypeGameHit                EventType = "game_hit"
	EventTypeGameWon                EventType = "game_won"
	EventTypeGameLost               EventType = "game_lost"
	EventTypeGameTied               EventType = "game_tied"
	EventTypeGameDoubledDown        EventType = "game_doubled_down"
	EventTypeGameSplit              EventType = "game_split"
	EventTypeGameSurrendered        EventType = "game_surrendered"
	EventTypePlayerWithdrawAllFunds EventType = "player_withdraw_all_funds"
	EventTypeOwnerWithdraw          EventType = "owner_withdraw"
	EventTypeCollateralDeposited    EventType = "collateral_deposited"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// GameEvent represents anything that happens to an account or the pool
type GameEvent interface {
	EventType() EventType
	Timestamp() time.Time
}

// AccountEvent is implemented by events that concern a single account
type AccountEvent interface {
	GameEvent
	AccountID() ledger.AccountID
}

// GameFundedEvent is published when a player adds to their wager
type GameFundedEvent struct {
	Account   ledger.AccountID `json:"account"`
	Amount    ledger.Amount    `json:"amount"`
	timestamp time.Time
}

func (e GameFundedEvent) EventType() EventType        { return EventTypeGameFunded }
func (e GameFundedEvent) Timestamp() time.Time        { return e.timestamp }
func (e GameFundedEvent) AccountID() ledger.AccountID { return e.Account }

// RequestedRandomWordEvent is published when a round asks the oracle for a seed
type RequestedRandomWordEvent struct {
	Account   ledger.AccountID `json:"account"`
	RequestID oracle.RequestID `json:"request_id"`
	Round     string           `json:"round"`
	Wager     ledger.Amount    `json:"wager"`
	timestamp time.Time
}

func (e RequestedRandomWordEvent) EventType() EventType        { return EventTypeRequestedRandomWord }
func (e RequestedRandomWordEvent) Timestamp() time.Time        { return e.timestamp }
func (e RequestedRandomWordEvent) AccountID() ledger.AccountID { return e.Account }

// GameDealtEvent is published once the seed arrived and the first four cards are out
type GameDealtEvent struct {
	Account    ledger.AccountID `json:"account"`
	RequestID  oracle.RequestID `json:"request_id"`
	Round      string           `json:"round"`
	PlayerHand rules.Hand       `json:"player_hand"`
	DealerHand rules.Hand       `json:"dealer_hand"`
	timestamp  time.Time
}

func (e GameDealtEvent) EventType() EventType        { return EventTypeGameDealt }
func (e GameDealtEvent) Timestamp() time.Time        { return e.timestamp }
func (e GameDealtEvent) AccountID() ledger.AccountID { return e.Account }

// GameHitEvent is published for every card drawn into the player's hand
type GameHitEvent struct {
	Account   ledger.AccountID `json:"account"`
	Round     string           `json:"round"`
	Card      deck.Card        `json:"card"`
	timestamp time.Time
}

func (e GameHitEvent) EventType() EventType        { return EventTypeGameHit }
func (e GameHitEvent) Timestamp() time.Time        { return e.timestamp }
func (e GameHitEvent) AccountID() ledger.AccountID { return e.Account }

// GameDoubledDownEvent is published when the wager is doubled
type GameDoubledDownEvent struct {
	Account   ledger.AccountID `json:"account"`
	Round     string           `json:"round"`
	Paid      ledger.Amount    `json:"paid"`
	timestamp time.Time
}

func (e GameDoubledDownEvent) EventType() EventType        { return EventTypeGameDoubledDown }
func (e GameDoubledDownEvent) Timestamp() time.Time        { return e.timestamp }
func (e GameDoubledDownEvent) AccountID() ledger.AccountID { return e.Account }

// GameSplitEvent is published when a pair is split
type GameSplitEvent struct {
	Account    ledger.AccountID `json:"account"`
	Round      string           `json:"round"`
	Paid       ledger.Amount    `json:"paid"`
	PlayerHand rules.Hand       `json:"player_hand"`
	timestamp  time.Time
}

func (e GameSplitEvent) EventType() EventType        { return EventTypeGameSplit }
func (e GameSplitEvent) Timestamp() time.Time        { return e.timestamp }
func (e GameSplitEvent) AccountID() ledger.AccountID { return e.Account }

// GameResolvedEvent is published when a round ends. Its event type depends on
// the outcome.
type GameResolvedEvent struct {
	Account     ledger.AccountID `json:"account"`
	Round       string           `json:"round"`
	Outcome     Outcome          `json:"outcome"`
	PlayerHand  rules.Hand       `json:"player_hand"`
	DealerHand  rules.Hand       `json:"dealer_hand"`
	PlayerScore int              `json:"player_score"`
	DealerScore int              `json:"dealer_score"`
	Proceeds    ledger.Amount    `json:"proceeds"`
	timestamp   time.Time
}

func (e GameResolvedEvent) EventType() EventType {
	switch e.Outcome {
	case OutcomeWon:
		return EventTypeGameWon
	case OutcomeTied:
		return EventTypeGameTied
	case OutcomeSurrendered:
		return EventTypeGameSurrendered
	default:
		return EventTypeGameLost
	}
}
func (e GameResolvedEvent) Timestamp() time.Time        { return e.timestamp }
func (e GameResolvedEvent) AccountID() ledger.AccountID { return e.Account }

// PlayerWithdrawEvent is published when a player takes out all their proceeds
type PlayerWithdrawEvent struct {
	Account   ledger.AccountID `json:"account"`
	Amount    ledger.Amount    `json:"amount"`
	timestamp time.Time
}

func (e PlayerWithdrawEvent) EventType() EventType        { return EventTypePlayerWithdrawAllFunds }
func (e PlayerWithdrawEvent) Timestamp() time.Time        { return e.timestamp }
func (e PlayerWithdrawEvent) AccountID() ledger.AccountID { return e.Account }

// OwnerWithdrawEvent is published when the owner takes money out of the pool
type OwnerWithdrawEvent struct {
	Owner     ledger.AccountID `json:"owner"`
	Amount    ledger.Amount    `json:"amount"`
	Pool      ledger.Amount    `json:"pool"`
	timestamp time.Time
}

func (e OwnerWithdrawEvent) EventType() EventType { return EventTypeOwnerWithdraw }
func (e OwnerWithdrawEvent) Timestamp() time.Time { return e.timestamp }

// CollateralDepositedEvent is published when the owner adds to the pool
type CollateralDepositedEvent struct {
	Owner     ledger.AccountID `json:"owner"`
	Amount    ledger.Amount    `json:"amount"`
	Pool      ledger.Amount    `json:"pool"`
	timestamp time.Time
}

func (e CollateralDepositedEvent) EventType() EventType { return EventTypeCollateralDeposited }
func (e CollateralDepositedEvent) Timestamp() time.Time { return e.timestamp }

// EventSubscriber can subscribe to game events
type EventSubscriber interface {
	OnEvent(event GameEvent)
}

// EventSubscriberFunc adapts a function to EventSubscriber. Func values are
// not comparable, so they cannot be unsubscribed.
type EventSubscriberFunc func(event GameEvent)

// OnEvent calls f
func (f EventSubscriberFunc) OnEvent(event GameEvent) { f(event) }

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event GameEvent)
}

// SimpleEventBus is an in-memory event bus. Events are delivered
// synchronously on the publishing goroutine.
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber from receiving events
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, sub := range bus.subscribers {
		if sub == subscriber {
			bus.subscribers = slices.Delete(bus.subscribers, i, i+1)
			break
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event GameEvent) {
	bus.mu.RLock()
	subscribers := slices.Clone(bus.subscribers)
	bus.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.OnEvent(event)
	}
}
