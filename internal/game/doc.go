// Package game implements per-account blackjack rounds against a shared pool.
//
// The main type is Engine. Each account runs at most one round at a time and
// moves through the states Idle, Funded, AwaitingRandomness and Active:
//
//	engine.Fund(ctx, "alice", wager)         // Funded
//	id, _ := engine.Start(ctx, "alice")      // AwaitingRandomness
//	// the oracle later calls
//	engine.FulfillRandomWords(src, id, word) // Active: deck shuffled, four cards dealt
//	engine.Hit(ctx, "alice")
//	engine.Stand(ctx, "alice")               // resolved, back to Funded or Idle
//
// Randomness comes only from the oracle. The delivered word seeds a keccak
// Fisher-Yates shuffle, so a round can be replayed from its seed. Fulfilments
// are accepted once per request and only from the coordinator's source.
//
// # Funds
//
// Wagers go into the pool held by the ledger package. The pool must be able
// to pay every locked stake twice; Fund, DoubleDown and Split are rejected
// when it cannot. Winning pays twice the wager in play, a tie returns it,
// surrender returns half and a loss returns nothing.
//
// # Events
//
// Every transition publishes GameEvent values on the EventBus after the
// engine lock is released. The history recorder and the websocket stream
// are both subscribers.
//
// # Testing
//
// NewTestEngine builds an engine on a mock coordinator with collateral in the
// pool, and RigRound installs a known deck and hands:
//
//	engine, coord := game.NewTestEngine(game.WithCollateral(8 * wager))
//	engine.Fund(ctx, "alice", wager)
//	game.RigRound(engine, "alice", deck.NewFromCards(cards), player, dealer)
package game
