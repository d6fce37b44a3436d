// Package ledger tracks per-account proceeds against a single pooled balance.
//
// The pool holds every wager plus the owner's collateral. Accounts in the
// players set have their proceeds locked, and the pool must always be able to
// pay each of them twice their stake:
//
//	Available = Pool - 2*Locked
//
// Balances that have been settled but not yet withdrawn are tracked as Owed
// and are never released to the owner. The pool always holds at least
// 2*Locked + Owed.
//
// A Ledger is not safe for concurrent use. The game engine owns it and
// serializes every call.
package ledger

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strings"
)

var (
	// ErrOnlyOwner is returned when a caller other than the owner requests an owner operation
	ErrOnlyOwner = errors.New("ledger: only the owner may perform this operation")

	// ErrInsufficientPoolCollateral is returned when the pool cannot cover a new wager twice over
	ErrInsufficientPoolCollateral = errors.New("ledger: insufficient pool collateral")

	// ErrInsufficientAvailableProceeds is returned when the owner asks for more than is free
	ErrInsufficientAvailableProceeds = errors.New("ledger: amount exceeds available proceeds")

	// ErrInsufficientPoolBalance is returned when a payout would take the pool below zero
	ErrInsufficientPoolBalance = errors.New("ledger: insufficient pool balance")

	// ErrZeroAmount is returned when an operation requires a positive amount
	ErrZeroAmount = errors.New("ledger: amount must be positive")

	// ErrAmountOverflow is returned when an amount would overflow
	ErrAmountOverflow = errors.New("ledger: amount overflow")

	// ErrUnknownAccount is returned when an operation targets an account with no record
	ErrUnknownAccount = errors.New("ledger: unknown account")
)

// AccountID identifies a player or the owner
type AccountID string

// Amount is a non-negative quantity in the smallest unit of the host currency
type Amount uint64

// Account is the ledger record for one player
type Account struct {
	ID        AccountID `json:"id"`
	Proceeds  Amount    `json:"proceeds"`
	IsPlaying bool      `json:"is_playing"`
}

// Ledger holds the pool balance and all account records
type Ledger struct {
	owner    AccountID
	pool     Amount
	accounts map[AccountID]*Account
	players  []AccountID
}

// New creates an empty ledger owned by owner
func New(owner AccountID) *Ledger {
	return &Ledger{
		owner:    owner,
		accounts: make(map[AccountID]*Account),
	}
}

// Owner returns the owner account
func (l *Ledger) Owner() AccountID {
	return l.owner
}

// Pool returns the pooled balance
func (l *Ledger) Pool() Amount {
	return l.pool
}

// Account returns a copy of the account record. Unknown accounts are returned
// as zero records with ok=false.
func (l *Ledger) Account(id AccountID) (Account, bool) {
	acct, ok := l.accounts[id]
	if !ok {
		return Account{ID: id}, false
	}
	return *acct, true
}

// Accounts returns copies of every account record, sorted by ID
func (l *Ledger) Accounts() []Account {
	out := make([]Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		out = append(out, *acct)
	}
	slices.SortFunc(out, func(a, b Account) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

// Proceeds returns the proceeds of an account, zero if unknown
func (l *Ledger) Proceeds(id AccountID) Amount {
	acct, _ := l.Account(id)
	return acct.Proceeds
}

// IsPlaying reports whether the account has a dealt, unresolved game
func (l *Ledger) IsPlaying(id AccountID) bool {
	acct, _ := l.Account(id)
	return acct.IsPlaying
}

// Players returns the players set in insertion order
func (l *Ledger) Players() []AccountID {
	return slices.Clone(l.players)
}

// InPlayers reports whether the account is in the players set
func (l *Ledger) InPlayers(id AccountID) bool {
	return slices.Contains(l.players, id)
}

// Locked returns the sum of proceeds over the players set
func (l *Ledger) Locked() Amount {
	var total Amount
	for _, id := range l.players {
		total += l.accounts[id].Proceeds
	}
	return total
}

// Owed returns the proceeds of accounts outside the players set, which
// belong to players and are waiting to be withdrawn
func (l *Ledger) Owed() Amount {
	var total Amount
	for id, acct := range l.accounts {
		if !l.InPlayers(id) {
			total += acct.Proceeds
		}
	}
	return total
}

// Available returns Pool - 2*Locked, floored at zero
func (l *Ledger) Available() Amount {
	reserve, ok := double(l.Locked())
	if !ok || reserve > l.pool {
		return 0
	}
	return l.pool - reserve
}

// Reserve returns what the pool must hold to pay every locked stake twice
// and every owed balance once
func (l *Ledger) Reserve() (Amount, bool) {
	reserve, ok := double(l.Locked())
	if !ok {
		return 0, false
	}
	return add(reserve, l.Owed())
}

// Solvent reports whether the pool covers Reserve. Every ledger operation
// preserves it.
func (l *Ledger) Solvent() bool {
	reserve, ok := l.Reserve()
	return ok && reserve <= l.pool
}

// Withdrawable returns how much the owner may take out of the pool: the
// available proceeds less the owed balances, so the pool stays solvent.
func (l *Ledger) Withdrawable() Amount {
	reserve, ok := l.Reserve()
	if !ok || reserve >= l.pool {
		return 0
	}
	return l.pool - reserve
}

// Deposit adds owner collateral to the pool
func (l *Ledger) Deposit(from AccountID, amount Amount) error {
	if from != l.owner {
		return ErrOnlyOwner
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	pool, ok := add(l.pool, amount)
	if !ok {
		return ErrAmountOverflow
	}
	l.pool = pool
	return nil
}

// Fund adds amount to the pool and to the account's proceeds, and puts the
// account in the players set. The pool must be able to cover twice the new
// locked total on top of what it already owes.
func (l *Ledger) Fund(id AccountID, amount Amount) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if err := l.checkCollateral(id, amount); err != nil {
		return err
	}

	acct := l.ensure(id)
	proceeds, ok := add(acct.Proceeds, amount)
	if !ok {
		return ErrAmountOverflow
	}

	l.pool += amount
	acct.Proceeds = proceeds
	if !l.InPlayers(id) {
		l.players = append(l.players, id)
	}
	return nil
}

// Raise adds amount to the stake of an account already in the players set,
// used when a wager is doubled.
func (l *Ledger) Raise(id AccountID, amount Amount) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	acct, ok := l.accounts[id]
	if !ok {
		return ErrUnknownAccount
	}
	if err := l.checkCollateral(id, amount); err != nil {
		return err
	}
	proceeds, ok := add(acct.Proceeds, amount)
	if !ok {
		return ErrAmountOverflow
	}

	l.pool += amount
	acct.Proceeds = proceeds
	if !l.InPlayers(id) {
		l.players = append(l.players, id)
	}
	return nil
}

// Commit puts an account holding settled proceeds back into the players set
// so its balance is locked again for a new round. Those proceeds stop counting
// as owed, so the pool must cover 2*(Locked+proceeds) + (Owed-proceeds).
func (l *Ledger) Commit(id AccountID) error {
	acct, ok := l.accounts[id]
	if !ok || acct.Proceeds == 0 {
		return ErrUnknownAccount
	}
	if l.InPlayers(id) {
		return nil
	}

	locked, ok := add(l.Locked(), acct.Proceeds)
	if !ok {
		return ErrAmountOverflow
	}
	reserve, ok := double(locked)
	if !ok {
		return ErrInsufficientPoolCollateral
	}
	required, ok := add(reserve, l.Owed()-acct.Proceeds)
	if !ok || required > l.pool {
		return ErrInsufficientPoolCollateral
	}
	l.players = append(l.players, id)
	return nil
}

// Release removes an account from the players set without touching its
// proceeds. It undoes a Commit whose round never started.
func (l *Ledger) Release(id AccountID) {
	l.removePlayer(id)
}

// SetPlaying flips the playing flag of an account
func (l *Ledger) SetPlaying(id AccountID, playing bool) {
	l.ensure(id).IsPlaying = playing
}

// Settle ends the account's round: proceeds are set to the final value, the
// account stops playing and leaves the players set.
func (l *Ledger) Settle(id AccountID, proceeds Amount) {
	acct := l.ensure(id)
	acct.Proceeds = proceeds
	acct.IsPlaying = false
	l.removePlayer(id)
	l.prune(id)
}

// WithdrawToPlayer pays all proceeds of the account out of the pool and
// returns the amount paid. Callers check the game status first.
func (l *Ledger) WithdrawToPlayer(id AccountID) (Amount, error) {
	acct, ok := l.accounts[id]
	if !ok {
		return 0, nil
	}
	if acct.Proceeds > l.pool {
		return 0, fmt.Errorf("%w: owes %d, pool holds %d", ErrInsufficientPoolBalance, acct.Proceeds, l.pool)
	}

	paid := acct.Proceeds
	l.pool -= paid
	acct.Proceeds = 0
	l.removePlayer(id)
	l.prune(id)
	return paid, nil
}

// WithdrawToOwner moves amount from the pool to the owner
func (l *Ledger) WithdrawToOwner(caller AccountID, amount Amount) error {
	if caller != l.owner {
		return ErrOnlyOwner
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if limit := l.Withdrawable(); amount > limit {
		return fmt.Errorf("%w: requested %d, withdrawable %d", ErrInsufficientAvailableProceeds, amount, limit)
	}
	l.pool -= amount
	return nil
}

// checkCollateral verifies Pool+amount >= 2*(Locked+settled+amount) +
// (Owed-settled), where settled is the account's own proceeds when it sits
// outside the players set. Joining the set moves them from owed to locked.
func (l *Ledger) checkCollateral(id AccountID, amount Amount) error {
	var settled Amount
	if acct, ok := l.accounts[id]; ok && !l.InPlayers(id) {
		settled = acct.Proceeds
	}

	pool, ok := add(l.pool, amount)
	if !ok {
		return ErrAmountOverflow
	}
	locked, ok := add(l.Locked(), settled)
	if !ok {
		return ErrAmountOverflow
	}
	if locked, ok = add(locked, amount); !ok {
		return ErrAmountOverflow
	}
	reserve, ok := double(locked)
	if !ok {
		return ErrInsufficientPoolCollateral
	}
	required, ok := add(reserve, l.Owed()-settled)
	if !ok || required > pool {
		return ErrInsufficientPoolCollateral
	}
	return nil
}

func (l *Ledger) ensure(id AccountID) *Account {
	acct, ok := l.accounts[id]
	if !ok {
		acct = &Account{ID: id}
		l.accounts[id] = acct
	}
	return acct
}

func (l *Ledger) removePlayer(id AccountID) {
	l.players = slices.DeleteFunc(l.players, func(p AccountID) bool { return p == id })
}

// prune drops records that carry no information any more
func (l *Ledger) prune(id AccountID) {
	if acct, ok := l.accounts[id]; ok && acct.Proceeds == 0 && !acct.IsPlaying {
		delete(l.accounts, id)
	}
}

func add(a, b Amount) (Amount, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	return Amount(sum), carry == 0
}

func double(a Amount) (Amount, bool) {
	return add(a, a)
}
