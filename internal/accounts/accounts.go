// Package accounts stores the host ledger's account slots: an address, the
// program that owns it, and opaque data. Every mutating sequence runs inside
// Atomic so that an instruction's writes are applied all together or not at all.
package accounts

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Account is one slot in the host ledger.
type Account struct {
	Address solanago.PublicKey
	Owner   solanago.PublicKey
	Data    []byte
}

func (a Account) clone() Account {
	a.Data = append([]byte(nil), a.Data...)
	return a
}

// Store reads and writes account slots.
type Store interface {
	// Get returns ErrAccountNotFound when no slot exists at address.
	Get(ctx context.Context, address solanago.PublicKey) (Account, error)
	// Create allocates a new slot and fails with ErrAccountExists if one is present.
	Create(ctx context.Context, account Account) error
	// Update overwrites the data of an existing slot. The owner cannot change.
	Update(ctx context.Context, account Account) error
}

// Transactor runs fn against a Store whose writes become visible only if fn
// returns nil.
type Transactor interface {
	Atomic(ctx context.Context, fn func(Store) error) error
}

// Database is a Store that also supports atomic units.
type Database interface {
	Store
	Transactor
	Close() error
}

func notFound(address solanago.PublicKey) error {
	return fmt.Errorf("%w: %s", ErrAccountNotFound, address)
}

func exists(address solanago.PublicKey) error {
	return fmt.Errorf("%w: %s", ErrAccountExists, address)
}

func ownerChanged(address, have, want solanago.PublicKey) error {
	return fmt.Errorf("account %s is owned by %s, refusing update from %s", address, have, want)
}
