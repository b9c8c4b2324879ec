package accounts

import (
	"context"
	"sync"

	solanago "github.com/gagliardetto/solana-go"
)

var _ Database = (*Memory)(nil)

// Memory is an in-process Database. Atomic units are serialised by a mutex,
// which is the host's lock on every account an instruction touches.
type Memory struct {
	mu       sync.Mutex
	accounts map[solanago.PublicKey]Account
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[solanago.PublicKey]Account)}
}

func (m *Memory) Get(ctx context.Context, address solanago.PublicKey) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return get(m.accounts, address)
}

func (m *Memory) Create(ctx context.Context, account Account) error {
	return m.Atomic(ctx, func(s Store) error { return s.Create(ctx, account) })
}

func (m *Memory) Update(ctx context.Context, account Account) error {
	return m.Atomic(ctx, func(s Store) error { return s.Update(ctx, account) })
}

func (m *Memory) Atomic(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o := &overlay{base: m.accounts, writes: make(map[solanago.PublicKey]Account)}
	if err := fn(o); err != nil {
		return err
	}
	for addr, acct := range o.writes {
		m.accounts[addr] = acct
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func get(accounts map[solanago.PublicKey]Account, address solanago.PublicKey) (Account, error) {
	acct, ok := accounts[address]
	if !ok {
		return Account{}, notFound(address)
	}
	return acct.clone(), nil
}

// overlay buffers the writes of one atomic unit on top of the committed map.
type overlay struct {
	base   map[solanago.PublicKey]Account
	writes map[solanago.PublicKey]Account
}

func (o *overlay) Get(ctx context.Context, address solanago.PublicKey) (Account, error) {
	if acct, ok := o.writes[address]; ok {
		return acct.clone(), nil
	}
	return get(o.base, address)
}

func (o *overlay) Create(ctx context.Context, account Account) error {
	if _, err := o.Get(ctx, account.Address); err == nil {
		return exists(account.Address)
	}
	o.writes[account.Address] = account.clone()
	return nil
}

func (o *overlay) Update(ctx context.Context, account Account) error {
	current, err := o.Get(ctx, account.Address)
	if err != nil {
		return err
	}
	if !current.Owner.Equals(account.Owner) {
		return ownerChanged(account.Address, current.Owner, account.Owner)
	}
	o.writes[account.Address] = account.clone()
	return nil
}
