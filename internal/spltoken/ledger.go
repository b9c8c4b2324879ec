// Package spltoken is an in-process token ledger with the token program's
// account layouts and authority rules. It keeps its mints and token accounts
// in an accounts.Store, owned by the token program ID.
package spltoken

import (
	"context"
	"errors"
	"fmt"
	"math"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
)

var (
	ErrInvalidAccountData  = errors.New("invalid account data")
	ErrInvalidAccountOwner = errors.New("account not owned by the token program")
	ErrUninitialized       = errors.New("account not initialized")
	ErrOwnerRequired       = errors.New("account owner cannot be cleared")
	ErrMintMismatch        = errors.New("account does not belong to mint")
	ErrAccountFrozen       = errors.New("account is frozen")
	ErrOverflow            = errors.New("amount overflow")
)

var _ custody.Gateway = (*Ledger)(nil)

// Ledger implements custody.Gateway over an account store.
type Ledger struct {
	accounts accounts.Store
	invoker  solanago.PublicKey
	logger   *zap.Logger
}

// New returns a ledger that accepts PDA signatures issued by invoker.
func New(store accounts.Store, invoker solanago.PublicKey, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		accounts: store,
		invoker:  invoker,
		logger:   logger.Named("spltoken"),
	}
}

func (l *Ledger) InitializeMint(ctx context.Context, mint pda.Signer, decimals uint8, mintAuthority solanago.PublicKey, freezeAuthority *solanago.PublicKey) error {
	if err := l.checkProof(mint); err != nil {
		return err
	}

	data, err := EncodeMint(custody.Mint{
		MintAuthority:   &mintAuthority,
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: freezeAuthority,
	})
	if err != nil {
		return err
	}
	err = l.accounts.Create(ctx, accounts.Account{
		Address: mint.Key(),
		Owner:   token.ProgramID,
		Data:    data,
	})
	if errors.Is(err, accounts.ErrAccountExists) {
		return fmt.Errorf("%w: mint %s", custody.ErrAlreadyInitialized, mint.Key())
	}
	if err != nil {
		return fmt.Errorf("failed to create mint %s: %w", mint.Key(), err)
	}
	l.logger.Debug("mint initialized", zap.Stringer("mint", mint.Key()), zap.Uint8("decimals", decimals))
	return nil
}

// CreateAssociatedAccount creates owner's associated account for mint, or
// returns the existing one.
func (l *Ledger) CreateAssociatedAccount(ctx context.Context, owner, mint solanago.PublicKey) (solanago.PublicKey, error) {
	if _, err := l.Mint(ctx, mint); err != nil {
		return solanago.PublicKey{}, err
	}
	address, _, err := pda.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return solanago.PublicKey{}, err
	}

	existing, err := l.TokenAccount(ctx, address)
	switch {
	case err == nil:
		if !existing.Mint.Equals(mint) || !existing.Owner.Equals(owner) {
			return solanago.PublicKey{}, fmt.Errorf("%w: associated account %s holds mint %s owner %s", ErrInvalidAccountData, address, existing.Mint, existing.Owner)
		}
		return address, nil
	case !errors.Is(err, accounts.ErrAccountNotFound):
		return solanago.PublicKey{}, err
	}

	data, err := EncodeTokenAccount(custody.TokenAccount{
		Mint:           mint,
		Owner:          owner,
		State:          custody.AccountInitialized,
		CloseAuthority: &owner,
	})
	if err != nil {
		return solanago.PublicKey{}, err
	}
	if err := l.accounts.Create(ctx, accounts.Account{Address: address, Owner: token.ProgramID, Data: data}); err != nil {
		return solanago.PublicKey{}, fmt.Errorf("failed to create associated account %s: %w", address, err)
	}
	l.logger.Debug("associated account created", zap.Stringer("account", address), zap.Stringer("owner", owner))
	return address, nil
}

func (l *Ledger) MintTo(ctx context.Context, mintAddress, destination solanago.PublicKey, authority custody.Authority, amount uint64) error {
	if err := l.checkProof(authority); err != nil {
		return err
	}
	mint, err := l.Mint(ctx, mintAddress)
	if err != nil {
		return err
	}
	slot, _ := mint.Slot(custody.MintTokens)
	if err := check(slot, custody.MintTokens, authority); err != nil {
		return err
	}
	account, err := l.TokenAccount(ctx, destination)
	if err != nil {
		return err
	}
	if !account.Mint.Equals(mintAddress) {
		return fmt.Errorf("%w: %s holds %s", ErrMintMismatch, destination, account.Mint)
	}
	if account.State == custody.AccountFrozen {
		return fmt.Errorf("%w: %s", ErrAccountFrozen, destination)
	}
	if mint.Supply > math.MaxUint64-amount {
		return fmt.Errorf("%w: supply %d + %d", ErrOverflow, mint.Supply, amount)
	}
	if account.Amount > math.MaxUint64-amount {
		return fmt.Errorf("%w: balance %d + %d", ErrOverflow, account.Amount, amount)
	}

	mint.Supply += amount
	account.Amount += amount
	if err := l.saveMint(ctx, mint); err != nil {
		return err
	}
	return l.saveTokenAccount(ctx, account)
}

// SetAuthority runs the same transition for every kind: the slot's current
// holder must match the proof, then the slot is overwritten.
func (l *Ledger) SetAuthority(ctx context.Context, target solanago.PublicKey, kind custody.AuthorityKind, current custody.Authority, newAuthority *solanago.PublicKey) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: authority kind %d", ErrInvalidAccountData, uint8(kind))
	}
	if err := l.checkProof(current); err != nil {
		return err
	}

	if kind.MintScoped() {
		mint, err := l.Mint(ctx, target)
		if err != nil {
			return err
		}
		slot, _ := mint.Slot(kind)
		if err := transition(slot, kind, current, newAuthority); err != nil {
			return err
		}
		return l.saveMint(ctx, mint)
	}

	account, err := l.TokenAccount(ctx, target)
	if err != nil {
		return err
	}
	if account.State == custody.AccountFrozen {
		return fmt.Errorf("%w: %s", ErrAccountFrozen, target)
	}
	if kind == custody.AccountOwner && newAuthority == nil {
		return fmt.Errorf("%w: %s", ErrOwnerRequired, target)
	}
	slot, _ := account.Slot(kind)
	if err := transition(slot, kind, current, newAuthority); err != nil {
		return err
	}
	if kind == custody.AccountOwner {
		account.Delegate = nil
		account.DelegatedAmount = 0
	}
	return l.saveTokenAccount(ctx, account)
}

func (l *Ledger) Approve(ctx context.Context, address, delegate solanago.PublicKey, owner custody.Authority, amount uint64) error {
	account, err := l.ownedAccount(ctx, address, owner)
	if err != nil {
		return err
	}
	account.Delegate = &delegate
	account.DelegatedAmount = amount
	return l.saveTokenAccount(ctx, account)
}

func (l *Ledger) Revoke(ctx context.Context, address solanago.PublicKey, owner custody.Authority) error {
	account, err := l.ownedAccount(ctx, address, owner)
	if err != nil {
		return err
	}
	account.Delegate = nil
	account.DelegatedAmount = 0
	return l.saveTokenAccount(ctx, account)
}

func (l *Ledger) Mint(ctx context.Context, address solanago.PublicKey) (custody.Mint, error) {
	data, err := l.load(ctx, address)
	if err != nil {
		return custody.Mint{}, err
	}
	mint, err := DecodeMint(address, data)
	if err != nil {
		return custody.Mint{}, err
	}
	if !mint.IsInitialized {
		return custody.Mint{}, fmt.Errorf("%w: mint %s", ErrUninitialized, address)
	}
	return mint, nil
}

func (l *Ledger) TokenAccount(ctx context.Context, address solanago.PublicKey) (custody.TokenAccount, error) {
	data, err := l.load(ctx, address)
	if err != nil {
		return custody.TokenAccount{}, err
	}
	account, err := DecodeTokenAccount(address, data)
	if err != nil {
		return custody.TokenAccount{}, err
	}
	if account.State == custody.AccountUninitialized {
		return custody.TokenAccount{}, fmt.Errorf("%w: token account %s", ErrUninitialized, address)
	}
	return account, nil
}

func (l *Ledger) ownedAccount(ctx context.Context, address solanago.PublicKey, owner custody.Authority) (custody.TokenAccount, error) {
	if err := l.checkProof(owner); err != nil {
		return custody.TokenAccount{}, err
	}
	account, err := l.TokenAccount(ctx, address)
	if err != nil {
		return custody.TokenAccount{}, err
	}
	if account.State == custody.AccountFrozen {
		return custody.TokenAccount{}, fmt.Errorf("%w: %s", ErrAccountFrozen, address)
	}
	slot, _ := account.Slot(custody.AccountOwner)
	if err := check(slot, custody.AccountOwner, owner); err != nil {
		return custody.TokenAccount{}, err
	}
	return account, nil
}

// checkProof re-derives PDA signers; a PDA proof is only honoured for the
// program the ledger was created for.
func (l *Ledger) checkProof(authority custody.Authority) error {
	if authority == nil {
		return fmt.Errorf("%w: missing authority", custody.ErrAuthorityMismatch)
	}
	signer, ok := authority.(pda.Signer)
	if !ok {
		return nil
	}
	if err := signer.Check(l.invoker); err != nil {
		return fmt.Errorf("%w: pda signer %s: %v", custody.ErrAuthorityMismatch, signer.Key(), err)
	}
	return nil
}

func (l *Ledger) load(ctx context.Context, address solanago.PublicKey) ([]byte, error) {
	acct, err := l.accounts.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(token.ProgramID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", ErrInvalidAccountOwner, address, acct.Owner)
	}
	return acct.Data, nil
}

func (l *Ledger) saveMint(ctx context.Context, mint custody.Mint) error {
	data, err := EncodeMint(mint)
	if err != nil {
		return err
	}
	return l.accounts.Update(ctx, accounts.Account{Address: mint.Address, Owner: token.ProgramID, Data: data})
}

func (l *Ledger) saveTokenAccount(ctx context.Context, account custody.TokenAccount) error {
	data, err := EncodeTokenAccount(account)
	if err != nil {
		return err
	}
	return l.accounts.Update(ctx, accounts.Account{Address: account.Address, Owner: token.ProgramID, Data: data})
}

func check(slot custody.AuthoritySlot, kind custody.AuthorityKind, authority custody.Authority) error {
	holder := slot.Get()
	if holder == nil {
		return fmt.Errorf("%w: %s authority is unset", custody.ErrAuthorityMismatch, kind)
	}
	if !holder.Equals(authority.Key()) {
		return fmt.Errorf("%w: %s authority is %s, got %s", custody.ErrAuthorityMismatch, kind, *holder, authority.Key())
	}
	return nil
}

func transition(slot custody.AuthoritySlot, kind custody.AuthorityKind, current custody.Authority, newAuthority *solanago.PublicKey) error {
	if err := check(slot, kind, current); err != nil {
		return err
	}
	if newAuthority != nil {
		k := *newAuthority
		newAuthority = &k
	}
	slot.Set(newAuthority)
	return nil
}
