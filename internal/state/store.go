package state

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
)

// Store creates and loads the vault record for one program. There is no
// update or delete.
type Store struct {
	accounts  accounts.Store
	programID solanago.PublicKey
}

func NewStore(accts accounts.Store, programID solanago.PublicKey) *Store {
	return &Store{accounts: accts, programID: programID}
}

// Create allocates the vault slot at the canonical vault PDA and writes all
// fields in the same step. vaultBump must be the canonical bump and mintBump
// must derive mint.
func (s *Store) Create(ctx context.Context, creator, mint solanago.PublicKey, vaultBump, mintBump uint8) (Vault, solanago.PublicKey, error) {
	address, bump, err := pda.VaultAddress(s.programID)
	if err != nil {
		return Vault{}, solanago.PublicKey{}, err
	}
	if vaultBump != bump {
		return Vault{}, solanago.PublicKey{}, fmt.Errorf("%w: vault bump %d, canonical %d", pda.ErrSeedOrBumpMismatch, vaultBump, bump)
	}
	if err := pda.Verify([][]byte{pda.SeedMint}, mintBump, s.programID, mint); err != nil {
		return Vault{}, solanago.PublicKey{}, fmt.Errorf("mint %s: %w", mint, err)
	}

	v := Vault{
		Bump:      vaultBump,
		MintBump:  mintBump,
		Authority: creator,
		Mint:      mint,
	}
	data, err := v.MarshalBinary()
	if err != nil {
		return Vault{}, solanago.PublicKey{}, err
	}

	err = s.accounts.Create(ctx, accounts.Account{
		Address: address,
		Owner:   s.programID,
		Data:    data,
	})
	if errors.Is(err, accounts.ErrAccountExists) {
		return Vault{}, solanago.PublicKey{}, fmt.Errorf("%w: vault %s", ErrAlreadyInitialized, address)
	}
	if err != nil {
		return Vault{}, solanago.PublicKey{}, fmt.Errorf("failed to allocate vault %s: %w", address, err)
	}
	return v, address, nil
}

// Load reads the vault at address, which must be the canonical vault PDA. The
// slot must exist and be owned by the program. Its stored bumps must re-derive
// both address and the stored mint.
func (s *Store) Load(ctx context.Context, address solanago.PublicKey) (Vault, error) {
	canonical, _, err := pda.VaultAddress(s.programID)
	if err != nil {
		return Vault{}, err
	}
	if !canonical.Equals(address) {
		return Vault{}, fmt.Errorf("%w: %s is not the vault address %s", pda.ErrSeedOrBumpMismatch, address, canonical)
	}
	acct, err := s.accounts.Get(ctx, address)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return Vault{}, fmt.Errorf("%w: no vault at %s", ErrNotInitialized, address)
	}
	if err != nil {
		return Vault{}, fmt.Errorf("failed to load vault %s: %w", address, err)
	}
	if !acct.Owner.Equals(s.programID) {
		return Vault{}, fmt.Errorf("%w: account %s is owned by %s", ErrNotInitialized, address, acct.Owner)
	}

	v, err := UnmarshalVault(acct.Data)
	if err != nil {
		return Vault{}, err
	}
	if err := pda.Verify([][]byte{pda.SeedVault}, v.Bump, s.programID, address); err != nil {
		return Vault{}, fmt.Errorf("vault %s: %w", address, err)
	}
	if err := pda.Verify([][]byte{pda.SeedMint}, v.MintBump, s.programID, v.Mint); err != nil {
		return Vault{}, fmt.Errorf("vault %s mint: %w", address, err)
	}
	return v, nil
}
