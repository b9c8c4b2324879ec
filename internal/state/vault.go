// Package state holds the vault record: the one account the program owns. It
// is written once, by initialize, and read by every later instruction to
// re-derive the vault and mint addresses.
package state

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"github.com/metablockshq/spl-token-chapters/internal/anchor"
)

const (
	// VaultLen is the borsh payload: bump, mint bump, authority, mint.
	VaultLen = 1 + 1 + 32 + 32
	// VaultAccountSize includes the Anchor account discriminator.
	VaultAccountSize = anchor.DiscriminatorLength + VaultLen
)

var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
)

// VaultDiscriminator prefixes every encoded vault record.
var VaultDiscriminator = anchor.AccountDiscriminator("Vault")

// Vault is the persisted record created alongside the mint.
type Vault struct {
	Bump      uint8
	MintBump  uint8
	Authority solanago.PublicKey
	Mint      solanago.PublicKey
}

// MarshalBinary encodes the vault as discriminator + borsh fields.
func (v Vault) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(VaultDiscriminator[:], false); err != nil {
		return nil, fmt.Errorf("failed to write vault discriminator: %w", err)
	}
	if err := enc.WriteUint8(v.Bump); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(v.MintBump); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(v.Authority[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(v.Mint[:], false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalVault decodes account data written by MarshalBinary. Anything with
// the wrong length or discriminator is reported as ErrNotInitialized.
func UnmarshalVault(data []byte) (Vault, error) {
	if len(data) != VaultAccountSize {
		return Vault{}, fmt.Errorf("%w: vault data is %d bytes, want %d", ErrNotInitialized, len(data), VaultAccountSize)
	}
	if !VaultDiscriminator.Equal(data) {
		return Vault{}, fmt.Errorf("%w: account discriminator mismatch", ErrNotInitialized)
	}

	dec := bin.NewBorshDecoder(data[anchor.DiscriminatorLength:])
	var (
		v   Vault
		err error
	)
	if v.Bump, err = dec.ReadUint8(); err != nil {
		return Vault{}, fmt.Errorf("failed to read bump: %w", err)
	}
	if v.MintBump, err = dec.ReadUint8(); err != nil {
		return Vault{}, fmt.Errorf("failed to read mint bump: %w", err)
	}
	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return Vault{}, fmt.Errorf("failed to read authority: %w", err)
	}
	mint, err := dec.ReadNBytes(32)
	if err != nil {
		return Vault{}, fmt.Errorf("failed to read mint: %w", err)
	}
	v.Authority = solanago.PublicKeyFromBytes(authority)
	v.Mint = solanago.PublicKeyFromBytes(mint)
	return v, nil
}
