package pda

import (
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

const (
	// MaxSeeds is the number of seeds a caller may supply. The runtime allows 16,
	// one of which is reserved for the bump.
	MaxSeeds = 15
	// MaxSeedLength is the maximum length of a single seed in bytes.
	MaxSeedLength = 32
)

var (
	// ErrNoValidBump is returned when no bump in 255..0 yields an off-curve address.
	ErrNoValidBump = errors.New("no valid bump for seeds")
	// ErrInvalidSeeds is returned when the seed set exceeds the runtime limits.
	ErrInvalidSeeds = errors.New("invalid seeds")
	// ErrSeedOrBumpMismatch is returned when a recomputed address disagrees with a claimed one.
	ErrSeedOrBumpMismatch = errors.New("seed or bump mismatch")
)

// AssociatedTokenProgramID is the SPL associated token account program.
var AssociatedTokenProgramID = solanago.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

// Seed table of the vault program.
var (
	SeedVault = []byte("vault")
	SeedMint  = []byte("spl-token-mint")
)

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d seeds, max %d", ErrInvalidSeeds, len(seeds), MaxSeeds)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes, max %d", ErrInvalidSeeds, i, len(seed), MaxSeedLength)
		}
	}
	return nil
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// Derive finds the canonical program address for seeds: the first bump, counting
// down from 255, whose candidate address is off the ed25519 curve.
func Derive(seeds [][]byte, programID solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	if err := checkSeeds(seeds); err != nil {
		return solanago.PublicKey{}, 0, err
	}
	for bump := 255; bump >= 0; bump-- {
		addr, err := solanago.CreateProgramAddress(withBump(seeds, uint8(bump)), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solanago.PublicKey{}, 0, ErrNoValidBump
}

// Address recomputes the program address for exactly the given bump.
func Address(seeds [][]byte, bump uint8, programID solanago.PublicKey) (solanago.PublicKey, error) {
	if err := checkSeeds(seeds); err != nil {
		return solanago.PublicKey{}, err
	}
	addr, err := solanago.CreateProgramAddress(withBump(seeds, bump), programID)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("%w: bump %d: %v", ErrSeedOrBumpMismatch, bump, err)
	}
	return addr, nil
}

// Validate reports whether claimed is the program address for seeds and bump.
// Bumps read back from persisted state must go through Validate or Verify.
func Validate(seeds [][]byte, bump uint8, programID, claimed solanago.PublicKey) bool {
	addr, err := Address(seeds, bump, programID)
	if err != nil {
		return false
	}
	return addr.Equals(claimed)
}

// Verify is Validate returning ErrSeedOrBumpMismatch with context.
func Verify(seeds [][]byte, bump uint8, programID, claimed solanago.PublicKey) error {
	addr, err := Address(seeds, bump, programID)
	if err != nil {
		return err
	}
	if !addr.Equals(claimed) {
		return fmt.Errorf("%w: derived %s with bump %d, got %s", ErrSeedOrBumpMismatch, addr, bump, claimed)
	}
	return nil
}

// Vault program PDA helpers

func VaultAddress(programID solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	pda, bump, err := Derive([][]byte{SeedVault}, programID)
	if err != nil {
		return solanago.PublicKey{}, 0, fmt.Errorf("failed to derive vault PDA: %w", err)
	}
	return pda, bump, nil
}

func MintAddress(programID solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	pda, bump, err := Derive([][]byte{SeedMint}, programID)
	if err != nil {
		return solanago.PublicKey{}, 0, fmt.Errorf("failed to derive spl token mint PDA: %w", err)
	}
	return pda, bump, nil
}

// AssociatedTokenAddress derives the canonical ATA for owner and mint.
// Seeds: [owner, TOKEN_PROGRAM_ID, mint] under the associated token program.
func AssociatedTokenAddress(owner, mint solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	addr, bump, err := Derive(
		[][]byte{
			owner[:],
			token.ProgramID[:],
			mint[:],
		},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return solanago.PublicKey{}, 0, fmt.Errorf("failed to derive associated token account for owner %s mint %s: %w", owner, mint, err)
	}
	return addr, bump, nil
}
