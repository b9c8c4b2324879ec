package pda

import (
	solanago "github.com/gagliardetto/solana-go"
)

// Signer is the capability a program presents when a PDA must act as an
// authority. It carries everything needed to re-derive the address, so the
// receiving side can check it instead of trusting a bare public key.
type Signer struct {
	seeds     [][]byte
	bump      uint8
	programID solanago.PublicKey
	key       solanago.PublicKey
}

// NewSigner validates that seeds and bump derive a program address under
// programID and returns the signing capability for it.
func NewSigner(seeds [][]byte, bump uint8, programID solanago.PublicKey) (Signer, error) {
	key, err := Address(seeds, bump, programID)
	if err != nil {
		return Signer{}, err
	}
	copied := make([][]byte, len(seeds))
	for i, seed := range seeds {
		copied[i] = append([]byte(nil), seed...)
	}
	return Signer{
		seeds:     copied,
		bump:      bump,
		programID: programID,
		key:       key,
	}, nil
}

// Key returns the derived address.
func (s Signer) Key() solanago.PublicKey {
	return s.key
}

func (s Signer) Bump() uint8 {
	return s.bump
}

func (s Signer) ProgramID() solanago.PublicKey {
	return s.programID
}

// SignerSeeds returns the seeds including the trailing bump, in the form the
// runtime expects for invoke_signed.
func (s Signer) SignerSeeds() [][]byte {
	return withBump(s.seeds, s.bump)
}

// Check re-derives the address and reports whether the capability was issued
// by invoker.
func (s Signer) Check(invoker solanago.PublicKey) error {
	if !s.programID.Equals(invoker) {
		return ErrSeedOrBumpMismatch
	}
	return Verify(s.seeds, s.bump, s.programID, s.key)
}
