// Package anchor computes the 8-byte discriminators Anchor programs prefix to
// account data and instruction data.
package anchor

import (
	bin "github.com/gagliardetto/binary"
)

// DiscriminatorLength is the size of every Anchor discriminator.
const DiscriminatorLength = bin.ACCOUNT_DISCRIMINATOR_SIZE

type Discriminator [DiscriminatorLength]byte

func fromSighash(sum []byte) Discriminator {
	var d Discriminator
	copy(d[:], sum)
	return d
}

// AccountDiscriminator is sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	return fromSighash(bin.SighashAccount(name))
}

// InstructionDiscriminator is sha256("global:<snake_case_name>")[:8].
func InstructionDiscriminator(name string) Discriminator {
	return fromSighash(bin.SighashInstruction(name))
}

// Equal reports whether data starts with d.
func (d Discriminator) Equal(data []byte) bool {
	if len(data) < DiscriminatorLength {
		return false
	}
	return [DiscriminatorLength]byte(data[:DiscriminatorLength]) == d
}
