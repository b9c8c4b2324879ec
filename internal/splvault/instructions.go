// Package splvault talks to the deployed vault program: it builds the
// program's instructions and reads its accounts back over RPC.
package splvault

import (
	"bytes"
	"errors"
	"fmt"

	binary "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/metablockshq/spl-token-chapters/internal/anchor"
	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
)

// ErrUnsupported is returned for instructions the deployed program cannot
// express, such as clearing an authority.
var ErrUnsupported = errors.New("not supported by the deployed program")

// ProgramID of the deployed vault program.
var ProgramID = solanago.MustPublicKeyFromBase58("29iiLtNregFkwH4n4K95GrKYcGUGC3F6D5thPE2jWQQs")

// Accounts resolves the vault and mint PDAs for programID.
func Accounts(programID solanago.PublicKey) (custody.VaultAccounts, error) {
	vault, _, err := pda.VaultAddress(programID)
	if err != nil {
		return custody.VaultAccounts{}, err
	}
	mint, _, err := pda.MintAddress(programID)
	if err != nil {
		return custody.VaultAccounts{}, err
	}
	return custody.VaultAccounts{Vault: vault, Mint: mint}, nil
}

func newInstruction(programID solanago.PublicKey, name string, accounts solanago.AccountMetaSlice) (solanago.Instruction, error) {
	buf__ := new(bytes.Buffer)
	enc__ := binary.NewBorshEncoder(buf__)

	discriminator := anchor.InstructionDiscriminator(name)
	if err := enc__.WriteBytes(discriminator[:], false); err != nil {
		return nil, fmt.Errorf("failed to write instruction discriminator: %w", err)
	}
	return solanago.NewInstruction(programID, accounts, buf__.Bytes()), nil
}

// NewCreateMintInstruction builds "create_mint".
func NewCreateMintInstruction(programID, payer solanago.PublicKey) (solanago.Instruction, error) {
	accts, err := Accounts(programID)
	if err != nil {
		return nil, err
	}
	accounts__ := solanago.AccountMetaSlice{}
	accounts__.Append(solanago.NewAccountMeta(accts.Mint, true, false))
	accounts__.Append(solanago.NewAccountMeta(payer, true, true))
	accounts__.Append(solanago.NewAccountMeta(solanago.SystemProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(token.ProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(solanago.SysVarRentPubkey, false, false))
	accounts__.Append(solanago.NewAccountMeta(accts.Vault, true, false))
	return newInstruction(programID, "create_mint", accounts__)
}

// NewTransferMintInstruction builds "transfer_mint", which creates payer's
// associated account and mints into it.
func NewTransferMintInstruction(programID, payer solanago.PublicKey) (solanago.Instruction, error) {
	accts, ata, err := payerAccounts(programID, payer)
	if err != nil {
		return nil, err
	}
	accounts__ := solanago.AccountMetaSlice{}
	accounts__.Append(solanago.NewAccountMeta(accts.Mint, true, false))
	accounts__.Append(solanago.NewAccountMeta(accts.Vault, false, false))
	accounts__.Append(solanago.NewAccountMeta(ata, true, false))
	accounts__.Append(solanago.NewAccountMeta(payer, true, true))
	accounts__.Append(solanago.NewAccountMeta(solanago.SystemProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(token.ProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(solanago.SysVarRentPubkey, false, false))
	accounts__.Append(solanago.NewAccountMeta(pda.AssociatedTokenProgramID, false, false))
	return newInstruction(programID, "transfer_mint", accounts__)
}

// NewSetAuthorityInstruction builds one of the four set_*_authority
// instructions. For CloseAccount the program moves the authority from
// anotherAuthority to payer and creates anotherAuthority's associated account;
// for the other kinds it moves it from payer to anotherAuthority.
func NewSetAuthorityInstruction(programID solanago.PublicKey, kind custody.AuthorityKind, payer, anotherAuthority solanago.PublicKey) (solanago.Instruction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", custody.ErrUnknownInstruction, kind)
	}
	accts, err := Accounts(programID)
	if err != nil {
		return nil, err
	}

	accounts__ := solanago.AccountMetaSlice{}
	accounts__.Append(solanago.NewAccountMeta(accts.Mint, true, false))
	accounts__.Append(solanago.NewAccountMeta(accts.Vault, false, false))
	accounts__.Append(solanago.NewAccountMeta(payer, true, true))
	switch kind {
	case custody.AccountOwner:
		ata, _, err := pda.AssociatedTokenAddress(payer, accts.Mint)
		if err != nil {
			return nil, err
		}
		accounts__.Append(solanago.NewAccountMeta(ata, true, false))
	case custody.CloseAccount:
		ata, _, err := pda.AssociatedTokenAddress(anotherAuthority, accts.Mint)
		if err != nil {
			return nil, err
		}
		accounts__.Append(solanago.NewAccountMeta(ata, true, false))
	}
	accounts__.Append(solanago.NewAccountMeta(anotherAuthority, false, true))
	accounts__.Append(solanago.NewAccountMeta(solanago.SystemProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(token.ProgramID, false, false))
	if kind == custody.CloseAccount {
		accounts__.Append(solanago.NewAccountMeta(pda.AssociatedTokenProgramID, false, false))
		accounts__.Append(solanago.NewAccountMeta(solanago.SysVarRentPubkey, false, false))
	}
	return newInstruction(programID, kind.InstructionName(), accounts__)
}

// NewApproveTokensInstruction builds "approve_tokens". The delegate signs too.
func NewApproveTokensInstruction(programID, payer, delegate solanago.PublicKey) (solanago.Instruction, error) {
	accts, ata, err := payerAccounts(programID, payer)
	if err != nil {
		return nil, err
	}
	accounts__ := solanago.AccountMetaSlice{}
	accounts__.Append(solanago.NewAccountMeta(accts.Mint, false, false))
	accounts__.Append(solanago.NewAccountMeta(accts.Vault, false, false))
	accounts__.Append(solanago.NewAccountMeta(ata, true, false))
	accounts__.Append(solanago.NewAccountMeta(payer, true, true))
	accounts__.Append(solanago.NewAccountMeta(solanago.SystemProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(token.ProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(delegate, false, true))
	return newInstruction(programID, "approve_tokens", accounts__)
}

// NewRevokeTokensInstruction builds "revoke_tokens".
func NewRevokeTokensInstruction(programID, payer solanago.PublicKey) (solanago.Instruction, error) {
	accts, ata, err := payerAccounts(programID, payer)
	if err != nil {
		return nil, err
	}
	accounts__ := solanago.AccountMetaSlice{}
	accounts__.Append(solanago.NewAccountMeta(accts.Mint, false, false))
	accounts__.Append(solanago.NewAccountMeta(accts.Vault, false, false))
	accounts__.Append(solanago.NewAccountMeta(ata, true, false))
	accounts__.Append(solanago.NewAccountMeta(payer, true, true))
	accounts__.Append(solanago.NewAccountMeta(solanago.SystemProgramID, false, false))
	accounts__.Append(solanago.NewAccountMeta(token.ProgramID, false, false))
	return newInstruction(programID, "revoke_tokens", accounts__)
}

func payerAccounts(programID, payer solanago.PublicKey) (custody.VaultAccounts, solanago.PublicKey, error) {
	accts, err := Accounts(programID)
	if err != nil {
		return custody.VaultAccounts{}, solanago.PublicKey{}, err
	}
	ata, _, err := pda.AssociatedTokenAddress(payer, accts.Mint)
	if err != nil {
		return custody.VaultAccounts{}, solanago.PublicKey{}, err
	}
	return accts, ata, nil
}

// Build translates ix into the deployed program's instruction for a
// transaction paid by payer. The deployed program fixes most account roles,
// so ix must name payer (and payer's associated account) where it does.
func Build(programID, payer solanago.PublicKey, ix custody.Instruction) (solanago.Instruction, error) {
	accts, ata, err := payerAccounts(programID, payer)
	if err != nil {
		return nil, err
	}

	switch ix := ix.(type) {
	case custody.InitializeInstruction:
		if err := expect("initializer", ix.Initializer, payer); err != nil {
			return nil, err
		}
		return NewCreateMintInstruction(programID, payer)

	case custody.CreateTokenAccountInstruction:
		if err := expect("payer", ix.Payer, payer); err != nil {
			return nil, err
		}
		return associatedtokenaccount.NewCreateInstruction(payer, ix.Owner, accts.Mint).Build(), nil

	case custody.MintInstruction:
		if err := expect("caller", ix.Caller, payer); err != nil {
			return nil, err
		}
		if err := expect("destination", ix.Destination, ata); err != nil {
			return nil, err
		}
		return NewTransferMintInstruction(programID, payer)

	case custody.SetAuthorityInstruction:
		if ix.NewAuthority == nil {
			return nil, fmt.Errorf("%w: clearing the %s authority", ErrUnsupported, ix.Kind)
		}
		if ix.Kind == custody.CloseAccount {
			if err := expect("new authority", *ix.NewAuthority, payer); err != nil {
				return nil, err
			}
			return NewSetAuthorityInstruction(programID, ix.Kind, payer, ix.Caller)
		}
		if err := expect("caller", ix.Caller, payer); err != nil {
			return nil, err
		}
		if ix.Kind == custody.AccountOwner {
			if err := expect("account", ix.Account, ata); err != nil {
				return nil, err
			}
		}
		return NewSetAuthorityInstruction(programID, ix.Kind, payer, *ix.NewAuthority)

	case custody.ApproveInstruction:
		if err := expect("caller", ix.Caller, payer); err != nil {
			return nil, err
		}
		if err := expect("account", ix.Account, ata); err != nil {
			return nil, err
		}
		return NewApproveTokensInstruction(programID, payer, ix.Delegate)

	case custody.RevokeInstruction:
		if err := expect("caller", ix.Caller, payer); err != nil {
			return nil, err
		}
		if err := expect("account", ix.Account, ata); err != nil {
			return nil, err
		}
		return NewRevokeTokensInstruction(programID, payer)
	}
	return nil, fmt.Errorf("%w: %T", custody.ErrUnknownInstruction, ix)
}

func expect(role string, got, want solanago.PublicKey) error {
	if !got.Equals(want) {
		return fmt.Errorf("%w: %s must be %s, got %s", ErrUnsupported, role, want, got)
	}
	return nil
}
