package custody

import (
	solanago "github.com/gagliardetto/solana-go"
)

// VaultAccounts are the vault and mint addresses a client supplies with an
// instruction. They are only trusted after the stored bumps re-derive them.
type VaultAccounts struct {
	Vault solanago.PublicKey
	Mint  solanago.PublicKey
}

// Instruction is the closed set of operations the controller dispatches.
type Instruction interface {
	// Name is the program instruction name, used for Anchor discriminators.
	Name() string
	isInstruction()
}

// InitializeInstruction creates the vault record and the vault mint.
type InitializeInstruction struct {
	Initializer solanago.PublicKey
}

// CreateTokenAccountInstruction creates Owner's associated account for the
// vault mint, paid for by Payer.
type CreateTokenAccountInstruction struct {
	Accounts VaultAccounts
	Payer    solanago.PublicKey
	Owner    solanago.PublicKey
}

// MintInstruction mints MintAmount to Destination using Caller's mint authority.
type MintInstruction struct {
	Accounts    VaultAccounts
	Caller      solanago.PublicKey
	Destination solanago.PublicKey
}

// SetAuthorityInstruction moves Kind from Caller to NewAuthority. Account is
// the token account for account-scoped kinds and is ignored otherwise.
type SetAuthorityInstruction struct {
	Accounts     VaultAccounts
	Kind         AuthorityKind
	Caller       solanago.PublicKey
	Account      solanago.PublicKey
	NewAuthority *solanago.PublicKey
}

type ApproveInstruction struct {
	Accounts VaultAccounts
	Caller   solanago.PublicKey
	Account  solanago.PublicKey
	Delegate solanago.PublicKey
}

type RevokeInstruction struct {
	Accounts VaultAccounts
	Caller   solanago.PublicKey
	Account  solanago.PublicKey
}

func (InitializeInstruction) Name() string         { return "create_mint" }
func (CreateTokenAccountInstruction) Name() string { return "create_token_account" }
func (MintInstruction) Name() string               { return "transfer_mint" }
func (i SetAuthorityInstruction) Name() string     { return i.Kind.InstructionName() }
func (ApproveInstruction) Name() string            { return "approve_tokens" }
func (RevokeInstruction) Name() string             { return "revoke_tokens" }

func (InitializeInstruction) isInstruction()         {}
func (CreateTokenAccountInstruction) isInstruction() {}
func (MintInstruction) isInstruction()               {}
func (SetAuthorityInstruction) isInstruction()       {}
func (ApproveInstruction) isInstruction()            {}
func (RevokeInstruction) isInstruction()             {}
