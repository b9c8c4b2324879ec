package custody

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/state"
)

// Fixed amounts and decimals of the vault's mint.
const (
	MintDecimals  uint8  = 0
	MintAmount    uint64 = 10
	ApproveAmount uint64 = 5
)

// AccountState mirrors the token program's account state byte.
type AccountState uint8

const (
	AccountUninitialized AccountState = iota
	AccountInitialized
	AccountFrozen
)

// Mint is the ledger's view of a mint.
type Mint struct {
	Address         solanago.PublicKey
	MintAuthority   *solanago.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solanago.PublicKey
}

// TokenAccount is the ledger's view of a token account.
type TokenAccount struct {
	Address         solanago.PublicKey
	Mint            solanago.PublicKey
	Owner           solanago.PublicKey
	Amount          uint64
	Delegate        *solanago.PublicKey
	State           AccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *solanago.PublicKey
}

// AuthoritySlot is the accessor pair for one authority held on one entity.
// Get returns nil once the capability has been cleared.
type AuthoritySlot struct {
	Get func() *solanago.PublicKey
	Set func(*solanago.PublicKey)
}

// Slot returns the accessor pair for kind, or false for account-scoped kinds.
func (m *Mint) Slot(kind AuthorityKind) (AuthoritySlot, bool) {
	switch kind {
	case MintTokens:
		return AuthoritySlot{
			Get: func() *solanago.PublicKey { return m.MintAuthority },
			Set: func(k *solanago.PublicKey) { m.MintAuthority = k },
		}, true
	case FreezeAccount:
		return AuthoritySlot{
			Get: func() *solanago.PublicKey { return m.FreezeAuthority },
			Set: func(k *solanago.PublicKey) { m.FreezeAuthority = k },
		}, true
	}
	return AuthoritySlot{}, false
}

// Slot returns the accessor pair for kind, or false for mint-scoped kinds.
// A nil close authority is cleared, not unset.
func (a *TokenAccount) Slot(kind AuthorityKind) (AuthoritySlot, bool) {
	switch kind {
	case AccountOwner:
		return AuthoritySlot{
			Get: func() *solanago.PublicKey { return &a.Owner },
			Set: func(k *solanago.PublicKey) {
				if k != nil {
					a.Owner = *k
				}
			},
		}, true
	case CloseAccount:
		return AuthoritySlot{
			Get: func() *solanago.PublicKey { return a.CloseAuthority },
			Set: func(k *solanago.PublicKey) { a.CloseAuthority = k },
		}, true
	}
	return AuthoritySlot{}, false
}

// Gateway is the token ledger the vault delegates to. Implementations check
// every Authority they are handed against the current state and report
// ErrAuthorityMismatch themselves.
type Gateway interface {
	InitializeMint(ctx context.Context, mint pda.Signer, decimals uint8, mintAuthority solanago.PublicKey, freezeAuthority *solanago.PublicKey) error
	// CreateAssociatedAccount creates the canonical token account for owner and
	// mint and returns its address.
	CreateAssociatedAccount(ctx context.Context, owner, mint solanago.PublicKey) (solanago.PublicKey, error)
	MintTo(ctx context.Context, mint, destination solanago.PublicKey, authority Authority, amount uint64) error
	// SetAuthority moves kind on target from current to newAuthority. A nil
	// newAuthority clears the capability.
	SetAuthority(ctx context.Context, target solanago.PublicKey, kind AuthorityKind, current Authority, newAuthority *solanago.PublicKey) error
	Approve(ctx context.Context, account, delegate solanago.PublicKey, owner Authority, amount uint64) error
	// Revoke clears any delegation on account. Revoking with nothing delegated succeeds.
	Revoke(ctx context.Context, account solanago.PublicKey, owner Authority) error

	Mint(ctx context.Context, address solanago.PublicKey) (Mint, error)
	TokenAccount(ctx context.Context, address solanago.PublicKey) (TokenAccount, error)
}

// VaultStore is the persisted vault record, see state.Store.
type VaultStore interface {
	Create(ctx context.Context, creator, mint solanago.PublicKey, vaultBump, mintBump uint8) (state.Vault, solanago.PublicKey, error)
	Load(ctx context.Context, address solanago.PublicKey) (state.Vault, error)
}
