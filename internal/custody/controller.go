// Package custody gates every mutation of the vault mint and its token
// accounts. The controller re-derives the vault and mint addresses from the
// stored bumps on every call, checks who signed, and only then asks the token
// ledger to act.
package custody

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/state"
)

type Controller struct {
	programID solanago.PublicKey
	vaults    VaultStore
	gateway   Gateway
	logger    *zap.Logger
}

func NewController(programID solanago.PublicKey, vaults VaultStore, gateway Gateway, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		programID: programID,
		vaults:    vaults,
		gateway:   gateway,
		logger:    logger.With(zap.Stringer("program", programID)),
	}
}

// Process dispatches ix. Initialize's record is discarded; call Initialize
// directly to get it.
func (c *Controller) Process(ctx context.Context, inv Invocation, ix Instruction) error {
	switch ix := ix.(type) {
	case InitializeInstruction:
		_, err := c.Initialize(ctx, inv, ix.Initializer)
		return err
	case CreateTokenAccountInstruction:
		_, err := c.CreateTokenAccount(ctx, inv, ix.Accounts, ix.Payer, ix.Owner)
		return err
	case MintInstruction:
		return c.Mint(ctx, inv, ix.Accounts, ix.Caller, ix.Destination)
	case SetAuthorityInstruction:
		return c.transition(ctx, inv, ix)
	case ApproveInstruction:
		return c.Approve(ctx, inv, ix.Accounts, ix.Caller, ix.Account, ix.Delegate)
	case RevokeInstruction:
		return c.Revoke(ctx, inv, ix.Accounts, ix.Caller, ix.Account)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownInstruction, ix)
	}
}

// Initialize creates the vault record at the canonical vault address and the
// mint at the canonical mint address, with initializer holding both the mint
// and freeze authorities.
func (c *Controller) Initialize(ctx context.Context, inv Invocation, initializer solanago.PublicKey) (state.Vault, error) {
	if _, err := inv.Prove(initializer); err != nil {
		return state.Vault{}, err
	}

	_, vaultBump, err := pda.VaultAddress(c.programID)
	if err != nil {
		return state.Vault{}, err
	}
	mintAddress, mintBump, err := pda.MintAddress(c.programID)
	if err != nil {
		return state.Vault{}, err
	}
	mintSigner, err := pda.NewSigner([][]byte{pda.SeedMint}, mintBump, c.programID)
	if err != nil {
		return state.Vault{}, err
	}

	vault, vaultAddress, err := c.vaults.Create(ctx, initializer, mintAddress, vaultBump, mintBump)
	if err != nil {
		return state.Vault{}, err
	}
	if err := c.gateway.InitializeMint(ctx, mintSigner, MintDecimals, initializer, &initializer); err != nil {
		return state.Vault{}, gatewayErr("initialize_mint", err)
	}

	c.logger.Info("vault initialized",
		zap.Stringer("vault", vaultAddress),
		zap.Stringer("mint", mintAddress),
		zap.Stringer("authority", initializer),
	)
	return vault, nil
}

// CreateTokenAccount creates owner's associated account for the vault mint.
func (c *Controller) CreateTokenAccount(ctx context.Context, inv Invocation, accts VaultAccounts, payer, owner solanago.PublicKey) (solanago.PublicKey, error) {
	if _, err := inv.Prove(payer); err != nil {
		return solanago.PublicKey{}, err
	}
	vault, err := c.loadVault(ctx, accts)
	if err != nil {
		return solanago.PublicKey{}, err
	}

	address, err := c.gateway.CreateAssociatedAccount(ctx, owner, vault.Mint)
	if err != nil {
		return solanago.PublicKey{}, gatewayErr("create_associated_account", err)
	}
	c.logger.Debug("token account ready", zap.Stringer("account", address), zap.Stringer("owner", owner))
	return address, nil
}

// Mint credits MintAmount to destination. Caller must hold the mint authority.
func (c *Controller) Mint(ctx context.Context, inv Invocation, accts VaultAccounts, caller, destination solanago.PublicKey) error {
	proof, err := inv.Prove(caller)
	if err != nil {
		return err
	}
	vault, err := c.loadVault(ctx, accts)
	if err != nil {
		return err
	}
	if _, err := c.tokenAccount(ctx, vault, destination); err != nil {
		return err
	}
	mint, err := c.gateway.Mint(ctx, vault.Mint)
	if err != nil {
		return gatewayErr("get_mint", err)
	}
	if err := holds(mint.MintAuthority, caller, MintTokens); err != nil {
		return err
	}

	if err := c.gateway.MintTo(ctx, vault.Mint, destination, proof, MintAmount); err != nil {
		return gatewayErr("mint_to", err)
	}
	c.logger.Info("minted",
		zap.Stringer("destination", destination),
		zap.Uint64("amount", MintAmount),
	)
	return nil
}

func (c *Controller) TransitionMintAuthority(ctx context.Context, inv Invocation, accts VaultAccounts, caller solanago.PublicKey, newAuthority *solanago.PublicKey) error {
	return c.transition(ctx, inv, SetAuthorityInstruction{Accounts: accts, Kind: MintTokens, Caller: caller, NewAuthority: newAuthority})
}

func (c *Controller) TransitionFreezeAuthority(ctx context.Context, inv Invocation, accts VaultAccounts, caller solanago.PublicKey, newAuthority *solanago.PublicKey) error {
	return c.transition(ctx, inv, SetAuthorityInstruction{Accounts: accts, Kind: FreezeAccount, Caller: caller, NewAuthority: newAuthority})
}

// TransitionOwnerAuthority hands account to newOwner. The owner cannot be cleared.
func (c *Controller) TransitionOwnerAuthority(ctx context.Context, inv Invocation, accts VaultAccounts, caller, account solanago.PublicKey, newOwner *solanago.PublicKey) error {
	return c.transition(ctx, inv, SetAuthorityInstruction{Accounts: accts, Kind: AccountOwner, Caller: caller, Account: account, NewAuthority: newOwner})
}

func (c *Controller) TransitionCloseAuthority(ctx context.Context, inv Invocation, accts VaultAccounts, caller, account solanago.PublicKey, newAuthority *solanago.PublicKey) error {
	return c.transition(ctx, inv, SetAuthorityInstruction{Accounts: accts, Kind: CloseAccount, Caller: caller, Account: account, NewAuthority: newAuthority})
}

func (c *Controller) transition(ctx context.Context, inv Invocation, ix SetAuthorityInstruction) error {
	if !ix.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownInstruction, ix.Kind)
	}
	proof, err := inv.Prove(ix.Caller)
	if err != nil {
		return err
	}
	vault, err := c.loadVault(ctx, ix.Accounts)
	if err != nil {
		return err
	}

	target, holder, err := c.currentAuthority(ctx, vault, ix.Kind, ix.Account)
	if err != nil {
		return err
	}
	if err := holds(holder, ix.Caller, ix.Kind); err != nil {
		return err
	}

	if err := c.gateway.SetAuthority(ctx, target, ix.Kind, proof, ix.NewAuthority); err != nil {
		return gatewayErr("set_authority", err)
	}

	fields := []zap.Field{zap.Stringer("kind", ix.Kind), zap.Stringer("target", target), zap.Stringer("from", ix.Caller)}
	if ix.NewAuthority != nil {
		fields = append(fields, zap.Stringer("to", *ix.NewAuthority))
	} else {
		fields = append(fields, zap.String("to", "none"))
	}
	c.logger.Info("authority transitioned", fields...)
	return nil
}

// currentAuthority resolves the entity holding kind and its current holder.
func (c *Controller) currentAuthority(ctx context.Context, vault state.Vault, kind AuthorityKind, account solanago.PublicKey) (solanago.PublicKey, *solanago.PublicKey, error) {
	if kind.MintScoped() {
		if !account.IsZero() && !account.Equals(vault.Mint) {
			return solanago.PublicKey{}, nil, fmt.Errorf("%w: %s authority must target vault mint %s, got %s", ErrInvalidAccount, kind, vault.Mint, account)
		}
		mint, err := c.gateway.Mint(ctx, vault.Mint)
		if err != nil {
			return solanago.PublicKey{}, nil, gatewayErr("get_mint", err)
		}
		slot, _ := mint.Slot(kind)
		return vault.Mint, slot.Get(), nil
	}

	ta, err := c.tokenAccount(ctx, vault, account)
	if err != nil {
		return solanago.PublicKey{}, nil, err
	}
	slot, _ := ta.Slot(kind)
	return account, slot.Get(), nil
}

// Approve lets delegate move ApproveAmount out of account. Caller must own account.
func (c *Controller) Approve(ctx context.Context, inv Invocation, accts VaultAccounts, caller, account, delegate solanago.PublicKey) error {
	proof, err := inv.Prove(caller)
	if err != nil {
		return err
	}
	vault, err := c.loadVault(ctx, accts)
	if err != nil {
		return err
	}
	ta, err := c.tokenAccount(ctx, vault, account)
	if err != nil {
		return err
	}
	if err := holds(&ta.Owner, caller, AccountOwner); err != nil {
		return err
	}

	if err := c.gateway.Approve(ctx, account, delegate, proof, ApproveAmount); err != nil {
		return gatewayErr("approve", err)
	}
	c.logger.Info("delegate approved",
		zap.Stringer("account", account),
		zap.Stringer("delegate", delegate),
		zap.Uint64("amount", ApproveAmount),
	)
	return nil
}

// Revoke clears any delegation on account. Caller must own account.
func (c *Controller) Revoke(ctx context.Context, inv Invocation, accts VaultAccounts, caller, account solanago.PublicKey) error {
	proof, err := inv.Prove(caller)
	if err != nil {
		return err
	}
	vault, err := c.loadVault(ctx, accts)
	if err != nil {
		return err
	}
	ta, err := c.tokenAccount(ctx, vault, account)
	if err != nil {
		return err
	}
	if err := holds(&ta.Owner, caller, AccountOwner); err != nil {
		return err
	}
	if ta.Delegate == nil {
		c.logger.Debug("revoke with nothing delegated", zap.Stringer("account", account))
	}

	if err := c.gateway.Revoke(ctx, account, proof); err != nil {
		return gatewayErr("revoke", err)
	}
	c.logger.Info("delegate revoked", zap.Stringer("account", account))
	return nil
}

// loadVault loads the record at the client-supplied vault address and checks
// that the client-supplied mint is the one the record's bump derives.
func (c *Controller) loadVault(ctx context.Context, accts VaultAccounts) (state.Vault, error) {
	vault, err := c.vaults.Load(ctx, accts.Vault)
	if err != nil {
		return state.Vault{}, err
	}
	if err := pda.Verify([][]byte{pda.SeedMint}, vault.MintBump, c.programID, accts.Mint); err != nil {
		return state.Vault{}, fmt.Errorf("mint account: %w", err)
	}
	if !vault.Mint.Equals(accts.Mint) {
		return state.Vault{}, fmt.Errorf("%w: vault mint is %s, got %s", ErrSeedOrBumpMismatch, vault.Mint, accts.Mint)
	}
	return vault, nil
}

func (c *Controller) tokenAccount(ctx context.Context, vault state.Vault, address solanago.PublicKey) (TokenAccount, error) {
	ta, err := c.gateway.TokenAccount(ctx, address)
	if err != nil {
		return TokenAccount{}, gatewayErr("get_token_account", err)
	}
	if !ta.Mint.Equals(vault.Mint) {
		return TokenAccount{}, fmt.Errorf("%w: token account %s belongs to mint %s, not vault mint %s", ErrInvalidAccount, address, ta.Mint, vault.Mint)
	}
	return ta, nil
}

func holds(holder *solanago.PublicKey, caller solanago.PublicKey, kind AuthorityKind) error {
	if holder == nil {
		return fmt.Errorf("%w: %s authority has been cleared", ErrAuthorityMismatch, kind)
	}
	if !holder.Equals(caller) {
		return fmt.Errorf("%w: %s authority is held by %s, not %s", ErrAuthorityMismatch, kind, *holder, caller)
	}
	return nil
}
