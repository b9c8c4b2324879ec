// Package host runs vault instructions the way the chain does: one
// instruction per atomic unit over the account database, so a failure at any
// step leaves no partial writes behind.
package host

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/spltoken"
	"github.com/metablockshq/spl-token-chapters/internal/state"
)

type Runtime struct {
	db        accounts.Database
	programID solanago.PublicKey
	logger    *zap.Logger
}

func NewRuntime(db accounts.Database, programID solanago.PublicKey, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{db: db, programID: programID, logger: logger}
}

func (r *Runtime) ProgramID() solanago.PublicKey {
	return r.programID
}

// Execute runs ix with the given signers. All account writes commit together
// or not at all.
func (r *Runtime) Execute(ctx context.Context, signers []solanago.PublicKey, ix custody.Instruction) error {
	return r.atomic(ctx, func(c *custody.Controller) error {
		return c.Process(ctx, custody.NewInvocation(signers...), ix)
	})
}

// Initialize is Execute for InitializeInstruction, returning the new record.
func (r *Runtime) Initialize(ctx context.Context, initializer solanago.PublicKey) (state.Vault, error) {
	var vault state.Vault
	err := r.atomic(ctx, func(c *custody.Controller) error {
		var err error
		vault, err = c.Initialize(ctx, custody.NewInvocation(initializer), initializer)
		return err
	})
	return vault, err
}

func (r *Runtime) atomic(ctx context.Context, fn func(*custody.Controller) error) error {
	return r.db.Atomic(ctx, func(s accounts.Store) error {
		controller := custody.NewController(
			r.programID,
			state.NewStore(s, r.programID),
			spltoken.New(s, r.programID, r.logger),
			r.logger,
		)
		return fn(controller)
	})
}

// VaultAccounts returns the canonical vault and mint addresses.
func (r *Runtime) VaultAccounts() (custody.VaultAccounts, error) {
	vault, _, err := pda.VaultAddress(r.programID)
	if err != nil {
		return custody.VaultAccounts{}, err
	}
	mint, _, err := pda.MintAddress(r.programID)
	if err != nil {
		return custody.VaultAccounts{}, err
	}
	return custody.VaultAccounts{Vault: vault, Mint: mint}, nil
}

func (r *Runtime) Vault(ctx context.Context) (state.Vault, error) {
	accts, err := r.VaultAccounts()
	if err != nil {
		return state.Vault{}, err
	}
	return state.NewStore(r.db, r.programID).Load(ctx, accts.Vault)
}

func (r *Runtime) Mint(ctx context.Context) (custody.Mint, error) {
	accts, err := r.VaultAccounts()
	if err != nil {
		return custody.Mint{}, err
	}
	return spltoken.New(r.db, r.programID, r.logger).Mint(ctx, accts.Mint)
}

func (r *Runtime) TokenAccount(ctx context.Context, address solanago.PublicKey) (custody.TokenAccount, error) {
	return spltoken.New(r.db, r.programID, r.logger).TokenAccount(ctx, address)
}

// AssociatedAccount derives owner's token account address for the vault mint.
func (r *Runtime) AssociatedAccount(owner solanago.PublicKey) (solanago.PublicKey, error) {
	accts, err := r.VaultAccounts()
	if err != nil {
		return solanago.PublicKey{}, err
	}
	address, _, err := pda.AssociatedTokenAddress(owner, accts.Mint)
	return address, err
}
