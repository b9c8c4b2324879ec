package splvault

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/spltoken"
	"github.com/metablockshq/spl-token-chapters/internal/state"
)

var errNotConfirmed = errors.New("transaction not confirmed yet")

// RPC is the part of *rpc.Client the vault client needs.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solanago.Transaction, opts rpc.TransactionOpts) (solanago.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solanago.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

var _ RPC = (*rpc.Client)(nil)

type Client struct {
	rpc        RPC
	programID  solanago.PublicKey
	commitment rpc.CommitmentType
	attempts   uint
	delay      time.Duration
	logger     *zap.Logger
}

type Option func(*Client)

// WithRetry sets how often sends and confirmation polls are attempted.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

func WithCommitment(commitment rpc.CommitmentType) Option {
	return func(c *Client) { c.commitment = commitment }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(rpcClient RPC, programID solanago.PublicKey, opts ...Option) *Client {
	c := &Client{
		rpc:        rpcClient,
		programID:  programID,
		commitment: rpc.CommitmentConfirmed,
		attempts:   30,
		delay:      time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) retryOpts(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	}
}

// Execute builds ix for payer, sends it signed by payer and signers, and waits
// for confirmation.
func (c *Client) Execute(ctx context.Context, ix custody.Instruction, payer *solanago.Wallet, signers ...*solanago.Wallet) (solanago.Signature, error) {
	instruction, err := Build(c.programID, payer.PublicKey(), ix)
	if err != nil {
		return solanago.Signature{}, err
	}
	sig, err := c.Send(ctx, []solanago.Instruction{instruction}, payer, signers...)
	if err != nil {
		return solanago.Signature{}, err
	}
	if err := c.Confirm(ctx, sig); err != nil {
		return sig, err
	}
	c.logger.Info("instruction confirmed", zap.String("instruction", ix.Name()), zap.Stringer("signature", sig))
	return sig, nil
}

// Send signs instructions once and submits the signed transaction. Retries
// re-broadcast the same transaction, and stop early once its signature is
// known to the cluster, so a send whose response was lost is never
// resubmitted under a new signature.
func (c *Client) Send(ctx context.Context, instructions []solanago.Instruction, payer *solanago.Wallet, signers ...*solanago.Wallet) (solanago.Signature, error) {
	tx, err := c.sign(ctx, instructions, payer, signers...)
	if err != nil {
		return solanago.Signature{}, err
	}
	sig := tx.Signatures[0]

	attempt := 0
	err = retry.Do(
		func() error {
			if attempt > 0 {
				landed, err := c.landed(ctx, sig)
				if err != nil {
					return err
				}
				if landed {
					c.logger.Debug("transaction already landed", zap.Stringer("signature", sig))
					return nil
				}
			}
			attempt++
			if _, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{SkipPreflight: true}); err != nil {
				c.logger.Debug("send failed, retrying", zap.Stringer("signature", sig), zap.Error(err))
				return fmt.Errorf("failed to send transaction: %w", err)
			}
			return nil
		},
		c.retryOpts(ctx)...,
	)
	if err != nil {
		return solanago.Signature{}, err
	}
	return sig, nil
}

func (c *Client) sign(ctx context.Context, instructions []solanago.Instruction, payer *solanago.Wallet, signers ...*solanago.Wallet) (*solanago.Transaction, error) {
	all := append([]*solanago.Wallet{payer}, signers...)

	recent, err := retry.DoWithData(
		func() (*rpc.GetLatestBlockhashResult, error) {
			return c.rpc.GetLatestBlockhash(ctx, c.commitment)
		},
		c.retryOpts(ctx)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solanago.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		i := slices.IndexFunc(all, func(w *solanago.Wallet) bool { return w.PublicKey().Equals(key) })
		if i < 0 {
			return nil
		}
		return &all[i].PrivateKey
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// landed reports whether the cluster has seen sig at any commitment.
func (c *Client) landed(ctx context.Context, sig solanago.Signature) (bool, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, fmt.Errorf("failed to get status of %s: %w", sig, err)
	}
	return len(out.Value) > 0 && out.Value[0] != nil, nil
}

// Confirm polls until sig reaches the client's commitment or fails on chain.
func (c *Client) Confirm(ctx context.Context, sig solanago.Signature) error {
	want := confirmationStatusLevel(commitmentStatus(c.commitment))
	err := retry.Do(
		func() error {
			out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				return err
			}
			if len(out.Value) == 0 || out.Value[0] == nil {
				return errNotConfirmed
			}
			if out.Value[0].Err != nil {
				return retry.Unrecoverable(fmt.Errorf("transaction %s failed with error: %v", sig, out.Value[0].Err))
			}
			if confirmationStatusLevel(out.Value[0].ConfirmationStatus) < want {
				return errNotConfirmed
			}
			return nil
		},
		c.retryOpts(ctx)...,
	)
	if err != nil {
		return fmt.Errorf("transaction %s: %w", sig, err)
	}
	return nil
}

func commitmentStatus(commitment rpc.CommitmentType) rpc.ConfirmationStatusType {
	switch commitment {
	case rpc.CommitmentProcessed:
		return rpc.ConfirmationStatusProcessed
	case rpc.CommitmentFinalized:
		return rpc.ConfirmationStatusFinalized
	default:
		return rpc.ConfirmationStatusConfirmed
	}
}

func confirmationStatusLevel(status rpc.ConfirmationStatusType) int {
	switch status {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}

// fetch returns the data of address, which must be owned by owner. A missing
// account is accounts.ErrAccountNotFound.
func (c *Client) fetch(ctx context.Context, address, owner solanago.PublicKey) ([]byte, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		return nil, fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	if !out.Value.Owner.Equals(owner) {
		return nil, fmt.Errorf("account %s is owned by %s, want %s", address, out.Value.Owner, owner)
	}
	return out.Value.Data.GetBinary(), nil
}

// Vault reads the vault record and checks its stored bumps against the vault
// and mint addresses.
func (c *Client) Vault(ctx context.Context) (state.Vault, error) {
	accts, err := Accounts(c.programID)
	if err != nil {
		return state.Vault{}, err
	}
	data, err := c.fetch(ctx, accts.Vault, c.programID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return state.Vault{}, fmt.Errorf("%w: %v", state.ErrNotInitialized, err)
	}
	if err != nil {
		return state.Vault{}, err
	}
	vault, err := state.UnmarshalVault(data)
	if err != nil {
		return state.Vault{}, err
	}
	if err := pda.Verify([][]byte{pda.SeedVault}, vault.Bump, c.programID, accts.Vault); err != nil {
		return state.Vault{}, err
	}
	if err := pda.Verify([][]byte{pda.SeedMint}, vault.MintBump, c.programID, vault.Mint); err != nil {
		return state.Vault{}, fmt.Errorf("vault mint: %w", err)
	}
	return vault, nil
}

func (c *Client) Mint(ctx context.Context) (custody.Mint, error) {
	accts, err := Accounts(c.programID)
	if err != nil {
		return custody.Mint{}, err
	}
	data, err := c.fetch(ctx, accts.Mint, token.ProgramID)
	if err != nil {
		return custody.Mint{}, err
	}
	return spltoken.DecodeMint(accts.Mint, data)
}

func (c *Client) TokenAccount(ctx context.Context, address solanago.PublicKey) (custody.TokenAccount, error) {
	data, err := c.fetch(ctx, address, token.ProgramID)
	if err != nil {
		return custody.TokenAccount{}, err
	}
	return spltoken.DecodeTokenAccount(address, data)
}

// Snapshot is the vault's on-chain state at one point in time.
type Snapshot struct {
	Vault state.Vault
	Mint  custody.Mint
	// Accounts holds the associated accounts of the requested owners that exist.
	Accounts map[solanago.PublicKey]custody.TokenAccount
}

// Snapshot fetches the vault, its mint and the associated accounts of owners
// concurrently.
func (c *Client) Snapshot(ctx context.Context, owners ...solanago.PublicKey) (Snapshot, error) {
	accts, err := Accounts(c.programID)
	if err != nil {
		return Snapshot{}, err
	}

	var (
		snap = Snapshot{Accounts: make(map[solanago.PublicKey]custody.TokenAccount, len(owners))}
		mu   sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vault, err := c.Vault(gctx)
		snap.Vault = vault
		return err
	})
	g.Go(func() error {
		mint, err := c.Mint(gctx)
		snap.Mint = mint
		return err
	})
	for _, owner := range owners {
		g.Go(func() error {
			ata, _, err := pda.AssociatedTokenAddress(owner, accts.Mint)
			if err != nil {
				return err
			}
			account, err := c.TokenAccount(gctx, ata)
			if errors.Is(err, accounts.ErrAccountNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			snap.Accounts[ata] = account
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
