package main

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
	"github.com/metablockshq/spl-token-chapters/internal/config"
	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/host"
)

// localOptions are shared by the local subcommands. Signers are declared, not
// proven: the local ledger trusts the command line.
type localOptions struct {
	*rootOptions
	signers []string
}

func newLocalCmd(root *rootOptions) *cobra.Command {
	opts := &localOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run vault instructions against the local ledger",
	}
	cmd.PersistentFlags().StringSliceVar(&opts.signers, "signer", nil, "additional signer public keys (the caller always signs)")

	cmd.AddCommand(
		opts.initCmd(),
		opts.createAccountCmd(),
		opts.mintCmd(),
		opts.setAuthorityCmd(),
		opts.approveCmd(),
		opts.revokeCmd(),
		opts.showCmd(),
	)
	return cmd
}

// withRuntime opens the configured account database for the duration of fn.
func (o *localOptions) withRuntime(fn func(*host.Runtime) error) error {
	var (
		db  accounts.Database
		err error
	)
	switch o.cfg.Store.Backend {
	case config.BackendSQLite:
		db, err = accounts.OpenSQLite(o.cfg.Store.Path)
		if err != nil {
			return err
		}
	default:
		db = accounts.NewMemory()
	}
	defer db.Close()
	defer o.logger.Sync() //nolint:errcheck

	return fn(host.NewRuntime(db, o.cfg.ProgramKey(), o.logger))
}

func (o *localOptions) signerKeys(caller solanago.PublicKey) ([]solanago.PublicKey, error) {
	keys := []solanago.PublicKey{caller}
	for _, s := range o.signers {
		key, err := parsePublicKey("signer", s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// execute runs ix for caller and reports the outcome.
func (o *localOptions) execute(cmd *cobra.Command, caller solanago.PublicKey, build func(*host.Runtime, custody.VaultAccounts) (custody.Instruction, error)) error {
	signers, err := o.signerKeys(caller)
	if err != nil {
		return err
	}
	return o.withRuntime(func(rt *host.Runtime) error {
		accts, err := rt.VaultAccounts()
		if err != nil {
			return err
		}
		ix, err := build(rt, accts)
		if err != nil {
			return err
		}
		if err := rt.Execute(cmd.Context(), signers, ix); err != nil {
			return fmt.Errorf("%s: %w", ix.Name(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", ix.Name())
		return nil
	})
}

// accountOrATA returns the --account flag, or caller's associated account.
func accountOrATA(rt *host.Runtime, account string, owner solanago.PublicKey) (solanago.PublicKey, error) {
	if account != "" {
		return parsePublicKey("account", account)
	}
	return rt.AssociatedAccount(owner)
}

func (o *localOptions) initCmd() *cobra.Command {
	var initializer string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the vault record and its mint",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := parsePublicKey("initializer", initializer)
			if err != nil {
				return err
			}
			return o.withRuntime(func(rt *host.Runtime) error {
				vault, err := rt.Initialize(cmd.Context(), caller)
				if err != nil {
					return err
				}
				printVault(cmd.OutOrStdout(), vault)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&initializer, "initializer", "", "public key that pays for and controls the vault")
	_ = cmd.MarkFlagRequired("initializer")
	return cmd
}

func (o *localOptions) createAccountCmd() *cobra.Command {
	var payer, owner string
	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Create the associated token account of owner for the vault mint",
		RunE: func(cmd *cobra.Command, args []string) error {
			payerKey, err := parsePublicKey("payer", payer)
			if err != nil {
				return err
			}
			ownerKey := payerKey
			if owner != "" {
				if ownerKey, err = parsePublicKey("owner", owner); err != nil {
					return err
				}
			}
			return o.execute(cmd, payerKey, func(_ *host.Runtime, accts custody.VaultAccounts) (custody.Instruction, error) {
				return custody.CreateTokenAccountInstruction{Accounts: accts, Payer: payerKey, Owner: ownerKey}, nil
			})
		},
	}
	cmd.Flags().StringVar(&payer, "payer", "", "paying signer")
	cmd.Flags().StringVar(&owner, "owner", "", "account owner (default payer)")
	_ = cmd.MarkFlagRequired("payer")
	return cmd
}

func (o *localOptions) mintCmd() *cobra.Command {
	var caller, to string
	cmd := &cobra.Command{
		Use:   "mint",
		Short: fmt.Sprintf("Mint %d tokens with the caller's mint authority", custody.MintAmount),
		RunE: func(cmd *cobra.Command, args []string) error {
			callerKey, err := parsePublicKey("caller", caller)
			if err != nil {
				return err
			}
			return o.execute(cmd, callerKey, func(rt *host.Runtime, accts custody.VaultAccounts) (custody.Instruction, error) {
				dest, err := accountOrATA(rt, to, callerKey)
				if err != nil {
					return nil, err
				}
				return custody.MintInstruction{Accounts: accts, Caller: callerKey, Destination: dest}, nil
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "current mint authority")
	cmd.Flags().StringVar(&to, "to", "", "destination token account (default caller's associated account)")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}

func (o *localOptions) setAuthorityCmd() *cobra.Command {
	var caller, kind, account, newAuthority string
	cmd := &cobra.Command{
		Use:   "set-authority",
		Short: "Move an authority from the caller to a new key, or clear it with --new none",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := custody.ParseAuthorityKind(kind)
			if err != nil {
				return err
			}
			callerKey, err := parsePublicKey("caller", caller)
			if err != nil {
				return err
			}
			next, err := parseOptionalKey("new authority", newAuthority)
			if err != nil {
				return err
			}
			return o.execute(cmd, callerKey, func(rt *host.Runtime, accts custody.VaultAccounts) (custody.Instruction, error) {
				ix := custody.SetAuthorityInstruction{Accounts: accts, Kind: k, Caller: callerKey, NewAuthority: next}
				if !k.MintScoped() {
					if ix.Account, err = accountOrATA(rt, account, callerKey); err != nil {
						return nil, err
					}
				}
				return ix, nil
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "current holder of the authority")
	cmd.Flags().StringVar(&kind, "kind", "", "mint-tokens, freeze-account, account-owner or close-account")
	cmd.Flags().StringVar(&account, "account", "", "token account for account-owner and close-account (default caller's associated account)")
	cmd.Flags().StringVar(&newAuthority, "new", "", "new authority public key, or none")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func (o *localOptions) approveCmd() *cobra.Command {
	var caller, account, delegate string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: fmt.Sprintf("Let a delegate move %d tokens out of the caller's account", custody.ApproveAmount),
		RunE: func(cmd *cobra.Command, args []string) error {
			callerKey, err := parsePublicKey("caller", caller)
			if err != nil {
				return err
			}
			delegateKey, err := parsePublicKey("delegate", delegate)
			if err != nil {
				return err
			}
			return o.execute(cmd, callerKey, func(rt *host.Runtime, accts custody.VaultAccounts) (custody.Instruction, error) {
				acct, err := accountOrATA(rt, account, callerKey)
				if err != nil {
					return nil, err
				}
				return custody.ApproveInstruction{Accounts: accts, Caller: callerKey, Account: acct, Delegate: delegateKey}, nil
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "account owner")
	cmd.Flags().StringVar(&account, "account", "", "token account (default caller's associated account)")
	cmd.Flags().StringVar(&delegate, "delegate", "", "delegate public key")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("delegate")
	return cmd
}

func (o *localOptions) revokeCmd() *cobra.Command {
	var caller, account string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Clear any delegation on the caller's account",
		RunE: func(cmd *cobra.Command, args []string) error {
			callerKey, err := parsePublicKey("caller", caller)
			if err != nil {
				return err
			}
			return o.execute(cmd, callerKey, func(rt *host.Runtime, accts custody.VaultAccounts) (custody.Instruction, error) {
				acct, err := accountOrATA(rt, account, callerKey)
				if err != nil {
					return nil, err
				}
				return custody.RevokeInstruction{Accounts: accts, Caller: callerKey, Account: acct}, nil
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "account owner")
	cmd.Flags().StringVar(&account, "account", "", "token account (default caller's associated account)")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}

func (o *localOptions) showCmd() *cobra.Command {
	var owners []string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the vault, its mint and the associated accounts of owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRuntime(func(rt *host.Runtime) error {
				return showLocal(cmd.Context(), cmd, rt, owners)
			})
		},
	}
	cmd.Flags().StringSliceVar(&owners, "owner", nil, "owners whose associated accounts to print")
	return cmd
}

func showLocal(ctx context.Context, cmd *cobra.Command, rt *host.Runtime, owners []string) error {
	out := cmd.OutOrStdout()
	vault, err := rt.Vault(ctx)
	if err != nil {
		return err
	}
	printVault(out, vault)

	mint, err := rt.Mint(ctx)
	if err != nil {
		return err
	}
	printMint(out, mint)

	for _, o := range owners {
		owner, err := parsePublicKey("owner", o)
		if err != nil {
			return err
		}
		ata, err := rt.AssociatedAccount(owner)
		if err != nil {
			return err
		}
		account, err := rt.TokenAccount(ctx, ata)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			fmt.Fprintf(out, "Account %s: not created\n", ata)
			continue
		}
		if err != nil {
			return err
		}
		printTokenAccount(out, account)
	}
	return nil
}
