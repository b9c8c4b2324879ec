package main

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/splvault"
)

type remoteOptions struct {
	*rootOptions
	keypair string
	rpcURL  string
}

func newRemoteCmd(root *rootOptions) *cobra.Command {
	opts := &remoteOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Send vault instructions to a deployed program",
	}
	cmd.PersistentFlags().StringVar(&opts.keypair, "keypair", "", "payer keypair file (default from config)")
	cmd.PersistentFlags().StringVar(&opts.rpcURL, "rpc-url", "", "cluster RPC URL (default from config)")

	cmd.AddCommand(
		opts.initCmd(),
		opts.mintCmd(),
		opts.setAuthorityCmd(),
		opts.approveCmd(),
		opts.revokeCmd(),
		opts.showCmd(),
	)
	return cmd
}

func (o *remoteOptions) client() *splvault.Client {
	url := o.cfg.Cluster.RPCURL
	if o.rpcURL != "" {
		url = o.rpcURL
	}
	return splvault.NewClient(
		rpc.New(url),
		o.cfg.ProgramKey(),
		splvault.WithCommitment(rpc.CommitmentType(o.cfg.Cluster.Commitment)),
		splvault.WithLogger(o.logger),
	)
}

func (o *remoteOptions) payer() (*solanago.Wallet, error) {
	path := o.cfg.Keypair
	if o.keypair != "" {
		path = o.keypair
	}
	if path == "" {
		return nil, fmt.Errorf("no keypair: set --keypair or keypair in the config")
	}
	return loadWallet(path)
}

// send builds ix for the payer and submits it with any extra signers.
func (o *remoteOptions) send(cmd *cobra.Command, build func(payer solanago.PublicKey, accts custody.VaultAccounts) (custody.Instruction, []*solanago.Wallet, error)) error {
	payer, err := o.payer()
	if err != nil {
		return err
	}
	accts, err := splvault.Accounts(o.cfg.ProgramKey())
	if err != nil {
		return err
	}
	ix, signers, err := build(payer.PublicKey(), accts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sending %s...\n", ix.Name())
	sig, err := o.client().Execute(cmd.Context(), ix, payer, signers...)
	if err != nil {
		return fmt.Errorf("%s: %w", ix.Name(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s confirmed: %s\n", ix.Name(), sig)
	return nil
}

func (o *remoteOptions) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Send create_mint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.send(cmd, func(payer solanago.PublicKey, _ custody.VaultAccounts) (custody.Instruction, []*solanago.Wallet, error) {
				return custody.InitializeInstruction{Initializer: payer}, nil, nil
			})
		},
	}
}

func (o *remoteOptions) mintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mint",
		Short: "Send transfer_mint, minting into the payer's associated account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.send(cmd, func(payer solanago.PublicKey, accts custody.VaultAccounts) (custody.Instruction, []*solanago.Wallet, error) {
				ata, _, err := pda.AssociatedTokenAddress(payer, accts.Mint)
				if err != nil {
					return nil, nil, err
				}
				return custody.MintInstruction{Accounts: accts, Caller: payer, Destination: ata}, nil, nil
			})
		},
	}
}

func (o *remoteOptions) setAuthorityCmd() *cobra.Command {
	var kind, another string
	cmd := &cobra.Command{
		Use:   "set-authority",
		Short: "Send one of the set_*_authority instructions",
		Long: `For mint-tokens, freeze-account and account-owner the authority moves from the payer to
the --another keypair. For close-account it moves from --another to the payer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := custody.ParseAuthorityKind(kind)
			if err != nil {
				return err
			}
			other, err := loadWallet(another)
			if err != nil {
				return err
			}
			return o.send(cmd, func(payer solanago.PublicKey, accts custody.VaultAccounts) (custody.Instruction, []*solanago.Wallet, error) {
				otherKey := other.PublicKey()
				ix := custody.SetAuthorityInstruction{Accounts: accts, Kind: k, Caller: payer, NewAuthority: &otherKey}
				if k == custody.CloseAccount {
					ix.Caller, ix.NewAuthority = otherKey, &payer
				}
				if !k.MintScoped() {
					ata, _, err := pda.AssociatedTokenAddress(ix.Caller, accts.Mint)
					if err != nil {
						return nil, nil, err
					}
					ix.Account = ata
				}
				return ix, []*solanago.Wallet{other}, nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "mint-tokens, freeze-account, account-owner or close-account")
	cmd.Flags().StringVar(&another, "another", "", "keypair of the other authority, which must sign")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("another")
	return cmd
}

func (o *remoteOptions) approveCmd() *cobra.Command {
	var delegate string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Send approve_tokens for the payer's associated account",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadWallet(delegate)
			if err != nil {
				return err
			}
			return o.send(cmd, func(payer solanago.PublicKey, accts custody.VaultAccounts) (custody.Instruction, []*solanago.Wallet, error) {
				ata, _, err := pda.AssociatedTokenAddress(payer, accts.Mint)
				if err != nil {
					return nil, nil, err
				}
				return custody.ApproveInstruction{Accounts: accts, Caller: payer, Account: ata, Delegate: d.PublicKey()}, []*solanago.Wallet{d}, nil
			})
		},
	}
	cmd.Flags().StringVar(&delegate, "delegate", "", "delegate keypair, which must sign")
	_ = cmd.MarkFlagRequired("delegate")
	return cmd
}

func (o *remoteOptions) revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Send revoke_tokens for the payer's associated account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.send(cmd, func(payer solanago.PublicKey, accts custody.VaultAccounts) (custody.Instruction, []*solanago.Wallet, error) {
				ata, _, err := pda.AssociatedTokenAddress(payer, accts.Mint)
				if err != nil {
					return nil, nil, err
				}
				return custody.RevokeInstruction{Accounts: accts, Caller: payer, Account: ata}, nil, nil
			})
		},
	}
}

func (o *remoteOptions) showCmd() *cobra.Command {
	var owners []string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Fetch the vault, its mint and the associated accounts of owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([]solanago.PublicKey, 0, len(owners))
			for _, s := range owners {
				key, err := parsePublicKey("owner", s)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}

			snap, err := o.client().Snapshot(cmd.Context(), keys...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printVault(out, snap.Vault)
			printMint(out, snap.Mint)
			for _, account := range snap.Accounts {
				printTokenAccount(out, account)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&owners, "owner", nil, "owners whose associated accounts to fetch")
	return cmd
}
