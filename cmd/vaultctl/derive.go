package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metablockshq/spl-token-chapters/internal/pda"
)

func newDeriveCmd(opts *rootOptions) *cobra.Command {
	var owners []string

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the vault and mint PDAs and associated token accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			programID := opts.cfg.ProgramKey()
			out := cmd.OutOrStdout()

			vault, vaultBump, err := pda.VaultAddress(programID)
			if err != nil {
				return err
			}
			mint, mintBump, err := pda.MintAddress(programID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Program: %s\n", programID)
			fmt.Fprintf(out, "Vault:   %s (bump %d)\n", vault, vaultBump)
			fmt.Fprintf(out, "Mint:    %s (bump %d)\n", mint, mintBump)

			for _, o := range owners {
				owner, err := parsePublicKey("owner", o)
				if err != nil {
					return err
				}
				ata, _, err := pda.AssociatedTokenAddress(owner, mint)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "ATA:     %s (owner %s)\n", ata, owner)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&owners, "owner", nil, "also derive the associated token account of these owners")
	return cmd
}
