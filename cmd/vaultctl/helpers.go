package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/state"
)

func parsePublicKey(name, s string) (solanago.PublicKey, error) {
	key, err := solanago.PublicKeyFromBase58(s)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return key, nil
}

// parseOptionalKey accepts "none" for a cleared authority.
func parseOptionalKey(name, s string) (*solanago.PublicKey, error) {
	if strings.EqualFold(s, "none") {
		return nil, nil
	}
	key, err := parsePublicKey(name, s)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// loadWallet reads a solana-keygen JSON keypair file.
func loadWallet(keypairPath string) (*solanago.Wallet, error) {
	keypairData, err := os.ReadFile(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair: %w", err)
	}

	var secretKey []byte
	if err := json.Unmarshal(keypairData, &secretKey); err != nil {
		return nil, fmt.Errorf("failed to parse keypair %s: %w", keypairPath, err)
	}

	wallet, err := solanago.WalletFromPrivateKeyBase58(solanago.PrivateKey(secretKey).String())
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return wallet, nil
}

func optionalKey(k *solanago.PublicKey) string {
	if k == nil {
		return "none"
	}
	return k.String()
}

func printVault(w io.Writer, v state.Vault) {
	fmt.Fprintf(w, "Vault authority: %s\n", v.Authority)
	fmt.Fprintf(w, "Vault mint:      %s\n", v.Mint)
	fmt.Fprintf(w, "Bumps:           vault %d, mint %d\n", v.Bump, v.MintBump)
}

func printMint(w io.Writer, m custody.Mint) {
	fmt.Fprintf(w, "Supply:           %d (decimals %d)\n", m.Supply, m.Decimals)
	fmt.Fprintf(w, "Mint authority:   %s\n", optionalKey(m.MintAuthority))
	fmt.Fprintf(w, "Freeze authority: %s\n", optionalKey(m.FreezeAuthority))
}

func printTokenAccount(w io.Writer, a custody.TokenAccount) {
	fmt.Fprintf(w, "Account %s\n", a.Address)
	fmt.Fprintf(w, "  owner:           %s\n", a.Owner)
	fmt.Fprintf(w, "  amount:          %d\n", a.Amount)
	fmt.Fprintf(w, "  delegate:        %s (%d)\n", optionalKey(a.Delegate), a.DelegatedAmount)
	fmt.Fprintf(w, "  close authority: %s\n", optionalKey(a.CloseAuthority))
}
