package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Store backends
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// StoreConfig selects where the local ledger keeps its accounts.
type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path,omitempty"` // sqlite only
}

// ClusterConfig is the RPC endpoint of a deployed vault program.
type ClusterConfig struct {
	RPCURL     string `toml:"rpc_url"`
	Commitment string `toml:"commitment"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the vaultctl configuration file.
type Config struct {
	ProgramID string        `toml:"program_id"`
	Keypair   string        `toml:"keypair,omitempty"`
	Store     StoreConfig   `toml:"store"`
	Cluster   ClusterConfig `toml:"cluster"`
	Log       LogConfig     `toml:"log"`
}

// Default returns a config for a local sqlite ledger and a localnet cluster.
func Default() *Config {
	return &Config{
		ProgramID: "29iiLtNregFkwH4n4K95GrKYcGUGC3F6D5thPE2jWQQs",
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "vault.db",
		},
		Cluster: ClusterConfig{
			RPCURL:     rpc.LocalNet.RPC,
			Commitment: string(rpc.CommitmentConfirmed),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := solanago.PublicKeyFromBase58(c.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("program_id: %w", err))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q, want %q or %q", c.Store.Backend, BackendMemory, BackendSQLite))
	}
	switch rpc.CommitmentType(c.Cluster.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("cluster.commitment %q is not processed, confirmed or finalized", c.Cluster.Commitment))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q, want json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ProgramKey returns the parsed program ID. Call Validate first.
func (c *Config) ProgramKey() solanago.PublicKey {
	return solanago.MustPublicKeyFromBase58(c.ProgramID)
}

// WriteTomlConfig writes the config to a TOML file
func (c *Config) WriteTomlConfig(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}
