package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metablockshq/spl-token-chapters/internal/config"
	"github.com/metablockshq/spl-token-chapters/internal/logging"
)

const defaultConfigPath = "vaultctl.toml"

// rootOptions holds global flags and what PersistentPreRunE derives from them.
type rootOptions struct {
	configPath string
	programID  string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "vaultctl",
		Short:        "CLI tool for the SPL token custody vault",
		Long:         `vaultctl derives the vault addresses and drives the vault either against a local ledger or a deployed program.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to the TOML config file")
	cmd.PersistentFlags().StringVar(&opts.programID, "program-id", "", "override the configured program ID")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newDeriveCmd(opts))
	cmd.AddCommand(newInitConfigCmd(opts))
	cmd.AddCommand(newLocalCmd(opts))
	cmd.AddCommand(newRemoteCmd(opts))

	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && o.configPath == defaultConfigPath:
		cfg = config.Default()
	case err != nil:
		return err
	}

	if o.programID != "" {
		cfg.ProgramID = o.programID
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func newInitConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Default().WriteTomlConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}
