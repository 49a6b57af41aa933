package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Marketen/liveness-indexer/internal/adapters"
	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/config"
	"github.com/Marketen/liveness-indexer/internal/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "liveness-indexer",
		Short:         "Validator heartbeat liveness node",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newSlashFractionCmd(), newKeygenCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the heartbeat worker, ledger and session rotation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg *config.Config
				err error
			)
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				logger.Error("Failed to load config: %v", err)
				return err
			}
			return runNode(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newSlashFractionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slash-fraction <offenders> <validators>",
		Short: "Print the unresponsiveness slash fraction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			offenders, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid offenders %q: %w", args[0], err)
			}
			validators, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid validators %q: %w", args[1], err)
			}
			frac, err := domain.SlashFraction(uint32(offenders), uint32(validators))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d perbill (%s)\n", frac.Parts(), frac)
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Write a new ed25519 validator key file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := adapters.GenerateKeyFile(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "validator-key.json", "key file to write")
	return cmd
}
