package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/warden/internal/config"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Manage configuration",
		Long:    `View and initialize the Warden configuration file.`,
		GroupID: "config",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Create a default configuration file at <home>/config.yaml.

An existing file is only overwritten with --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.Path(cfg.HomeDir())
			if _, err := os.Stat(path); err == nil && !force {
				return wardenerr.WithSuggestion(
					wardenerr.WithDetails(wardenerr.ErrGeneral, map[string]string{"path": path}),
					"configuration already exists; use --force to overwrite",
				)
			}

			fresh := config.Defaults()
			fresh.Home = cfg.Home
			if err := config.Save(fresh, path); err != nil {
				return fmt.Errorf("writing config file: %w", err)
			}

			w := cmd.OutOrStdout()
			out(w, "Configuration initialized at %s\n", path)
			outln(w)
			outln(w, "Edit this file to configure:")
			outln(w, "  - auth.issuer_url: login issuer endpoint")
			outln(w, "  - network.broadcast_url: transaction broadcast endpoint")
			outln(w, "  - network.network_id / network.chain_id: target ledger")
			outln(w, "  - security.auto_lock_seconds: idle time before wallets lock")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration after defaults, the config file, environment
variables and flags have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if formatter.IsJSON() {
				return formatter.Print(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outln(cmd.OutOrStdout(), config.Path(cfg.HomeDir()))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, pathCmd)
	return cmd
}
