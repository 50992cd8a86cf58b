// Package cli implements the Warden command-line interface.
//
// Process-wide state (config, logger, formatter, command context) is set up in
// PersistentPreRunE and released in PersistentPostRun, the usual Cobra shape.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/config"
	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/output"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	home    string
	output  string
	verbose bool
}

var (
	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "warden",
		Short: "Wallet custody and transaction authorization",
		Long: `Warden keeps encrypted wallet keys, unlocks them on demand, signs
transactions for the ledger and proves wallet ownership to a login service.

Example:
  warden wallet create --curve ethsecp256k1 --name main
  warden tx send --to 1111111111111111111111111111111111111111 --amount 1000 --broadcast
  warden auth login`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initGlobals(cmd, flags)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			cleanup()
		},
	}

	root.PersistentFlags().StringVar(&flags.home, "home", "", "warden data directory (default: ~/.warden)")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "auto", "output format: text, json, auto")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	root.AddGroup(
		&cobra.Group{ID: "wallet", Title: "Wallet Commands:"},
		&cobra.Group{ID: "auth", Title: "Authentication Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration Commands:"},
	)
	root.AddCommand(newWalletCmd(), newTxCmd(), newAuthCmd(), newIssuerCmd(), newConfigCmd(), newVersionCmd())
	return root
}

// Execute runs the root command and prints any error.
func Execute() error {
	return execute(newRootCmd(), os.Stderr)
}

func execute(root *cobra.Command, errOut io.Writer) error {
	err := root.Execute()
	if err == nil {
		return nil
	}
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	_ = output.FormatError(errOut, err, format)
	cleanup()
	return err
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return wardenerr.ExitCode(err)
}

// initGlobals loads configuration, opens the logger and builds the command
// context. Precedence: flags, then environment, then config file, then defaults.
func initGlobals(cmd *cobra.Command, flags *globalFlags) error {
	home := flags.home
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	loaded, err := config.Load(config.Path(config.ExpandPath(home)))
	switch {
	case err == nil:
		cfg = loaded
	case wardenerr.Is(err, wardenerr.ErrConfigNotFound):
		cfg = config.Defaults()
		cfg.Home = home
		cfg.Logging.File = filepath.Join(home, "warden.log")
	default:
		return err
	}

	config.ApplyEnvironment(cfg)
	if flags.home != "" {
		cfg.Home = flags.home
	}
	if flags.verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = config.LogLevelDebug.String()
	}
	if flags.output != "" && flags.output != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = flags.output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.LogFile())
	if err != nil {
		logger = config.NullLogger()
	}
	formatter = output.NewFormatter(output.ParseFormat(cfg.Output.DefaultFormat), cmd.OutOrStdout())

	cmdCtx, err = newCommandContextFn(cfg, logger, formatter)
	if err != nil {
		return err
	}
	logger.Debug("cli: %s", cmd.CommandPath())
	return nil
}

// cleanup locks every wallet, logs the metrics snapshot and closes the log.
func cleanup() {
	if cmdCtx != nil {
		if n := cmdCtx.Sessions.LockAll(); n > 0 && logger != nil {
			logger.Debug("cli: locked %d wallet(s) on exit", n)
		}
		cmdCtx = nil
	}
	if logger != nil {
		s := metrics.Global.Snapshot()
		logger.Debug("metrics: http=%d errors=%d avg_ms=%.1f issuer=%d broadcast=%d registry=%d unlocks=%d/%d signs=%d/%d auth=%d/%d throttled=%d/%s",
			s.HTTPCallsTotal, s.HTTPErrorsTotal, metrics.Global.HTTPLatencyAvgMs(),
			s.IssuerCalls, s.BroadcastCalls, s.RegistryCalls,
			s.UnlocksTotal, s.UnlockFailures, s.SignaturesTotal, s.SignFailures,
			s.AuthFlowsTotal, s.AuthFlowFailures, s.ThrottledTotal, s.ThrottleWait)
		_ = logger.Close()
	}
}
