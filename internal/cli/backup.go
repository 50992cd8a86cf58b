package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/backup"
	"github.com/mrz1836/warden/internal/output"
	"github.com/mrz1836/warden/internal/wardencrypto"
)

// backupResult is the JSON shape of wallet backup.
type backupResult struct {
	Path     string          `json:"path"`
	Manifest backup.Manifest `json:"manifest"`
}

// backupListing is one row of wallet backups.
type backupListing struct {
	File     string           `json:"file"`
	Manifest *backup.Manifest `json:"manifest,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func addBackupDirFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVar(dir, "dir", "", "backup directory (default <home>/backups)")
}

func backupService(dir string) *backup.Service {
	if dir == "" {
		dir = filepath.Join(cmdCtx.Config.HomeDir(), "backups")
	}
	return backup.NewService(dir, cmdCtx.Registry, cmdCtx.Vault, cmdCtx.Clock)
}

func newWalletBackupCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup [wallet]",
		Short: "Write an encrypted backup of a wallet",
		Long: `Export the wallet record to a file encrypted under the wallet password.
The key inside stays sealed, so the file can be restored without the seed phrase.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := cmdCtx.Wallets.Resolve(cmd.Context(), argOrEmpty(args))
			if err != nil {
				return err
			}
			password, err := promptPasswordFn("Password for " + w.Address + ": ")
			if err != nil {
				return err
			}
			defer wardencrypto.Wipe(password)

			b, path, err := backupService(dir).Create(cmd.Context(), w.Address, password)
			if err != nil {
				return err
			}
			cmdCtx.Logger.Debug("backup: wrote %s", path)
			return formatter.Record(backupResult{Path: path, Manifest: b.Manifest},
				output.Field{Label: "Backup", Value: path},
				output.Field{Label: "Address", Value: b.Manifest.Address},
				output.Field{Label: "Curve", Value: b.Manifest.Curve.String()},
			)
		},
	}
	addBackupDirFlag(cmd, &dir)
	return cmd
}

func newWalletRestoreCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a wallet from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := backupService("")
			m, err := svc.Verify(args[0])
			if err != nil {
				return err
			}
			password, err := promptPasswordFn("Password for " + m.Address + ": ")
			if err != nil {
				return err
			}
			defer wardencrypto.Wipe(password)

			entry, err := svc.Restore(cmd.Context(), args[0], password, name)
			if err != nil {
				return err
			}
			w, err := cmdCtx.Wallets.Get(cmd.Context(), entry.Address)
			if err != nil {
				return err
			}
			return formatter.Record(w, summaryFields(w)...)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "nickname for the restored wallet")
	return cmd
}

func newWalletBackupsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List backup files",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc := backupService(dir)
			names, err := svc.List()
			if err != nil {
				return err
			}
			rows := make([]backupListing, 0, len(names))
			for _, n := range names {
				row := backupListing{File: svc.Path(n)}
				if m, verr := svc.Verify(row.File); verr != nil {
					row.Error = verr.Error()
				} else {
					row.Manifest = m
				}
				rows = append(rows, row)
			}
			if formatter.IsJSON() {
				return formatter.Print(rows)
			}
			if len(rows) == 0 {
				output.Info(formatter.Writer(), "no backups in %s", svc.Dir())
				return nil
			}
			t := output.NewTable("FILE", "ADDRESS", "CURVE", "CREATED")
			for _, r := range rows {
				if r.Manifest == nil {
					t.AddRow(filepath.Base(r.File), "invalid: "+r.Error, "", "")
					continue
				}
				t.AddRow(filepath.Base(r.File), r.Manifest.Address, r.Manifest.Curve.String(), formatTime(r.Manifest.CreatedAt))
			}
			return t.Render(formatter.Writer())
		},
	}
	addBackupDirFlag(cmd, &dir)
	return cmd
}
