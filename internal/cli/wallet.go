package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/mnemonic"
	"github.com/mrz1836/warden/internal/output"
	walletsvc "github.com/mrz1836/warden/internal/service/wallet"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// createFlags are shared by wallet create and wallet import.
type createFlags struct {
	curve    string
	name     string
	words    int
	activate bool
}

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wallet",
		Short:   "Manage wallets",
		Long:    `Create, import, list and manage encrypted wallet keys.`,
		GroupID: "wallet",
	}
	cmd.AddCommand(
		newWalletCreateCmd(),
		newWalletImportCmd(),
		newWalletListCmd(),
		newWalletShowCmd(),
		newWalletRenameCmd(),
		newWalletActivateCmd(),
		newWalletDeleteCmd(),
		newWalletPasswdCmd(),
		newWalletFreezeCmd(),
		newWalletBackupCmd(),
		newWalletRestoreCmd(),
		newWalletBackupsCmd(),
	)
	return cmd
}

func addCreateFlags(cmd *cobra.Command, f *createFlags) {
	cmd.Flags().StringVar(&f.curve, "curve", string(keys.EthSecp256k1), "key curve: ed25519, bls12381, secp256k1, ethsecp256k1")
	cmd.Flags().StringVar(&f.name, "name", "", "wallet nickname")
	cmd.Flags().BoolVar(&f.activate, "activate", false, "make this the active wallet")
}

func newWalletCreateCmd() *cobra.Command {
	f := &createFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wallet from a new seed phrase",
		Long: `Generate a seed phrase, derive the key for the chosen curve and store it
encrypted under a password. The phrase is shown once and never stored.`,
		Example: `  warden wallet create
  warden wallet create --curve bls12381 --words 24 --name validator`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWalletCreate(cmd, f)
		},
	}
	addCreateFlags(cmd, f)
	cmd.Flags().IntVar(&f.words, "words", mnemonic.Words12, "seed phrase length: 12 or 24")
	return cmd
}

func runWalletCreate(cmd *cobra.Command, f *createFlags) error {
	curve, err := keys.ParseCurve(f.curve)
	if err != nil {
		return err
	}
	if f.words != mnemonic.Words12 && f.words != mnemonic.Words24 {
		return wardenerr.WithSuggestion(
			wardenerr.WithDetails(wardenerr.ErrInvalidInput, map[string]string{"words": "must be 12 or 24"}),
			"use --words 12 or --words 24",
		)
	}

	password, err := promptNewPasswordFn()
	if err != nil {
		return err
	}
	defer wardencrypto.Wipe(password)

	res, err := cmdCtx.Wallets.Generate(cmd.Context(), &walletsvc.GenerateRequest{
		Words:    f.words,
		Curve:    curve,
		Password: password,
		Nickname: f.name,
		Activate: f.activate,
	})
	if err != nil {
		return err
	}

	if formatter.IsJSON() {
		return formatter.Print(struct {
			Address  string     `json:"address"`
			Curve    keys.Curve `json:"curve"`
			Nickname string     `json:"nickname,omitempty"`
			Phrase   string     `json:"phrase"`
		}{res.Entry.Address, res.Entry.Curve, res.Entry.Nickname, res.Phrase.Reveal()})
	}

	w := formatter.Writer()
	outln(w, "Seed phrase (write it down, it will not be shown again):")
	outln(w)
	outln(w, "  "+res.Phrase.Reveal())
	outln(w)
	output.Success(w, "created %s (%s)", res.Entry.Address, res.Entry.Curve)
	return nil
}

func newWalletImportCmd() *cobra.Command {
	f := &createFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from an existing seed phrase",
		Long: `Read a seed phrase (hidden on a terminal, one line from stdin otherwise),
derive the key for the chosen curve and store it encrypted under a password.`,
		Example: `  warden wallet import --curve ed25519 --name cold`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			curve, err := keys.ParseCurve(f.curve)
			if err != nil {
				return err
			}
			phrase, err := promptPhraseFn()
			if err != nil {
				return err
			}
			if _, err := mnemonic.Parse(phrase); err != nil {
				return err
			}
			password, err := promptNewPasswordFn()
			if err != nil {
				return err
			}
			defer wardencrypto.Wipe(password)

			entry, err := cmdCtx.Wallets.Create(cmd.Context(), &walletsvc.CreateRequest{
				Phrase:   phrase,
				Curve:    curve,
				Password: password,
				Nickname: f.name,
				Activate: f.activate,
			})
			if err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.Print(map[string]string{"address": entry.Address, "curve": entry.Curve.String()})
			}
			output.Success(formatter.Writer(), "imported %s (%s)", entry.Address, entry.Curve)
			return nil
		},
	}
	addCreateFlags(cmd, f)
	return cmd
}

func newWalletListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List wallets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallets, err := cmdCtx.Wallets.List(cmd.Context())
			if err != nil {
				return err
			}
			if formatter.IsJSON() {
				return formatter.Print(wallets)
			}
			if len(wallets) == 0 {
				output.Info(formatter.Writer(), "no wallets; create one with: warden wallet create")
				return nil
			}
			t := output.NewTable("", "ADDRESS", "CURVE", "NAME", "LAST USED")
			for _, w := range wallets {
				marker := ""
				if w.Active {
					marker = "*"
				}
				if w.Frozen {
					marker += "!"
				}
				t.AddRow(marker, w.Address, w.Curve.String(), w.Nickname, formatTime(w.LastUsedAt))
			}
			return t.Render(formatter.Writer())
		},
	}
}

func newWalletShowCmd() *cobra.Command {
	var showQR bool
	cmd := &cobra.Command{
		Use:   "show [wallet]",
		Short: "Show a wallet",
		Long: `Show a wallet by address or nickname. Without an argument the active
wallet is shown. --qr adds a QR code of the address.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := cmdCtx.Wallets.Resolve(cmd.Context(), argOrEmpty(args))
			if err != nil {
				return err
			}
			if err := formatter.Record(w, summaryFields(w)...); err != nil {
				return err
			}
			if showQR && !formatter.IsJSON() {
				cfg := output.DefaultQRConfig()
				cfg.Force = true
				outln(formatter.Writer())
				return output.RenderQR(formatter.Writer(), output.AddressURI(w.Curve, w.Address), cfg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showQR, "qr", false, "print the address as a QR code")
	return cmd
}

func newWalletRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <wallet> <nickname>",
		Short: "Change a wallet's nickname",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := cmdCtx.Wallets.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w, err = cmdCtx.Wallets.Rename(cmd.Context(), w.Address, args[1])
			if err != nil {
				return err
			}
			return formatter.Record(w, summaryFields(w)...)
		},
	}
}

func newWalletActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <wallet>",
		Short: "Make a wallet the default for other commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := cmdCtx.Wallets.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := cmdCtx.Wallets.SetActive(cmd.Context(), w.Address); err != nil {
				return err
			}
			return output.FormatSuccess(formatter.Writer(), w.Address+" is now active", formatter.Format())
		},
	}
}

func newWalletDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <wallet>",
		Short: "Delete a wallet",
		Long: `Remove a wallet record. The encrypted key is gone for good; only the
seed phrase can bring it back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := cmdCtx.Wallets.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !force && !promptConfirmFn("Delete "+w.Address+"?") {
				return wardenerr.ErrUserCancelled
			}
			if err := cmdCtx.Wallets.Delete(cmd.Context(), w.Address); err != nil {
				return err
			}
			return output.FormatSuccess(formatter.Writer(), "deleted "+w.Address, formatter.Format())
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}

func newWalletPasswdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd [wallet]",
		Short: "Change a wallet's password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := cmdCtx.Wallets.Resolve(cmd.Context(), argOrEmpty(args))
			if err != nil {
				return err
			}
			current, err := promptPasswordFn("Current password: ")
			if err != nil {
				return err
			}
			defer wardencrypto.Wipe(current)
			next, err := promptNewPasswordFn()
			if err != nil {
				return err
			}
			defer wardencrypto.Wipe(next)

			if err := cmdCtx.Wallets.ChangePassword(cmd.Context(), w.Address, current, next); err != nil {
				return err
			}
			return output.FormatSuccess(formatter.Writer(), "password changed for "+w.Address, formatter.Format())
		},
	}
}

func newWalletFreezeCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "freeze [wallet]",
		Short: "Freeze or thaw a wallet",
		Long: `A frozen wallet cannot be unlocked, so nothing can be signed with it
until it is thawed with --off.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := cmdCtx.Wallets.Resolve(cmd.Context(), argOrEmpty(args))
			if err != nil {
				return err
			}
			if err := cmdCtx.Wallets.SetFrozen(cmd.Context(), w.Address, !off); err != nil {
				return err
			}
			msg := "froze " + w.Address
			if off {
				msg = "thawed " + w.Address
			}
			return output.FormatSuccess(formatter.Writer(), msg, formatter.Format())
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "thaw a frozen wallet")
	return cmd
}

// unlockFor resolves ref, prompts for the password and unlocks the wallet
// for the rest of the command. The returned release locks it again.
func unlockFor(ctx context.Context, ref string) (*walletsvc.Summary, func(), error) {
	w, err := cmdCtx.Wallets.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	password, err := promptPasswordFn("Password for " + w.Address + ": ")
	if err != nil {
		return nil, nil, err
	}
	defer wardencrypto.Wipe(password)

	if err := cmdCtx.Wallets.Unlock(ctx, w.Address, password); err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := cmdCtx.Wallets.Lock(w.Address); err != nil {
			output.Warn(os.Stderr, "could not lock %s", w.Address)
		}
	}
	return w, release, nil
}

func summaryFields(w *walletsvc.Summary) []output.Field {
	return []output.Field{
		{Label: "Address", Value: w.Address},
		{Label: "Curve", Value: w.Curve.String()},
		{Label: "Public key", Value: w.PublicKey},
		{Label: "Nickname", Value: w.Nickname},
		{Label: "Created", Value: formatTime(w.CreatedAt)},
		{Label: "Last used", Value: formatTime(w.LastUsedAt)},
		{Label: "Active", Value: yesNo(w.Active)},
		{Label: "Frozen", Value: yesNo(w.Frozen)},
	}
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
