package cli

import (
	"encoding/hex"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mrz1836/warden/internal/output"
	walletsvc "github.com/mrz1836/warden/internal/service/wallet"
	"github.com/mrz1836/warden/internal/tx"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// txFlags are common to every transaction command.
type txFlags struct {
	wallet    string
	fee       uint64
	memo      string
	height    uint64
	broadcast bool
}

// stakeFlags are the validator fields of stake and edit-stake.
type stakeFlags struct {
	amount     uint64
	committees []uint
	netAddress string
	output     string
	delegate   bool
	compound   bool
}

// orderFlags are the order book fields.
type orderFlags struct {
	orderID   string
	chainID   uint64
	data      string
	forSale   uint64
	requested uint64
	receiveTo string
}

// messageFunc builds a message for the unlocked wallet w.
type messageFunc func(w *walletsvc.Summary) (tx.Message, error)

func newTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Build, sign and broadcast transactions",
		Long: `Build a transaction for the configured network, sign it with an unlocked
wallet and print it. With --broadcast the signed transaction is submitted to
network.broadcast_url.`,
		GroupID: "wallet",
	}
	cmd.AddCommand(
		newTxSendCmd(),
		newTxStakeCmd(),
		newTxEditStakeCmd(),
		newTxAddressOnlyCmd("unstake", "Begin unbonding a stake", func(a string) tx.Message { return tx.Unstake{Address: a} }),
		newTxAddressOnlyCmd("pause", "Take a validator out of rotation", func(a string) tx.Message { return tx.Pause{Address: a} }),
		newTxAddressOnlyCmd("unpause", "Return a paused validator to rotation", func(a string) tx.Message { return tx.Unpause{Address: a} }),
		newTxOrderCmd(),
	)
	return cmd
}

func addTxFlags(fs *pflag.FlagSet, f *txFlags) {
	fs.StringVarP(&f.wallet, "wallet", "w", "", "signing wallet address or nickname (default: active wallet)")
	fs.Uint64Var(&f.fee, "fee", 0, "transaction fee")
	fs.StringVar(&f.memo, "memo", "", "memo, up to 200 bytes")
	fs.Uint64Var(&f.height, "height", 0, "target block height")
	fs.BoolVar(&f.broadcast, "broadcast", false, "submit the signed transaction")
}

func addStakeFlags(fs *pflag.FlagSet, f *stakeFlags) {
	fs.Uint64Var(&f.amount, "amount", 0, "amount to stake")
	fs.UintSliceVar(&f.committees, "committees", nil, "committee ids, comma separated")
	fs.StringVar(&f.netAddress, "net-address", "", "validator network address")
	fs.StringVar(&f.output, "output-address", "", "reward address (default: signing wallet)")
	fs.BoolVar(&f.compound, "compound", false, "restake rewards automatically")
}

func addOrderFlags(fs *pflag.FlagSet, f *orderFlags) {
	fs.Uint64Var(&f.chainID, "chain-id", 0, "committee chain id of the order book")
	fs.StringVar(&f.data, "data", "", "hex data attached to the order")
	fs.Uint64Var(&f.forSale, "amount-for-sale", 0, "amount offered")
	fs.Uint64Var(&f.requested, "requested-amount", 0, "amount requested in return")
	fs.StringVar(&f.receiveTo, "receive-address", "", "seller receive address")
}

func newTxSendCmd() *cobra.Command {
	f := &txFlags{}
	var to string
	var amount uint64
	cmd := &cobra.Command{
		Use:     "send",
		Short:   "Send funds to another account",
		Example: `  warden tx send --to 1111111111111111111111111111111111111111 --amount 1000 --fee 10`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTx(cmd, f, func(w *walletsvc.Summary) (tx.Message, error) {
				return tx.Send{FromAddress: w.Address, ToAddress: to, Amount: amount}, nil
			})
		},
	}
	addTxFlags(cmd.Flags(), f)
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to send")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newTxStakeCmd() *cobra.Command {
	f := &txFlags{}
	s := &stakeFlags{}
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Stake as a validator or delegator",
		Long: `Stake the signing wallet's public key. The wallet signs as both the
staker and the signer; rewards go to --output-address or the wallet itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTx(cmd, f, func(w *walletsvc.Summary) (tx.Message, error) {
				return tx.Stake{
					PublicKey:     w.PublicKey,
					Amount:        s.amount,
					Committees:    toUint64s(s.committees),
					NetAddress:    s.netAddress,
					OutputAddress: orDefault(s.output, w.Address),
					Delegate:      s.delegate,
					Compound:      s.compound,
					Signer:        w.Address,
				}, nil
			})
		},
	}
	addTxFlags(cmd.Flags(), f)
	addStakeFlags(cmd.Flags(), s)
	cmd.Flags().BoolVar(&s.delegate, "delegate", false, "stake as a delegator")
	return cmd
}

func newTxEditStakeCmd() *cobra.Command {
	f := &txFlags{}
	s := &stakeFlags{}
	cmd := &cobra.Command{
		Use:   "edit-stake",
		Short: "Change an existing stake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTx(cmd, f, func(w *walletsvc.Summary) (tx.Message, error) {
				return tx.EditStake{
					Address:       w.Address,
					Amount:        s.amount,
					Committees:    toUint64s(s.committees),
					NetAddress:    s.netAddress,
					OutputAddress: orDefault(s.output, w.Address),
					Compound:      s.compound,
					Signer:        w.Address,
				}, nil
			})
		},
	}
	addTxFlags(cmd.Flags(), f)
	addStakeFlags(cmd.Flags(), s)
	return cmd
}

func newTxAddressOnlyCmd(use, short string, msg func(address string) tx.Message) *cobra.Command {
	f := &txFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTx(cmd, f, func(w *walletsvc.Summary) (tx.Message, error) {
				return msg(w.Address), nil
			})
		},
	}
	addTxFlags(cmd.Flags(), f)
	return cmd
}

func newTxOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage sell orders on a committee order book",
	}

	createTx, create := &txFlags{}, &orderFlags{}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open a sell order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTx(cmd, createTx, func(w *walletsvc.Summary) (tx.Message, error) {
				return tx.CreateOrder{
					ChainID:              create.chainID,
					Data:                 create.data,
					AmountForSale:        create.forSale,
					RequestedAmount:      create.requested,
					SellerReceiveAddress: orDefault(create.receiveTo, w.Address),
					SellersSendAddress:   w.Address,
				}, nil
			})
		},
	}
	addTxFlags(createCmd.Flags(), createTx)
	addOrderFlags(createCmd.Flags(), create)

	editTx, edit := &txFlags{}, &orderFlags{}
	editCmd := &cobra.Command{
		Use:   "edit <order-id>",
		Short: "Change an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTx(cmd, editTx, func(w *walletsvc.Summary) (tx.Message, error) {
				return tx.EditOrder{
					OrderID:              args[0],
					ChainID:              edit.chainID,
					Data:                 edit.data,
					AmountForSale:        edit.forSale,
					RequestedAmount:      edit.requested,
					SellerReceiveAddress: orDefault(edit.receiveTo, w.Address),
				}, nil
			})
		},
	}
	addTxFlags(editCmd.Flags(), editTx)
	addOrderFlags(editCmd.Flags(), edit)

	deleteTx := &txFlags{}
	var deleteChain uint64
	deleteCmd := &cobra.Command{
		Use:   "delete <order-id>",
		Short: "Withdraw an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTx(cmd, deleteTx, func(_ *walletsvc.Summary) (tx.Message, error) {
				return tx.DeleteOrder{OrderID: args[0], ChainID: deleteChain}, nil
			})
		},
	}
	addTxFlags(deleteCmd.Flags(), deleteTx)
	deleteCmd.Flags().Uint64Var(&deleteChain, "chain-id", 0, "committee chain id of the order book")

	cmd.AddCommand(createCmd, editCmd, deleteCmd)
	return cmd
}

// runTx builds the message, validates it before any password prompt, then
// unlocks, signs and optionally broadcasts.
func runTx(cmd *cobra.Command, f *txFlags, build messageFunc) error {
	ctx := cmd.Context()

	w, err := cmdCtx.Wallets.Resolve(ctx, f.wallet)
	if err != nil {
		return err
	}
	msg, err := build(w)
	if err != nil {
		return err
	}
	builder := tx.NewBuilder(cfg.Network.NetworkID, cfg.Network.ChainID)
	u, err := builder.Build(msg, f.fee, f.memo, f.height)
	if err != nil {
		return err
	}

	w, release, err := unlockFor(ctx, w.Address)
	if err != nil {
		return err
	}
	defer release()

	if !f.broadcast {
		signed, err := cmdCtx.Wallets.Sign(ctx, w.Address, u)
		if err != nil {
			return err
		}
		return printSigned(signed)
	}

	res, err := cmdCtx.Wallets.SignAndBroadcast(ctx, w.Address, u)
	if err != nil {
		if res != nil && res.Signed != nil {
			if hash, herr := res.Signed.Hash(); herr == nil {
				return wardenerr.WithDetails(err, map[string]string{"hash": hash})
			}
		}
		return err
	}
	if formatter.IsJSON() {
		return formatter.Print(res)
	}
	return formatter.Record(res, []output.Field{
		{Label: "Hash", Value: res.Receipt.Hash},
		{Label: "Type", Value: string(res.Signed.Type())},
		{Label: "Accepted", Value: yesNo(res.Receipt.Accepted)},
		{Label: "Message", Value: res.Receipt.Message},
	}...)
}

func printSigned(signed *tx.Signed) error {
	if formatter.IsJSON() {
		return formatter.Print(signed)
	}
	hash, err := signed.Hash()
	if err != nil {
		return err
	}
	enc, err := signed.Encode()
	if err != nil {
		return err
	}
	return formatter.Record(signed, []output.Field{
		{Label: "Hash", Value: hash},
		{Label: "Type", Value: string(signed.Type())},
		{Label: "Fee", Value: strconv.FormatUint(signed.Fee, 10)},
		{Label: "Memo", Value: signed.Memo},
		{Label: "Curve", Value: signed.Signature.Curve.String()},
		{Label: "Encoded", Value: hex.EncodeToString(enc)},
	}...)
}

func toUint64s(in []uint) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
