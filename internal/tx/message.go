// Package tx builds, encodes and signs launchpad transactions. Each message
// kind is its own type; the canonical encoding is a TLV stream so the same
// fields always produce the same bytes.
package tx

import (
	"encoding/hex"
	"strings"

	"github.com/mrz1836/warden/internal/registry"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// MessageType names a message variant. The value is part of the signed bytes.
type MessageType string

// Message types.
const (
	MsgSend        MessageType = "send"
	MsgStake       MessageType = "stake"
	MsgEditStake   MessageType = "editStake"
	MsgUnstake     MessageType = "unstake"
	MsgPause       MessageType = "pause"
	MsgUnpause     MessageType = "unpause"
	MsgCreateOrder MessageType = "createOrder"
	MsgEditOrder   MessageType = "editOrder"
	MsgDeleteOrder MessageType = "deleteOrder"
)

// Message is one transaction payload.
type Message interface {
	Type() MessageType
	Validate() error

	// records lists the payload fields in canonical order.
	records(r *recordSet)
}

// Send moves funds between two accounts.
// Fields: 0 from, 1 to, 2 amount.
type Send struct {
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	Amount      uint64 `json:"amount"`
}

// Stake registers a validator or delegator.
// Fields: 0 public key, 1 amount, 2 committees, 3 net address,
// 4 output address, 5 delegate, 6 compound, 7 signer.
type Stake struct {
	PublicKey     string   `json:"publickey"`
	Amount        uint64   `json:"amount"`
	Committees    []uint64 `json:"committees"`
	NetAddress    string   `json:"netAddress"`
	OutputAddress string   `json:"outputAddress"`
	Delegate      bool     `json:"delegate"`
	Compound      bool     `json:"compound"`
	Signer        string   `json:"signer"`
}

// EditStake changes an existing stake.
// Fields: 0 address, 1 amount, 2 committees, 3 net address,
// 4 output address, 5 compound, 6 signer.
type EditStake struct {
	Address       string   `json:"address"`
	Amount        uint64   `json:"amount"`
	Committees    []uint64 `json:"committees"`
	NetAddress    string   `json:"netAddress"`
	OutputAddress string   `json:"outputAddress"`
	Compound      bool     `json:"compound"`
	Signer        string   `json:"signer"`
}

// Unstake begins unbonding. Fields: 0 address.
type Unstake struct {
	Address string `json:"address"`
}

// Pause takes a validator out of rotation. Fields: 0 address.
type Pause struct {
	Address string `json:"address"`
}

// Unpause returns a paused validator to rotation. Fields: 0 address.
type Unpause struct {
	Address string `json:"address"`
}

// CreateOrder opens a sell order on a committee's order book.
// Fields: 0 chain id, 1 data, 2 amount for sale, 3 requested amount,
// 4 seller receive address, 5 seller send address.
type CreateOrder struct {
	ChainID              uint64 `json:"chainID"`
	Data                 string `json:"data"`
	AmountForSale        uint64 `json:"amountForSale"`
	RequestedAmount      uint64 `json:"requestedAmount"`
	SellerReceiveAddress string `json:"sellerReceiveAddress"`
	SellersSendAddress   string `json:"sellersSendAddress"`
}

// EditOrder changes an open order.
// Fields: 0 order id, 1 chain id, 2 data, 3 amount for sale,
// 4 requested amount, 5 seller receive address.
type EditOrder struct {
	OrderID              string `json:"orderId"`
	ChainID              uint64 `json:"chainID"`
	Data                 string `json:"data"`
	AmountForSale        uint64 `json:"amountForSale"`
	RequestedAmount      uint64 `json:"requestedAmount"`
	SellerReceiveAddress string `json:"sellerReceiveAddress"`
}

// DeleteOrder withdraws an open order. Fields: 0 order id, 1 chain id.
type DeleteOrder struct {
	OrderID string `json:"orderId"`
	ChainID uint64 `json:"chainID"`
}

// Type implementations.
func (Send) Type() MessageType        { return MsgSend }
func (Stake) Type() MessageType       { return MsgStake }
func (EditStake) Type() MessageType   { return MsgEditStake }
func (Unstake) Type() MessageType     { return MsgUnstake }
func (Pause) Type() MessageType       { return MsgPause }
func (Unpause) Type() MessageType     { return MsgUnpause }
func (CreateOrder) Type() MessageType { return MsgCreateOrder }
func (EditOrder) Type() MessageType   { return MsgEditOrder }
func (DeleteOrder) Type() MessageType { return MsgDeleteOrder }

// Validate checks the payload.
func (m Send) Validate() error {
	v := validator{typ: m.Type()}
	v.address("fromAddress", m.FromAddress)
	v.address("toAddress", m.ToAddress)
	v.positive("amount", m.Amount)
	return v.err
}

// Validate checks the payload.
func (m Stake) Validate() error {
	v := validator{typ: m.Type()}
	v.hexString("publickey", m.PublicKey, false)
	v.positive("amount", m.Amount)
	v.committees(m.Committees)
	v.nonEmpty("netAddress", m.NetAddress)
	v.address("outputAddress", m.OutputAddress)
	v.address("signer", m.Signer)
	return v.err
}

// Validate checks the payload.
func (m EditStake) Validate() error {
	v := validator{typ: m.Type()}
	v.address("address", m.Address)
	v.positive("amount", m.Amount)
	v.committees(m.Committees)
	v.nonEmpty("netAddress", m.NetAddress)
	v.address("outputAddress", m.OutputAddress)
	v.address("signer", m.Signer)
	return v.err
}

// Validate checks the payload.
func (m Unstake) Validate() error { return addressOnly(m.Type(), m.Address) }

// Validate checks the payload.
func (m Pause) Validate() error { return addressOnly(m.Type(), m.Address) }

// Validate checks the payload.
func (m Unpause) Validate() error { return addressOnly(m.Type(), m.Address) }

// Validate checks the payload.
func (m CreateOrder) Validate() error {
	v := validator{typ: m.Type()}
	v.hexString("data", m.Data, true)
	v.positive("amountForSale", m.AmountForSale)
	v.positive("requestedAmount", m.RequestedAmount)
	v.address("sellerReceiveAddress", m.SellerReceiveAddress)
	v.address("sellersSendAddress", m.SellersSendAddress)
	return v.err
}

// Validate checks the payload.
func (m EditOrder) Validate() error {
	v := validator{typ: m.Type()}
	v.hexString("orderId", m.OrderID, false)
	v.hexString("data", m.Data, true)
	v.positive("amountForSale", m.AmountForSale)
	v.positive("requestedAmount", m.RequestedAmount)
	v.address("sellerReceiveAddress", m.SellerReceiveAddress)
	return v.err
}

// Validate checks the payload.
func (m DeleteOrder) Validate() error {
	v := validator{typ: m.Type()}
	v.hexString("orderId", m.OrderID, false)
	return v.err
}

func (m Send) records(r *recordSet) {
	r.str(0, m.FromAddress)
	r.str(1, m.ToAddress)
	r.u64(2, m.Amount)
}

func (m Stake) records(r *recordSet) {
	r.str(0, m.PublicKey)
	r.u64(1, m.Amount)
	r.u64s(2, m.Committees)
	r.str(3, m.NetAddress)
	r.str(4, m.OutputAddress)
	r.flag(5, m.Delegate)
	r.flag(6, m.Compound)
	r.str(7, m.Signer)
}

func (m EditStake) records(r *recordSet) {
	r.str(0, m.Address)
	r.u64(1, m.Amount)
	r.u64s(2, m.Committees)
	r.str(3, m.NetAddress)
	r.str(4, m.OutputAddress)
	r.flag(5, m.Compound)
	r.str(6, m.Signer)
}

func (m Unstake) records(r *recordSet) { r.str(0, m.Address) }
func (m Pause) records(r *recordSet)   { r.str(0, m.Address) }
func (m Unpause) records(r *recordSet) { r.str(0, m.Address) }

func (m CreateOrder) records(r *recordSet) {
	r.u64(0, m.ChainID)
	r.str(1, m.Data)
	r.u64(2, m.AmountForSale)
	r.u64(3, m.RequestedAmount)
	r.str(4, m.SellerReceiveAddress)
	r.str(5, m.SellersSendAddress)
}

func (m EditOrder) records(r *recordSet) {
	r.str(0, m.OrderID)
	r.u64(1, m.ChainID)
	r.str(2, m.Data)
	r.u64(3, m.AmountForSale)
	r.u64(4, m.RequestedAmount)
	r.str(5, m.SellerReceiveAddress)
}

func (m DeleteOrder) records(r *recordSet) {
	r.str(0, m.OrderID)
	r.u64(1, m.ChainID)
}

// validator collects the first invalid field of a message.
type validator struct {
	typ MessageType
	err error
}

func (v *validator) fail(field string) {
	if v.err == nil {
		v.err = wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{
			"type":  string(v.typ),
			"field": field,
		})
	}
}

func (v *validator) address(field, value string) {
	if _, err := registry.NormalizeAddress(value); err != nil {
		v.fail(field)
	}
}

func (v *validator) positive(field string, value uint64) {
	if value == 0 {
		v.fail(field)
	}
}

func (v *validator) nonEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field)
	}
}

func (v *validator) hexString(field, value string, allowEmpty bool) {
	if value == "" {
		if !allowEmpty {
			v.fail(field)
		}
		return
	}
	if _, err := hex.DecodeString(strings.TrimPrefix(value, "0x")); err != nil {
		v.fail(field)
	}
}

func (v *validator) committees(ids []uint64) {
	if len(ids) == 0 {
		v.fail("committees")
		return
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			v.fail("committees")
			return
		}
		seen[id] = struct{}{}
	}
}

func addressOnly(typ MessageType, address string) error {
	v := validator{typ: typ}
	v.address("address", address)
	return v.err
}

// compile-time check that every variant is a Message.
var (
	_ Message = Send{}
	_ Message = Stake{}
	_ Message = EditStake{}
	_ Message = Unstake{}
	_ Message = Pause{}
	_ Message = Unpause{}
	_ Message = CreateOrder{}
	_ Message = EditOrder{}
	_ Message = DeleteOrder{}
)
