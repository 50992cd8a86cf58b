package tx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mrz1836/warden/internal/keys"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	// EmptyMemo is the canonical "no memo" value. A memo is never empty.
	EmptyMemo = " "

	// MaxMemoLength is the longest memo accepted, in bytes.
	MaxMemoLength = 200
)

// Unsigned is a transaction ready to sign.
type Unsigned struct {
	Msg          Message
	Fee          uint64
	Memo         string
	NetworkID    uint64
	ChainID      uint64
	TargetHeight uint64
}

// Type returns the message type.
func (u *Unsigned) Type() MessageType {
	if u.Msg == nil {
		return ""
	}
	return u.Msg.Type()
}

// Validate checks the transaction and its message.
func (u *Unsigned) Validate() error {
	if u.Msg == nil {
		return wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"field": "msg"})
	}
	if err := u.Msg.Validate(); err != nil {
		return err
	}
	if u.Memo == "" || len(u.Memo) > MaxMemoLength {
		return wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"field": "memo"})
	}
	return nil
}

// Signature is the signer's public key and signature over SignBytes.
type Signature struct {
	Curve     keys.Curve
	PublicKey []byte
	Signature []byte
}

// Signed is a signed transaction. Treat it as immutable: any change
// invalidates the signature.
type Signed struct {
	Unsigned
	Signature Signature

	// Timestamp is unix microseconds and is covered by the signature.
	Timestamp uint64
}

// Time returns the signing timestamp.
func (s *Signed) Time() time.Time {
	return time.UnixMicro(int64(s.Timestamp)) //nolint:gosec // timestamps fit in int64
}

// Encode returns the canonical signed encoding: records 0 through 7 of the
// unsigned transaction, then 8 curve, 9 public key, 10 signature.
func (s *Signed) Encode() ([]byte, error) {
	var r recordSet
	if err := s.unsignedRecords(&r, s.Timestamp); err != nil {
		return nil, err
	}
	r.str(typeCurve, string(s.Signature.Curve))
	r.bytes(typePublicKey, s.Signature.PublicKey)
	r.bytes(typeSignature, s.Signature.Signature)
	return r.encode()
}

// Hash is the hex SHA-256 of the canonical signed encoding.
func (s *Signed) Hash() (string, error) {
	enc, err := s.Encode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(enc)
	return hex.EncodeToString(sum[:]), nil
}

// Builder assembles unsigned transactions for one network and chain.
type Builder struct {
	NetworkID uint64
	ChainID   uint64
}

// NewBuilder creates a Builder.
func NewBuilder(networkID, chainID uint64) *Builder {
	return &Builder{NetworkID: networkID, ChainID: chainID}
}

// Build wraps msg into an unsigned transaction. An empty memo becomes
// EmptyMemo.
func (b *Builder) Build(msg Message, fee uint64, memo string, height uint64) (*Unsigned, error) {
	if memo == "" {
		memo = EmptyMemo
	}
	u := &Unsigned{
		Msg:          msg,
		Fee:          fee,
		Memo:         memo,
		NetworkID:    b.NetworkID,
		ChainID:      b.ChainID,
		TargetHeight: height,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Send builds a send transaction.
func (b *Builder) Send(m Send, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// Stake builds a stake transaction.
func (b *Builder) Stake(m Stake, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// EditStake builds an edit-stake transaction.
func (b *Builder) EditStake(m EditStake, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// Unstake builds an unstake transaction.
func (b *Builder) Unstake(m Unstake, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// Pause builds a pause transaction.
func (b *Builder) Pause(m Pause, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// Unpause builds an unpause transaction.
func (b *Builder) Unpause(m Unpause, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// CreateOrder builds a create-order transaction.
func (b *Builder) CreateOrder(m CreateOrder, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// EditOrder builds an edit-order transaction.
func (b *Builder) EditOrder(m EditOrder, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// DeleteOrder builds a delete-order transaction.
func (b *Builder) DeleteOrder(m DeleteOrder, fee uint64, memo string, height uint64) (*Unsigned, error) {
	return b.Build(m, fee, memo, height)
}

// wireSignature is the JSON shape of Signature.
type wireSignature struct {
	Curve     keys.Curve `json:"curve"`
	PublicKey string     `json:"publicKey"`
	Signature string     `json:"signature"`
}

// wireTx is the broadcast body.
type wireTx struct {
	Type         MessageType     `json:"type"`
	Msg          json.RawMessage `json:"msg"`
	Fee          uint64          `json:"fee"`
	Memo         string          `json:"memo"`
	NetworkID    uint64          `json:"networkID"`
	ChainID      uint64          `json:"chainID"`
	TargetHeight uint64          `json:"height"`
	Time         uint64          `json:"time,omitempty"`
	Signature    *wireSignature  `json:"signature,omitempty"`
}

func (u *Unsigned) wire() (*wireTx, error) {
	if u.Msg == nil {
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"field": "msg"})
	}
	msg, err := json.Marshal(u.Msg)
	if err != nil {
		return nil, err
	}
	return &wireTx{
		Type:         u.Msg.Type(),
		Msg:          msg,
		Fee:          u.Fee,
		Memo:         u.Memo,
		NetworkID:    u.NetworkID,
		ChainID:      u.ChainID,
		TargetHeight: u.TargetHeight,
	}, nil
}

func (w *wireTx) unsigned() (Unsigned, error) {
	msg, err := decodeMessage(w.Type, w.Msg)
	if err != nil {
		return Unsigned{}, err
	}
	return Unsigned{
		Msg:          msg,
		Fee:          w.Fee,
		Memo:         w.Memo,
		NetworkID:    w.NetworkID,
		ChainID:      w.ChainID,
		TargetHeight: w.TargetHeight,
	}, nil
}

// MarshalJSON implements json.Marshaler.
func (u Unsigned) MarshalJSON() ([]byte, error) {
	w, err := u.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Unsigned) UnmarshalJSON(data []byte) error {
	var w wireTx
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out, err := w.unsigned()
	if err != nil {
		return err
	}
	*u = out
	return nil
}

// MarshalJSON produces the broadcast body.
func (s Signed) MarshalJSON() ([]byte, error) {
	w, err := s.wire()
	if err != nil {
		return nil, err
	}
	w.Time = s.Timestamp
	w.Signature = &wireSignature{
		Curve:     s.Signature.Curve,
		PublicKey: hex.EncodeToString(s.Signature.PublicKey),
		Signature: hex.EncodeToString(s.Signature.Signature),
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Signed) UnmarshalJSON(data []byte) error {
	var w wireTx
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Signature == nil {
		return wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"field": "signature"})
	}
	u, err := w.unsigned()
	if err != nil {
		return err
	}
	pub, err := hex.DecodeString(w.Signature.PublicKey)
	if err != nil {
		return wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"field": "publicKey"})
	}
	sig, err := hex.DecodeString(w.Signature.Signature)
	if err != nil {
		return wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"field": "signature"})
	}
	*s = Signed{
		Unsigned:  u,
		Signature: Signature{Curve: w.Signature.Curve, PublicKey: pub, Signature: sig},
		Timestamp: w.Time,
	}
	return nil
}

func decodeMessage(typ MessageType, raw json.RawMessage) (Message, error) {
	var (
		msg Message
		err error
	)
	switch typ {
	case MsgSend:
		msg, err = decodeAs[Send](raw)
	case MsgStake:
		msg, err = decodeAs[Stake](raw)
	case MsgEditStake:
		msg, err = decodeAs[EditStake](raw)
	case MsgUnstake:
		msg, err = decodeAs[Unstake](raw)
	case MsgPause:
		msg, err = decodeAs[Pause](raw)
	case MsgUnpause:
		msg, err = decodeAs[Unpause](raw)
	case MsgCreateOrder:
		msg, err = decodeAs[CreateOrder](raw)
	case MsgEditOrder:
		msg, err = decodeAs[EditOrder](raw)
	case MsgDeleteOrder:
		msg, err = decodeAs[DeleteOrder](raw)
	default:
		return nil, wardenerr.WithDetails(wardenerr.ErrInvalidTransaction, map[string]string{"type": string(typ)})
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s message: %w", typ, err)
	}
	return msg, nil
}

func decodeAs[T Message](raw json.RawMessage) (T, error) {
	var m T
	err := json.Unmarshal(raw, &m)
	return m, err
}
