package tx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/warden/internal/keys"
	"github.com/mrz1836/warden/internal/registry"
	"github.com/mrz1836/warden/internal/session"
	"github.com/mrz1836/warden/internal/vault"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

const (
	testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	addrA      = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	addrB      = "1111111111111111111111111111111111111111"
)

var testTime = time.Date(2026, time.February, 1, 9, 30, 0, 0, time.UTC)

func sendMsg() Send {
	return Send{FromAddress: addrA, ToAddress: addrB, Amount: 1_000_000}
}

func TestBuild_EmptyMemoBecomesSpace(t *testing.T) {
	t.Parallel()
	b := NewBuilder(1, 1)

	u, err := b.Send(sendMsg(), 10_000, "", 100)
	require.NoError(t, err)
	assert.Equal(t, " ", u.Memo)
	assert.Equal(t, MsgSend, u.Type())
	assert.Equal(t, uint64(1), u.NetworkID)
	assert.Equal(t, uint64(100), u.TargetHeight)

	u, err = b.Send(sendMsg(), 10_000, "rent", 100)
	require.NoError(t, err)
	assert.Equal(t, "rent", u.Memo)
}

func TestBuild_MemoTooLong(t *testing.T) {
	t.Parallel()
	_, err := NewBuilder(1, 1).Send(sendMsg(), 1, string(bytes.Repeat([]byte("m"), MaxMemoLength+1)), 1)
	require.ErrorIs(t, err, wardenerr.ErrInvalidTransaction)
}

func TestBuild_EachVariant(t *testing.T) {
	t.Parallel()
	b := NewBuilder(1, 2)

	valid := []Message{
		sendMsg(),
		Stake{PublicKey: "ab12", Amount: 5, Committees: []uint64{1, 2}, NetAddress: "tcp://node.example:9001", OutputAddress: addrA, Signer: addrA},
		EditStake{Address: addrA, Amount: 6, Committees: []uint64{1}, NetAddress: "tcp://node.example:9001", OutputAddress: addrB, Signer: addrA},
		Unstake{Address: addrA},
		Pause{Address: addrA},
		Unpause{Address: addrA},
		CreateOrder{ChainID: 2, AmountForSale: 10, RequestedAmount: 20, SellerReceiveAddress: addrA, SellersSendAddress: addrB},
		EditOrder{OrderID: "beef", ChainID: 2, Data: "00ff", AmountForSale: 11, RequestedAmount: 21, SellerReceiveAddress: addrA},
		DeleteOrder{OrderID: "beef", ChainID: 2},
	}
	for _, msg := range valid {
		u, err := b.Build(msg, 1, "", 7)
		require.NoError(t, err, msg.Type())
		assert.Equal(t, msg.Type(), u.Type())
	}
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		msg   Message
		field string
	}{
		{"send bad from", Send{FromAddress: "x", ToAddress: addrB, Amount: 1}, "fromAddress"},
		{"send zero amount", Send{FromAddress: addrA, ToAddress: addrB}, "amount"},
		{"stake no committees", Stake{PublicKey: "ab", Amount: 1, NetAddress: "n", OutputAddress: addrA, Signer: addrA}, "committees"},
		{"stake duplicate committees", Stake{PublicKey: "ab", Amount: 1, Committees: []uint64{3, 3}, NetAddress: "n", OutputAddress: addrA, Signer: addrA}, "committees"},
		{"stake bad key", Stake{PublicKey: "zz", Amount: 1, Committees: []uint64{1}, NetAddress: "n", OutputAddress: addrA, Signer: addrA}, "publickey"},
		{"edit stake no net address", EditStake{Address: addrA, Amount: 1, Committees: []uint64{1}, OutputAddress: addrA, Signer: addrA}, "netAddress"},
		{"unstake bad address", Unstake{Address: "nope"}, "address"},
		{"pause empty", Pause{}, "address"},
		{"unpause empty", Unpause{}, "address"},
		{"create order zero sale", CreateOrder{RequestedAmount: 1, SellerReceiveAddress: addrA, SellersSendAddress: addrA}, "amountForSale"},
		{"create order bad data", CreateOrder{Data: "xyz", AmountForSale: 1, RequestedAmount: 1, SellerReceiveAddress: addrA, SellersSendAddress: addrA}, "data"},
		{"edit order no id", EditOrder{AmountForSale: 1, RequestedAmount: 1, SellerReceiveAddress: addrA}, "orderId"},
		{"delete order no id", DeleteOrder{ChainID: 1}, "orderId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.msg.Validate()
			require.ErrorIs(t, err, wardenerr.ErrInvalidTransaction)
			var we *wardenerr.WardenError
			require.ErrorAs(t, err, &we)
			assert.Equal(t, tt.field, we.Details["field"])
			assert.Equal(t, string(tt.msg.Type()), we.Details["type"])
		})
	}
}

func TestBuild_NilMessage(t *testing.T) {
	t.Parallel()
	_, err := NewBuilder(1, 1).Build(nil, 1, "", 1)
	require.ErrorIs(t, err, wardenerr.ErrInvalidTransaction)
}

func TestSignBytes_Canonical(t *testing.T) {
	t.Parallel()
	b := NewBuilder(1, 1)
	u1, err := b.Send(sendMsg(), 10, "", 5)
	require.NoError(t, err)
	u2, err := b.Send(sendMsg(), 10, " ", 5)
	require.NoError(t, err)

	e1, err := u1.SignBytes(42)
	require.NoError(t, err)
	e2, err := u2.SignBytes(42)
	require.NoError(t, err)
	assert.Equal(t, e1, e2)

	// Record 0 (type) leads the stream: type 0, length 4, "send".
	assert.Equal(t, []byte{0x00, 0x04, 's', 'e', 'n', 'd'}, e1[:6])

	e3, err := u1.SignBytes(43)
	require.NoError(t, err)
	assert.NotEqual(t, e1, e3, "timestamp is covered")

	u3, err := b.Send(sendMsg(), 11, "", 5)
	require.NoError(t, err)
	e4, err := u3.SignBytes(42)
	require.NoError(t, err)
	assert.NotEqual(t, e1, e4, "fee is covered")
}

func TestSignBytes_DistinguishesVariants(t *testing.T) {
	t.Parallel()
	b := NewBuilder(1, 1)
	pause, err := b.Pause(Pause{Address: addrA}, 1, "", 1)
	require.NoError(t, err)
	unpause, err := b.Unpause(Unpause{Address: addrA}, 1, "", 1)
	require.NoError(t, err)

	p, err := pause.SignBytes(1)
	require.NoError(t, err)
	u, err := unpause.SignBytes(1)
	require.NoError(t, err)
	assert.NotEqual(t, p, u)
}

type fixture struct {
	store   *registry.MemoryStore
	vault   *vault.Vault
	manager *session.Manager
	signer  *Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: registry.NewMemoryStore(),
		vault: vault.New(vault.WithParams(vault.Params{Time: 1, MemoryKiB: 64, Threads: 1})),
	}
	f.manager = session.NewManager(f.store, f.vault, nil)
	f.signer = NewSigner(clock.NewTestClock(testTime), nil)
	return f
}

func (f *fixture) createWallet(t *testing.T, curve keys.Curve, password string) *registry.Entry {
	t.Helper()
	km, err := keys.Derive(testPhrase, curve)
	require.NoError(t, err)
	defer km.Zero()

	sealed, err := f.vault.Encrypt(km.PrivateKey.Bytes(), []byte(password))
	require.NoError(t, err)
	e, err := registry.NewEntry(km, sealed, "", testTime)
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), e))
	return e
}

func TestEndToEnd_CreateUnlockSignLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, curve := range keys.Curves() {
		t.Run(string(curve), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			e := f.createWallet(t, curve, "correct-password")
			assert.NotEmpty(t, e.Salt)
			assert.NotEmpty(t, e.Ciphertext)
			assert.NotEqual(t, []byte(e.Salt), []byte(e.Ciphertext))

			require.NoError(t, f.manager.Unlock(ctx, e.Address, []byte("correct-password")))

			u, err := NewBuilder(1, 1).Send(Send{FromAddress: e.Address, ToAddress: addrB, Amount: 5}, 1, "", 10)
			require.NoError(t, err)

			signed, err := f.signer.Sign(ctx, u, e.Address, f.manager)
			require.NoError(t, err)
			assert.Equal(t, []byte(e.PublicKey), signed.Signature.PublicKey)
			assert.Equal(t, curve, signed.Signature.Curve)
			assert.Equal(t, uint64(testTime.UnixMicro()), signed.Timestamp)
			require.NoError(t, Verify(signed))

			addr, err := SignerAddress(signed)
			require.NoError(t, err)
			assert.Equal(t, e.Address, addr)

			require.NoError(t, f.manager.Lock(e.Address))
			_, err = f.signer.Sign(ctx, u, e.Address, f.manager)
			require.ErrorIs(t, err, wardenerr.ErrWalletLocked)
		})
	}
}

func TestSign_InvalidTransactionNeverTouchesKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	called := false
	src := keySourceFunc(func(context.Context, string, func(session.Key) error) error {
		called = true
		return nil
	})
	_, err := f.signer.Sign(context.Background(), &Unsigned{Msg: Pause{}}, addrA, src)
	require.ErrorIs(t, err, wardenerr.ErrInvalidTransaction)
	assert.False(t, called)
}

type keySourceFunc func(ctx context.Context, address string, fn func(session.Key) error) error

func (f keySourceFunc) WithKey(ctx context.Context, address string, fn func(session.Key) error) error {
	return f(ctx, address, fn)
}

func TestSign_UnsupportedCurve(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	src := keySourceFunc(func(_ context.Context, address string, fn func(session.Key) error) error {
		return fn(session.Key{Address: address, Curve: "rsa", PrivateKey: []byte{1}})
	})
	u, err := NewBuilder(1, 1).Pause(Pause{Address: addrA}, 1, "", 1)
	require.NoError(t, err)

	_, err = f.signer.Sign(context.Background(), u, addrA, src)
	require.ErrorIs(t, err, wardenerr.ErrUnsupportedCurve)
}

func TestVerify_DetectsTampering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	e := f.createWallet(t, keys.Ed25519, "pw")
	require.NoError(t, f.manager.Unlock(ctx, e.Address, []byte("pw")))

	u, err := NewBuilder(1, 1).Send(Send{FromAddress: e.Address, ToAddress: addrB, Amount: 5}, 1, "", 10)
	require.NoError(t, err)
	signed, err := f.signer.Sign(ctx, u, e.Address, f.manager)
	require.NoError(t, err)

	tampered := *signed
	tampered.Fee = 2
	require.ErrorIs(t, Verify(&tampered), wardenerr.ErrInvalidTransaction)

	tampered = *signed
	tampered.Timestamp++
	require.ErrorIs(t, Verify(&tampered), wardenerr.ErrInvalidTransaction)

	tampered = *signed
	tampered.Msg = Send{FromAddress: e.Address, ToAddress: addrB, Amount: 6}
	require.ErrorIs(t, Verify(&tampered), wardenerr.ErrInvalidTransaction)
}

func TestSigned_JSONBroadcastBody(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	e := f.createWallet(t, keys.EthSecp256k1, "pw")
	require.NoError(t, f.manager.Unlock(ctx, e.Address, []byte("pw")))

	u, err := NewBuilder(1, 1).Stake(Stake{
		PublicKey:     "ab12",
		Amount:        100,
		Committees:    []uint64{1},
		NetAddress:    "tcp://node.example:9001",
		OutputAddress: e.Address,
		Signer:        e.Address,
	}, 3, "", 50)
	require.NoError(t, err)
	signed, err := f.signer.Sign(ctx, u, e.Address, f.manager)
	require.NoError(t, err)

	body, err := json.Marshal(signed)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))
	assert.Equal(t, "stake", fields["type"])
	assert.Equal(t, " ", fields["memo"])
	assert.Contains(t, fields, "signature")
	assert.Contains(t, fields, "time")

	var back Signed
	require.NoError(t, json.Unmarshal(body, &back))
	require.NoError(t, Verify(&back))

	h1, err := signed.Hash()
	require.NoError(t, err)
	h2, err := back.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestSigned_UnmarshalRejectsUnknownType(t *testing.T) {
	t.Parallel()
	var s Signed
	err := json.Unmarshal([]byte(`{"type":"mint","msg":{},"signature":{"curve":"ed25519"}}`), &s)
	require.ErrorIs(t, err, wardenerr.ErrInvalidTransaction)

	err = json.Unmarshal([]byte(`{"type":"send","msg":{}}`), &s)
	require.ErrorIs(t, err, wardenerr.ErrInvalidTransaction)
}
