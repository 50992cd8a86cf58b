package keys

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/hdkeychain/v3"
	blst "github.com/supranational/blst/bindings/go"

	"github.com/mrz1836/warden/internal/mnemonic"
	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// hdNetParams satisfies hdkeychain.NetworkParams. The version bytes never
// leave this package since extended keys are not serialized.
type hdNetParams struct{}

func (hdNetParams) HDPrivKeyVersion() [4]byte { return [4]byte{0x04, 0x88, 0xAD, 0xE4} }
func (hdNetParams) HDPubKeyVersion() [4]byte  { return [4]byte{0x04, 0x88, 0xB2, 0x1E} }

// slip10Ed25519Key is the HMAC key for the SLIP-0010 ed25519 master node.
const slip10Ed25519Key = "ed25519 seed"

// DerivationPath returns the path Derive uses for curve.
func DerivationPath(curve Curve) string {
	switch curve {
	case Ed25519:
		return fmt.Sprintf("m/44'/%d'/0'/0'/0'", curve.CoinType())
	case BLS12381:
		return fmt.Sprintf("m/12381/%d/0/0", curve.CoinType())
	case Secp256k1, EthSecp256k1:
		return fmt.Sprintf("m/44'/%d'/0'/0/0", curve.CoinType())
	}
	return ""
}

// Derive turns a seed phrase into the curve's first key pair. The same phrase
// and curve always give the same result.
func Derive(phrase string, curve Curve) (*KeyMaterial, error) {
	signer, err := SignerFor(curve)
	if err != nil {
		return nil, err
	}

	parsed, err := mnemonic.Parse(phrase)
	if err != nil {
		return nil, err
	}

	seed := parsed.Seed("")
	defer wipe(seed)

	priv, err := derivePrivate(seed, curve)
	if err != nil {
		return nil, err
	}
	defer wipe(priv)

	return FromPrivateKey(curve, signer, priv)
}

// FromPrivateKey builds KeyMaterial around a raw private key. priv is copied
// into locked memory; the caller still wipes its own slice.
func FromPrivateKey(curve Curve, signer Signer, priv []byte) (*KeyMaterial, error) {
	pub, err := signer.PublicKey(priv)
	if err != nil {
		return nil, err
	}
	addr, err := signer.Address(pub)
	if err != nil {
		return nil, err
	}
	secret, err := wardencrypto.SecureBytesFromSlice(priv)
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{Curve: curve, Address: addr, PublicKey: pub, PrivateKey: secret}, nil
}

func derivePrivate(seed []byte, curve Curve) ([]byte, error) {
	switch curve {
	case Secp256k1, EthSecp256k1:
		return deriveBIP44(seed, curve.CoinType())
	case Ed25519:
		return deriveSLIP10(seed, []uint32{44, curve.CoinType(), 0, 0, 0})
	case BLS12381:
		return deriveEIP2333(seed, []uint32{12381, curve.CoinType(), 0, 0})
	}
	return nil, wardenerr.ErrUnsupportedCurve
}

// deriveBIP44 walks m/44'/coin'/0'/0/0.
func deriveBIP44(seed []byte, coinType uint32) ([]byte, error) {
	key, err := hdkeychain.NewMaster(seed, hdNetParams{})
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart,
		0,
		0,
	}
	for _, idx := range path {
		child, childErr := key.ChildBIP32Std(idx)
		key.Zero()
		if childErr != nil {
			return nil, fmt.Errorf("deriving child %d: %w", idx, childErr)
		}
		key = child
	}
	defer key.Zero()

	serialized, err := key.SerializedPrivKey()
	if err != nil {
		return nil, fmt.Errorf("serializing private key: %w", err)
	}
	priv := make([]byte, 32)
	copy(priv, serialized)
	wipe(serialized)
	return priv, nil
}

// deriveSLIP10 implements SLIP-0010 for ed25519, where every level is hardened.
func deriveSLIP10(seed []byte, path []uint32) ([]byte, error) {
	mac := hmac.New(sha512.New, []byte(slip10Ed25519Key))
	mac.Write(seed)
	node := mac.Sum(nil)
	defer wipe(node)

	data := make([]byte, 1+32+4)
	defer wipe(data)
	for _, idx := range path {
		data[0] = 0x00
		copy(data[1:33], node[:32])
		binary.BigEndian.PutUint32(data[33:], idx|hdkeychain.HardenedKeyStart)

		mac = hmac.New(sha512.New, node[32:])
		mac.Write(data)
		next := mac.Sum(nil)
		copy(node, next)
		wipe(next)
	}

	priv := make([]byte, 32)
	copy(priv, node[:32])
	return priv, nil
}

// deriveEIP2333 walks an EIP-2334 path from the EIP-2333 master key.
func deriveEIP2333(seed []byte, path []uint32) ([]byte, error) {
	sk := blst.DeriveMasterEip2333(seed)
	if sk == nil {
		return nil, wardenerr.Wrap(wardenerr.ErrGeneral, "deriving bls master key")
	}
	for _, idx := range path {
		child := sk.DeriveChildEip2333(idx)
		sk.Zeroize()
		sk = child
	}
	defer sk.Zeroize()
	return sk.Serialize(), nil
}

func wipe(b []byte) {
	wardencrypto.Wipe(b)
}
