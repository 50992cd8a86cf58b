package keys

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// secpSigner signs SHA-256(msg) and emits 64-byte R||S with low S.
// Public keys are 33-byte compressed points.
type secpSigner struct{}

func (secpSigner) Curve() Curve { return Secp256k1 }

func (secpSigner) PublicKey(priv []byte) ([]byte, error) {
	key, err := secpPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return key.PubKey().SerializeCompressed(), nil
}

func (secpSigner) Address(pub []byte) (string, error) {
	parsed, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return "", invalidKey("secp256k1 public key is not a valid point")
	}
	return hashAddress(parsed.SerializeCompressed()), nil
}

func (secpSigner) Sign(priv, msg []byte) ([]byte, error) {
	key, err := secpPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	digest := sha256.Sum256(msg)
	sig := ecdsa.Sign(key, digest[:])

	r, s := sig.R(), sig.S()
	out := make([]byte, 64)
	r.PutBytesUnchecked(out[:32])
	s.PutBytesUnchecked(out[32:])
	return out, nil
}

func (secpSigner) Verify(pub, msg, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return false
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() || s.IsOverHalfOrder() {
		return false
	}

	digest := sha256.Sum256(msg)
	return ecdsa.NewSignature(&r, &s).Verify(digest[:], key)
}

func secpPrivateKey(priv []byte) (*secp256k1.PrivateKey, error) {
	if len(priv) != 32 {
		return nil, invalidKey("secp256k1 private key must be 32 bytes")
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(priv); overflow || scalar.IsZero() {
		return nil, invalidKey("secp256k1 private key out of range")
	}
	return secp256k1.NewPrivateKey(&scalar), nil
}
