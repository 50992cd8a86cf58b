package keys

import (
	blst "github.com/supranational/blst/bindings/go"
)

// BLS uses the minimal-pubkey-size variant: 48-byte G1 public keys and
// 96-byte G2 signatures.
const (
	blsPublicKeySize = 48
	blsSignatureSize = 96
	blsSecretKeySize = 32
)

// blsDST is the proof-of-possession ciphersuite tag.
//
//nolint:gochecknoglobals // ciphersuite constant
var blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

type blsSigner struct{}

func (blsSigner) Curve() Curve { return BLS12381 }

func (blsSigner) PublicKey(priv []byte) ([]byte, error) {
	sk, err := blsSecretKey(priv)
	if err != nil {
		return nil, err
	}
	defer sk.Zeroize()
	return new(blst.P1Affine).From(sk).Compress(), nil
}

func (blsSigner) Address(pub []byte) (string, error) {
	if len(pub) != blsPublicKeySize || new(blst.P1Affine).Uncompress(pub) == nil {
		return "", invalidKey("bls public key must be a 48-byte compressed G1 point")
	}
	return hashAddress(pub), nil
}

func (blsSigner) Sign(priv, msg []byte) ([]byte, error) {
	sk, err := blsSecretKey(priv)
	if err != nil {
		return nil, err
	}
	defer sk.Zeroize()
	return new(blst.P2Affine).Sign(sk, msg, blsDST).Compress(), nil
}

func (blsSigner) Verify(pub, msg, sig []byte) bool {
	if len(pub) != blsPublicKeySize || len(sig) != blsSignatureSize {
		return false
	}
	pk := new(blst.P1Affine).Uncompress(pub)
	s := new(blst.P2Affine).Uncompress(sig)
	if pk == nil || s == nil {
		return false
	}
	return s.Verify(true, pk, true, msg, blsDST)
}

func blsSecretKey(priv []byte) (*blst.SecretKey, error) {
	if len(priv) != blsSecretKeySize {
		return nil, invalidKey("bls private key must be 32 bytes")
	}
	sk := new(blst.SecretKey).Deserialize(priv)
	if sk == nil {
		return nil, invalidKey("bls private key out of range")
	}
	return sk, nil
}
