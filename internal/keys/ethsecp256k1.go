package keys

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ethSigner signs Keccak-256(msg) and emits 65-byte R||S||V with V in {0,1}.
// Public keys are stored compressed; addresses are EIP-55 checksummed.
type ethSigner struct{}

func (ethSigner) Curve() Curve { return EthSecp256k1 }

func (ethSigner) PublicKey(priv []byte) ([]byte, error) {
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, invalidKey("ethsecp256k1 private key is invalid")
	}
	return crypto.CompressPubkey(&key.PublicKey), nil
}

func (ethSigner) Address(pub []byte) (string, error) {
	key, err := crypto.DecompressPubkey(pub)
	if err != nil {
		key, err = crypto.UnmarshalPubkey(pub)
		if err != nil {
			return "", invalidKey("ethsecp256k1 public key is not a valid point")
		}
	}
	return crypto.PubkeyToAddress(*key).Hex(), nil
}

func (ethSigner) Sign(priv, msg []byte) ([]byte, error) {
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, invalidKey("ethsecp256k1 private key is invalid")
	}
	return crypto.Sign(crypto.Keccak256(msg), key)
}

func (ethSigner) Verify(pub, msg, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}
	return crypto.VerifySignature(pub, crypto.Keccak256(msg), sig[:crypto.RecoveryIDOffset])
}

// IsHexAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsHexAddress(s string) bool {
	return len(s) == 2+2*common.AddressLength && common.IsHexAddress(s)
}

// ChecksumAddress returns the EIP-55 form of a hex address.
func ChecksumAddress(s string) string {
	return common.HexToAddress(s).Hex()
}
