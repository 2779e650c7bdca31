package blockchain

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
)

const wifVersion = 0x80

var ErrInvalidKey = errors.New("invalid private key")

// PrivateKey is a Hive posting or active key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// ParseWIF decodes a base58check wallet-import-format key.
func ParseWIF(wif string) (*PrivateKey, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	if len(raw) != 37 || raw[0] != wifVersion {
		return nil, fmt.Errorf("%w: unexpected length or version", ErrInvalidKey)
	}

	if !bytes.Equal(wifChecksum(raw[:33]), raw[33:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidKey)
	}

	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(raw[1:33])}, nil
}

// Sign returns the 65-byte compact recoverable signature over digest.
func (k *PrivateKey) Sign(digest []byte) []byte {
	return ecdsa.SignCompact(k.key, digest, true)
}

func (k *PrivateKey) PublicKey() *secp256k1.PublicKey {
	return k.key.PubKey()
}

func wifChecksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}
