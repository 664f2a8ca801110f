package crypto

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/turtacn/certguard/pkg/constants"
)

const multibaseBase58BTC = "z"

// EncodeMultibase returns the base58btc multibase form of b.
func EncodeMultibase(b []byte) string {
	return multibaseBase58BTC + base58.Encode(b)
}

// DecodeMultibase decodes a base58btc multibase string.
func DecodeMultibase(s string) ([]byte, error) {
	if len(s) < 2 || s[:1] != multibaseBase58BTC {
		return nil, fmt.Errorf("unsupported multibase prefix")
	}
	return base58.Decode(s[1:])
}

// PublicKeyMultibase returns "z" + base58(0xed01 || pub).
func PublicKeyMultibase(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(constants.Ed25519MulticodecPrefix)+len(pub))
	buf = append(buf, constants.Ed25519MulticodecPrefix...)
	return EncodeMultibase(append(buf, pub...))
}

// DecodePublicKeyMultibase reverses PublicKeyMultibase.
func DecodePublicKeyMultibase(s string) (ed25519.PublicKey, error) {
	raw, err := DecodeMultibase(s)
	if err != nil {
		return nil, err
	}
	prefix := constants.Ed25519MulticodecPrefix
	if !bytes.HasPrefix(raw, prefix) || len(raw) != len(prefix)+ed25519.PublicKeySize {
		return nil, fmt.Errorf("not an ed25519 multikey")
	}
	return ed25519.PublicKey(raw[len(prefix):]), nil
}
