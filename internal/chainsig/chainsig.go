// Package chainsig signs and verifies content-chain heads with
// secp256k1/keccak256 signatures, adapted from the teacher's JSON-LD
// canonical-bytes signer down to signing a chain head's CID bytes.
package chainsig

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignatureLength reports a decoded signature that isn't the
// expected 65-byte r||s||v form.
var ErrInvalidSignatureLength = errors.New("chainsig: signature must be 65 bytes (r||s||v)")

// Signer holds a secp256k1 private key used to sign chain heads.
type Signer struct {
	priv *ecdsa.PrivateKey
}

// NewSignerFromHex constructs a Signer from a hex-encoded private key
// (with or without the 0x prefix).
func NewSignerFromHex(privKeyHex string) (*Signer, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chainsig: invalid private key: %w", err)
	}
	return &Signer{priv: priv}, nil
}

// SignHeadCID signs keccak256(headCIDBytes) and returns a 0x-prefixed
// 65-byte hex signature with v normalized to 27/28.
func (s *Signer) SignHeadCID(headCIDBytes []byte) (string, error) {
	hash := crypto.Keccak256(headCIDBytes)
	sig, err := crypto.Sign(hash, s.priv)
	if err != nil {
		return "", fmt.Errorf("chainsig: sign: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// VerifyHeadCID reports whether sigHex is a valid signature over
// headCIDBytes by expectedAddr (a 0x-prefixed hex Ethereum address).
func VerifyHeadCID(headCIDBytes []byte, sigHex string, expectedAddr string) (bool, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return false, fmt.Errorf("chainsig: invalid signature hex: %w", err)
	}
	if len(sigBytes) != 65 {
		return false, ErrInvalidSignatureLength
	}
	normSig, err := normalizeSignature(sigBytes)
	if err != nil {
		return false, err
	}
	hash := crypto.Keccak256(headCIDBytes)
	pubkey, err := crypto.SigToPub(hash, normSig)
	if err != nil {
		return false, fmt.Errorf("chainsig: recover pubkey: %w", err)
	}
	if !common.IsHexAddress(expectedAddr) {
		return false, fmt.Errorf("chainsig: expectedAddr is not a valid hex address: %s", expectedAddr)
	}
	recovered := crypto.PubkeyToAddress(*pubkey)
	expected := common.HexToAddress(expectedAddr)
	return recovered == expected, nil
}

// normalizeSignature converts a 27/28 or 0/1 recovery byte to the 0/1
// form crypto.SigToPub expects.
func normalizeSignature(sig []byte) ([]byte, error) {
	out := make([]byte, 65)
	copy(out, sig)
	switch v := out[64]; {
	case v == 27 || v == 28:
		out[64] = v - 27
	case v == 0 || v == 1:
	default:
		return nil, fmt.Errorf("chainsig: unsupported v value in signature: %d", v)
	}
	return out, nil
}
