package search

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/stackdump/cim/pkg/cimerr"
)

// AEADAlgorithm selects the at-rest encryption cipher for persisted
// index entries (base §4.F).
type AEADAlgorithm string

const (
	AESGCM            AEADAlgorithm = "aes-256-gcm"
	ChaCha20Poly1305  AEADAlgorithm = "chacha20poly1305"
	XChaCha20Poly1305 AEADAlgorithm = "xchacha20poly1305"
)

// EncryptedEnvelope wraps a ciphertext with the metadata needed to
// decrypt it, including a key identifier for rotation detection. The
// CID itself is never part of this envelope: only metadata/payloads
// are encrypted, so content stays retrievable by CID across rotations.
type EncryptedEnvelope struct {
	Algorithm  AEADAlgorithm `cbor:"algorithm"`
	Nonce      []byte        `cbor:"nonce"`
	KeyIDHash  string        `cbor:"key_id_hash"`
	AAD        []byte        `cbor:"aad,omitempty"`
	Ciphertext []byte        `cbor:"ciphertext"`
}

// keyIDHash truncates a SHA-256 hash of key to a short hex identifier
// suitable for rotation detection without exposing the key itself.
func keyIDHash(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

func newAEAD(algo AEADAlgorithm, key []byte) (cipher.AEAD, error) {
	switch algo {
	case AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case XChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("search: unknown AEAD algorithm %q", algo)
	}
}

// Wrap encrypts plaintext under key/algo, generating a fresh random
// nonce and recording aad alongside the ciphertext.
func Wrap(plaintext []byte, key []byte, algo AEADAlgorithm, aad []byte) (EncryptedEnvelope, error) {
	aead, err := newAEAD(algo, key)
	if err != nil {
		return EncryptedEnvelope{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedEnvelope{}, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)
	return EncryptedEnvelope{
		Algorithm:  algo,
		Nonce:      nonce,
		KeyIDHash:  keyIDHash(key),
		AAD:        aad,
		Ciphertext: ciphertext,
	}, nil
}

// Unwrap decrypts env with key, failing with DecryptionError on any
// authentication failure.
func Unwrap(env EncryptedEnvelope, key []byte) ([]byte, error) {
	aead, err := newAEAD(env.Algorithm, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, env.AAD)
	if err != nil {
		return nil, &cimerr.DecryptionError{KeyIDHash: env.KeyIDHash}
	}
	return plaintext, nil
}

// EncryptedCIDRecord is used when an index entry's metadata must be
// confidential but its CID must remain queryable in the clear.
type EncryptedCIDRecord struct {
	CID               string            `cbor:"cid"`
	EncryptedMetadata EncryptedEnvelope `cbor:"encrypted_metadata"`
}
