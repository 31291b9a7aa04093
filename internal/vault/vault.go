// Package vault encrypts and decrypts provider credentials at rest (C1).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Vault encrypts and decrypts opaque credential blobs. Ciphertexts are
// portable hex strings: nonce‖sealed, the same shape as the teacher's
// session store.
type Vault interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
	// Scoped returns a Vault whose key is derived from the master key and
	// scope, so that credentials for different providers are not sealed
	// under the same AES key.
	Scoped(scope string) Vault
}

// AESGCMVault implements Vault with AES-256-GCM.
type AESGCMVault struct {
	key []byte
}

// New builds a Vault from a 32-byte key given as 64 hex characters. A bad
// key (wrong length, not hex) is a startup-fatal misconfiguration: callers
// should treat a non-nil error here as ProviderUnavailable-class, since no
// provider credential can be read or written without it.
func New(encryptionKeyHex string) (*AESGCMVault, error) {
	key, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, errors.New("vault: invalid encryption key hex")
	}
	if len(key) != 32 {
		return nil, errors.New("vault: encryption key must be 32 bytes (64 hex chars)")
	}
	return &AESGCMVault{key: key}, nil
}

// Scoped derives a per-scope subkey via HKDF-SHA256 so that, for example,
// the "stripe" and "paypal" credential sets are sealed under distinct keys
// even though both trace back to the same master secret.
func (v *AESGCMVault) Scoped(scope string) Vault {
	reader := hkdf.New(sha256.New, v.key, nil, []byte("paygate-vault:"+scope))
	sub := make([]byte, 32)
	if _, err := io.ReadFull(reader, sub); err != nil {
		// hkdf.New only fails to produce output if the hash output is
		// exhausted, which cannot happen for a single 32-byte read from
		// SHA-256; treat it as unreachable rather than propagate a stub.
		panic("vault: hkdf expand failed: " + err.Error())
	}
	return &AESGCMVault{key: sub}
}

// Encrypt seals plaintext under a fresh random nonce and returns the result
// hex-encoded as nonce‖ciphertext.
func (v *AESGCMVault) Encrypt(plaintext []byte) (string, error) {
	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (v *AESGCMVault) Decrypt(ciphertextHex string) ([]byte, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, err
	}

	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("vault: ciphertext too short")
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func (v *AESGCMVault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
