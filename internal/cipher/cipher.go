// Package cipher provides the Cipher capability used to seal and open
// per-message ciphertext (spec §3, §4.2). The reference implementation
// wraps ChaCha20-Poly1305 rather than hand-rolling AEAD the way Matter's
// AES-CCM does, since x/crypto already ships a constant-time, audited
// construction for it — but the Seal/Open/NonceSize shape and the
// sentinel-error-per-failure-mode taxonomy follow that same pattern.
package cipher

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals and opens message ciphertext under a session's shared key.
// Nonces are generated fresh per Seal call and prefixed onto the returned
// ciphertext; Open expects that same framing.
type Cipher interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(ciphertext, aad []byte) ([]byte, error)
}

// ChaCha wraps a chacha20poly1305.AEAD bound to one session's SharedKey.
type ChaCha struct {
	aead chacha20poly1305.AEAD
}

var _ Cipher = (*ChaCha)(nil)

// New constructs a ChaCha Cipher from a 32-byte key (model.Session.SharedKey).
func New(key [32]byte) (*ChaCha, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, &CryptoError{Kind: KeyInvalid, Err: err}
	}
	return &ChaCha{aead: aead}, nil
}

// Seal encrypts plaintext, authenticating aad alongside it, and returns
// nonce||ciphertext||tag.
func (c *ChaCha) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, &CryptoError{Kind: Encrypt, Err: err}
	}
	out := c.aead.Seal(nonce, nonce, plaintext, aad)
	return out, nil
}

// Open reverses Seal, verifying aad and the authentication tag.
func (c *ChaCha) Open(ciphertext, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, &CryptoError{Kind: Decrypt, Err: fmt.Errorf("ciphertext shorter than nonce")}
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, &CryptoError{Kind: Decrypt, Err: err}
	}
	return plaintext, nil
}
