package cipher_test

import (
	"bytes"
	"testing"

	"github.com/solconnect/messaging-core/internal/cipher"
)

func TestSealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	c, err := cipher.New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintext := []byte("hello solconnect")
	aad := []byte("session-123")

	sealed, err := c.Seal(plaintext, aad)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed output must not contain the plaintext verbatim")
	}

	opened, err := c.Open(sealed, aad)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q", opened)
	}
}

func TestOpenRejectsTamperedAAD(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	c, _ := cipher.New(key)

	sealed, _ := c.Seal([]byte("payload"), []byte("aad-a"))
	if _, err := c.Open(sealed, []byte("aad-b")); err == nil {
		t.Fatal("expected Open to fail when aad does not match")
	}
}

func TestOpenRejectsShortCiphertext(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	c, _ := cipher.New(key)

	if _, err := c.Open([]byte("short"), nil); err == nil {
		t.Fatal("expected Open to reject ciphertext shorter than nonce size")
	}
}
