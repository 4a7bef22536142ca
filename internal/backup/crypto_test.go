package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("SQLite format 3\x00 and some pages")

	sealed, err := Encrypt(plaintext, "correct horse")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("ciphertext contains the plaintext")
	}
	if len(sealed) != saltSize+nonceSize+len(plaintext)+16 {
		t.Errorf("sealed length = %d, want %d", len(sealed), saltSize+nonceSize+len(plaintext)+16)
	}

	got, err := Decrypt(sealed, "correct horse")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt = %q, want %q", got, plaintext)
	}
}

func TestEncryptUsesFreshSalt(t *testing.T) {
	a, err := Encrypt([]byte("same"), "pw")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := Encrypt([]byte("same"), "pw")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two snapshots share a salt")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	sealed, err := Encrypt([]byte("secret pantry"), "right")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(sealed, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestDecryptTampered(t *testing.T) {
	sealed, err := Encrypt([]byte("secret pantry"), "pw")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Decrypt(sealed, "pw"); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestDecryptTruncated(t *testing.T) {
	if _, err := Decrypt(make([]byte, saltSize), "pw"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}
