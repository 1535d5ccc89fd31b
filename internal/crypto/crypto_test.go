package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"short token", "xoxb-1234"},
		{"long token", strings.Repeat("k", 512)},
		{"empty string", ""},
		{"unicode", "mật khẩu bí mật"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Encrypt(tt.data, "unit-test-key")
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			dec, err := Decrypt(enc, "unit-test-key")
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if dec != tt.data {
				t.Errorf("roundtrip mismatch: got %q, want %q", dec, tt.data)
			}
		})
	}
}

func TestEncrypt_NondeterministicNonce(t *testing.T) {
	a, _ := Encrypt("same input", "k")
	b, _ := Encrypt("same input", "k")
	if a == b {
		t.Error("two encryptions of the same plaintext should differ")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc, _ := Encrypt("secret", "key-one")
	if _, err := Decrypt(enc, "key-two"); err == nil {
		t.Fatal("expected error decrypting with wrong key")
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	if _, err := Decrypt("!!not base64!!", "k"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := Decrypt("aGk=", "k"); err == nil {
		t.Fatal("expected error for short ciphertext")
	}
}

func TestEmptyKey(t *testing.T) {
	if _, err := Encrypt("x", ""); err == nil {
		t.Fatal("expected error for empty key on encrypt")
	}
	if _, err := Decrypt("x", ""); err == nil {
		t.Fatal("expected error for empty key on decrypt")
	}
}
