package utils

import (
	"testing"
)

func TestSecretBox_RoundTrip(t *testing.T) {
	box, err := NewSecretBox("test-passphrase")
	if err != nil {
		t.Fatalf("NewSecretBox() error = %v", err)
	}

	secrets := []string{
		"sk-proj-1234567890abcdef",
		"",
		"short",
		"secret with spaces and ünïcödé",
	}

	for _, secret := range secrets {
		encrypted, err := box.Encrypt(secret)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", secret, err)
		}
		if encrypted == secret && secret != "" {
			t.Errorf("Encrypt(%q) returned plaintext", secret)
		}

		decrypted, err := box.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt error = %v", err)
		}
		if decrypted != secret {
			t.Errorf("round trip = %q, expected %q", decrypted, secret)
		}
	}
}

func TestSecretBox_SamePassphraseAcrossInstances(t *testing.T) {
	box1, _ := NewSecretBox("shared-passphrase")
	box2, _ := NewSecretBox("shared-passphrase")

	encrypted, err := box1.Encrypt("sk-test-secret")
	if err != nil {
		t.Fatalf("Encrypt error = %v", err)
	}

	// Ciphertexts must survive process restarts with the same passphrase.
	decrypted, err := box2.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt with fresh box error = %v", err)
	}
	if decrypted != "sk-test-secret" {
		t.Errorf("decrypted = %q, expected sk-test-secret", decrypted)
	}
}

func TestSecretBox_WrongPassphraseFails(t *testing.T) {
	box1, _ := NewSecretBox("passphrase-one")
	box2, _ := NewSecretBox("passphrase-two")

	encrypted, _ := box1.Encrypt("secret")
	if _, err := box2.Decrypt(encrypted); err == nil {
		t.Error("Decrypt with wrong passphrase should fail")
	}
}

func TestSecretBox_EmptyPassphrase(t *testing.T) {
	if _, err := NewSecretBox(""); err == nil {
		t.Error("NewSecretBox with empty passphrase should fail")
	}
}

func TestSecretBox_NondeterministicCiphertext(t *testing.T) {
	box, _ := NewSecretBox("test-passphrase")

	c1, _ := box.Encrypt("same secret")
	c2, _ := box.Encrypt("same secret")
	if c1 == c2 {
		t.Error("encrypting the same plaintext twice should produce different ciphertexts")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"long secret", "sk-proj-1234567890", "sk-p****7890"},
		{"exactly nine chars", "123456789", "1234****6789"},
		{"eight chars fully hidden", "12345678", "****"},
		{"short secret", "abc", "****"},
		{"empty", "", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSecret(tt.secret); got != tt.expected {
				t.Errorf("MaskSecret(%q) = %q, expected %q", tt.secret, got, tt.expected)
			}
		})
	}
}
