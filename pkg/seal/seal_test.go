package seal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	signingKey := make([]byte, 32)
	encryptionKey := make([]byte, 32)
	rand.Read(signingKey)
	rand.Read(encryptionKey)

	s, err := NewSealer(signingKey, encryptionKey)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}
	return s
}

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name          string
		signingKey    []byte
		encryptionKey []byte
		wantErr       bool
		errContains   string
	}{
		{
			name:          "valid keys",
			signingKey:    make([]byte, 32),
			encryptionKey: make([]byte, 32),
		},
		{
			name:          "signing key too short",
			signingKey:    make([]byte, 31),
			encryptionKey: make([]byte, 32),
			wantErr:       true,
			errContains:   "signing key must be at least 32 bytes",
		},
		{
			name:          "encryption key too short",
			signingKey:    make([]byte, 32),
			encryptionKey: make([]byte, 31),
			wantErr:       true,
			errContains:   "encryption key must be exactly 32 bytes",
		},
		{
			name:          "encryption key too long",
			signingKey:    make([]byte, 32),
			encryptionKey: make([]byte, 33),
			wantErr:       true,
			errContains:   "encryption key must be exactly 32 bytes",
		},
		{
			name:          "signing key longer than 32 bytes is valid",
			signingKey:    make([]byte, 64),
			encryptionKey: make([]byte, 32),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSealer(tt.signingKey, tt.encryptionKey)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewSealer() expected error containing %q, got nil", tt.errContains)
					return
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewSealer() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Errorf("NewSealer() unexpected error = %v", err)
				return
			}
			if s == nil {
				t.Errorf("NewSealer() returned nil sealer")
			}
		})
	}
}

func TestFromSecret(t *testing.T) {
	if _, err := FromSecret([]byte("too-short")); err == nil {
		t.Fatal("FromSecret() expected error for short secret")
	}

	secret := []byte(strings.Repeat("s", 32))
	a, err := FromSecret(secret)
	if err != nil {
		t.Fatalf("FromSecret() error = %v", err)
	}
	b, err := FromSecret(secret)
	if err != nil {
		t.Fatalf("FromSecret() error = %v", err)
	}

	token, err := a.Seal("oauth_state", "abc", time.Minute)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	got, err := b.Open("oauth_state", token)
	if err != nil {
		t.Fatalf("Open() with same secret error = %v", err)
	}
	if got != "abc" {
		t.Errorf("Open() = %q, want %q", got, "abc")
	}

	if string(a.signingKey) == string(a.encryptionKey) {
		t.Error("derived signing and encryption keys must differ")
	}
}

func TestSealOpen(t *testing.T) {
	s := newTestSealer(t)

	tests := []struct {
		name  string
		value string
	}{
		{name: "empty value", value: ""},
		{name: "state value", value: "Zm9vYmFyYmF6cXV4"},
		{name: "verifier alphabet", value: "AZaz09-._~" + strings.Repeat("x", 54)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Seal("code_verifier", tt.value, time.Minute)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if tt.value != "" && strings.Contains(token, tt.value) {
				t.Errorf("Seal() token leaks plaintext value")
			}
			if strings.ContainsAny(token, "+/=; ") {
				t.Errorf("Seal() token %q is not cookie/URL safe", token)
			}

			got, err := s.Open("code_verifier", token)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got != tt.value {
				t.Errorf("Open() = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestOpenRejects(t *testing.T) {
	s := newTestSealer(t)
	other := newTestSealer(t)

	valid, err := s.Seal("oauth_state", "state-123", time.Minute)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	foreign, err := other.Seal("oauth_state", "state-123", time.Minute)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	expired, err := s.Seal("oauth_state", "state-123", -time.Second)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(valid)
	if err != nil {
		t.Fatalf("DecodeString() error = %v", err)
	}
	raw[len(raw)/2] ^= 0xff
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		cookie  string
		token   string
		wantErr error
	}{
		{name: "not base64", cookie: "oauth_state", token: "!!!", wantErr: ErrInvalidToken},
		{name: "too short", cookie: "oauth_state", token: "YWJj", wantErr: ErrInvalidSignature},
		{name: "different key", cookie: "oauth_state", token: foreign, wantErr: ErrInvalidSignature},
		{name: "tampered", cookie: "oauth_state", token: tampered, wantErr: ErrInvalidSignature},
		{name: "expired", cookie: "oauth_state", token: expired, wantErr: ErrExpiredToken},
		{name: "wrong cookie name", cookie: "code_verifier", token: valid, wantErr: ErrNameMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Open(tt.cookie, tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptUsesRandomNonce(t *testing.T) {
	s := newTestSealer(t)

	ct1, err := s.encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt() error = %v", err)
	}
	ct2, err := s.encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt() error = %v", err)
	}

	if string(ct1) == string(ct2) {
		t.Errorf("encrypt() produced identical ciphertexts for same plaintext")
	}
}

func TestDecryptInvalidCiphertext(t *testing.T) {
	s := newTestSealer(t)

	tests := []struct {
		name       string
		ciphertext []byte
	}{
		{name: "too short ciphertext", ciphertext: []byte{1, 2, 3}},
		{name: "empty ciphertext", ciphertext: []byte{}},
		{
			name: "tampered ciphertext",
			ciphertext: func() []byte {
				ct, _ := s.encrypt([]byte("test"))
				ct[len(ct)-1] ^= 1
				return ct
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.decrypt(tt.ciphertext); err == nil {
				t.Errorf("decrypt() expected error")
			}
		})
	}
}

func TestSignVerify(t *testing.T) {
	s := newTestSealer(t)

	for _, data := range [][]byte{{}, []byte("test data"), make([]byte, 10000)} {
		signed := s.sign(data)
		if len(signed) != 32+len(data) {
			t.Errorf("sign() length = %d, want %d", len(signed), 32+len(data))
		}
		verified, err := s.verify(signed)
		if err != nil {
			t.Errorf("verify() error = %v", err)
			continue
		}
		if string(verified) != string(data) {
			t.Errorf("verify() returned different data")
		}
	}
}
