package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNameMismatch     = errors.New("token sealed for a different name")
)

// envelope is the sealed payload. Name binds the value to the cookie it was
// issued for so a state value cannot be replayed as a verifier and vice versa.
type envelope struct {
	Name      string    `json:"n"`
	Value     string    `json:"v"`
	ExpiresAt time.Time `json:"e"`
}

// Sealer encrypts, authenticates and expires short string values
type Sealer struct {
	signingKey    []byte
	encryptionKey []byte
	now           func() time.Time
}

// NewSealer creates a new sealer
// signingKey: 32+ bytes for HMAC-SHA256
// encryptionKey: 32 bytes for AES-256
func NewSealer(signingKey, encryptionKey []byte) (*Sealer, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be exactly 32 bytes for AES-256")
	}

	return &Sealer{
		signingKey:    signingKey,
		encryptionKey: encryptionKey,
		now:           time.Now,
	}, nil
}

// FromSecret derives independent signing and encryption keys from a single
// operator-supplied secret of at least 32 bytes.
func FromSecret(secret []byte) (*Sealer, error) {
	if len(secret) < 32 {
		return nil, errors.New("cookie secret must be at least 32 bytes")
	}
	return NewSealer(derive(secret, "cilia/cookie/sign"), derive(secret, "cilia/cookie/encrypt"))
}

func derive(secret []byte, label string) []byte {
	key := make([]byte, 32)
	// HKDF-SHA256 never fails for a 32 byte output
	_, _ = io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key)
	return key
}

// Seal returns an opaque, URL-safe token carrying value for name until ttl elapses
func (s *Sealer) Seal(name, value string, ttl time.Duration) (string, error) {
	data, err := json.Marshal(envelope{
		Name:      name,
		Value:     value,
		ExpiresAt: s.now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	encrypted, err := s.encrypt(data)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt envelope: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(s.sign(encrypted)), nil
}

// Open validates a token produced by Seal for the same name and returns its value
func (s *Sealer) Open(name, token string) (string, error) {
	signed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	encrypted, err := s.verify(signed)
	if err != nil {
		return "", err
	}

	data, err := s.decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt envelope: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", ErrInvalidToken
	}

	if env.Name != name {
		return "", ErrNameMismatch
	}

	if s.now().After(env.ExpiresAt) {
		return "", ErrExpiredToken
	}

	return env.Value, nil
}

// encrypt encrypts data using AES-GCM
func (s *Sealer) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func (s *Sealer) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertext, nil)
}

// sign prepends an HMAC-SHA256 signature to data
func (s *Sealer) sign(data []byte) []byte {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write(data)
	signature := h.Sum(nil)

	signed := make([]byte, len(signature)+len(data))
	copy(signed, signature)
	copy(signed[len(signature):], data)

	return signed
}

// verify checks the HMAC-SHA256 signature and returns the signed data
func (s *Sealer) verify(signed []byte) ([]byte, error) {
	if len(signed) < sha256.Size {
		return nil, ErrInvalidSignature
	}

	signature := signed[:sha256.Size]
	data := signed[sha256.Size:]

	h := hmac.New(sha256.New, s.signingKey)
	h.Write(data)

	// Constant-time comparison
	if !hmac.Equal(signature, h.Sum(nil)) {
		return nil, ErrInvalidSignature
	}

	return data, nil
}
