package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// PKCE verifier shape (RFC 7636 section 4.1)
const (
	VerifierLength  = 64
	VerifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// PKCEMethod is the code_challenge_method sent with the authorization request
type PKCEMethod string

const (
	PKCEMethodS256  PKCEMethod = "S256"
	PKCEMethodPlain PKCEMethod = "plain"
)

// ParsePKCEMethod accepts "S256" or "plain", case-insensitively
func ParsePKCEMethod(s string) (PKCEMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "s256":
		return PKCEMethodS256, nil
	case "plain":
		return PKCEMethodPlain, nil
	}
	return "", fmt.Errorf("unsupported PKCE method %q (want S256 or plain)", s)
}

func (m PKCEMethod) Valid() bool {
	return m == PKCEMethodS256 || m == PKCEMethodPlain
}

// Challenge derives the code_challenge for verifier
func (m PKCEMethod) Challenge(verifier string) string {
	if m == PKCEMethodPlain {
		return verifier
	}
	return S256Challenge(verifier)
}

func (m PKCEMethod) challengeOptions(verifier string) []oauth2.AuthCodeOption {
	if m == PKCEMethodPlain {
		return []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("code_challenge", verifier),
			oauth2.SetAuthURLParam("code_challenge_method", string(PKCEMethodPlain)),
		}
	}
	return []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
}

// S256Challenge returns base64url(SHA-256(verifier)) without padding
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateVerifier returns a VerifierLength string drawn uniformly from VerifierCharset
func GenerateVerifier() (string, error) {
	const n = len(VerifierCharset)
	// largest multiple of n below 256; bytes at or above it are rejected to avoid modulo bias
	const limit = 256 - 256%n

	out := make([]byte, 0, VerifierLength)
	buf := make([]byte, VerifierLength)
	for len(out) < VerifierLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate code verifier: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, VerifierCharset[int(b)%n])
			if len(out) == VerifierLength {
				break
			}
		}
	}
	return string(out), nil
}
