package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxDisplayNameRunes is the provider's display name limit
const MaxDisplayNameRunes = 50

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// ValidateUsername validates a Twitter/X handle (1-15 letters, digits or underscores)
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 1-15 letters, digits or underscores: %q", username)
	}
	return nil
}

// ValidateAvatarURL accepts empty (no avatar) or an absolute https URL
func ValidateAvatarURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("avatar URL is malformed: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("avatar URL must be absolute https: %q", raw)
	}
	return nil
}

// SanitizeDisplayName drops control and invalid characters, collapses
// surrounding whitespace and truncates to MaxDisplayNameRunes runes
func SanitizeDisplayName(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r == utf8.RuneError || unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	name := strings.TrimSpace(b.String())

	if utf8.RuneCountInString(name) > MaxDisplayNameRunes {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:MaxDisplayNameRunes]))
	}

	return name
}
