package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

var (
	ErrTokenExchange  = errors.New("token exchange rejected")
	ErrUserFetch      = errors.New("user fetch rejected")
	ErrInvalidProfile = errors.New("invalid profile response")
)

// maxErrorBody bounds how much of an upstream error body is kept for logging
const maxErrorBody = 64 << 10

// ProfileFields is the user.fields selection sent to the current-user endpoint
const ProfileFields = "profile_image_url,username,name"

// UpstreamError is a non-success response from the provider
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Profile is the authenticated user's public profile
type Profile struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"profile_image_url"`
}

// Exchange redeems an authorization code using the PKCE verifier.
// Client credentials are sent with HTTP Basic auth.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	token, err := p.OAuth2Config.Exchange(p.context(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, &UpstreamError{
				Op:         "token_exchange",
				StatusCode: rerr.Response.StatusCode,
				Body:       truncate(string(rerr.Body)),
				Err:        ErrTokenExchange,
			}
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return token, nil
}

// FetchProfile reads the current user's profile with the bearer token
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	endpoint, err := url.Parse(p.userURL)
	if err != nil {
		return nil, fmt.Errorf("invalid user endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("user.fields", ProfileFields)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.OAuth2Config.Client(p.context(ctx), token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			Op:         "user_fetch",
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        ErrUserFetch,
		}
	}

	var payload struct {
		Data *Profile `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if payload.Data == nil || payload.Data.Username == "" {
		return nil, fmt.Errorf("%w: missing user data", ErrInvalidProfile)
	}

	profile := *payload.Data
	profile.AvatarURL = UpscaleAvatar(profile.AvatarURL)
	return &profile, nil
}

// UpscaleAvatar swaps the low-resolution "_normal" tag for "_400x400".
// Only the first occurrence is replaced.
func UpscaleAvatar(avatarURL string) string {
	return strings.Replace(avatarURL, "_normal", "_400x400", 1)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
