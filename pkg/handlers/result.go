package handlers

import (
	"net/url"
	"strings"

	"cilia/pkg/oauth"
)

// Reason is why a callback did not produce a profile. The value is what the
// front end receives in the error query parameter.
type Reason string

const (
	ReasonInvalidState    Reason = "invalid_state"
	ReasonMissingVerifier Reason = "missing_verifier"
	ReasonTokenFailed     Reason = "token_failed"
	ReasonUserFetchFailed Reason = "user_fetch_failed"
	ReasonOAuthFailed     Reason = "oauth_failed"

	// ReasonProviderError marks an error the provider reported on the
	// callback; the provider's own code is forwarded instead.
	ReasonProviderError Reason = "provider_error"
)

// Result is the outcome of a callback: either Profile is set, or Reason is.
type Result struct {
	Profile *oauth.Profile
	Reason  Reason
	// ProviderError is the provider's error code when Reason is ReasonProviderError
	ProviderError string
}

func Success(p *oauth.Profile) Result {
	return Result{Profile: p}
}

func Failure(reason Reason) Result {
	return Result{Reason: reason}
}

// ProviderFailure forwards an error code reported by the provider
func ProviderFailure(code string) Result {
	return Result{Reason: ReasonProviderError, ProviderError: code}
}

func (r Result) OK() bool {
	return r.Profile != nil
}

// Redirect encodes the result as the site-root URL the browser is sent to
func (r Result) Redirect() string {
	if !r.OK() {
		code := string(r.Reason)
		if r.Reason == ReasonProviderError {
			code = r.ProviderError
		}
		return "/?error=" + url.QueryEscape(code)
	}

	var b strings.Builder
	b.WriteString("/?twitter_connected=true")
	b.WriteString("&username=" + url.QueryEscape(r.Profile.Username))
	b.WriteString("&name=" + url.QueryEscape(r.Profile.Name))
	b.WriteString("&pfp=" + url.QueryEscape(r.Profile.AvatarURL))
	return b.String()
}
