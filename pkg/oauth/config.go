package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Twitter OAuth 2.0 endpoints
const (
	TwitterAuthURL  = "https://twitter.com/i/oauth2/authorize"
	TwitterTokenURL = "https://api.twitter.com/2/oauth2/token"
	TwitterUserURL  = "https://api.twitter.com/2/users/me"
)

// DefaultScopes is the minimal read-only scope set needed to read the profile
var DefaultScopes = []string{"tweet.read", "users.read"}

// Config holds the OAuth2 client configuration
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	PKCEMethod   PKCEMethod

	// Endpoint overrides, mostly for tests. Empty means Twitter's.
	AuthURL  string
	TokenURL string
	UserURL  string

	// HTTPClient is used for every outbound call. Defaults to a client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Provider wraps the OAuth2 config and the profile endpoint
type Provider struct {
	OAuth2Config *oauth2.Config
	userURL      string
	method       PKCEMethod
	client       *http.Client
}

// NewProvider creates a new OAuth2 provider from configuration.
// An empty ClientID is not an error here; callers decide how to report it.
func NewProvider(cfg Config) (*Provider, error) {
	method := cfg.PKCEMethod
	if method == "" {
		method = PKCEMethodS256
	}
	if !method.Valid() {
		return nil, fmt.Errorf("unsupported PKCE method %q", method)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   firstNonEmpty(cfg.AuthURL, TwitterAuthURL),
			TokenURL:  firstNonEmpty(cfg.TokenURL, TwitterTokenURL),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		RedirectURL: cfg.RedirectURL,
		Scopes:      scopes,
	}

	return &Provider{
		OAuth2Config: oauth2Config,
		userURL:      firstNonEmpty(cfg.UserURL, TwitterUserURL),
		method:       method,
		client:       client,
	}, nil
}

// Configured reports whether a client identifier is present
func (p *Provider) Configured() bool {
	return p.OAuth2Config.ClientID != ""
}

// PKCEMethod returns the challenge method advertised in authorization requests
func (p *Provider) PKCEMethod() PKCEMethod {
	return p.method
}

// AuthCodeURL builds the provider authorization URL for state and verifier
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.OAuth2Config.AuthCodeURL(state, p.method.challengeOptions(verifier)...)
}

// context returns ctx carrying the provider's HTTP client for x/oauth2
func (p *Provider) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// GenerateState generates a cryptographically secure random state parameter
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
