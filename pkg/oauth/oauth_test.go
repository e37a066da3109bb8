package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestS256Challenge(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := S256Challenge(verifier); got != want {
		t.Fatalf("S256Challenge() = %v, want %v", got, want)
	}
	if got := PKCEMethodS256.Challenge(verifier); got != want {
		t.Fatalf("PKCEMethodS256.Challenge() = %v, want %v", got, want)
	}
	if got := PKCEMethodPlain.Challenge(verifier); got != verifier {
		t.Fatalf("PKCEMethodPlain.Challenge() = %v, want verifier", got)
	}
}

func TestGenerateVerifier(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		v, err := GenerateVerifier()
		require.NoError(t, err)
		require.Len(t, v, VerifierLength)
		for _, ch := range v {
			if !strings.ContainsRune(VerifierCharset, ch) {
				t.Fatalf("verifier %q contains %q outside the unreserved set", v, ch)
			}
		}
		require.False(t, seen[v], "duplicate verifier")
		seen[v] = true
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	require.NoError(t, err)
	b, err := GenerateState()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}

func TestParsePKCEMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    PKCEMethod
		wantErr bool
	}{
		{in: "", want: PKCEMethodS256},
		{in: "S256", want: PKCEMethodS256},
		{in: "s256", want: PKCEMethodS256},
		{in: "plain", want: PKCEMethodPlain},
		{in: " PLAIN ", want: PKCEMethodPlain},
		{in: "S512", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePKCEMethod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewProviderRejectsUnknownMethod(t *testing.T) {
	_, err := NewProvider(Config{ClientID: "id", PKCEMethod: "S512"})
	assert.Error(t, err)
}

func TestAuthCodeURL(t *testing.T) {
	tests := []struct {
		name       string
		method     PKCEMethod
		wantMethod string
		challenge  func(string) string
	}{
		{name: "S256", method: PKCEMethodS256, wantMethod: "S256", challenge: S256Challenge},
		{name: "plain", method: PKCEMethodPlain, wantMethod: "plain", challenge: func(v string) string { return v }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(Config{
				ClientID:    "client-123",
				RedirectURL: "https://site.example/api/auth/callback",
				PKCEMethod:  tt.method,
			})
			require.NoError(t, err)
			assert.True(t, p.Configured())

			verifier, err := GenerateVerifier()
			require.NoError(t, err)

			u, err := url.Parse(p.AuthCodeURL("state-abc", verifier))
			require.NoError(t, err)
			assert.Equal(t, "twitter.com", u.Host)
			assert.Equal(t, "/i/oauth2/authorize", u.Path)

			q := u.Query()
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, "client-123", q.Get("client_id"))
			assert.Equal(t, "https://site.example/api/auth/callback", q.Get("redirect_uri"))
			assert.Equal(t, "tweet.read users.read", q.Get("scope"))
			assert.Equal(t, "state-abc", q.Get("state"))
			assert.Equal(t, tt.challenge(verifier), q.Get("code_challenge"))
			assert.Equal(t, tt.wantMethod, q.Get("code_challenge_method"))
		})
	}
}

func TestUpscaleAvatar(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			in:   "https://pbs.twimg.com/profile_images/1/abc_normal.jpg",
			want: "https://pbs.twimg.com/profile_images/1/abc_400x400.jpg",
		},
		{
			in:   "https://pbs.twimg.com/profile_images/1_normal/abc_normal.jpg",
			want: "https://pbs.twimg.com/profile_images/1_400x400/abc_normal.jpg",
		},
		{in: "https://pbs.twimg.com/profile_images/1/abc.png", want: "https://pbs.twimg.com/profile_images/1/abc.png"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UpscaleAvatar(tt.in))
	}
}

// fakeTwitter serves the token and current-user endpoints
type fakeTwitter struct {
	tokenStatus int
	tokenBody   string
	userStatus  int
	userBody    string

	gotForm   url.Values
	gotBasic  [2]string
	gotBearer string
	gotFields string
}

func (f *fakeTwitter) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.gotForm = r.PostForm
		user, pass, _ := r.BasicAuth()
		f.gotBasic = [2]string{user, pass}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		f.gotBearer = r.Header.Get("Authorization")
		f.gotFields = r.URL.Query().Get("user.fields")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.userStatus)
		_, _ = w.Write([]byte(f.userBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := NewProvider(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://site.example/api/auth/callback",
		TokenURL:     srv.URL + "/2/oauth2/token",
		UserURL:      srv.URL + "/2/users/me",
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestExchange(t *testing.T) {
	t.Run("success sends basic auth and verifier", func(t *testing.T) {
		f := &fakeTwitter{tokenStatus: http.StatusOK, tokenBody: `{"token_type":"bearer","access_token":"at-1","expires_in":7200}`}
		p := newTestProvider(t, f.server(t))

		tok, err := p.Exchange(context.Background(), "code-1", "verifier-1")
		require.NoError(t, err)
		assert.Equal(t, "at-1", tok.AccessToken)

		assert.Equal(t, [2]string{"client-id", "client-secret"}, f.gotBasic)
		assert.Equal(t, "authorization_code", f.gotForm.Get("grant_type"))
		assert.Equal(t, "code-1", f.gotForm.Get("code"))
		assert.Equal(t, "https://site.example/api/auth/callback", f.gotForm.Get("redirect_uri"))
		assert.Equal(t, "verifier-1", f.gotForm.Get("code_verifier"))
	})

	t.Run("non-success is an upstream error carrying the body", func(t *testing.T) {
		f := &fakeTwitter{tokenStatus: http.StatusBadRequest, tokenBody: `{"error":"invalid_request"}`}
		p := newTestProvider(t, f.server(t))

		_, err := p.Exchange(context.Background(), "code-1", "verifier-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenExchange))

		var upErr *UpstreamError
		require.True(t, errors.As(err, &upErr))
		assert.Equal(t, http.StatusBadRequest, upErr.StatusCode)
		assert.Contains(t, upErr.Body, "invalid_request")
	})
}

func TestFetchProfile(t *testing.T) {
	token := &oauth2.Token{AccessToken: "at-1", TokenType: "bearer"}

	tests := []struct {
		name    string
		status  int
		body    string
		want    *Profile
		wantErr error
	}{
		{
			name:   "success upscales avatar",
			status: http.StatusOK,
			body:   `{"data":{"id":"1","username":"cilia","name":"Cilia AI","profile_image_url":"https://pbs.twimg.com/profile_images/1/a_normal.jpg"}}`,
			want: &Profile{
				Username:  "cilia",
				Name:      "Cilia AI",
				AvatarURL: "https://pbs.twimg.com/profile_images/1/a_400x400.jpg",
			},
		},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"title":"Unauthorized"}`, wantErr: ErrUserFetch},
		{name: "garbage body", status: http.StatusOK, body: `not json`, wantErr: ErrInvalidProfile},
		{name: "missing data", status: http.StatusOK, body: `{"errors":[{"title":"x"}]}`, wantErr: ErrInvalidProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeTwitter{userStatus: tt.status, userBody: tt.body}
			p := newTestProvider(t, f.server(t))

			got, err := p.FetchProfile(context.Background(), token)
			assert.Equal(t, "Bearer at-1", f.gotBearer)
			assert.Equal(t, ProfileFields, f.gotFields)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FetchProfile() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := &UpstreamError{Op: "user_fetch", StatusCode: 503, Err: ErrUserFetch}
	assert.Equal(t, "user_fetch: status 503: user fetch rejected", err.Error())

	b, _ := json.Marshal(Profile{Username: "u", Name: "n", AvatarURL: "a"})
	assert.JSONEq(t, `{"username":"u","name":"n","profile_image_url":"a"}`, string(b))
}
