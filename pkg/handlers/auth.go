package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"cilia/pkg/metrics"
	"cilia/pkg/middleware"
	"cilia/pkg/oauth"
	"cilia/pkg/seal"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// providerAliases are the accepted {provider} path values
var providerAliases = map[string]bool{"twitter": true, "x": true}

// AuthOptions tunes the flow cookies and the outbound call budget
type AuthOptions struct {
	CookieSecure bool
	CookieTTL    time.Duration
	// Sealer, when set, encrypts the cookie values
	Sealer *seal.Sealer
	// Timeout bounds each provider call made by the callback
	Timeout time.Duration
}

type AuthHandler struct {
	provider *oauth.Provider
	cookies  cookieJar
	timeout  time.Duration
	logger   *zap.Logger
}

func NewAuthHandler(provider *oauth.Provider, opts AuthOptions, logger *zap.Logger) *AuthHandler {
	if opts.CookieTTL <= 0 {
		opts.CookieTTL = 10 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &AuthHandler{
		provider: provider,
		cookies:  cookieJar{secure: opts.CookieSecure, ttl: opts.CookieTTL, sealer: opts.Sealer},
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

// HandleStart redirects the browser to the provider's authorization page
// after storing state and PKCE verifier in cookies.
func (h *AuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r.Context())

	name := strings.ToLower(mux.Vars(r)["provider"])
	if !providerAliases[name] {
		writeJSONError(w, http.StatusNotFound, "Unknown provider")
		return
	}

	if !h.provider.Configured() {
		logger.Error("authorization requested but twitter client id is not configured")
		metrics.RecordAuthStart("not_configured")
		writeJSONError(w, http.StatusInternalServerError, "Twitter client ID not configured")
		return
	}

	state, err := oauth.GenerateState()
	if err != nil {
		logger.Error("failed to generate state", zap.Error(err))
		metrics.RecordAuthStart("error")
		writeJSONError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}
	verifier, err := oauth.GenerateVerifier()
	if err != nil {
		logger.Error("failed to generate code verifier", zap.Error(err))
		metrics.RecordAuthStart("error")
		writeJSONError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}

	if err := h.cookies.set(w, StateCookie, state); err != nil {
		logger.Error("failed to seal state cookie", zap.Error(err))
		metrics.RecordAuthStart("error")
		writeJSONError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}
	if err := h.cookies.set(w, VerifierCookie, verifier); err != nil {
		logger.Error("failed to seal verifier cookie", zap.Error(err))
		metrics.RecordAuthStart("error")
		// drop the state cookie set above
		w.Header().Del("Set-Cookie")
		writeJSONError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}

	metrics.RecordAuthStart("redirected")
	logger.Debug("redirecting to provider", zap.String("pkce_method", string(h.provider.PKCEMethod())))
	http.Redirect(w, r, h.provider.AuthCodeURL(state, verifier), http.StatusFound)
}

// HandleCallback completes the authorization code grant. The browser always
// gets a redirect to the site root carrying either the profile or an error code.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	result := h.complete(r)

	h.cookies.clear(w, StateCookie)
	h.cookies.clear(w, VerifierCookie)

	if result.OK() {
		metrics.RecordCallbackSuccess()
	} else {
		metrics.RecordCallbackFailure(string(result.Reason))
	}

	http.Redirect(w, r, result.Redirect(), http.StatusFound)
}

func (h *AuthHandler) complete(r *http.Request) (result Result) {
	logger := h.requestLogger(r.Context())
	q := r.URL.Query()

	if code := q.Get("error"); code != "" {
		logger.Info("provider reported an authorization error",
			zap.String("error", code),
			zap.String("error_description", q.Get("error_description")),
		)
		return ProviderFailure(code)
	}

	state, ok := h.cookies.get(r, StateCookie)
	if !ok || !statesEqual(q.Get("state"), state) {
		logger.Warn("state mismatch", zap.Bool("cookie_present", ok))
		return Failure(ReasonInvalidState)
	}

	verifier, ok := h.cookies.get(r, VerifierCookie)
	if !ok {
		logger.Warn("code verifier cookie missing")
		return Failure(ReasonMissingVerifier)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic completing oauth callback", zap.Any("panic", rec))
			result = Failure(ReasonOAuthFailed)
		}
	}()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	return h.redeem(ctx, logger, q.Get("code"), verifier)
}

// redeem exchanges the code and reads the profile
func (h *AuthHandler) redeem(ctx context.Context, logger *zap.Logger, code, verifier string) Result {
	if code == "" {
		logger.Warn("callback without authorization code")
		return Failure(ReasonTokenFailed)
	}

	start := time.Now()
	token, err := h.provider.Exchange(ctx, code, verifier)
	metrics.ObserveProvider("token_exchange", time.Since(start).Seconds())
	if err != nil {
		var upErr *oauth.UpstreamError
		if errors.As(err, &upErr) {
			logger.Warn("token exchange rejected",
				zap.Int("status", upErr.StatusCode),
				zap.String("body", upErr.Body),
			)
			return Failure(ReasonTokenFailed)
		}
		logger.Error("token exchange failed", zap.Error(err))
		return Failure(ReasonOAuthFailed)
	}

	start = time.Now()
	profile, err := h.provider.FetchProfile(ctx, token)
	metrics.ObserveProvider("user_fetch", time.Since(start).Seconds())
	if err != nil {
		var upErr *oauth.UpstreamError
		switch {
		case errors.As(err, &upErr):
			logger.Warn("user fetch rejected",
				zap.Int("status", upErr.StatusCode),
				zap.String("body", upErr.Body),
			)
			return Failure(ReasonUserFetchFailed)
		case errors.Is(err, oauth.ErrInvalidProfile):
			logger.Warn("user fetch returned an unusable profile", zap.Error(err))
			return Failure(ReasonUserFetchFailed)
		}
		logger.Error("user fetch failed", zap.Error(err))
		return Failure(ReasonOAuthFailed)
	}

	logger.Info("twitter account connected", zap.String("username", profile.Username))
	return Success(profile)
}

func (h *AuthHandler) requestLogger(ctx context.Context) *zap.Logger {
	return h.logger.With(zap.String("request_id", middleware.RequestIDFromContext(ctx)))
}

func statesEqual(query, cookie string) bool {
	if query == "" || cookie == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(query), []byte(cookie)) == 1
}
