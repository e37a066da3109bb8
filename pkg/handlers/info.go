package handlers

import (
	"net/http"

	"cilia/pkg/oauth"
)

// InfoResponse describes the public auth and proxy endpoints
type InfoResponse struct {
	Provider          string   `json:"provider"`
	LoginURL          string   `json:"login_url"`
	CallbackURL       string   `json:"callback_url"`
	PKCEMethod        string   `json:"pkce_method"`
	ProxyURL          string   `json:"proxy_url"`
	AllowedImageHosts []string `json:"allowed_image_hosts"`
}

// HandleInfo returns the service's public configuration
func HandleInfo(baseURL string, provider *oauth.Provider, allowedHosts []string) http.HandlerFunc {
	info := InfoResponse{
		Provider:          "twitter",
		LoginURL:          baseURL + "/api/auth/twitter",
		CallbackURL:       provider.OAuth2Config.RedirectURL,
		PKCEMethod:        string(provider.PKCEMethod()),
		ProxyURL:          baseURL + "/api/proxy-image",
		AllowedImageHosts: allowedHosts,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	}
}
