package handlers

import (
	"net/http"
	"time"

	"cilia/pkg/seal"
)

// Cookie names shared by the initiator and the callback
const (
	StateCookie    = "oauth_state"
	VerifierCookie = "code_verifier"
)

// cookieJar writes and reads the short-lived OAuth flow cookies.
// With a sealer the values are encrypted and bound to the cookie name.
type cookieJar struct {
	secure bool
	ttl    time.Duration
	sealer *seal.Sealer
}

func (j cookieJar) set(w http.ResponseWriter, name, value string) error {
	if j.sealer != nil {
		sealed, err := j.sealer.Seal(name, value, j.ttl)
		if err != nil {
			return err
		}
		value = sealed
	}
	http.SetCookie(w, j.cookie(name, value, int(j.ttl.Seconds())))
	return nil
}

// get returns the cookie value; an absent, empty or unopenable cookie is reported as missing
func (j cookieJar) get(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	if j.sealer == nil {
		return c.Value, true
	}
	value, err := j.sealer.Open(name, c.Value)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

// clear expires the cookie immediately (Max-Age=0 on the wire)
func (j cookieJar) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, j.cookie(name, "", -1))
}

func (j cookieJar) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
