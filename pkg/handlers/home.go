package handlers

import (
	"net/http"
	"net/url"

	"cilia/pkg/validation"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// ConnectFailedMessage is the toast shown when the callback redirected with an error
const ConnectFailedMessage = "twitter connect fallo~ intenta de nuevo papi!"

// landingView is everything the landing page shows, derived from the query string
type landingView struct {
	Connected bool
	Username  string
	Name      string
	AvatarURL string
	Error     string
}

func parseLandingView(q url.Values) landingView {
	if code := q.Get("error"); code != "" {
		return landingView{Error: code}
	}
	if q.Get("twitter_connected") != "true" {
		return landingView{}
	}

	v := landingView{
		Connected: true,
		Username:  q.Get("username"),
		Name:      validation.SanitizeDisplayName(q.Get("name")),
		AvatarURL: q.Get("pfp"),
	}
	if validation.ValidateUsername(v.Username) != nil {
		return landingView{}
	}
	if validation.ValidateAvatarURL(v.AvatarURL) != nil {
		v.AvatarURL = ""
	}
	return v
}

// proxiedImage routes an avatar through the image proxy so it is same-origin
func proxiedImage(avatarURL string) string {
	return "/api/proxy-image?url=" + url.QueryEscape(avatarURL)
}

// HandleHome renders the landing page
func HandleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = landingPage(parseLandingView(r.URL.Query())).Render(w)
}

func landingPage(v landingView) Node {
	return Doctype(
		HTML(
			Lang("es"),
			Head(
				Meta(Charset("UTF-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
				Title("cilia"),
				StyleEl(Raw(`
					body {
						font-family: system-ui, sans-serif;
						max-width: 560px;
						margin: 60px auto;
						padding: 20px;
						text-align: center;
						background: #0b0b0f;
						color: #f2f2f2;
					}
					.avatar { width: 120px; height: 120px; border-radius: 50%; }
					.handle { color: #9a9aa5; }
					.toast {
						background: #3a1420;
						border: 1px solid #ff4f7b;
						border-radius: 8px;
						padding: 12px;
						margin-bottom: 24px;
					}
					.toast code { color: #ff9bb3; }
					a.connect {
						display: inline-block;
						padding: 12px 24px;
						border-radius: 999px;
						background: #f2f2f2;
						color: #0b0b0f;
						text-decoration: none;
						font-weight: 600;
					}
				`)),
			),
			Body(
				Main(
					H1(Text("cilia")),
					If(v.Error != "", errorToast(v.Error)),
					If(v.Connected, profileCard(v)),
					If(!v.Connected, connectLink()),
				),
			),
		),
	)
}

func errorToast(code string) Node {
	return Div(Class("toast"), Role("alert"),
		P(Text(ConnectFailedMessage)),
		P(Code(Text(code))),
	)
}

func profileCard(v landingView) Node {
	return Section(Class("profile"),
		If(v.AvatarURL != "", Img(Class("avatar"), Src(proxiedImage(v.AvatarURL)), Alt(v.Username))),
		H1(Text(v.Name)),
		P(Class("handle"), Textf("@%s", v.Username)),
	)
}

func connectLink() Node {
	return A(Class("connect"), Href("/api/auth/twitter"), Text("Connect X"))
}
