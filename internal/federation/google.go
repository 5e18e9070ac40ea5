// internal/federation/google.go
package federation

import (
	"net/url"
	"strings"
)

// Provider describes the external identity provider's browser-facing
// authorization endpoint. The callback URL is fixed per deployment and
// registered with the provider out of band.
type Provider struct {
	ClientID    string
	AuthURL     string
	Scopes      []string
	CallbackURL string
}

// NewGoogleProvider wires the standard Google endpoints.
func NewGoogleProvider(clientID, basePublicURL string) Provider {
	return Provider{
		ClientID:    clientID,
		AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		Scopes:      []string{"openid", "email", "profile"},
		CallbackURL: strings.TrimRight(basePublicURL, "/") + "/auth/callback/google",
	}
}

// AuthorizationURL builds the browser redirect that starts the
// authorization-code flow.
func (p Provider) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.CallbackURL)
	q.Set("scope", strings.Join(p.Scopes, " "))
	q.Set("state", state)
	return p.AuthURL + "?" + q.Encode()
}
