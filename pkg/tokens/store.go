// pkg/tokens/store.go
package tokens

import (
	"net/http"
	"time"
)

// Cookie names are namespaced by tenant id so two tenants sharing a
// browser can never read each other's tokens.
func accessCookieName(tenantID string) string  { return "auth_token_" + tenantID }
func refreshCookieName(tenantID string) string { return "refresh_token_" + tenantID }

// CookieStore reads and writes one tenant's token cookies on a single
// request/response pair. Writes are visible to the browser after the
// triggering request completes; there is no cross-request state here.
type CookieStore struct {
	w          http.ResponseWriter
	r          *http.Request
	tenantID   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCookieStore(w http.ResponseWriter, r *http.Request, tenantID string, accessTTL, refreshTTL time.Duration) *CookieStore {
	return &CookieStore{w: w, r: r, tenantID: tenantID, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (s *CookieStore) Get() (string, bool) {
	c, err := s.r.Cookie(accessCookieName(s.tenantID))
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (s *CookieStore) GetRefresh() (string, bool) {
	c, err := s.r.Cookie(refreshCookieName(s.tenantID))
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set overwrites any existing token cookies. An empty refreshToken
// leaves the refresh cookie untouched.
func (s *CookieStore) Set(token, refreshToken string) {
	s.write(accessCookieName(s.tenantID), token, s.accessTTL)
	if refreshToken != "" {
		s.write(refreshCookieName(s.tenantID), refreshToken, s.refreshTTL)
	}
}

// Remove clears both cookies. Idempotent.
func (s *CookieStore) Remove() {
	s.write(accessCookieName(s.tenantID), "", -1)
	s.write(refreshCookieName(s.tenantID), "", -1)
}

func (s *CookieStore) write(name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
