// Package autherr is the fixed error vocabulary the gateway exposes to
// callers. Per-request failures always degrade to a redirect onto the
// error route carrying one of these codes; raw error text never leaks
// into the code/description pair.
package autherr

import "net/url"

type Code string

const (
	InvalidTenant      Code = "invalid_tenant"
	InvalidRedirectURI Code = "invalid_redirect_uri"
	InvalidRequest     Code = "invalid_request"
	RateLimited        Code = "rate_limited"
	CSRFMismatch       Code = "csrf_mismatch"
	AuthFailed         Code = "auth_failed"
	SessionExpired     Code = "session_expired"
	AccessDenied       Code = "access_denied"
)

// ErrorPath is the dedicated error-display route.
const ErrorPath = "/auth/error"

// RedirectURL builds the error route target for a code plus optional
// human-readable description.
func RedirectURL(code Code, description string) string {
	q := url.Values{}
	q.Set("error", string(code))
	if description != "" {
		q.Set("error_description", description)
	}
	return ErrorPath + "?" + q.Encode()
}
