// internal/gate/middleware.go
package gate

import (
	"net/http"
	"strconv"
	"time"

	"gatehouse/pkg/autherr"
	"gatehouse/pkg/tokens"
)

// Middleware applies the gate to every request and renders non-Continue
// outcomes. Health and metrics endpoints bypass the gate entirely.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			d := g.Evaluate(r)
			decisionsTotal.WithLabelValues(tenantLabel(d), d.Kind.String()).Inc()

			if d.Kind != Reject {
				setSecurityHeaders(w, r.URL.Path)
			}
			if d.DropToken && d.Tenant.ID != "" {
				tokens.NewCookieStore(w, r, d.Tenant.ID, 0, 0).Remove()
			}

			switch d.Kind {
			case Continue:
				if r.Method == http.MethodGet && isAuthPath(r.URL.Path) {
					IssueCSRF(w, r)
				}
				ctx := WithTenant(r.Context(), d.Tenant)
				if d.Subject != "" {
					ctx = WithSubject(ctx, d.Subject)
				}
				next.ServeHTTP(w, r.WithContext(ctx))

			case RedirectToLogin, RedirectExternal, RedirectError:
				http.Redirect(w, r, d.Location, http.StatusFound)

			case Reject:
				if d.Status == http.StatusTooManyRequests {
					if !d.RetryAfter.IsZero() {
						secs := int(time.Until(d.RetryAfter).Seconds())
						if secs < 1 {
							secs = 1
						}
						w.Header().Set("Retry-After", strconv.Itoa(secs))
					}
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
					return
				}
				switch d.Code {
				case autherr.CSRFMismatch:
					http.Error(w, "Invalid CSRF Token", d.Status)
				default:
					http.Error(w, "Forbidden", d.Status)
				}
			}
		})
	}
}

func tenantLabel(d Decision) string {
	if d.Tenant.ID == "" {
		return "unknown"
	}
	return d.Tenant.ID
}

// setSecurityHeaders applies the baseline response headers; HSTS is
// reserved for non-public paths.
func setSecurityHeaders(w http.ResponseWriter, path string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
	if !isPublicPath(path) {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}
