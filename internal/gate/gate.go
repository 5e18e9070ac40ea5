// Package gate is the per-request decision engine: it resolves the
// tenant, applies abuse controls, and classifies the request into one
// terminal outcome. The HTTP layer renders outcomes; nothing in here
// writes a response.
package gate

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gatehouse/internal/policy"
	"gatehouse/pkg/autherr"
	"gatehouse/pkg/config"
	"gatehouse/pkg/tenants"
	"gatehouse/pkg/tokens"
)

type OutcomeKind int

const (
	Continue OutcomeKind = iota
	RedirectToLogin
	RedirectExternal
	RedirectError
	Reject
)

// Decision is the terminal outcome for one request.
type Decision struct {
	Kind     OutcomeKind
	Location string // target for the Redirect* kinds
	Status   int    // HTTP status for Reject
	Code     autherr.Code
	Tenant   tenants.TenantConfig
	Subject  string // set when a valid token was seen
	// DropToken marks token cookies for deletion: the request carried a
	// token the gate attributed an authentication failure to.
	DropToken bool
	// RetryAfter is set on rate-limit rejections.
	RetryAfter time.Time
}

var authPathPrefixes = []string{"/auth/login", "/auth/register", "/auth/google", "/auth/callback", "/auth/refresh", "/auth/logout"}

var publicPaths = []string{"/", "/auth/error"}

func isAuthPath(p string) bool {
	for _, prefix := range authPathPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func isPublicPath(p string) bool {
	if p == "/" {
		return true
	}
	for _, pp := range publicPaths[1:] {
		if strings.HasPrefix(p, pp) {
			return true
		}
	}
	return false
}

// Gate evaluates the request state machine. It holds no per-request
// state; the rate-limiter store is the only shared mutable dependency.
type Gate struct {
	reg   *tenants.Registry
	intro *tokens.Introspector
	cfg   config.Config
	log   *zap.SugaredLogger
}

func New(reg *tenants.Registry, intro *tokens.Introspector, cfg config.Config, log *zap.SugaredLogger) *Gate {
	return &Gate{reg: reg, intro: intro, cfg: cfg, log: log}
}

// ResolveTenantID applies the header > query > default precedence.
func (g *Gate) ResolveTenantID(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	q := r.URL.Query()
	if v := q.Get("tenant_id"); v != "" {
		return v
	}
	if v := q.Get("client_id"); v != "" {
		return v
	}
	return g.cfg.DefaultTenantID
}

// ClientIP prefers the first X-Forwarded-For hop, falling back to the
// socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip != "" {
			return ip
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

// Evaluate runs steps 1-4 of the request state machine and returns the
// terminal outcome. Every branch maps to a Decision; no error escapes.
func (g *Gate) Evaluate(r *http.Request) Decision {
	ctx := r.Context()

	// 1. Resolve tenant.
	tenantID := g.ResolveTenantID(r)
	t, ok := g.reg.Get(tenantID)
	if !ok {
		return Decision{Kind: RedirectError, Code: autherr.InvalidTenant,
			Location: autherr.RedirectURL(autherr.InvalidTenant, "")}
	}

	ip := ClientIP(r)
	if !g.reg.IsIPAllowed(t.ID, ip) {
		return Decision{Kind: Reject, Status: http.StatusForbidden, Code: autherr.AccessDenied, Tenant: t}
	}

	// 2. Rate limit by caller IP. A limiter failure denies: the gateway
	// never serves unmetered traffic.
	res, err := g.reg.CheckRateLimit(ctx, t.ID, ip)
	if err != nil {
		g.log.Errorw("rate limit check", "tenant", t.ID, "err", err)
		return Decision{Kind: Reject, Status: http.StatusTooManyRequests, Code: autherr.RateLimited, Tenant: t}
	}
	if !res.Allowed {
		return Decision{Kind: Reject, Status: http.StatusTooManyRequests, Code: autherr.RateLimited, Tenant: t, RetryAfter: res.ResetAt}
	}

	// Optional tenant access policy.
	if t.AccessPolicy != "" {
		allowed, err := policy.Allow(ctx, t.AccessPolicy, policy.Input{IP: ip, Path: r.URL.Path, Method: r.Method})
		if err != nil {
			g.log.Warnw("access policy eval", "tenant", t.ID, "err", err)
		}
		if !allowed {
			return Decision{Kind: Reject, Status: http.StatusForbidden, Code: autherr.AccessDenied, Tenant: t}
		}
	}

	// 3. CSRF for state-changing methods: double-submit cookie.
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
		if !validCSRF(r) {
			return Decision{Kind: Reject, Status: http.StatusForbidden, Code: autherr.CSRFMismatch, Tenant: t}
		}
	}

	// 4. Path classification.
	raw, hasToken := cookieToken(r, t.ID)
	valid := hasToken && !g.intro.IsExpired(ctx, raw, t.OAuthIssuer, t.JWKSURL)
	var subject string
	if valid {
		subject, _ = g.intro.Subject(ctx, raw, t.OAuthIssuer, t.JWKSURL)
	}

	path := r.URL.Path
	switch {
	case isAuthPath(path):
		redirectURI := r.URL.Query().Get("redirect_uri")
		if valid && redirectURI != "" {
			if g.reg.IsRedirectAllowed(t.ID, redirectURI) {
				return Decision{Kind: RedirectExternal, Tenant: t, Subject: subject,
					Location: AppendToken(redirectURI, raw)}
			}
			return Decision{Kind: RedirectError, Code: autherr.InvalidRedirectURI, Tenant: t,
				Location: autherr.RedirectURL(autherr.InvalidRedirectURI, "")}
		}
		if redirectURI != "" && !g.reg.IsRedirectAllowed(t.ID, redirectURI) {
			return Decision{Kind: RedirectError, Code: autherr.InvalidRedirectURI, Tenant: t,
				Location: autherr.RedirectURL(autherr.InvalidRedirectURI, "")}
		}
		return Decision{Kind: Continue, Tenant: t, Subject: subject, DropToken: hasToken && !valid}

	case isPublicPath(path):
		return Decision{Kind: Continue, Tenant: t, Subject: subject}

	default: // protected application path
		if !valid {
			loc := "/auth/login?" + url.Values{
				"callbackUrl": {requestTarget(r)},
				"tenant_id":   {t.ID},
			}.Encode()
			return Decision{Kind: RedirectToLogin, Tenant: t, Location: loc, DropToken: hasToken}
		}
		return Decision{Kind: Continue, Tenant: t, Subject: subject}
	}
}

// AppendToken adds the SSO hand-off parameters to an allow-listed
// redirect target.
func AppendToken(redirectURI, token string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	q.Set("access_token", token)
	q.Set("token_type", "Bearer")
	u.RawQuery = q.Encode()
	return u.String()
}

func cookieToken(r *http.Request, tenantID string) (string, bool) {
	c, err := r.Cookie("auth_token_" + tenantID)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// requestTarget preserves the originally requested path and query so the
// user lands back on their intended destination post-login.
func requestTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}
