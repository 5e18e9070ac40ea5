package gate

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"gatehouse/pkg/autherr"
	"gatehouse/pkg/config"
	"gatehouse/pkg/ratelimit"
	"gatehouse/pkg/tenants"
	"gatehouse/pkg/tokens"
)

func makeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".c2ln"
}

func validJWT(t *testing.T) string {
	return makeJWT(t, map[string]any{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
}

func expiredJWT(t *testing.T) string {
	return makeJWT(t, map[string]any{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})
}

func gateTenant(id string) tenants.TenantConfig {
	return tenants.TenantConfig{
		ID:                  id,
		Name:                "Test App",
		ApplicationURL:      "https://app.example",
		AllowedRedirectURLs: []string{"https://partner.example/callback"},
		AuthMethods:         []tenants.AuthMethod{tenants.MethodPassword},
		RateLimit:           ratelimit.Policy{MaxAttempts: 100, Window: time.Minute, BlockDuration: time.Minute},
	}
}

func newTestGate(t *testing.T, extra ...tenants.TenantConfig) *Gate {
	t.Helper()
	reg := tenants.NewRegistry(ratelimit.NewMemoryStore())
	for _, tc := range append([]tenants.TenantConfig{gateTenant("t1")}, extra...) {
		if err := reg.Register(tc); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	intro := tokens.NewIntrospector("", "")
	return New(reg, intro, config.Config{DefaultTenantID: "t1"}, zap.NewNop().Sugar())
}

func withToken(r *http.Request, tenantID, raw string) *http.Request {
	r.AddCookie(&http.Cookie{Name: "auth_token_" + tenantID, Value: raw})
	return r
}

func TestEvaluateUnknownTenant(t *testing.T) {
	g := newTestGate(t)
	r := httptest.NewRequest(http.MethodGet, "/dashboard?tenant_id=nope", nil)
	d := g.Evaluate(r)
	if d.Kind != RedirectError {
		t.Fatalf("kind = %v, want RedirectError", d.Kind)
	}
	if !strings.Contains(d.Location, "error="+string(autherr.InvalidTenant)) {
		t.Fatalf("location = %q", d.Location)
	}
}

func TestEvaluateProtectedWithoutToken(t *testing.T) {
	g := newTestGate(t)
	r := httptest.NewRequest(http.MethodGet, "/dashboard?view=week", nil)
	d := g.Evaluate(r)
	if d.Kind != RedirectToLogin {
		t.Fatalf("kind = %v, want RedirectToLogin", d.Kind)
	}
	u, err := url.Parse(d.Location)
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if u.Path != "/auth/login" {
		t.Fatalf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("callbackUrl") != "/dashboard?view=week" {
		t.Errorf("callbackUrl = %q, want the original path and query", q.Get("callbackUrl"))
	}
	if q.Get("tenant_id") != "t1" {
		t.Errorf("tenant_id = %q", q.Get("tenant_id"))
	}
	if d.DropToken {
		t.Error("no token present, nothing to drop")
	}
}

func TestEvaluateProtectedWithValidToken(t *testing.T) {
	g := newTestGate(t)
	r := withToken(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "t1", validJWT(t))
	d := g.Evaluate(r)
	if d.Kind != Continue {
		t.Fatalf("kind = %v, want Continue", d.Kind)
	}
	if d.Subject != "user-1" {
		t.Errorf("subject = %q", d.Subject)
	}
}

func TestEvaluateProtectedWithExpiredToken(t *testing.T) {
	g := newTestGate(t)
	r := withToken(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "t1", expiredJWT(t))
	d := g.Evaluate(r)
	if d.Kind != RedirectToLogin {
		t.Fatalf("kind = %v, want RedirectToLogin", d.Kind)
	}
	if !d.DropToken {
		t.Error("expired token should be marked for removal")
	}
}

func TestEvaluateAuthPathSSOHandoff(t *testing.T) {
	g := newTestGate(t)
	raw := validJWT(t)
	target := "/auth/login?redirect_uri=" + url.QueryEscape("https://partner.example/callback?state=abc")
	r := withToken(httptest.NewRequest(http.MethodGet, target, nil), "t1", raw)
	d := g.Evaluate(r)
	if d.Kind != RedirectExternal {
		t.Fatalf("kind = %v, want RedirectExternal", d.Kind)
	}
	u, err := url.Parse(d.Location)
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := u.Query()
	if q.Get("access_token") != raw {
		t.Error("hand-off location must carry the access token")
	}
	if q.Get("token_type") != "Bearer" {
		t.Errorf("token_type = %q", q.Get("token_type"))
	}
	if q.Get("state") != "abc" {
		t.Error("existing query parameters must survive the hand-off")
	}
}

func TestEvaluateAuthPathDisallowedRedirect(t *testing.T) {
	g := newTestGate(t)
	for _, tok := range []string{"", validJWT(t)} {
		target := "/auth/login?redirect_uri=" + url.QueryEscape("https://evil.example/steal")
		r := httptest.NewRequest(http.MethodGet, target, nil)
		if tok != "" {
			r = withToken(r, "t1", tok)
		}
		d := g.Evaluate(r)
		if d.Kind != RedirectError {
			t.Fatalf("kind = %v, want RedirectError", d.Kind)
		}
		if d.Code != autherr.InvalidRedirectURI {
			t.Fatalf("code = %q", d.Code)
		}
		if strings.Contains(d.Location, "evil.example") {
			t.Error("error redirect must not echo the rejected target")
		}
	}
}

func TestEvaluateAuthPathWithoutTokenContinues(t *testing.T) {
	g := newTestGate(t)
	d := g.Evaluate(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if d.Kind != Continue {
		t.Fatalf("kind = %v, want Continue", d.Kind)
	}
}

func TestEvaluatePublicPath(t *testing.T) {
	g := newTestGate(t)
	for _, path := range []string{"/", "/auth/error?error=auth_failed"} {
		d := g.Evaluate(httptest.NewRequest(http.MethodGet, path, nil))
		if d.Kind != Continue {
			t.Fatalf("%s: kind = %v, want Continue", path, d.Kind)
		}
	}
}

func TestEvaluateRateLimit(t *testing.T) {
	strict := gateTenant("strict")
	strict.RateLimit = ratelimit.Policy{MaxAttempts: 2, Window: time.Minute, BlockDuration: 5 * time.Minute}
	g := newTestGate(t, strict)

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/?tenant_id=strict", nil)
		r.RemoteAddr = "198.51.100.7:1234"
		if d := g.Evaluate(r); d.Kind != Continue {
			t.Fatalf("attempt %d: kind = %v", i+1, d.Kind)
		}
	}
	r := httptest.NewRequest(http.MethodGet, "/?tenant_id=strict", nil)
	r.RemoteAddr = "198.51.100.7:1234"
	d := g.Evaluate(r)
	if d.Kind != Reject || d.Status != http.StatusTooManyRequests {
		t.Fatalf("kind = %v status = %d, want Reject 429", d.Kind, d.Status)
	}
	if d.RetryAfter.IsZero() {
		t.Error("rate-limit rejection must carry RetryAfter")
	}

	// A different address is not affected.
	other := httptest.NewRequest(http.MethodGet, "/?tenant_id=strict", nil)
	other.RemoteAddr = "198.51.100.8:1234"
	if d := g.Evaluate(other); d.Kind != Reject && d.Kind != Continue {
		t.Fatalf("kind = %v", d.Kind)
	} else if d.Kind == Reject {
		t.Fatal("another address must not share the counter")
	}
}

func TestEvaluateCSRF(t *testing.T) {
	g := newTestGate(t)

	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	d := g.Evaluate(r)
	if d.Kind != Reject || d.Code != autherr.CSRFMismatch {
		t.Fatalf("missing csrf: kind = %v code = %q", d.Kind, d.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "abc"})
	r.Header.Set("X-CSRF-Token", "wrong")
	if d := g.Evaluate(r); d.Kind != Reject || d.Code != autherr.CSRFMismatch {
		t.Fatalf("mismatched csrf: kind = %v code = %q", d.Kind, d.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "abc"})
	r.Header.Set("X-CSRF-Token", "abc")
	if d := g.Evaluate(r); d.Kind == Reject {
		t.Fatalf("matching csrf rejected: code = %q", d.Code)
	}

	// Safe methods skip the check.
	r = httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	if d := g.Evaluate(r); d.Kind == Reject {
		t.Fatal("GET must not require csrf")
	}
}

func TestEvaluateIPBlacklist(t *testing.T) {
	blocked := gateTenant("blocked")
	blocked.IPBlacklist = []string{"203.0.113.9"}
	g := newTestGate(t, blocked)

	r := httptest.NewRequest(http.MethodGet, "/?tenant_id=blocked", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	d := g.Evaluate(r)
	if d.Kind != Reject || d.Status != http.StatusForbidden || d.Code != autherr.AccessDenied {
		t.Fatalf("kind = %v status = %d code = %q", d.Kind, d.Status, d.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	if got := ClientIP(r); got != "192.0.2.1" {
		t.Errorf("ClientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.5" {
		t.Errorf("ClientIP with XFF = %q, want first hop", got)
	}
}

func TestResolveTenantIDPrecedence(t *testing.T) {
	g := newTestGate(t)
	r := httptest.NewRequest(http.MethodGet, "/?tenant_id=query&client_id=legacy", nil)
	r.Header.Set("X-Tenant-ID", "header")
	if got := g.ResolveTenantID(r); got != "header" {
		t.Errorf("header should win, got %q", got)
	}
	r.Header.Del("X-Tenant-ID")
	if got := g.ResolveTenantID(r); got != "query" {
		t.Errorf("tenant_id should beat client_id, got %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/?client_id=legacy", nil)
	if got := g.ResolveTenantID(r); got != "legacy" {
		t.Errorf("client_id fallback, got %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := g.ResolveTenantID(r); got != "t1" {
		t.Errorf("default fallback, got %q", got)
	}
}
