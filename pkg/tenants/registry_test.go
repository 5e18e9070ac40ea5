package tenants

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatehouse/pkg/ratelimit"
)

func testTenant(id string) TenantConfig {
	return TenantConfig{
		ID:             id,
		Name:           "Test App",
		ApplicationURL: "https://app.example",
		AllowedRedirectURLs: []string{
			"https://partner.example/callback",
			"https://other.example",
		},
		AllowedOrigins: []string{"https://app.example"},
		AuthMethods:    []AuthMethod{MethodPassword, MethodGoogle},
		RateLimit:      ratelimit.Policy{MaxAttempts: 3, Window: time.Minute, BlockDuration: 5 * time.Minute},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(ratelimit.NewMemoryStore())
	if err := reg.Register(testTenant("t1")); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Register(testTenant("t1"))
	if !errors.Is(err, ErrDuplicateTenant) {
		t.Fatalf("want ErrDuplicateTenant, got %v", err)
	}
}

func TestIsRedirectAllowed(t *testing.T) {
	reg := newTestRegistry(t)
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"exact match", "https://partner.example/callback", true},
		{"path extension", "https://partner.example/callback/done", true},
		{"path prefix only, not extension", "https://partner.example/call", false},
		{"different path", "https://partner.example/other", false},
		{"scheme change", "http://partner.example/callback", false},
		{"port change", "https://partner.example:8443/callback", false},
		{"different host", "https://evil.example/callback", false},
		{"bare origin entry matches any path", "https://other.example/anything/deep", true},
		{"bare origin entry root", "https://other.example/", true},
		{"malformed url", "://not a url", false},
		{"relative url", "/callback", false},
		{"unknown tenant", "https://partner.example/callback", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tenant := "t1"
			if tc.name == "unknown tenant" {
				tenant = "nope"
			}
			if got := reg.IsRedirectAllowed(tenant, tc.url); got != tc.want {
				t.Errorf("IsRedirectAllowed(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	reg := newTestRegistry(t)
	if !reg.IsOriginAllowed("t1", "https://app.example") {
		t.Error("exact origin should be allowed")
	}
	if reg.IsOriginAllowed("t1", "https://app.example:443") {
		t.Error("origin with explicit port is not an exact match")
	}
	if reg.IsOriginAllowed("nope", "https://app.example") {
		t.Error("unknown tenant should deny")
	}
}

func TestSupportsMethod(t *testing.T) {
	reg := newTestRegistry(t)
	if !reg.SupportsMethod("t1", MethodPassword) || !reg.SupportsMethod("t1", MethodGoogle) {
		t.Error("both configured methods should be supported")
	}
	if reg.SupportsMethod("t1", AuthMethod("saml")) {
		t.Error("unconfigured method should not be supported")
	}
}

func TestIsIPAllowed(t *testing.T) {
	reg := NewRegistry(ratelimit.NewMemoryStore())
	open := testTenant("open")
	listed := testTenant("whitelisted")
	listed.IPWhitelist = []string{"10.0.0.1"}
	blocked := testTenant("blacklisted")
	blocked.IPBlacklist = []string{"10.0.0.9"}
	for _, tc := range []TenantConfig{open, listed, blocked} {
		if err := reg.Register(tc); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	if !reg.IsIPAllowed("open", "203.0.113.7") {
		t.Error("no lists configured: any ip allowed")
	}
	if !reg.IsIPAllowed("whitelisted", "10.0.0.1") || reg.IsIPAllowed("whitelisted", "10.0.0.2") {
		t.Error("whitelist must be authoritative")
	}
	if reg.IsIPAllowed("blacklisted", "10.0.0.9") || !reg.IsIPAllowed("blacklisted", "10.0.0.1") {
		t.Error("blacklist must exclude only members")
	}
	if reg.IsIPAllowed("nope", "10.0.0.1") {
		t.Error("unknown tenant should deny")
	}
}

func TestCheckRateLimitUnknownTenantDenied(t *testing.T) {
	reg := newTestRegistry(t)
	res, err := reg.CheckRateLimit(context.Background(), "nope", "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("unknown tenant must always be denied")
	}
}
