package tenants

import (
	"time"

	"gatehouse/pkg/ratelimit"
)

// AuthMethod is a login mechanism a tenant may enable.
type AuthMethod string

const (
	MethodPassword AuthMethod = "password"
	MethodGoogle   AuthMethod = "google"
)

// TokenPolicy governs lifetimes of tokens minted for a tenant.
type TokenPolicy struct {
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RotateRefreshToken bool
}

// TenantConfig is one registered application behind the gateway.
// Immutable once registered; the rate-limiter counters are the only
// runtime-mutable part of a tenant's footprint and live in the Store.
type TenantConfig struct {
	ID                  string // uuid, never changes after registration
	Name                string
	ApplicationURL      string // canonical post-login destination
	AllowedRedirectURLs []string
	AllowedOrigins      []string
	AuthMethods         []AuthMethod
	Tokens              TokenPolicy
	RateLimit           ratelimit.Policy
	IPWhitelist         []string
	IPBlacklist         []string
	OAuthIssuer         string // optional override of the default issuer
	JWKSURL             string // optional override of the default JWKS URL
	AccessPolicy        string // optional rego module, entrypoint data.gatehouse.allow
	Theme               map[string]string
}

func (t TenantConfig) SupportsMethod(m AuthMethod) bool {
	for _, am := range t.AuthMethods {
		if am == m {
			return true
		}
	}
	return false
}
