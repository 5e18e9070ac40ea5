// pkg/tenants/registry.go
package tenants

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"gatehouse/pkg/ratelimit"
)

var ErrDuplicateTenant = errors.New("duplicate tenant id")

// Registry holds all tenant configurations for the process lifetime.
// Register is only called during startup; after that every method is a
// read against an effectively immutable map, so lookups take no lock.
type Registry struct {
	mu      sync.Mutex // guards Register during startup only
	byID    map[string]TenantConfig
	limiter ratelimit.Store
}

func NewRegistry(limiter ratelimit.Store) *Registry {
	return &Registry{byID: map[string]TenantConfig{}, limiter: limiter}
}

// Register adds a tenant. A duplicate id is a configuration error the
// caller must treat as fatal; the registry never serves traffic with an
// inconsistent tenant set.
func (r *Registry) Register(cfg TenantConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[cfg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTenant, cfg.ID)
	}
	r.byID[cfg.ID] = cfg
	return nil
}

func (r *Registry) Get(tenantID string) (TenantConfig, bool) {
	t, ok := r.byID[tenantID]
	return t, ok
}

func (r *Registry) All() []TenantConfig {
	out := make([]TenantConfig, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}

// IsRedirectAllowed reports whether rawURL may receive a token for the
// tenant. The URL's origin must exactly match the origin of an
// allow-listed entry and its path must extend that entry's path; a bare
// origin entry matches any path under it. Malformed URLs on either side
// never match.
func (r *Registry) IsRedirectAllowed(tenantID, rawURL string) bool {
	t, ok := r.byID[tenantID]
	if !ok {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	for _, allowed := range t.AllowedRedirectURLs {
		a, err := url.Parse(allowed)
		if err != nil || a.Scheme == "" || a.Host == "" {
			continue
		}
		if a.Scheme != u.Scheme || a.Host != u.Host {
			continue
		}
		if a.Path == "" || a.Path == "/" || strings.HasPrefix(u.Path, a.Path) {
			return true
		}
	}
	return false
}

func (r *Registry) IsOriginAllowed(tenantID, origin string) bool {
	t, ok := r.byID[tenantID]
	if !ok {
		return false
	}
	for _, o := range t.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (r *Registry) SupportsMethod(tenantID string, m AuthMethod) bool {
	t, ok := r.byID[tenantID]
	return ok && t.SupportsMethod(m)
}

// IsIPAllowed applies the tenant's IP policy: a configured whitelist is
// authoritative; otherwise a blacklist excludes members; otherwise allow.
func (r *Registry) IsIPAllowed(tenantID, ip string) bool {
	t, ok := r.byID[tenantID]
	if !ok {
		return false
	}
	if len(t.IPWhitelist) > 0 {
		for _, w := range t.IPWhitelist {
			if w == ip {
				return true
			}
		}
		return false
	}
	for _, b := range t.IPBlacklist {
		if b == ip {
			return false
		}
	}
	return true
}

// CheckRateLimit consumes one attempt for (tenant, identifier) under the
// tenant's policy. Unknown tenants are always denied.
func (r *Registry) CheckRateLimit(ctx context.Context, tenantID, identifier string) (ratelimit.Result, error) {
	t, ok := r.byID[tenantID]
	if !ok {
		return ratelimit.Result{Allowed: false}, nil
	}
	return r.limiter.Check(ctx, t.ID, identifier, t.RateLimit)
}
