// pkg/tenants/seed.go
package tenants

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gatehouse/pkg/ratelimit"
)

// seedTenant is the on-disk shape of a tenant config. Durations are
// whole seconds to keep YAML/JSON seeds portable.
type seedTenant struct {
	ID                  string            `yaml:"id" json:"id"`
	Name                string            `yaml:"name" json:"name"`
	ApplicationURL      string            `yaml:"application_url" json:"application_url"`
	AllowedRedirectURLs []string          `yaml:"allowed_redirect_urls" json:"allowed_redirect_urls"`
	AllowedOrigins      []string          `yaml:"allowed_origins" json:"allowed_origins"`
	AuthMethods         []string          `yaml:"auth_methods" json:"auth_methods"`
	AccessTokenTTLSec   int               `yaml:"access_token_ttl_sec" json:"access_token_ttl_sec"`
	RefreshTokenTTLSec  int               `yaml:"refresh_token_ttl_sec" json:"refresh_token_ttl_sec"`
	RotateRefreshToken  bool              `yaml:"rotate_refresh_token" json:"rotate_refresh_token"`
	MaxAttempts         int               `yaml:"max_attempts" json:"max_attempts"`
	WindowSec           int               `yaml:"window_sec" json:"window_sec"`
	BlockSec            int               `yaml:"block_sec" json:"block_sec"`
	IPWhitelist         []string          `yaml:"ip_whitelist" json:"ip_whitelist"`
	IPBlacklist         []string          `yaml:"ip_blacklist" json:"ip_blacklist"`
	OAuthIssuer         string            `yaml:"oauth_issuer" json:"oauth_issuer"`
	JWKSURL             string            `yaml:"jwks_url" json:"jwks_url"`
	AccessPolicy        string            `yaml:"access_policy" json:"access_policy"`
	Theme               map[string]string `yaml:"theme" json:"theme"`
}

func (s seedTenant) toConfig() (TenantConfig, error) {
	if s.ID == "" {
		return TenantConfig{}, fmt.Errorf("tenant seed: missing id")
	}
	methods := make([]AuthMethod, 0, len(s.AuthMethods))
	for _, m := range s.AuthMethods {
		switch AuthMethod(m) {
		case MethodPassword, MethodGoogle:
			methods = append(methods, AuthMethod(m))
		default:
			return TenantConfig{}, fmt.Errorf("tenant seed %s: unknown auth method %q", s.ID, m)
		}
	}
	cfg := TenantConfig{
		ID:                  s.ID,
		Name:                s.Name,
		ApplicationURL:      s.ApplicationURL,
		AllowedRedirectURLs: s.AllowedRedirectURLs,
		AllowedOrigins:      s.AllowedOrigins,
		AuthMethods:         methods,
		Tokens: TokenPolicy{
			AccessTokenTTL:     secsOr(s.AccessTokenTTLSec, 3600),
			RefreshTokenTTL:    secsOr(s.RefreshTokenTTLSec, 30*24*3600),
			RotateRefreshToken: s.RotateRefreshToken,
		},
		RateLimit: ratelimit.Policy{
			MaxAttempts:   intOr(s.MaxAttempts, 5),
			Window:        secsOr(s.WindowSec, 300),
			BlockDuration: secsOr(s.BlockSec, 900),
		},
		IPWhitelist:  s.IPWhitelist,
		IPBlacklist:  s.IPBlacklist,
		OAuthIssuer:  s.OAuthIssuer,
		JWKSURL:      s.JWKSURL,
		AccessPolicy: s.AccessPolicy,
		Theme:        s.Theme,
	}
	return cfg, nil
}

func secsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// LoadFile reads a YAML list of tenant configs.
func LoadFile(path string) ([]TenantConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenants file: %w", err)
	}
	var seeds []seedTenant
	if err := yaml.Unmarshal(b, &seeds); err != nil {
		return nil, fmt.Errorf("tenants file %s: %w", path, err)
	}
	return convert(seeds)
}

// ParseSeedJSON parses the TENANT_SEED_JSON env payload.
func ParseSeedJSON(seed string) ([]TenantConfig, error) {
	var seeds []seedTenant
	if err := json.Unmarshal([]byte(seed), &seeds); err != nil {
		return nil, fmt.Errorf("tenant seed json: %w", err)
	}
	return convert(seeds)
}

func convert(seeds []seedTenant) ([]TenantConfig, error) {
	out := make([]TenantConfig, 0, len(seeds))
	for _, s := range seeds {
		cfg, err := s.toConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// DefaultTenant is the dev fallback registered when no seed is
// configured. Its allow-list is just the application origin itself.
func DefaultTenant(id, appURL string) TenantConfig {
	return TenantConfig{
		ID:                  id,
		Name:                "Default Application",
		ApplicationURL:      appURL,
		AllowedRedirectURLs: []string{appURL},
		AllowedOrigins:      []string{appURL},
		AuthMethods:         []AuthMethod{MethodPassword, MethodGoogle},
		Tokens: TokenPolicy{
			AccessTokenTTL:     time.Hour,
			RefreshTokenTTL:    30 * 24 * time.Hour,
			RotateRefreshToken: true,
		},
		RateLimit: ratelimit.Policy{
			MaxAttempts:   5,
			Window:        5 * time.Minute,
			BlockDuration: 15 * time.Minute,
		},
	}
}
