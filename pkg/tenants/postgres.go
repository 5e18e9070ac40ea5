// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gatehouse/pkg/ratelimit"
)

// EnsureSchema creates the tenants table if missing. Safe to call
// repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id uuid PRIMARY KEY,
  name text NOT NULL DEFAULT '',
  application_url text NOT NULL DEFAULT '',
  allowed_redirect_urls text[] NOT NULL DEFAULT '{}',
  allowed_origins text[] NOT NULL DEFAULT '{}',
  auth_methods text[] NOT NULL DEFAULT '{password}',
  access_token_ttl_sec int NOT NULL DEFAULT 3600,
  refresh_token_ttl_sec int NOT NULL DEFAULT 2592000,
  rotate_refresh_token boolean NOT NULL DEFAULT true,
  max_attempts int NOT NULL DEFAULT 5,
  window_sec int NOT NULL DEFAULT 300,
  block_sec int NOT NULL DEFAULT 900,
  ip_whitelist text[] NOT NULL DEFAULT '{}',
  ip_blacklist text[] NOT NULL DEFAULT '{}',
  oauth_issuer text NOT NULL DEFAULT '',
  jwks_url text NOT NULL DEFAULT '',
  access_policy text NOT NULL DEFAULT '',
  theme jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

// SeedFromEnv upserts tenants from the TENANT_SEED_JSON payload so a
// fresh database comes up with a usable tenant set.
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, seedJSON string) error {
	if seedJSON == "" {
		return nil
	}
	cfgs, err := ParseSeedJSON(seedJSON)
	if err != nil {
		return err
	}
	for _, t := range cfgs {
		theme, _ := json.Marshal(t.Theme)
		methods := make([]string, len(t.AuthMethods))
		for i, m := range t.AuthMethods {
			methods[i] = string(m)
		}
		_, err := dbPool.Exec(ctx, `
INSERT INTO tenants (id, name, application_url, allowed_redirect_urls, allowed_origins, auth_methods,
  access_token_ttl_sec, refresh_token_ttl_sec, rotate_refresh_token,
  max_attempts, window_sec, block_sec, ip_whitelist, ip_blacklist,
  oauth_issuer, jwks_url, access_policy, theme)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, application_url=EXCLUDED.application_url,
  allowed_redirect_urls=EXCLUDED.allowed_redirect_urls, allowed_origins=EXCLUDED.allowed_origins,
  auth_methods=EXCLUDED.auth_methods, access_token_ttl_sec=EXCLUDED.access_token_ttl_sec,
  refresh_token_ttl_sec=EXCLUDED.refresh_token_ttl_sec, rotate_refresh_token=EXCLUDED.rotate_refresh_token,
  max_attempts=EXCLUDED.max_attempts, window_sec=EXCLUDED.window_sec, block_sec=EXCLUDED.block_sec,
  ip_whitelist=EXCLUDED.ip_whitelist, ip_blacklist=EXCLUDED.ip_blacklist,
  oauth_issuer=EXCLUDED.oauth_issuer, jwks_url=EXCLUDED.jwks_url,
  access_policy=EXCLUDED.access_policy, theme=EXCLUDED.theme, updated_at=NOW()`,
			t.ID, t.Name, t.ApplicationURL, t.AllowedRedirectURLs, t.AllowedOrigins, methods,
			int(t.Tokens.AccessTokenTTL.Seconds()), int(t.Tokens.RefreshTokenTTL.Seconds()), t.Tokens.RotateRefreshToken,
			t.RateLimit.MaxAttempts, int(t.RateLimit.Window.Seconds()), int(t.RateLimit.BlockDuration.Seconds()),
			t.IPWhitelist, t.IPBlacklist, t.OAuthIssuer, t.JWKSURL, t.AccessPolicy, theme)
		if err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

// LoadAll reads every tenant row. The registry is populated once at
// startup; configs stay immutable in-process afterwards.
func LoadAll(ctx context.Context, dbPool *pgxpool.Pool, log *zap.SugaredLogger) ([]TenantConfig, error) {
	rows, err := dbPool.Query(ctx, `
SELECT id, name, application_url, allowed_redirect_urls, allowed_origins, auth_methods,
  access_token_ttl_sec, refresh_token_ttl_sec, rotate_refresh_token,
  max_attempts, window_sec, block_sec, ip_whitelist, ip_blacklist,
  oauth_issuer, jwks_url, access_policy, theme
FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TenantConfig
	for rows.Next() {
		var t TenantConfig
		var methods []string
		var accessSec, refreshSec, maxAttempts, windowSec, blockSec int
		var themeB []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.ApplicationURL, &t.AllowedRedirectURLs, &t.AllowedOrigins, &methods,
			&accessSec, &refreshSec, &t.Tokens.RotateRefreshToken,
			&maxAttempts, &windowSec, &blockSec, &t.IPWhitelist, &t.IPBlacklist,
			&t.OAuthIssuer, &t.JWKSURL, &t.AccessPolicy, &themeB); err != nil {
			return nil, err
		}
		for _, m := range methods {
			t.AuthMethods = append(t.AuthMethods, AuthMethod(m))
		}
		t.Tokens.AccessTokenTTL = time.Duration(accessSec) * time.Second
		t.Tokens.RefreshTokenTTL = time.Duration(refreshSec) * time.Second
		t.RateLimit = ratelimit.Policy{
			MaxAttempts:   maxAttempts,
			Window:        time.Duration(windowSec) * time.Second,
			BlockDuration: time.Duration(blockSec) * time.Second,
		}
		if len(themeB) > 0 {
			_ = json.Unmarshal(themeB, &t.Theme)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Infow("tenants loaded", "count", len(out))
	return out, nil
}
