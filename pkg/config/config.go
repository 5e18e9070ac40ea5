// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Public base URL of the gateway itself (used to build the OAuth
	// callback URL registered with the provider).
	BasePublicURL string

	// Tenant sources. TenantsFile (YAML) and TenantSeedJSON are static;
	// DATABASE_URL switches tenant loading to Postgres.
	TenantsFile     string
	TenantSeedJSON  string
	DefaultTenantID string

	// Upstream API that owns credential verification and token minting.
	UpstreamAPIURL  string
	UpstreamTimeout time.Duration

	// Default token verification (tenant config may override).
	Issuer  string
	JWKSURL string

	// External OAuth provider (Google).
	GoogleClientID     string
	GoogleClientSecret string

	// Federation state lifetime.
	FederationStateTTL time.Duration

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                env("GATEHOUSE_ENV", "dev"),
		HTTPAddr:           env("GATEHOUSE_HTTP_ADDR", ":8080"),
		BasePublicURL:      env("BASE_PUBLIC_URL", "http://localhost:8080"),
		TenantsFile:        env("TENANTS_FILE", ""),
		TenantSeedJSON:     env("TENANT_SEED_JSON", ""),
		DefaultTenantID:    env("DEFAULT_TENANT_ID", "default"),
		UpstreamAPIURL:     env("UPSTREAM_API_URL", ""),
		UpstreamTimeout:    envDur("UPSTREAM_TIMEOUT_SEC", 10) * time.Second,
		Issuer:             env("TOKEN_ISSUER", ""),
		JWKSURL:            env("JWKS_URL", ""),
		GoogleClientID:     env("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: env("GOOGLE_CLIENT_SECRET", ""),
		FederationStateTTL: envDur("FEDERATION_STATE_TTL_SEC", 600) * time.Second,
		RedisURL:           env("REDIS_URL", ""),
		DatabaseURL:        env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set, tenants load from file/env seed only")
	}
	if cfg.JWKSURL == "" {
		log.Println("[WARN] JWKS_URL not set, tokens are introspected without signature verification")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
