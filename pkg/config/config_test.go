package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Env != "dev" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DefaultTenantID != "default" {
		t.Errorf("DefaultTenantID = %q", cfg.DefaultTenantID)
	}
	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("UpstreamTimeout = %v", cfg.UpstreamTimeout)
	}
	if cfg.FederationStateTTL != 10*time.Minute {
		t.Errorf("FederationStateTTL = %v", cfg.FederationStateTTL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEHOUSE_ENV", "prod")
	t.Setenv("GATEHOUSE_HTTP_ADDR", ":9090")
	t.Setenv("UPSTREAM_TIMEOUT_SEC", "3")
	t.Setenv("TOKEN_ISSUER", "https://issuer.example")

	cfg := Load()
	if cfg.Env != "prod" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Errorf("UpstreamTimeout = %v", cfg.UpstreamTimeout)
	}
	if cfg.Issuer != "https://issuer.example" {
		t.Errorf("Issuer = %q", cfg.Issuer)
	}
}
