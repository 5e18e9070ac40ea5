package tenants

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const seedYAML = `
- id: acme
  name: Acme Portal
  application_url: https://acme.example
  allowed_redirect_urls:
    - https://acme.example/welcome
  allowed_origins:
    - https://acme.example
  auth_methods: [password, google]
  access_token_ttl_sec: 900
  refresh_token_ttl_sec: 86400
  rotate_refresh_token: true
  max_attempts: 10
  window_sec: 60
  block_sec: 600
  theme:
    primary: "#336699"
- id: minimal
  name: Minimal
  application_url: https://min.example
  auth_methods: [password]
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("len = %d", len(loaded))
	}

	acme := loaded[0]
	if acme.ID != "acme" || acme.Name != "Acme Portal" {
		t.Fatalf("acme = %+v", acme)
	}
	if acme.Tokens.AccessTokenTTL != 15*time.Minute {
		t.Errorf("access ttl = %v", acme.Tokens.AccessTokenTTL)
	}
	if !acme.Tokens.RotateRefreshToken {
		t.Error("rotation flag lost")
	}
	if acme.RateLimit.MaxAttempts != 10 || acme.RateLimit.Window != time.Minute || acme.RateLimit.BlockDuration != 10*time.Minute {
		t.Errorf("rate limit = %+v", acme.RateLimit)
	}
	if acme.Theme["primary"] != "#336699" {
		t.Errorf("theme = %v", acme.Theme)
	}
	if !acme.SupportsMethod(MethodGoogle) {
		t.Error("google method lost")
	}

	// Omitted policy fields take defaults.
	minimal := loaded[1]
	if minimal.Tokens.AccessTokenTTL != time.Hour {
		t.Errorf("default access ttl = %v", minimal.Tokens.AccessTokenTTL)
	}
	if minimal.RateLimit.MaxAttempts != 5 || minimal.RateLimit.Window != 5*time.Minute || minimal.RateLimit.BlockDuration != 15*time.Minute {
		t.Errorf("default rate limit = %+v", minimal.RateLimit)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file should error")
	}
}

func TestParseSeedJSON(t *testing.T) {
	loaded, err := ParseSeedJSON(`[{"id":"j1","name":"J","application_url":"https://j.example","auth_methods":["password"]}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "j1" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestSeedValidation(t *testing.T) {
	if _, err := ParseSeedJSON(`[{"name":"no id"}]`); err == nil {
		t.Fatal("missing id should error")
	}
	if _, err := ParseSeedJSON(`[{"id":"x","auth_methods":["carrier-pigeon"]}]`); err == nil {
		t.Fatal("unknown auth method should error")
	}
	if _, err := ParseSeedJSON(`{not json`); err == nil {
		t.Fatal("malformed json should error")
	}
}

func TestDefaultTenant(t *testing.T) {
	d := DefaultTenant("dev", "https://localhost:3000")
	if d.ID != "dev" || d.ApplicationURL != "https://localhost:3000" {
		t.Fatalf("default = %+v", d)
	}
	if !d.SupportsMethod(MethodPassword) || !d.SupportsMethod(MethodGoogle) {
		t.Error("dev default should enable both methods")
	}
	if d.RateLimit.MaxAttempts == 0 || d.Tokens.AccessTokenTTL == 0 {
		t.Error("dev default must carry usable policies")
	}
}
