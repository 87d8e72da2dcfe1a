package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "psmd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
listen: ":9090"
database: "/tmp/psmd-test.sqlite"
pool:
  token_a: USDX
  token_b: SUSDX
  label: staging
  super_admin: psm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqlwkt6z
  max_update_age: 30m
  curve:
    ssr: "1000000001547125957863212448"
    chi: "1000000000000000000000000000"
    rho: 1700000000
    max_ssr: "1000000021979553151239153020"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("listen: %q", cfg.ListenAddress)
	}
	if cfg.Pool.MaxUpdateAge.Duration != 30*time.Minute {
		t.Fatalf("max update age: %v", cfg.Pool.MaxUpdateAge.Duration)
	}
	if cfg.Pool.Curve.Rho != 1700000000 {
		t.Fatalf("rho: %d", cfg.Pool.Curve.Rho)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
pool:
  token_a: USDX
  token_b: SUSDX
  super_admin: psm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqlwkt6z
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7080" {
		t.Fatalf("default listen: %q", cfg.ListenAddress)
	}
	if cfg.Pool.Label != "main" {
		t.Fatalf("default label: %q", cfg.Pool.Label)
	}
	if cfg.Pool.MaxUpdateAge.Duration != time.Hour {
		t.Fatalf("default max update age: %v", cfg.Pool.MaxUpdateAge.Duration)
	}
	if cfg.Pool.Curve.SSR != defaultRay || cfg.Pool.Curve.Chi != defaultRay {
		t.Fatalf("default curve: %+v", cfg.Pool.Curve)
	}
}

func TestLoadRejectsMissingTokens(t *testing.T) {
	_, err := Load(writeConfig(t, `
pool:
  super_admin: psm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqlwkt6z
`))
	if err == nil || !strings.Contains(err.Error(), "token symbols") {
		t.Fatalf("expected token validation error, got %v", err)
	}
}

func TestLoadRejectsBadAdminAddress(t *testing.T) {
	_, err := Load(writeConfig(t, `
pool:
  token_a: USDX
  token_b: SUSDX
  super_admin: not-an-address
`))
	if err == nil || !strings.Contains(err.Error(), "super admin") {
		t.Fatalf("expected address validation error, got %v", err)
	}
}

func TestLoadRejectsBadRates(t *testing.T) {
	_, err := Load(writeConfig(t, `
pool:
  token_a: USDX
  token_b: SUSDX
  super_admin: psm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqlwkt6z
  curve:
    ssr: "1.05"
`))
	if err == nil || !strings.Contains(err.Error(), "curve ssr") {
		t.Fatalf("expected rate validation error, got %v", err)
	}
}

func TestDurationRejectsNonScalar(t *testing.T) {
	_, err := Load(writeConfig(t, `
pool:
  token_a: USDX
  token_b: SUSDX
  super_admin: psm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqlwkt6z
  max_update_age: [1, 2]
`))
	if err == nil {
		t.Fatalf("expected duration decode error")
	}
}
