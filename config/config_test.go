package config

import (
	"os"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `app:
  name: "TestApp"
  version: "1.0"
api:
  base_url: "https://api.bitget.com"
  rate_limit:
    requests_per_second: 5
    burst_size: 10
etl:
  page_size: 500
  window_minutes: 10
  lookback_minutes: 10
bronze:
  dir: "data/bronze"
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BITGET_AFFILIATE_IDS", "")

	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.ETL.PageSize != 500 {
		t.Errorf("unexpected page size: %d", cfg.ETL.PageSize)
	}
	if cfg.ETL.CheckpointDir != "data/state" {
		t.Errorf("checkpoint dir default not applied: %s", cfg.ETL.CheckpointDir)
	}
}

func TestLoadConfigAffiliatesFromEnv(t *testing.T) {
	t.Setenv("BITGET_AFFILIATE_IDS", "A1, A2")
	t.Setenv("BITGET_AFFILIATE_A1_NAME", "First")
	t.Setenv("BITGET_AFFILIATE_A1_API_KEY", "k1")
	t.Setenv("BITGET_AFFILIATE_A1_API_SECRET", "s1")
	t.Setenv("BITGET_AFFILIATE_A1_API_PASSPHRASE", "p1")
	t.Setenv("BITGET_AFFILIATE_A2_API_KEY", "k2")
	t.Setenv("BITGET_AFFILIATE_A2_API_SECRET", "s2")
	t.Setenv("BITGET_AFFILIATE_A2_API_PASSPHRASE", "p2")

	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Affiliates) != 2 {
		t.Fatalf("expected 2 affiliates, got %d", len(cfg.Affiliates))
	}
	if cfg.Affiliates[0].Name != "First" {
		t.Errorf("unexpected name: %s", cfg.Affiliates[0].Name)
	}
	// Name falls back to a derived value when unset.
	if cfg.Affiliates[1].Name != "Affiliate A2" {
		t.Errorf("unexpected fallback name: %s", cfg.Affiliates[1].Name)
	}
}

func TestLoadConfigIncompleteCredentials(t *testing.T) {
	t.Setenv("BITGET_AFFILIATE_IDS", "A3")
	t.Setenv("BITGET_AFFILIATE_A3_API_KEY", "k3")
	t.Setenv("BITGET_AFFILIATE_A3_API_SECRET", "")
	t.Setenv("BITGET_AFFILIATE_A3_API_PASSPHRASE", "p3")

	path := writeTempConfig(t)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for incomplete affiliate credentials")
	}
}

func TestLoadConfigBaseURLOverride(t *testing.T) {
	t.Setenv("BITGET_AFFILIATE_IDS", "")
	t.Setenv("BITGET_BASE_URL", "https://api.example.com")

	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("env override not applied: %s", cfg.API.BaseURL)
	}
}
