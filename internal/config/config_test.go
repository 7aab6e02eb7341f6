package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Provider.Type != "ollama" {
		t.Errorf("Provider.Type = %q", cfg.Provider.Type)
	}
	if cfg.Cache.FreshnessHours != 24 {
		t.Errorf("FreshnessHours = %d", cfg.Cache.FreshnessHours)
	}
	if cfg.Fetch.MinResults != 3 || cfg.Fetch.MinConfidence != 0.45 {
		t.Errorf("fetch thresholds = %d, %g", cfg.Fetch.MinResults, cfg.Fetch.MinConfidence)
	}
	if cfg.Session.TTLMinutes != 30 {
		t.Errorf("TTLMinutes = %d", cfg.Session.TTLMinutes)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9090"
fetch:
  allowed_hosts:
    - schemes.gov.in
    - scholarships.gov.in
  attempts: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Fetch.AllowedHosts) != 2 || cfg.Fetch.AllowedHosts[0] != "schemes.gov.in" {
		t.Errorf("AllowedHosts = %v", cfg.Fetch.AllowedHosts)
	}
	if cfg.Fetch.Attempts != 5 {
		t.Errorf("Attempts = %d", cfg.Fetch.Attempts)
	}
	// Untouched settings keep their defaults.
	if cfg.Fetch.TimeoutSecs != 5 {
		t.Errorf("TimeoutSecs = %d", cfg.Fetch.TimeoutSecs)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SAARTHI_ADDR", ":7070")
	t.Setenv("SAARTHI_PROVIDER", "openai")
	t.Setenv("SAARTHI_ALLOWED_HOSTS", "a.gov.in, b.gov.in")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Provider.Type != "openai" {
		t.Errorf("Provider.Type = %q", cfg.Provider.Type)
	}
	want := []string{"a.gov.in", "b.gov.in"}
	if len(cfg.Fetch.AllowedHosts) != 2 || cfg.Fetch.AllowedHosts[0] != want[0] || cfg.Fetch.AllowedHosts[1] != want[1] {
		t.Errorf("AllowedHosts = %v, want %v", cfg.Fetch.AllowedHosts, want)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SAARTHI_PROVIDER", "gpt-from-scratch")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for unknown provider type")
	}

	t.Setenv("SAARTHI_PROVIDER", "ollama")
	t.Setenv("SAARTHI_LOG_LEVEL", "loud")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for unknown log level")
	}
}
