package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadFirstRunCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "famcal.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	// First run must leave a config file behind.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 0600", perm)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "famcal.yaml")

	want := &Config{
		Listen:      "0.0.0.0:9090",
		Timezone:    "America/New_York",
		RefreshCron: "*/5 * * * *",
		DataFile:    "/var/lib/famcal/data.json",
		LogLevel:    "debug",
		BasicAuth:   &BasicAuthConfig{Username: "family", Password: "secret"},
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()

	if cfg.Listen == "" || cfg.RefreshCron == "" || cfg.DataFile == "" || cfg.LogLevel == "" {
		t.Errorf("normalize left zero values: %+v", cfg)
	}
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
