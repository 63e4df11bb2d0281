package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should already validate: %v", err)
	}
}

func TestValidateClampsNegativeScrolloff(t *testing.T) {
	cfg := Default()
	cfg.Manager.Scrolloff = -3
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Manager.Scrolloff != 0 {
		t.Fatalf("Scrolloff = %d, want 0", cfg.Manager.Scrolloff)
	}
}

func TestLoadFromMissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Preview.TabSize != Default().Preview.TabSize {
		t.Fatalf("expected defaults when config file is absent")
	}
}

func TestLoadFromMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"sort":{"by":"size","reverse":true}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Sort.By != "size" || !cfg.Sort.Reverse {
		t.Fatalf("overrides not applied: %+v", cfg.Sort)
	}
	if cfg.Preview.TabSize != Default().Preview.TabSize {
		t.Fatalf("unspecified fields should keep defaults")
	}
}
