package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
}

func TestLoadOverlaysFileOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"port": 9999, "source_name": "acme"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9999 || cfg.SourceName != "acme" {
		t.Fatalf("overlay failed: %+v", cfg)
	}
	if cfg.ArtifactExt != Default().ArtifactExt {
		t.Fatalf("expected untouched fields to keep their default, got %+v", cfg)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults for missing file, got %+v", cfg)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

func TestValidateRejectsBadErrorRate(t *testing.T) {
	cfg := Default()
	cfg.ErrorRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range error rate")
	}
}
