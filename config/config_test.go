package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Mask.MinThreshold != 3 || cfg.Mask.MaxThreshold != 12 {
		t.Errorf("unexpected threshold clamp: %v-%v", cfg.Mask.MinThreshold, cfg.Mask.MaxThreshold)
	}
	if cfg.Pipeline.PreviewMaxEdge != 800 {
		t.Errorf("preview edge = %d, want 800", cfg.Pipeline.PreviewMaxEdge)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: ":9000"
redis:
  ttl: 2h
pipeline:
  face_cache: redis
mask:
  min_threshold: 2
  erode_iterations: 1
  face_ellipse: inner_face
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != ":9000" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Redis.TTL != 2*time.Hour {
		t.Errorf("ttl = %v", cfg.Redis.TTL)
	}
	if cfg.Mask.MinThreshold != 2 || cfg.Mask.ErodeIterations != 1 || cfg.Mask.FaceEllipse != "inner_face" {
		t.Errorf("mask overrides not applied: %+v", cfg.Mask)
	}
	// 未覆盖的字段保持默认
	if cfg.Mask.DilateIterations != 4 || cfg.Mask.PoissonCoarsestEdge != 16 || cfg.Server.Mode != "debug" {
		t.Errorf("defaults lost: %+v", cfg.Mask)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  mode: release\n")
	t.Setenv("MASKKIT_MASK_MAX_THRESHOLD", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Mask.MaxThreshold != 10 {
		t.Errorf("max threshold = %v, want env override 10", cfg.Mask.MaxThreshold)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"ellipse":   "mask:\n  face_ellipse: oval\n",
		"clamp":     "mask:\n  min_threshold: 20\n",
		"cache":     "pipeline:\n  face_cache: disk\n",
		"poisson":   "mask:\n  poisson_iterations: 0\n",
		"tolerance": "mask:\n  primary_tolerance: 1.5\n",
	} {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
