package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "journald.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadMissingPathReturnsZeroConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResolvePurposeWrapWidth() != DefaultPurposeWrapWidth {
		t.Fatalf("ResolvePurposeWrapWidth = %d, want default", cfg.ResolvePurposeWrapWidth())
	}
	if cfg.ResolvePluginGlob() != DefaultPluginGlob {
		t.Fatalf("ResolvePluginGlob = %q, want default", cfg.ResolvePluginGlob())
	}
	if !cfg.ResolvePackageCacheEnabled() {
		t.Fatalf("ResolvePackageCacheEnabled = false, want true by default")
	}
}

func TestLoadMissingFileReturnsZeroConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResolvePluginGlob() != DefaultPluginGlob {
		t.Fatalf("ResolvePluginGlob = %q, want default", cfg.ResolvePluginGlob())
	}
}

func TestLoadValidOverridesApply(t *testing.T) {
	path := writeConfig(t, `
purpose_wrap_width: 100
plugin_glob: "*.plugin"
package_cache_enabled: false
colours:
  FATAL: "1;31"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResolvePurposeWrapWidth() != 100 {
		t.Fatalf("ResolvePurposeWrapWidth = %d, want 100", cfg.ResolvePurposeWrapWidth())
	}
	if cfg.ResolvePluginGlob() != "*.plugin" {
		t.Fatalf("ResolvePluginGlob = %q, want *.plugin", cfg.ResolvePluginGlob())
	}
	if cfg.ResolvePackageCacheEnabled() {
		t.Fatalf("ResolvePackageCacheEnabled = true, want false (explicit override)")
	}
	if code, ok := cfg.ResolveColour("FATAL"); !ok || code != "1;31" {
		t.Fatalf("ResolveColour(FATAL) = (%q, %v), want (1;31, true)", code, ok)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "unknown_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected schema validation error for an unknown field")
	}
}

func TestLoadRejectsWrongType(t *testing.T) {
	path := writeConfig(t, "purpose_wrap_width: \"not a number\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected schema validation error for a wrong-typed field")
	}
}

func TestLoadRejectsBelowMinimumWrapWidth(t *testing.T) {
	path := writeConfig(t, "purpose_wrap_width: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected schema validation error for purpose_wrap_width below minimum")
	}
}

func TestLoadRejectsMalformedColourCode(t *testing.T) {
	path := writeConfig(t, "colours:\n  INFO: \"blue\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected schema validation error for a non-ANSI colour code")
	}
}
