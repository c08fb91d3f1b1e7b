package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMinimalConfigDefaultsEncoding(t *testing.T) {
	cfgPath := writeConfig(t, `
device:
  path: ""
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Device.Encoding != "ascii" {
		t.Fatalf("expected default encoding ascii, got %q", cfg.Device.Encoding)
	}
	if cfg.HasKeyOverrides() {
		t.Fatalf("expected no key overrides for a minimal config")
	}
}

func TestLoadResolvesKeyFilesRelativeToConfig(t *testing.T) {
	tmp := t.TempDir()
	for _, name := range []string{"auth_enc.hex", "auth_mac.hex", "sess_enc.hex", "sess_mac.hex"} {
		if err := os.WriteFile(filepath.Join(tmp, name), []byte(strings.Repeat("00", 16)+"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
device:
  encoding: ascii
keys:
  auth_enc_key_file: auth_enc.hex
  auth_mac_key_file: auth_mac.hex
  sess_enc_key_file: sess_enc.hex
  sess_mac_key_file: sess_mac.hex
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.HasKeyOverrides() {
		t.Fatalf("expected key overrides to be detected")
	}
	want := filepath.Join(tmp, "auth_enc.hex")
	if cfg.Keys.AuthEncKeyFile != want {
		t.Fatalf("expected resolved path %q, got %q", want, cfg.Keys.AuthEncKeyFile)
	}
}

func TestLoadFailsWhenOneKeyFileMissingAmongSet(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "auth_enc.hex"), []byte(strings.Repeat("00", 16)+"\n"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}

	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
device:
  encoding: ascii
keys:
  auth_enc_key_file: auth_enc.hex
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "config.keys.auth_mac_key_file is required") {
		t.Fatalf("expected missing auth_mac_key_file error, got %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	cfgPath := writeConfig(t, `
device:
  encoding: ascii
bogus_field: true
`)

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}
