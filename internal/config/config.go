// Package config loads the YAML configuration shared by the freestyle-*
// command-line tools.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Keys   KeysConfig   `yaml:"keys,omitempty"`
}

type DeviceConfig struct {
	Path      string  `yaml:"path,omitempty"`
	ProductID *uint16 `yaml:"product_id,omitempty"`
	Encoding  string  `yaml:"encoding"`
}

// KeysConfig names the four encrypted-profile master key files. All four
// are optional: when unset the built-in placeholder sentinel keys are used
// (freestyle.SetEncryptedProfileMasterKeys is not called), which only
// works against an emulator, never a real meter.
type KeysConfig struct {
	AuthEncKeyFile string `yaml:"auth_enc_key_file,omitempty"`
	AuthMacKeyFile string `yaml:"auth_mac_key_file,omitempty"`
	SessEncKeyFile string `yaml:"sess_enc_key_file,omitempty"`
	SessMacKeyFile string `yaml:"sess_mac_key_file,omitempty"`
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	cfg := &Config{Device: DeviceConfig{Encoding: "ascii"}}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Device.Encoding) == "" {
		return fmt.Errorf("config.device.encoding is required")
	}

	keyFiles := []struct {
		field string
		path  string
	}{
		{"config.keys.auth_enc_key_file", c.Keys.AuthEncKeyFile},
		{"config.keys.auth_mac_key_file", c.Keys.AuthMacKeyFile},
		{"config.keys.sess_enc_key_file", c.Keys.SessEncKeyFile},
		{"config.keys.sess_mac_key_file", c.Keys.SessMacKeyFile},
	}
	anySet := false
	for _, kf := range keyFiles {
		if strings.TrimSpace(kf.path) != "" {
			anySet = true
		}
	}
	if !anySet {
		return nil
	}
	for _, kf := range keyFiles {
		if strings.TrimSpace(kf.path) == "" {
			return fmt.Errorf("%s is required once any key override is set", kf.field)
		}
		if err := validateReadableFile(kf.path, kf.field); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) HasKeyOverrides() bool {
	return strings.TrimSpace(c.Keys.AuthEncKeyFile) != ""
}

func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	c.Keys.AuthEncKeyFile = resolvePath(dir, c.Keys.AuthEncKeyFile)
	c.Keys.AuthMacKeyFile = resolvePath(dir, c.Keys.AuthMacKeyFile)
	c.Keys.SessEncKeyFile = resolvePath(dir, c.Keys.SessEncKeyFile)
	c.Keys.SessMacKeyFile = resolvePath(dir, c.Keys.SessMacKeyFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
