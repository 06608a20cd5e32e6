// Package config loads and saves the client's persistent settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the client's on-disk configuration.
type Config struct {
	// Server is the default host[:port] to connect to.
	Server string `yaml:"server"`

	// DownloadDir receives downloaded files. Empty means the working directory.
	DownloadDir string `yaml:"download_dir,omitempty"`

	// InsecureSkipVerify accepts any server certificate. Self-signed server
	// deployments need this unless CAFile pins the certificate.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`

	// CAFile pins the server certificate chain.
	CAFile string `yaml:"ca_file,omitempty"`
}

// GetConfigPath returns the location of the config file.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tunevault.yaml"), nil
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveConfig writes the config file with owner-only permissions.
func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
