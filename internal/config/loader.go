package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	configDirName  = ".config/ember"
	configFileName = "config.json"
)

// Load reads configuration from the default location
// (~/.config/ember/config.json), falling back to Default() if the file is
// absent; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from path, or the default location when
// path is empty. A file that fails to parse yields Default() together
// with the parse error, so the caller can report it and keep running.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, configDirName, configFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return Default(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "ember")
	}
	return filepath.Join(os.TempDir(), "ember-cache")
}
