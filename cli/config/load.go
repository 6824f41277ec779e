package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up when no path is given.
const DefaultFileName = "buildout.yaml"

// DotEnvFileName is read next to the config file for expansion fallbacks.
const DotEnvFileName = ".env"

// Load reads a YAML config file, expands environment variables, and
// unmarshals into a Config struct. Variables missing from the environment
// are looked up in a .env file beside the config file, if present.
// Relative build_dir and fs storage paths are resolved against the
// config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	dir := filepath.Dir(path)
	dotenv, err := readDotEnv(filepath.Join(dir, DotEnvFileName))
	if err != nil {
		return nil, err
	}

	expanded := ExpandEnvWith(string(data), dotenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.resolvePaths(dir)

	return &cfg, nil
}

// LoadOptional loads path, or DefaultFileName from the working directory
// when path is empty. A missing default file yields an empty config.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFileName); errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return Load(DefaultFileName)
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return values, nil
}
