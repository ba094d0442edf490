package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is the hrctl client configuration, read from YAML.
type Profile struct {
	Server         string `yaml:"server"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TokenDB        string `yaml:"token_db"`
	LogLevel       string `yaml:"log_level"`
}

func (p Profile) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// DefaultProfilePath is $HRCTL_PROFILE, or ~/.hrctl/profile.yaml.
func DefaultProfilePath() string {
	if path := os.Getenv("HRCTL_PROFILE"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".hrctl", "profile.yaml")
	}
	return filepath.Join(home, ".hrctl", "profile.yaml")
}

// LoadProfile reads path, expanding ${VAR} references. A missing file yields
// the defaults. HRCTL_SERVER and HRCTL_TOKEN_DB override the file.
func LoadProfile(path string) (Profile, error) {
	profile := Profile{
		Server:   "http://localhost:8080",
		LogLevel: "warn",
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return Profile{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Profile{}, err
	}

	profile.Server = expandEnv(profile.Server)
	profile.TokenDB = expandEnv(profile.TokenDB)

	if server := os.Getenv("HRCTL_SERVER"); server != "" {
		profile.Server = server
	}
	if tokenDB := os.Getenv("HRCTL_TOKEN_DB"); tokenDB != "" {
		profile.TokenDB = tokenDB
	}
	if profile.TokenDB == "" {
		profile.TokenDB = filepath.Join(filepath.Dir(path), "session.db")
	}
	return profile, nil
}

func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}
