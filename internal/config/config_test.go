package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"PORT", "SESSION_TTL_HOURS", "LOGIN_RATE_LIMIT_BURST", "NOTIFY_ENABLED"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" || cfg.SessionTTL != 8*time.Hour || cfg.LoginRateLimitBurst != 5 || !cfg.NotifyEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("SESSION_TTL_HOURS", "")
	os.Unsetenv("SESSION_TTL_HOURS")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SESSION_TTL_HOURS=2\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	cfg := Load()
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected ttl from .env, got %s", cfg.SessionTTL)
	}
	os.Unsetenv("SESSION_TTL_HOURS")
}

func TestReadHelpersFallBack(t *testing.T) {
	t.Setenv("HR_TEST_INT", "abc")
	t.Setenv("HR_TEST_BOOL", "maybe")
	if readInt("HR_TEST_INT", 7) != 7 {
		t.Fatalf("expected fallback int")
	}
	if readBool("HR_TEST_BOOL", true) != true {
		t.Fatalf("expected fallback bool")
	}
	if readDurationSeconds("HR_TEST_MISSING", 0) != 0 {
		t.Fatalf("expected zero duration")
	}
	t.Setenv("HR_TEST_LIST", " 10.0.0.0/8, ,192.168.1.5 ")
	if got := readList("HR_TEST_LIST"); len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.168.1.5" {
		t.Fatalf("unexpected list %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "json")
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("unexpected level %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", logger.Formatter)
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	content := "server: ${HR_TEST_HOST}/\ntimeout_seconds: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	t.Setenv("HR_TEST_HOST", "https://hr.example.org")
	t.Setenv("HRCTL_SERVER", "")
	t.Setenv("HRCTL_TOKEN_DB", "")

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.Server != "https://hr.example.org/" || profile.Timeout() != 3*time.Second {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.TokenDB != filepath.Join(dir, "session.db") {
		t.Fatalf("unexpected token db %q", profile.TokenDB)
	}

	t.Setenv("HRCTL_SERVER", "http://override:9000")
	profile, err = LoadProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.Server != "http://override:9000" {
		t.Fatalf("env override ignored: %q", profile.Server)
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	t.Setenv("HRCTL_SERVER", "")
	t.Setenv("HRCTL_TOKEN_DB", "")
	profile, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing profile should not fail: %v", err)
	}
	if profile.Server != "http://localhost:8080" || profile.Timeout() != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", profile)
	}
}

func TestLoadProfileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+): switch to dir and restore the
// previous working directory when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
