package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	// Test default version
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	// Test that version is at least "dev" or "unknown"
	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}

	if cfg.APIURL != "http://localhost:8787" {
		t.Errorf("Expected default API URL, got '%s'", cfg.APIURL)
	}
	if cfg.Port != "8788" {
		t.Errorf("Expected port '8788', got '%s'", cfg.Port)
	}
	if cfg.RefreshEvery() != 5*time.Minute {
		t.Errorf("Expected refresh every 5m, got %v", cfg.RefreshEvery())
	}
	if cfg.Store != "sqlite" {
		t.Errorf("Expected sqlite store, got '%s'", cfg.Store)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", cfg.Timeout())
	}
	if cfg.Chrome {
		t.Error("Expected browser tap to be off by default")
	}
}

func TestLoadArgsFlags(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"--api-url", "http://api.internal:9000",
		"--port", "9999",
		"--refresh-interval", "60",
		"--store", "redis",
		"--redis-addr", "redis:6379",
		"--api-key", "test-key",
		"--debug",
	})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}

	if cfg.APIURL != "http://api.internal:9000" {
		t.Errorf("Expected API URL override, got '%s'", cfg.APIURL)
	}
	if cfg.Port != "9999" {
		t.Errorf("Expected port '9999', got '%s'", cfg.Port)
	}
	if cfg.RefreshInterval != 60 {
		t.Errorf("Expected refresh interval 60, got %d", cfg.RefreshInterval)
	}
	if cfg.Store != "redis" || cfg.RedisAddr != "redis:6379" {
		t.Errorf("Expected redis store at redis:6379, got %s at %s", cfg.Store, cfg.RedisAddr)
	}
	if cfg.APIAccessKey != "test-key" {
		t.Errorf("Expected API key 'test-key', got '%s'", cfg.APIAccessKey)
	}
	if !cfg.Debug {
		t.Error("Expected debug to be enabled")
	}
}

func TestLoadArgsEnvironment(t *testing.T) {
	t.Setenv("BIRDBRAIN_API_URL", "http://from-env:8787")
	t.Setenv("WORKER_COUNT", "4")

	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}

	if cfg.APIURL != "http://from-env:8787" {
		t.Errorf("Expected API URL from environment, got '%s'", cfg.APIURL)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("Expected worker count 4, got %d", cfg.WorkerCount)
	}
}

func TestLoadArgsRejectsUnknownStore(t *testing.T) {
	if _, err := LoadArgs([]string{"--store", "memcached"}); err == nil {
		t.Error("Expected error for unknown store")
	}
}

func TestLoadArgsRejectsZeroInterval(t *testing.T) {
	if _, err := LoadArgs([]string{"--refresh-interval", "0"}); err == nil {
		t.Error("Expected error for zero refresh interval")
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `endpoints:
  ingest: /v2/bookmarks
  hydrate: /v2/tweets/{id}/hydrate
notifications:
  language: de
  saved: "%d Tweets gespeichert"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}

	cfg, err := LoadArgs([]string{"--settings", path})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}

	s := cfg.Settings
	if s.Endpoints.Ingest != "/v2/bookmarks" {
		t.Errorf("Expected ingest override, got '%s'", s.Endpoints.Ingest)
	}
	if s.Endpoints.Incomplete != "" {
		t.Errorf("Expected incomplete path to stay empty for defaulting, got '%s'", s.Endpoints.Incomplete)
	}
	if s.Notifications.Language != "de" || s.Notifications.Saved != "%d Tweets gespeichert" {
		t.Errorf("Unexpected notifications: %+v", s.Notifications)
	}
}

func TestLoadSettingsValidation(t *testing.T) {
	tests := map[string]string{
		"relative path":  "endpoints:\n  ingest: api/ingest\n",
		"hydrate no id":  "endpoints:\n  hydrate: /api/hydrate\n",
		"malformed yaml": "endpoints: [\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("Failed to write settings: %v", err)
			}
			if _, err := LoadSettings(path); err == nil {
				t.Error("Expected settings error")
			}
		})
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing settings file")
	}

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("Expected no error without a settings file, got %v", err)
	}
	if s.Endpoints.Ingest != "" {
		t.Errorf("Expected zero settings, got %+v", s)
	}
}
