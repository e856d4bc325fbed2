package config

import (
	"strings"
	"testing"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend struct {
	data map[string]any
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *mapBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }
func (m *mapBackend) Delete(key string) error          { delete(m.data, key); return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WISHWELL_API_TOKEN", "test-token")

	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Enrichment.PollInterval != "500ms" {
		t.Errorf("PollInterval = %q, want 500ms", cfg.Enrichment.PollInterval)
	}
	if cfg.Enrichment.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Enrichment.MaxAttempts)
	}
	if cfg.Enrichment.FetchTimeout != "10s" {
		t.Errorf("FetchTimeout = %q, want 10s", cfg.Enrichment.FetchTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WISHWELL_API_TOKEN", "test-token")

	b := &mapBackend{data: map[string]any{
		"server.port":              5000,
		"enrichment.webhook_url":   "https://hooks.example/enrich",
		"enrichment.poll_interval": "1s",
	}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Enrichment.WebhookURL != "https://hooks.example/enrich" {
		t.Errorf("WebhookURL = %q", cfg.Enrichment.WebhookURL)
	}
	if cfg.Enrichment.PollInterval != "1s" {
		t.Errorf("PollInterval = %q, want 1s", cfg.Enrichment.PollInterval)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("WISHWELL_API_TOKEN", "test-token")
	t.Setenv("WISHWELL_SERVER_PORT", "6000")

	b := &mapBackend{data: map[string]any{"server.port": 5000}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want env override 6000", cfg.Server.Port)
	}
}

func TestMissingToken(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(&mapBackend{data: map[string]any{}})
	if err == nil {
		t.Fatal("expected error for missing API token, got nil")
	}
	if !strings.Contains(err.Error(), "WISHWELL_API_TOKEN") {
		t.Errorf("error = %q, want it to name the env var", err.Error())
	}
}

// Secrets never pass through the file backend; they only arrive via env.
func TestSecretNotReadFromBackend(t *testing.T) {
	clearEnv(t)

	b := &mapBackend{data: map[string]any{"api.token": "leaked"}}
	_, err := loadWith(b)
	if err == nil {
		t.Fatal("expected missing-token error when only the backend has it")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.Token = "super-secret"

	for _, info := range ShowAll(cfg) {
		if info.Key == "api.token" {
			t.Error("ShowAll exposed api.token")
		}
		if strings.Contains(info.Value, "super-secret") {
			t.Errorf("ShowAll leaked the token via %s", info.Key)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	if len(keys) == 0 {
		t.Fatal("no valid keys")
	}
	for _, k := range keys {
		if k == "api.token" {
			t.Error("secret key listed as settable")
		}
	}
}
