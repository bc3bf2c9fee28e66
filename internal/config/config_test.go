package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_MIGRATE",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL_TRIAGE",
		"BACKEND_TIMEOUT_SECONDS", "BACKEND_FALLBACK",
		"REDIS_ADDR", "CACHE_TTL_MINUTES", "POSTGRES_NOTIFY_CHANNEL", "LEXICON_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Port != "8080" || cfg.Database.MaxOpenConns != 10 || !cfg.Database.Migrate {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Backend.Model != "gpt-4o-mini" || cfg.Backend.Timeout != 20*time.Second || !cfg.Backend.Fallback {
		t.Errorf("backend defaults = %+v", cfg.Backend)
	}
	if cfg.Cache.TTL != time.Hour || cfg.Notify.Channel != "advisories" {
		t.Errorf("cache/notify defaults = %+v %+v", cfg.Cache, cfg.Notify)
	}
	if cfg.BackendEnabled() {
		t.Error("backend enabled without a key")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BACKEND_FALLBACK", "0")
	t.Setenv("REDIS_ADDR", "redis://cache:6379")
	t.Setenv("CACHE_TTL_MINUTES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Port != "9000" || cfg.Database.Migrate || cfg.Backend.Fallback {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Cache.RedisAddr != "cache:6379" || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.BackendEnabled() {
		t.Error("backend should be enabled")
	}
}

func TestBackendTimeoutClamped(t *testing.T) {
	tests := []struct {
		env  string
		want time.Duration
	}{
		{"5", 10 * time.Second},
		{"15", 15 * time.Second},
		{"120", 30 * time.Second},
		{"abc", 20 * time.Second},
	}
	for _, tt := range tests {
		clearEnv(t)
		t.Setenv("BACKEND_TIMEOUT_SECONDS", tt.env)
		cfg, _ := Load()
		if cfg.Backend.Timeout != tt.want {
			t.Errorf("BACKEND_TIMEOUT_SECONDS=%s: timeout = %v, want %v", tt.env, cfg.Backend.Timeout, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok rules only", Config{Database: DatabaseConfig{URL: "postgres://x"}, Backend: BackendConfig{Fallback: true}}, false},
		{"missing db", Config{Backend: BackendConfig{Fallback: true}}, true},
		{"no fallback no key", Config{Database: DatabaseConfig{URL: "postgres://x"}}, true},
		{"no fallback with key", Config{Database: DatabaseConfig{URL: "postgres://x"}, Backend: BackendConfig{APIKey: "k"}}, false},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
