package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndResolvesPaths(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {"storage": "sqlite3"},
		"databases": {"sqlite3": {"dsn": "chat.db"}}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":8090" {
		t.Fatalf("unexpected address %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Widget.MaxMessages != 100 || cfg.Widget.GreetingDelayMS != 800 {
		t.Fatalf("widget defaults not applied: %+v", cfg.Widget)
	}
	if cfg.Widget.MaxAttachmentBytes != 5<<20 {
		t.Fatalf("unexpected attachment limit %d", cfg.Widget.MaxAttachmentBytes)
	}
	want := filepath.Join(filepath.Dir(path), "chat.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("dsn not resolved: want %s got %s", want, got)
	}
	if !filepath.IsAbs(cfg.BasicConfig.FileBaseDir) {
		t.Fatalf("file base dir should be absolute, got %s", cfg.BasicConfig.FileBaseDir)
	}
}

func TestLoadMissingDatabaseConfig(t *testing.T) {
	path := writeConfig(t, `{"basic_config": {"storage": "mysql"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing mysql config")
	}
}

func TestLoadRedisStorageRequiresRedis(t *testing.T) {
	path := writeConfig(t, `{"basic_config": {"storage": "redis"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when redis storage selected without redis")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NESTURECHAT_ADDR", ":9999")
	t.Setenv("NESTURECHAT_STORAGE", "redis")
	path := writeConfig(t, `{"redis": {"enabled": true}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9999" || cfg.BasicConfig.Storage != "redis" {
		t.Fatalf("env overrides ignored: %+v", cfg.BasicConfig)
	}
}
