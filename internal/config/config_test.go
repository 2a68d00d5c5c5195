package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected default driver postgres, got %s", cfg.Database.Driver)
	}
	if cfg.Instrumentation.BufferSize != 500 {
		t.Fatalf("expected default buffer size 500, got %d", cfg.Instrumentation.BufferSize)
	}
	if cfg.Instrumentation.RetentionDays != 7 {
		t.Fatalf("expected default retention of 7 days, got %d", cfg.Instrumentation.RetentionDays)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/data", Name: "secrets"}
	if got := sqlite.DSN(); got != "/tmp/data/secrets.db" {
		t.Fatalf("unexpected sqlite dsn: %s", got)
	}

	pg := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Port: 5432, Name: "secrets"}
	if got := pg.DSN(); got != "postgres://u:p@db:5432/secrets?sslmode=disable" {
		t.Fatalf("unexpected postgres dsn: %s", got)
	}
}

func TestConfig_Key(t *testing.T) {
	cfg := &Config{EncryptionKey: strings.Repeat("ab", 32)}
	key, err := cfg.Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(key))
	}

	cfg.EncryptionKey = "abcd"
	if _, err := cfg.Key(); err == nil {
		t.Fatal("expected error for short key")
	}

	cfg.EncryptionKey = "zz"
	if _, err := cfg.Key(); err == nil {
		t.Fatal("expected error for non-hex key")
	}
}
