package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"secrets-backend/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestBootstrap_CreatesTables(t *testing.T) {
	s := newTestStore(t)
	for _, table := range []string{"_users", "_refresh_tokens", "_roles", "_events", "kmip_instance_server_certificates"} {
		ok, err := s.Dialect.TableExists(context.Background(), s.DB, table)
		if err != nil {
			t.Fatalf("table exists %s: %v", table, err)
		}
		if !ok {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestBootstrap_SeedsAdminOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	rows, err := QueryRows(ctx, s.DB, "SELECT email, roles, active FROM _users")
	if err != nil {
		t.Fatalf("query users: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 seeded user, got %d", len(rows))
	}
	if String(rows[0]["email"]) != DefaultAdminEmail {
		t.Fatalf("unexpected admin email: %v", rows[0]["email"])
	}
	roles, err := s.Dialect.ScanArray(rows[0]["roles"])
	if err != nil || len(roles) != 1 || roles[0] != "admin" {
		t.Fatalf("expected admin role, got %v (%v)", roles, err)
	}
	if !Bool(rows[0]["active"]) {
		t.Fatal("expected admin to be active")
	}
}

func TestExec_UniqueViolationIsMapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insert := "INSERT INTO _roles (id, slug, name) VALUES (?1, ?2, ?3)"
	if _, err := Exec(ctx, s.DB, insert, "r1", "viewer", "Viewer"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := Exec(ctx, s.DB, insert, "r2", "viewer", "Viewer again")
	if !errors.Is(MapError(s.Dialect, err), ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", err)
	}
}

func TestQueryRow_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := QueryRow(context.Background(), s.DB, "SELECT id FROM _roles WHERE slug = ?1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	s, err := Connect(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "connect"}, time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s.Close()

	// a regular file where the data directory should be never becomes ready
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	_, err = Connect(ctx, config.DatabaseConfig{Driver: "sqlite", Path: blocker, Name: "connect"}, 300*time.Millisecond)
	if err == nil {
		t.Fatal("expected connect to give up")
	}
}
