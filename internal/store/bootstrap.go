package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAdminEmail    = "admin@localhost"
	defaultAdminPassword = "changeme"
)

// Bootstrap creates the service tables and seeds the first admin user.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := s.Dialect.TimeParam(time.Now())
	pb := s.Dialect.NewParamBuilder()
	query := fmt.Sprintf(
		"INSERT INTO _users (id, email, password_hash, roles, active, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add(DefaultAdminEmail), pb.Add(string(hash)),
		pb.Add(s.Dialect.ArrayParam([]string{"admin"})), pb.Add(true), pb.Add(now), pb.Add(now),
	)
	if _, err := s.DB.ExecContext(ctx, query, pb.Params()...); err != nil {
		return s.Dialect.MapError(err)
	}

	log.Printf("WARN: default admin user created (%s / %s), change the password immediately", DefaultAdminEmail, defaultAdminPassword)
	return nil
}
