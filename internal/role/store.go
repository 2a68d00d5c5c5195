package role

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"secrets-backend/internal/permission"
	"secrets-backend/internal/store"
)

var (
	ErrNotFound  = errors.New("role not found")
	ErrSlugTaken = errors.New("role slug already exists")
)

const roleColumns = "id, slug, name, description, permissions, created_at, updated_at"

// Store persists roles in the _roles table.
type Store struct {
	s *store.Store
}

func NewStore(s *store.Store) *Store {
	return &Store{s: s}
}

func (st *Store) Create(ctx context.Context, r *Role) error {
	perms, err := encodeRules(r.Permissions)
	if err != nil {
		return err
	}
	r.ID = uuid.NewString()
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	d := st.s.Dialect
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("INSERT INTO _roles (%s) VALUES (%s, %s, %s, %s, %s, %s, %s)", roleColumns,
		pb.Add(r.ID), pb.Add(r.Slug), pb.Add(r.Name), pb.Add(r.Description), pb.Add(perms),
		pb.Add(d.TimeParam(now)), pb.Add(d.TimeParam(now)))
	if _, err := store.Exec(ctx, st.s.DB, query, pb.Params()...); err != nil {
		return mapWriteError(d, err)
	}
	return nil
}

func (st *Store) GetBySlug(ctx context.Context, slug string) (*Role, error) {
	pb := st.s.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT %s FROM _roles WHERE slug = %s", roleColumns, pb.Add(slug))
	row, err := store.QueryRow(ctx, st.s.DB, query, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get role %s: %w", slug, err)
	}
	return roleFromRow(row)
}

func (st *Store) List(ctx context.Context) ([]*Role, error) {
	rows, err := store.QueryRows(ctx, st.s.DB, "SELECT "+roleColumns+" FROM _roles ORDER BY slug")
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles := make([]*Role, 0, len(rows))
	for _, row := range rows {
		r, err := roleFromRow(row)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Update replaces the role stored under slug. The slug itself may change.
func (st *Store) Update(ctx context.Context, slug string, r *Role) error {
	perms, err := encodeRules(r.Permissions)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	d := st.s.Dialect
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("UPDATE _roles SET slug = %s, name = %s, description = %s, permissions = %s, updated_at = %s WHERE slug = %s",
		pb.Add(r.Slug), pb.Add(r.Name), pb.Add(r.Description), pb.Add(perms), pb.Add(d.TimeParam(now)), pb.Add(slug))
	n, err := store.Exec(ctx, st.s.DB, query, pb.Params()...)
	if err != nil {
		return mapWriteError(d, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	stored, err := st.GetBySlug(ctx, r.Slug)
	if err != nil {
		return err
	}
	*r = *stored
	return nil
}

func (st *Store) Delete(ctx context.Context, slug string) error {
	pb := st.s.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, st.s.DB, "DELETE FROM _roles WHERE slug = "+pb.Add(slug), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete role %s: %w", slug, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteError(d store.Dialect, err error) error {
	mapped := store.MapError(d, err)
	if errors.Is(mapped, store.ErrUniqueViolation) {
		return ErrSlugTaken
	}
	return fmt.Errorf("write role: %w", mapped)
}

func encodeRules(rules []permission.Rule) (string, error) {
	if rules == nil {
		rules = []permission.Rule{}
	}
	b, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("encode permissions: %w", err)
	}
	return string(b), nil
}

func roleFromRow(row map[string]any) (*Role, error) {
	r := &Role{
		ID:          store.String(row["id"]),
		Slug:        store.String(row["slug"]),
		Name:        store.String(row["name"]),
		Description: store.String(row["description"]),
	}
	if err := json.Unmarshal([]byte(store.String(row["permissions"])), &r.Permissions); err != nil {
		return nil, fmt.Errorf("role %s: decode permissions: %w", r.Slug, err)
	}
	var err error
	if r.CreatedAt, err = store.Time(row["created_at"]); err != nil {
		return nil, fmt.Errorf("role %s: %w", r.Slug, err)
	}
	if r.UpdatedAt, err = store.Time(row["updated_at"]); err != nil {
		return nil, fmt.Errorf("role %s: %w", r.Slug, err)
	}
	return r, nil
}
