package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"secrets-backend/internal/store"
)

var ErrNotFound = errors.New("certificate not found")

const table = "kmip_instance_server_certificates"

const columns = "id, common_name, alt_names, serial_number, key_algorithm, issued_at, expiration, " +
	"encrypted_certificate, encrypted_chain, encrypted_private_key, created_at, updated_at"

type Repository struct {
	store *store.Store
}

func NewRepository(s *store.Store) *Repository {
	return &Repository{store: s}
}

// Insert stores c, assigning an id when it has none.
func (r *Repository) Insert(ctx context.Context, c *Certificate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	d := r.store.Dialect
	pb := d.NewParamBuilder()
	values := []string{
		pb.Add(c.ID), pb.Add(c.CommonName), pb.Add(c.AltNames), pb.Add(c.SerialNumber), pb.Add(c.KeyAlgorithm),
		pb.Add(d.TimeParam(c.IssuedAt)), pb.Add(d.TimeParam(c.Expiration)),
		pb.Add(nonNil(c.EncryptedCertificate)), pb.Add(nonNil(c.EncryptedChain)), pb.Add(nonNil(c.EncryptedPrivateKey)),
		pb.Add(d.TimeParam(now)), pb.Add(d.TimeParam(now)),
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, columns, strings.Join(values, ", "))
	if _, err := store.Exec(ctx, r.store.DB, query, pb.Params()...); err != nil {
		return fmt.Errorf("insert certificate: %w", store.MapError(d, err))
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Certificate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	pb := r.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", columns, table, pb.Add(id))
	row, err := store.QueryRow(ctx, r.store.DB, query, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate %s: %w", id, err)
	}
	return fromRow(row)
}

// List returns certificates ordered by expiration, soonest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*Certificate, error) {
	pb := r.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT %s FROM %s", columns, table)
	if f.ExpiringBefore != nil {
		query += " WHERE expiration < " + pb.Add(r.store.Dialect.TimeParam(*f.ExpiringBefore))
	}
	query += " ORDER BY expiration, id"

	rows, err := store.QueryRows(ctx, r.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	certs := make([]*Certificate, 0, len(rows))
	for _, row := range rows {
		c, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, nil
}

// Update applies the non-nil fields of u and returns the stored record.
func (r *Repository) Update(ctx context.Context, id string, u Update) (*Certificate, error) {
	if u.empty() {
		return r.GetByID(ctx, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	d := r.store.Dialect
	pb := d.NewParamBuilder()
	var sets []string
	set := func(col string, v any) {
		sets = append(sets, col+" = "+pb.Add(v))
	}
	if u.CommonName != nil {
		set("common_name", *u.CommonName)
	}
	if u.AltNames != nil {
		set("alt_names", *u.AltNames)
	}
	if u.SerialNumber != nil {
		set("serial_number", *u.SerialNumber)
	}
	if u.KeyAlgorithm != nil {
		set("key_algorithm", *u.KeyAlgorithm)
	}
	if u.IssuedAt != nil {
		set("issued_at", d.TimeParam(*u.IssuedAt))
	}
	if u.Expiration != nil {
		set("expiration", d.TimeParam(*u.Expiration))
	}
	if u.EncryptedCertificate != nil {
		set("encrypted_certificate", u.EncryptedCertificate)
	}
	if u.EncryptedChain != nil {
		set("encrypted_chain", u.EncryptedChain)
	}
	if u.EncryptedPrivateKey != nil {
		set("encrypted_private_key", u.EncryptedPrivateKey)
	}
	set("updated_at", d.TimeParam(time.Now().UTC()))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(sets, ", "), pb.Add(id))
	n, err := store.Exec(ctx, r.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update certificate %s: %w", id, store.MapError(d, err))
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	pb := r.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, pb.Add(id))
	n, err := store.Exec(ctx, r.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete certificate %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func fromRow(row map[string]any) (*Certificate, error) {
	c := &Certificate{
		ID:                   store.String(row["id"]),
		CommonName:           store.String(row["common_name"]),
		AltNames:             store.String(row["alt_names"]),
		SerialNumber:         store.String(row["serial_number"]),
		KeyAlgorithm:         store.String(row["key_algorithm"]),
		EncryptedCertificate: store.Bytes(row["encrypted_certificate"]),
		EncryptedChain:       store.Bytes(row["encrypted_chain"]),
		EncryptedPrivateKey:  store.Bytes(row["encrypted_private_key"]),
	}
	var err error
	for col, dst := range map[string]*time.Time{
		"issued_at":  &c.IssuedAt,
		"expiration": &c.Expiration,
		"created_at": &c.CreatedAt,
		"updated_at": &c.UpdatedAt,
	} {
		if *dst, err = store.Time(row[col]); err != nil {
			return nil, fmt.Errorf("certificate %s: %s: %w", c.ID, col, err)
		}
	}
	return c, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
