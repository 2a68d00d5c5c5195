package certificate

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"secrets-backend/internal/config"
	"secrets-backend/internal/sealer"
	"secrets-backend/internal/store"
)

type testPEM struct {
	cert, key string
	notAfter  time.Time
}

func issue(t *testing.T, cn string, notAfter time.Time) testPEM {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4242),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn, "kmip.local", cn},
		IPAddresses:  []net.IP{net.ParseIP("10.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour).Truncate(time.Second),
		NotAfter:     notAfter.Truncate(time.Second),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return testPEM{
		cert:     string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		key:      string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})),
		notAfter: tmpl.NotAfter,
	}
}

func newService(t *testing.T) (*Service, *Repository) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "certs"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	sl, err := sealer.New(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	repo := NewRepository(s)
	return NewService(repo, sl), repo
}

func TestImport_ExtractsMetadataAndSeals(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	p := issue(t, "kmip.example.com", time.Now().Add(24*time.Hour))

	c, err := svc.Import(ctx, ImportInput{Certificate: p.cert, Chain: p.cert, PrivateKey: p.key})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if c.CommonName != "kmip.example.com" {
		t.Fatalf("unexpected common name: %s", c.CommonName)
	}
	if c.AltNames != "kmip.example.com,kmip.local,10.0.0.1" {
		t.Fatalf("unexpected alt names: %s", c.AltNames)
	}
	if c.SerialNumber != "4242" || c.KeyAlgorithm != "EC_prime256v1" {
		t.Fatalf("unexpected serial/algorithm: %s %s", c.SerialNumber, c.KeyAlgorithm)
	}

	stored, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Expiration.Equal(p.notAfter) {
		t.Fatalf("expected expiration %v, got %v", p.notAfter, stored.Expiration)
	}
	if bytes.Contains(stored.EncryptedPrivateKey, []byte("PRIVATE KEY")) {
		t.Fatal("private key stored in clear")
	}

	out, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(strings.ToLower(string(out)), "encrypted") {
		t.Fatalf("payload columns leaked into JSON: %s", out)
	}

	bundle, err := svc.Open(ctx, c.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if bundle.Certificate != p.cert || bundle.PrivateKey != p.key || bundle.Chain != p.cert {
		t.Fatal("decrypted bundle differs from the imported PEM")
	}
}

func TestImport_RejectsBadInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a := issue(t, "a.example.com", time.Now().Add(time.Hour))
	b := issue(t, "b.example.com", time.Now().Add(time.Hour))

	tests := []struct {
		name string
		in   ImportInput
	}{
		{"not pem", ImportInput{Certificate: "garbage", PrivateKey: a.key}},
		{"key for another certificate", ImportInput{Certificate: a.cert, PrivateKey: b.key}},
		{"key block in chain", ImportInput{Certificate: a.cert, Chain: a.key, PrivateKey: a.key}},
		{"missing key", ImportInput{Certificate: a.cert}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Import(ctx, tt.in); !errors.Is(err, ErrInvalidPEM) {
				t.Fatalf("expected ErrInvalidPEM, got %v", err)
			}
		})
	}
}

func TestReplace_KeepsID(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	first := issue(t, "old.example.com", time.Now().Add(time.Hour))
	second := issue(t, "new.example.com", time.Now().Add(48*time.Hour))

	c, err := svc.Import(ctx, ImportInput{Certificate: first.cert, PrivateKey: first.key})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	replaced, err := svc.Replace(ctx, c.ID, ImportInput{Certificate: second.cert, PrivateKey: second.key})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.ID != c.ID || replaced.CommonName != "new.example.com" {
		t.Fatalf("unexpected replaced record: %+v", replaced)
	}
	bundle, err := svc.Open(ctx, c.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if bundle.Certificate != second.cert {
		t.Fatal("expected the new certificate after replace")
	}

	if _, err := svc.Replace(ctx, "2b1f0e0c-0000-4000-8000-000000000000", ImportInput{Certificate: second.cert, PrivateKey: second.key}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
