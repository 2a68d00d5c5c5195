package certificate

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-secure-stdlib/strutil"

	"secrets-backend/internal/sealer"
)

var ErrInvalidPEM = errors.New("invalid PEM input")

// ImportInput carries the PEM material of a server certificate.
type ImportInput struct {
	Certificate string `json:"certificate"`
	Chain       string `json:"chain"`
	PrivateKey  string `json:"privateKey"`
}

type Service struct {
	repo   *Repository
	sealer *sealer.Sealer
}

func NewService(repo *Repository, s *sealer.Sealer) *Service {
	return &Service{repo: repo, sealer: s}
}

// Import parses the leaf certificate, checks the key matches it, seals the
// three payloads and stores the record.
func (s *Service) Import(ctx context.Context, in ImportInput) (*Certificate, error) {
	c, err := describe(in)
	if err != nil {
		return nil, err
	}
	c.ID = uuid.NewString()
	if err := s.seal(c, in); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the material of an existing certificate, keeping its id.
func (s *Service) Replace(ctx context.Context, id string, in ImportInput) (*Certificate, error) {
	c, err := describe(in)
	if err != nil {
		return nil, err
	}
	c.ID = id
	if err := s.seal(c, in); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, Update{
		CommonName:           &c.CommonName,
		AltNames:             &c.AltNames,
		SerialNumber:         &c.SerialNumber,
		KeyAlgorithm:         &c.KeyAlgorithm,
		IssuedAt:             &c.IssuedAt,
		Expiration:           &c.Expiration,
		EncryptedCertificate: c.EncryptedCertificate,
		EncryptedChain:       c.EncryptedChain,
		EncryptedPrivateKey:  c.EncryptedPrivateKey,
	})
}

// Open returns the decrypted payloads of a stored certificate.
func (s *Service) Open(ctx context.Context, id string) (*Bundle, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var b Bundle
	for col, dst := range map[string]struct {
		sealed []byte
		out    *string
	}{
		"certificate": {c.EncryptedCertificate, &b.Certificate},
		"chain":       {c.EncryptedChain, &b.Chain},
		"private_key": {c.EncryptedPrivateKey, &b.PrivateKey},
	} {
		plain, err := s.sealer.Open(dst.sealed, associated(c.ID, col))
		if err != nil {
			return nil, fmt.Errorf("certificate %s: %s: %w", c.ID, col, err)
		}
		*dst.out = string(plain)
	}
	return &b, nil
}

func (s *Service) seal(c *Certificate, in ImportInput) error {
	var err error
	if c.EncryptedCertificate, err = s.sealer.Seal([]byte(in.Certificate), associated(c.ID, "certificate")); err != nil {
		return err
	}
	if c.EncryptedChain, err = s.sealer.Seal([]byte(in.Chain), associated(c.ID, "chain")); err != nil {
		return err
	}
	if c.EncryptedPrivateKey, err = s.sealer.Seal([]byte(in.PrivateKey), associated(c.ID, "private_key")); err != nil {
		return err
	}
	return nil
}

func associated(id, col string) []byte {
	return []byte(id + ":" + col)
}

// describe validates the PEM input and extracts the metadata columns.
func describe(in ImportInput) (*Certificate, error) {
	leaf, err := parseCertificate(in.Certificate)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Chain) != "" {
		if _, err := parseChain(in.Chain); err != nil {
			return nil, err
		}
	}
	key, err := parsePrivateKey(in.PrivateKey)
	if err != nil {
		return nil, err
	}
	if !publicKeysMatch(leaf.PublicKey, key.Public()) {
		return nil, fmt.Errorf("%w: private key does not match certificate", ErrInvalidPEM)
	}
	algo, err := keyAlgorithm(leaf.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Certificate{
		CommonName:   leaf.Subject.CommonName,
		AltNames:     strings.Join(altNames(leaf), ","),
		SerialNumber: leaf.SerialNumber.String(),
		KeyAlgorithm: algo,
		IssuedAt:     leaf.NotBefore.UTC(),
		Expiration:   leaf.NotAfter.UTC(),
	}, nil
}

func parseCertificate(s string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: certificate must be a CERTIFICATE block", ErrInvalidPEM)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	return cert, nil
}

func parseChain(s string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := []byte(s)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: chain may only hold CERTIFICATE blocks, got %s", ErrInvalidPEM, block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: chain: %v", ErrInvalidPEM, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: chain holds no certificates", ErrInvalidPEM)
	}
	return certs, nil
}

func parsePrivateKey(s string) (crypto.Signer, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("%w: private key is not PEM encoded", ErrInvalidPEM)
	}
	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unsupported private key block %s", ErrInvalidPEM, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported private key type %T", ErrInvalidPEM, key)
	}
	return signer, nil
}

func publicKeysMatch(a, b crypto.PublicKey) bool {
	pub, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && pub.Equal(b)
}

// keyAlgorithm names the key the way KMIP clients expect it, e.g. RSA_2048
// or EC_prime256v1.
func keyAlgorithm(pub crypto.PublicKey) (string, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA_%d", k.N.BitLen()), nil
	case *ecdsa.PublicKey:
		switch k.Curve.Params().Name {
		case "P-256":
			return "EC_prime256v1", nil
		case "P-384":
			return "EC_secp384r1", nil
		case "P-521":
			return "EC_secp521r1", nil
		}
		return "", fmt.Errorf("%w: unsupported curve %s", ErrInvalidPEM, k.Curve.Params().Name)
	case ed25519.PublicKey:
		return "ED25519", nil
	}
	return "", fmt.Errorf("%w: unsupported public key type %T", ErrInvalidPEM, pub)
}

func altNames(cert *x509.Certificate) []string {
	names := append([]string{}, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		names = append(names, ip.String())
	}
	names = append(names, cert.EmailAddresses...)
	for _, u := range cert.URIs {
		names = append(names, u.String())
	}
	return strutil.RemoveDuplicatesStable(names, false)
}
