package certificate

import "time"

// Certificate is a KMIP server certificate. The PEM payloads are stored
// sealed and are never serialized.
type Certificate struct {
	ID           string    `json:"id"`
	CommonName   string    `json:"commonName"`
	AltNames     string    `json:"altNames"`
	SerialNumber string    `json:"serialNumber"`
	KeyAlgorithm string    `json:"keyAlgorithm"`
	IssuedAt     time.Time `json:"issuedAt"`
	Expiration   time.Time `json:"expiration"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	EncryptedCertificate []byte `json:"-"`
	EncryptedChain       []byte `json:"-"`
	EncryptedPrivateKey  []byte `json:"-"`
}

// Update is a partial update. Nil fields are left untouched and the id
// can never change.
type Update struct {
	CommonName   *string
	AltNames     *string
	SerialNumber *string
	KeyAlgorithm *string
	IssuedAt     *time.Time
	Expiration   *time.Time

	EncryptedCertificate []byte
	EncryptedChain       []byte
	EncryptedPrivateKey  []byte
}

func (u Update) empty() bool {
	return u.CommonName == nil && u.AltNames == nil && u.SerialNumber == nil &&
		u.KeyAlgorithm == nil && u.IssuedAt == nil && u.Expiration == nil &&
		u.EncryptedCertificate == nil && u.EncryptedChain == nil && u.EncryptedPrivateKey == nil
}

// ListFilter narrows List. The zero value lists everything.
type ListFilter struct {
	ExpiringBefore *time.Time
}

// Bundle holds the decrypted PEM payloads of a certificate.
type Bundle struct {
	Certificate string `json:"certificate"`
	Chain       string `json:"chain"`
	PrivateKey  string `json:"privateKey"`
}
