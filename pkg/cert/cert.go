// Package cert manages the X.509 certificates and RSA key material used to
// authenticate an EBICS subscriber against the bank.
//
// The package covers the full client-side lifecycle: key pair generation,
// self-signed certificate creation, loading certificates from PEM or DER,
// validity checking, fingerprinting and PEM export. Persistence of
// certificates is handled by the storage layer; this package only defines
// the value types that are persisted.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
)

// Common errors
var (
	// ErrCrypto indicates the runtime could not perform a cryptographic
	// operation, e.g. an unsupported key size.
	ErrCrypto = errors.New("cryptographic operation failed")

	// ErrCertificateInvalid indicates a certificate could not be generated,
	// parsed or encoded.
	ErrCertificateInvalid = errors.New("certificate invalid")
)

// CertificateType classifies who a certificate belongs to.
type CertificateType string

const (
	TypeClient CertificateType = "CLIENT"
	TypeBank   CertificateType = "BANK"
	TypeCA     CertificateType = "CA"
)

// UsageType classifies what a certificate is used for within EBICS.
type UsageType string

const (
	UsageAuthentication UsageType = "AUTHENTICATION"
	UsageEncryption     UsageType = "ENCRYPTION"
	UsageSignature      UsageType = "SIGNATURE"
	UsageRootCA         UsageType = "ROOT_CA"
	UsageIntermediateCA UsageType = "INTERMEDIATE_CA"
)

// KeyPair holds a generated RSA key pair.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// Certificate is the value object describing a stored certificate.
// Raw carries the DER encoding; PrivateKeyDER optionally carries the
// PKCS#8-encoded private key for client certificates.
type Certificate struct {
	Subject       string
	Issuer        string
	SerialNumber  string
	Fingerprint   string
	NotBefore     time.Time
	NotAfter      time.Time
	KeyAlgorithm  string
	KeySize       int
	Raw           []byte
	PrivateKeyDER []byte
	Type          CertificateType
	Usage         UsageType
	Active        bool

	parsed *x509.Certificate
}

// Info is a summary projection for callers that need metadata without
// touching raw bytes.
type Info struct {
	Subject      string
	Issuer       string
	NotBefore    time.Time
	NotAfter     time.Time
	SerialNumber string
	Fingerprint  string
	KeyAlgorithm string
}

// Store performs certificate and key operations. It holds no state beyond
// a logger and is safe for concurrent use.
type Store struct {
	logger *slog.Logger
}

// NewStore creates a certificate store. A nil logger falls back to
// slog.Default().
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

var supportedKeySizes = map[int]bool{2048: true, 3072: true, 4096: true}

// GenerateKeyPair generates an RSA key pair with the given modulus size.
// Supported sizes are 2048, 3072 and 4096 bits.
func (s *Store) GenerateKeyPair(bits int) (*KeyPair, error) {
	if !supportedKeySizes[bits] {
		return nil, fmt.Errorf("%w: unsupported RSA key size %d", ErrCrypto, bits)
	}

	s.logger.Info("generating RSA key pair", "bits", bits)

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generating %d-bit RSA key: %v", ErrCrypto, bits, err)
	}

	return &KeyPair{Private: key, Public: &key.PublicKey}, nil
}

// GenerateSelfSigned builds a v3 X.509 certificate where issuer equals
// subject, signed with the key pair's private key using SHA-256/RSA.
// The serial number is time-derived and unique per call.
func (s *Store) GenerateSelfSigned(kp *KeyPair, subjectDN string, validityDays int) (*Certificate, error) {
	if kp == nil || kp.Private == nil {
		return nil, fmt.Errorf("%w: key pair is required", ErrCertificateInvalid)
	}

	s.logger.Info("generating self-signed certificate", "subject", subjectDN)

	name, err := parseDN(subjectDN)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing subject %q: %v", ErrCertificateInvalid, subjectDN, err)
	}

	notBefore := time.Now()
	notAfter := notBefore.AddDate(0, 0, validityDays)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               name,
		Issuer:                name,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, kp.Public, kp.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: signing certificate for %q: %v", ErrCertificateInvalid, subjectDN, err)
	}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: re-parsing generated certificate: %v", ErrCertificateInvalid, err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(kp.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding private key: %v", ErrCertificateInvalid, err)
	}

	cert := fromParsed(parsed)
	cert.PrivateKeyDER = keyDER
	cert.Type = TypeClient
	cert.Active = true

	s.logger.Info("generated self-signed certificate", "subject", subjectDN, "notAfter", cert.NotAfter)
	return cert, nil
}

// Load parses a certificate from PEM or DER bytes. The format is
// auto-detected by looking for the textual PEM certificate marker.
func (s *Store) Load(data []byte) (*Certificate, error) {
	s.logger.Debug("loading certificate", "bytes", len(data))

	var der []byte
	if strings.Contains(string(data), "-----BEGIN CERTIFICATE-----") {
		block, _ := pem.Decode(data)
		if block == nil || block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: no certificate PEM block found", ErrCertificateInvalid)
		}
		der = block.Bytes
	} else {
		der = data
	}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing certificate: %v", ErrCertificateInvalid, err)
	}

	return fromParsed(parsed), nil
}

// Validate checks that the current time falls within the certificate's
// validity window. For self-signed certificates the self-signature is also
// checked, but a signature failure is logged as a warning rather than
// failing validation; bank sandboxes hand out certificates that do not
// verify cleanly.
func (s *Store) Validate(cert *Certificate) bool {
	parsed, err := cert.x509()
	if err != nil {
		s.logger.Error("certificate validation failed", "error", err)
		return false
	}

	now := time.Now()
	if now.Before(parsed.NotBefore) {
		s.logger.Error("certificate not yet valid", "subject", cert.Subject, "notBefore", parsed.NotBefore)
		return false
	}
	if !now.Before(parsed.NotAfter) {
		s.logger.Error("certificate expired", "subject", cert.Subject, "notAfter", parsed.NotAfter)
		return false
	}

	if err := parsed.CheckSignatureFrom(parsed); err != nil {
		s.logger.Warn("certificate signature verification failed", "subject", cert.Subject, "error", err)
	}

	return true
}

// Fingerprint returns the SHA-256 digest of the certificate's DER encoding
// as 64 lowercase hex characters.
func (s *Store) Fingerprint(cert *Certificate) string {
	return fingerprint(cert.Raw)
}

// ToPEM encodes the certificate as a PEM block with base64 content wrapped
// at 64 characters per line.
func (s *Store) ToPEM(cert *Certificate) string {
	b64 := base64.StdEncoding.EncodeToString(cert.Raw)

	var b strings.Builder
	b.WriteString("-----BEGIN CERTIFICATE-----\n")
	for i := 0; i < len(b64); i += 64 {
		end := i + 64
		if end > len(b64) {
			end = len(b64)
		}
		b.WriteString(b64[i:end])
		b.WriteByte('\n')
	}
	b.WriteString("-----END CERTIFICATE-----\n")
	return b.String()
}

// Info returns the summary metadata projection of a certificate.
func (s *Store) Info(cert *Certificate) Info {
	return Info{
		Subject:      cert.Subject,
		Issuer:       cert.Issuer,
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		SerialNumber: cert.SerialNumber,
		Fingerprint:  cert.Fingerprint,
		KeyAlgorithm: cert.KeyAlgorithm,
	}
}

// PrivateKey decodes the PKCS#8 private key carried by a client
// certificate. Returns ErrCertificateInvalid when no key is attached.
func (c *Certificate) PrivateKey() (*rsa.PrivateKey, error) {
	if len(c.PrivateKeyDER) == 0 {
		return nil, fmt.Errorf("%w: certificate carries no private key", ErrCertificateInvalid)
	}
	key, err := x509.ParsePKCS8PrivateKey(c.PrivateKeyDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing PKCS#8 key: %v", ErrCertificateInvalid, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", ErrCertificateInvalid)
	}
	return rsaKey, nil
}

// PublicKey returns the certificate's RSA public key.
func (c *Certificate) PublicKey() (*rsa.PublicKey, error) {
	parsed, err := c.x509()
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not RSA", ErrCertificateInvalid)
	}
	return pub, nil
}

func (c *Certificate) x509() (*x509.Certificate, error) {
	if c.parsed != nil {
		return c.parsed, nil
	}
	parsed, err := x509.ParseCertificate(c.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing DER: %v", ErrCertificateInvalid, err)
	}
	c.parsed = parsed
	return parsed, nil
}

func fromParsed(parsed *x509.Certificate) *Certificate {
	return &Certificate{
		Subject:      parsed.Subject.String(),
		Issuer:       parsed.Issuer.String(),
		SerialNumber: parsed.SerialNumber.String(),
		Fingerprint:  fingerprint(parsed.Raw),
		NotBefore:    parsed.NotBefore,
		NotAfter:     parsed.NotAfter,
		KeyAlgorithm: parsed.PublicKeyAlgorithm.String(),
		KeySize:      keySize(parsed.PublicKey),
		Raw:          parsed.Raw,
		parsed:       parsed,
	}
}

func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

func keySize(pub any) int {
	if k, ok := pub.(*rsa.PublicKey); ok {
		return k.N.BitLen()
	}
	return 0
}

// parseDN parses a comma-separated distinguished name of the form
// "CN=EBICS Client,O=ACME,C=DE". Unknown attribute types are rejected.
func parseDN(dn string) (pkix.Name, error) {
	var name pkix.Name
	if strings.TrimSpace(dn) == "" {
		return name, errors.New("empty distinguished name")
	}

	for _, part := range strings.Split(dn, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return name, fmt.Errorf("malformed DN component %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "CN":
			name.CommonName = value
		case "O":
			name.Organization = append(name.Organization, value)
		case "OU":
			name.OrganizationalUnit = append(name.OrganizationalUnit, value)
		case "C":
			name.Country = append(name.Country, value)
		case "L":
			name.Locality = append(name.Locality, value)
		case "ST":
			name.Province = append(name.Province, value)
		default:
			return name, fmt.Errorf("unsupported DN attribute %q", key)
		}
	}

	return name, nil
}
