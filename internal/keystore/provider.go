package keystore

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/storage"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/cert"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
)

// Provider builds request signers from stored certificate records.
type Provider struct {
	store  storage.CertificateStore
	sealer *Sealer
}

// NewProvider creates a signer provider backed by the certificate store.
func NewProvider(store storage.CertificateStore, sealer *Sealer) (*Provider, error) {
	if store == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("sealer is required")
	}
	return &Provider{store: store, sealer: sealer}, nil
}

// GetSigner loads the connection's active client authentication certificate,
// unseals its private key and returns a request signer.
func (p *Provider) GetSigner(ctx context.Context, connectionID string) (*ebics.Signer, error) {
	record, err := p.store.GetActiveCertificate(ctx, connectionID, cert.TypeClient, cert.UsageAuthentication)
	if err != nil {
		return nil, fmt.Errorf("loading authentication certificate: %w", err)
	}
	if len(record.SealedPrivateKey) == 0 {
		return nil, fmt.Errorf("certificate %s has no private key", record.Fingerprint)
	}

	keyDER, err := p.sealer.Unseal(record.SealedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unsealing private key: %w", err)
	}

	parsedKey, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	rsaKey, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}

	parsedCert, err := x509.ParseCertificate(record.CertificateDER)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}

	return ebics.NewSigner(rsaKey, parsedCert)
}
