// Package gateway wires the certificate store, the key store and the
// protocol client into the operations the CLI and embedding services call:
// certificate setup, connectivity tests and statement downloads, with
// connection health persisted after each exchange.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/config"
	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/keystore"
	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/storage"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/camt"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/cert"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/client"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/transport"
)

// clientUsages are the certificate usages provisioned for a subscriber.
var clientUsages = []cert.UsageType{
	cert.UsageAuthentication,
	cert.UsageEncryption,
	cert.UsageSignature,
}

// protocolClient is the EBICS exchange surface the service depends on.
type protocolClient interface {
	TestConnection(ctx context.Context, conn *ebics.Connection) (bool, error)
	DownloadStatements(ctx context.Context, conn *ebics.Connection, from, to time.Time) ([]camt.TransactionRecord, error)
}

// Service implements the gateway operations on top of the storage layer.
type Service struct {
	cfg    *config.Config
	store  storage.Store
	certs  *cert.Store
	sealer *keystore.Sealer
	signer *keystore.Provider
	logger *slog.Logger

	// newClient builds a protocol client for one exchange; overridable
	// in tests.
	newClient func(signer *ebics.Signer) protocolClient
}

// NewService creates the gateway service. The sealing secret is optional;
// without it certificate setup is unavailable but read operations work.
func NewService(cfg *config.Config, store storage.Store, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		certs:  cert.NewStore(logger),
		logger: logger,
	}

	if cfg.Keys.SealingSecret != "" {
		sealer, err := keystore.NewSealer(cfg.Keys.SealingSecret)
		if err != nil {
			return nil, err
		}
		provider, err := keystore.NewProvider(store, sealer)
		if err != nil {
			return nil, err
		}
		s.sealer = sealer
		s.signer = provider
	}

	httpsConfig := transport.DefaultHTTPSConfig()
	httpsConfig.Timeout = cfg.EBICS.Timeout
	s.newClient = func(signer *ebics.Signer) protocolClient {
		return client.New(&client.Config{
			HTTPSConfig: httpsConfig,
			Signer:      signer,
			Logger:      logger,
		})
	}

	return s, nil
}

// SetupCertificates generates a key pair and self-signed certificate for
// each client usage (authentication, encryption, signature) and stores them
// with sealed private keys. Previously active certificates for the same
// usages are deactivated by the store.
func (s *Service) SetupCertificates(ctx context.Context, connectionID string) ([]cert.Info, error) {
	if s.sealer == nil {
		return nil, fmt.Errorf("keys.sealingSecret must be configured for certificate setup")
	}

	record, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}

	infos := make([]cert.Info, 0, len(clientUsages))
	for _, usage := range clientUsages {
		keyPair, err := s.certs.GenerateKeyPair(s.cfg.EBICS.KeySize)
		if err != nil {
			return nil, err
		}

		subject := fmt.Sprintf("CN=%s, OU=%s, O=EBICS Gateway", record.UserID, usage)
		certificate, err := s.certs.GenerateSelfSigned(keyPair, subject, s.cfg.EBICS.CertificateValidityDays)
		if err != nil {
			return nil, err
		}

		sealed, err := s.sealer.Seal(certificate.PrivateKeyDER)
		if err != nil {
			return nil, fmt.Errorf("sealing private key: %w", err)
		}

		if err := s.store.SaveCertificate(ctx, &storage.CertificateRecord{
			ConnectionID:     connectionID,
			Type:             cert.TypeClient,
			Usage:            usage,
			Subject:          certificate.Subject,
			Issuer:           certificate.Issuer,
			SerialNumber:     certificate.SerialNumber,
			Fingerprint:      certificate.Fingerprint,
			NotBefore:        certificate.NotBefore,
			NotAfter:         certificate.NotAfter,
			KeyAlgorithm:     certificate.KeyAlgorithm,
			KeySize:          certificate.KeySize,
			CertificateDER:   certificate.Raw,
			SealedPrivateKey: sealed,
		}); err != nil {
			return nil, fmt.Errorf("saving %s certificate: %w", usage, err)
		}

		s.logger.Info("certificate provisioned",
			"connectionID", connectionID,
			"usage", usage,
			"fingerprint", certificate.Fingerprint,
			"notAfter", certificate.NotAfter)
		infos = append(infos, s.certs.Info(certificate))
	}

	return infos, nil
}

// TestConnection runs an HKD connectivity test and persists the outcome on
// the connection record: active with a fresh last-connected timestamp on
// success, error status on rejection or transport failure.
func (s *Service) TestConnection(ctx context.Context, connectionID string) (bool, error) {
	record, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return false, fmt.Errorf("loading connection: %w", err)
	}

	ok, err := s.client(ctx, connectionID).TestConnection(ctx, record.Connection())
	now := time.Now()

	status := ebics.StatusError
	lastConnected := time.Time{}
	if err == nil && ok {
		status = ebics.StatusActive
		lastConnected = now
	}
	if updateErr := s.store.UpdateConnectionStatus(ctx, connectionID, status, lastConnected); updateErr != nil {
		s.logger.Error("failed to persist connection status",
			"connectionID", connectionID, "error", updateErr)
	}

	return ok, err
}

// DownloadStatements runs an HTD download for the date range and returns
// the parsed transaction records. A successful exchange refreshes the
// connection's last-connected timestamp.
func (s *Service) DownloadStatements(ctx context.Context, connectionID string, from, to time.Time) ([]camt.TransactionRecord, error) {
	record, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}

	records, err := s.client(ctx, connectionID).DownloadStatements(ctx, record.Connection(), from, to)
	if err != nil {
		if updateErr := s.store.UpdateConnectionStatus(ctx, connectionID, ebics.StatusError, time.Time{}); updateErr != nil {
			s.logger.Error("failed to persist connection status",
				"connectionID", connectionID, "error", updateErr)
		}
		return nil, err
	}

	if updateErr := s.store.UpdateConnectionStatus(ctx, connectionID, ebics.StatusActive, time.Now()); updateErr != nil {
		s.logger.Error("failed to persist connection status",
			"connectionID", connectionID, "error", updateErr)
	}
	return records, nil
}

// ExpiringCertificates reports active certificates that expire within the
// given duration.
func (s *Service) ExpiringCertificates(ctx context.Context, within time.Duration) ([]*storage.CertificateRecord, error) {
	return s.store.FindExpiringBefore(ctx, time.Now().Add(within))
}

// DeactivateCertificate soft-deletes a certificate record.
func (s *Service) DeactivateCertificate(ctx context.Context, id string) error {
	return s.store.DeactivateCertificate(ctx, id)
}

// client builds a protocol client for the connection, signing requests when
// an authentication certificate is available. A connection without one gets
// an unsigned client, which sandbox hosts accept.
func (s *Service) client(ctx context.Context, connectionID string) protocolClient {
	var signer *ebics.Signer
	if s.signer != nil {
		var err error
		signer, err = s.signer.GetSigner(ctx, connectionID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("authentication certificate unavailable, sending unsigned",
					"connectionID", connectionID, "error", err)
			}
			signer = nil
		}
	}
	return s.newClient(signer)
}
