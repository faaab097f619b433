// Package storage provides the persistence interfaces for bank connections
// and certificates.
//
// # Interface Design
//
// The storage layer is organized into focused interfaces:
//
//   - [ConnectionStore]: Bank connection descriptors and their health status
//   - [CertificateStore]: Certificate records with soft-delete semantics
//
// The [Store] interface combines both for convenience.
//
// # Implementations
//
// The mongodb sub-package provides a production-ready MongoDB implementation.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/cert"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
)

// ErrNotFound indicates the requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store is the main storage interface combining all sub-stores
type Store interface {
	ConnectionStore
	CertificateStore

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks database connectivity
	Ping(ctx context.Context) error
}

// ConnectionStore manages bank connection records
type ConnectionStore interface {
	// CreateConnection creates a new connection record
	CreateConnection(ctx context.Context, conn *ConnectionRecord) error

	// GetConnection retrieves a connection by ID
	GetConnection(ctx context.Context, id string) (*ConnectionRecord, error)

	// GetConnectionByHostID retrieves a connection by EBICS host ID
	GetConnectionByHostID(ctx context.Context, hostID string) (*ConnectionRecord, error)

	// UpdateConnectionStatus records the outcome of a connectivity test
	UpdateConnectionStatus(ctx context.Context, id string, status ebics.ConnectionStatus, lastConnected time.Time) error

	// ListConnections returns all connection records
	ListConnections(ctx context.Context) ([]*ConnectionRecord, error)
}

// CertificateStore manages certificate records. Certificates are
// soft-deleted via the active flag to preserve audit history.
type CertificateStore interface {
	// SaveCertificate stores a certificate record, deactivating any
	// previously active record for the same (connection, type, usage)
	SaveCertificate(ctx context.Context, record *CertificateRecord) error

	// GetActiveCertificate retrieves the active certificate for a
	// (connection, type, usage) tuple
	GetActiveCertificate(ctx context.Context, connectionID string, certType cert.CertificateType, usage cert.UsageType) (*CertificateRecord, error)

	// GetCertificateByFingerprint retrieves a certificate by its SHA-256
	// fingerprint
	GetCertificateByFingerprint(ctx context.Context, fingerprint string) (*CertificateRecord, error)

	// FindExpiringBefore returns active certificates whose notAfter falls
	// before the given time
	FindExpiringBefore(ctx context.Context, deadline time.Time) ([]*CertificateRecord, error)

	// DeactivateCertificate soft-deletes a certificate record
	DeactivateCertificate(ctx context.Context, id string) error
}

// ConnectionRecord is a persisted bank connection descriptor
type ConnectionRecord struct {
	ID            string                 `bson:"_id"`
	BankName      string                 `bson:"bank_name"`
	HostID        string                 `bson:"host_id"`
	PartnerID     string                 `bson:"partner_id"`
	UserID        string                 `bson:"user_id"`
	BankURL       string                 `bson:"bank_url"`
	Version       string                 `bson:"version"`
	Status        ebics.ConnectionStatus `bson:"status"`
	LastConnected *time.Time             `bson:"last_connected,omitempty"`
	CreatedAt     time.Time              `bson:"created_at"`
	UpdatedAt     time.Time              `bson:"updated_at"`
}

// Connection converts the record into the protocol client's input shape
func (r *ConnectionRecord) Connection() *ebics.Connection {
	conn := &ebics.Connection{
		HostID:    r.HostID,
		PartnerID: r.PartnerID,
		UserID:    r.UserID,
		BankURL:   r.BankURL,
		Version:   r.Version,
		Status:    r.Status,
	}
	if r.LastConnected != nil {
		conn.LastConnected = *r.LastConnected
	}
	return conn
}

// CertificateRecord is a persisted certificate with optional sealed private
// key bytes. At most one active record exists per (connection, type, usage)
// tuple; SaveCertificate enforces this by deactivating predecessors.
type CertificateRecord struct {
	ID           string               `bson:"_id"`
	ConnectionID string               `bson:"connection_id"`
	Type         cert.CertificateType `bson:"type"`
	Usage        cert.UsageType       `bson:"usage"`
	Subject      string               `bson:"subject"`
	Issuer       string               `bson:"issuer"`
	SerialNumber string               `bson:"serial_number"`
	Fingerprint  string               `bson:"fingerprint"`
	NotBefore    time.Time            `bson:"not_before"`
	NotAfter     time.Time            `bson:"not_after"`
	KeyAlgorithm string               `bson:"key_algorithm"`
	KeySize      int                  `bson:"key_size"`

	// CertificateDER holds the raw DER encoding
	CertificateDER []byte `bson:"certificate_der"`

	// SealedPrivateKey holds the PKCS#8 private key sealed by the
	// keystore; empty for imported bank certificates
	SealedPrivateKey []byte `bson:"sealed_private_key,omitempty"`

	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
