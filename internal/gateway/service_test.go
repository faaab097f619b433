package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/config"
	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/storage"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/camt"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/cert"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/client"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
)

// memStore is an in-memory storage.Store for service tests.
type memStore struct {
	mu           sync.Mutex
	connections  map[string]*storage.ConnectionRecord
	certificates map[string]*storage.CertificateRecord
	nextCertID   int
}

func newMemStore() *memStore {
	return &memStore{
		connections:  make(map[string]*storage.ConnectionRecord),
		certificates: make(map[string]*storage.CertificateRecord),
	}
}

func (m *memStore) CreateConnection(ctx context.Context, conn *storage.ConnectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID] = conn
	return nil
}

func (m *memStore) GetConnection(ctx context.Context, id string) (*storage.ConnectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return conn, nil
}

func (m *memStore) GetConnectionByHostID(ctx context.Context, hostID string) (*storage.ConnectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.connections {
		if conn.HostID == hostID {
			return conn, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) UpdateConnectionStatus(ctx context.Context, id string, status ebics.ConnectionStatus, lastConnected time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	if !ok {
		return storage.ErrNotFound
	}
	conn.Status = status
	if !lastConnected.IsZero() {
		conn.LastConnected = &lastConnected
	}
	return nil
}

func (m *memStore) ListConnections(ctx context.Context) ([]*storage.ConnectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conns := make([]*storage.ConnectionRecord, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns, nil
}

func (m *memStore) SaveCertificate(ctx context.Context, record *storage.CertificateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.certificates {
		if existing.ConnectionID == record.ConnectionID &&
			existing.Type == record.Type && existing.Usage == record.Usage {
			existing.Active = false
		}
	}
	m.nextCertID++
	record.ID = record.Fingerprint
	record.Active = true
	m.certificates[record.ID] = record
	return nil
}

func (m *memStore) GetActiveCertificate(ctx context.Context, connectionID string, certType cert.CertificateType, usage cert.UsageType) (*storage.CertificateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.certificates {
		if record.ConnectionID == connectionID && record.Type == certType &&
			record.Usage == usage && record.Active {
			return record, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetCertificateByFingerprint(ctx context.Context, fingerprint string) (*storage.CertificateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.certificates[fingerprint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

func (m *memStore) FindExpiringBefore(ctx context.Context, deadline time.Time) ([]*storage.CertificateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*storage.CertificateRecord
	for _, record := range m.certificates {
		if record.Active && record.NotAfter.Before(deadline) {
			records = append(records, record)
		}
	}
	return records, nil
}

func (m *memStore) DeactivateCertificate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.certificates[id]
	if !ok {
		return storage.ErrNotFound
	}
	record.Active = false
	return nil
}

func (m *memStore) Close(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error  { return nil }

// stubClient is a canned protocolClient.
type stubClient struct {
	testResult  bool
	testErr     error
	records     []camt.TransactionRecord
	downloadErr error
}

func (c *stubClient) TestConnection(ctx context.Context, conn *ebics.Connection) (bool, error) {
	return c.testResult, c.testErr
}

func (c *stubClient) DownloadStatements(ctx context.Context, conn *ebics.Connection, from, to time.Time) ([]camt.TransactionRecord, error) {
	return c.records, c.downloadErr
}

func testConfig() *config.Config {
	return &config.Config{
		EBICS: config.EBICSConfig{
			Timeout:                 5 * time.Second,
			KeySize:                 2048,
			CertificateValidityDays: 365,
		},
		Keys: config.KeysConfig{SealingSecret: "test-secret"},
	}
}

func newTestService(t *testing.T, store storage.Store, stub protocolClient) *Service {
	t.Helper()
	svc, err := NewService(testConfig(), store, nil)
	require.NoError(t, err)
	svc.newClient = func(signer *ebics.Signer) protocolClient { return stub }
	return svc
}

func seedConnection(t *testing.T, store *memStore) *storage.ConnectionRecord {
	t.Helper()
	record := &storage.ConnectionRecord{
		ID:        "conn-1",
		BankName:  "Test Bank AG",
		HostID:    "EBIXHOST",
		PartnerID: "PARTNER1",
		UserID:    "USER0001",
		BankURL:   "https://ebics.example.com/ebicsweb",
		Version:   ebics.ProtocolVersion,
		Status:    ebics.StatusInactive,
	}
	require.NoError(t, store.CreateConnection(context.Background(), record))
	return record
}

func TestService_TestConnection_PersistsActiveStatus(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{testResult: true})

	ok, err := svc.TestConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.True(t, ok)

	conn, err := store.GetConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, ebics.StatusActive, conn.Status)
	require.NotNil(t, conn.LastConnected)
	assert.WithinDuration(t, time.Now(), *conn.LastConnected, 5*time.Second)
}

func TestService_TestConnection_PersistsErrorOnRejection(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{testResult: false})

	ok, err := svc.TestConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.False(t, ok)

	conn, _ := store.GetConnection(context.Background(), "conn-1")
	assert.Equal(t, ebics.StatusError, conn.Status)
	assert.Nil(t, conn.LastConnected)
}

func TestService_TestConnection_PersistsErrorOnTransportFailure(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{
		testErr: &client.ConnectionError{HostID: "EBIXHOST"},
	})

	_, err := svc.TestConnection(context.Background(), "conn-1")
	require.Error(t, err)

	conn, _ := store.GetConnection(context.Background(), "conn-1")
	assert.Equal(t, ebics.StatusError, conn.Status)
}

func TestService_TestConnection_UnknownConnection(t *testing.T) {
	svc := newTestService(t, newMemStore(), &stubClient{})

	_, err := svc.TestConnection(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_DownloadStatements(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{
		records: []camt.TransactionRecord{
			{TransactionID: "TXN-1", Amount: "100.00", Currency: "CHF"},
			{TransactionID: "TXN-2", Amount: "-42.50", Currency: "CHF"},
		},
	})

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	records, err := svc.DownloadStatements(context.Background(), "conn-1", from, to)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	conn, _ := store.GetConnection(context.Background(), "conn-1")
	assert.Equal(t, ebics.StatusActive, conn.Status)
	assert.NotNil(t, conn.LastConnected)
}

func TestService_DownloadStatements_FailureMarksError(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{
		downloadErr: &client.TransactionError{HostID: "EBIXHOST", ReturnCode: "090003"},
	})

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	_, err := svc.DownloadStatements(context.Background(), "conn-1", from, to)
	require.Error(t, err)

	var txErr *client.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "090003", txErr.ReturnCode)

	conn, _ := store.GetConnection(context.Background(), "conn-1")
	assert.Equal(t, ebics.StatusError, conn.Status)
}

func TestService_SetupCertificates(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{})

	infos, err := svc.SetupCertificates(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Len(t, infos, 3)

	for _, usage := range []cert.UsageType{cert.UsageAuthentication, cert.UsageEncryption, cert.UsageSignature} {
		record, err := store.GetActiveCertificate(context.Background(), "conn-1", cert.TypeClient, usage)
		require.NoError(t, err, "usage %s", usage)
		assert.True(t, record.Active)
		assert.NotEmpty(t, record.CertificateDER)
		assert.NotEmpty(t, record.SealedPrivateKey)
		// Sealed, not raw PKCS#8.
		assert.NotEqual(t, record.CertificateDER, record.SealedPrivateKey)
	}
}

func TestService_SetupCertificates_RotatesActive(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{})

	first, err := svc.SetupCertificates(context.Background(), "conn-1")
	require.NoError(t, err)
	second, err := svc.SetupCertificates(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Fingerprint, second[0].Fingerprint)

	record, err := store.GetActiveCertificate(context.Background(), "conn-1", cert.TypeClient, cert.UsageAuthentication)
	require.NoError(t, err)
	assert.Equal(t, second[0].Fingerprint, record.Fingerprint)
}

func TestService_SetupCertificates_RequiresSealingSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Keys.SealingSecret = ""
	store := newMemStore()
	seedConnection(t, store)

	svc, err := NewService(cfg, store, nil)
	require.NoError(t, err)

	_, err = svc.SetupCertificates(context.Background(), "conn-1")
	assert.Error(t, err)
}

func TestService_ExpiringCertificates(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{})

	_, err := svc.SetupCertificates(context.Background(), "conn-1")
	require.NoError(t, err)

	soon, err := svc.ExpiringCertificates(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, soon)

	later, err := svc.ExpiringCertificates(context.Background(), 2*365*24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, later, 3)
}

func TestService_DeactivateCertificate(t *testing.T) {
	store := newMemStore()
	seedConnection(t, store)
	svc := newTestService(t, store, &stubClient{})

	infos, err := svc.SetupCertificates(context.Background(), "conn-1")
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateCertificate(context.Background(), infos[0].Fingerprint))

	_, err = store.GetActiveCertificate(context.Background(), "conn-1", cert.TypeClient, cert.UsageAuthentication)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
