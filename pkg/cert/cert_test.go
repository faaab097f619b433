package cert

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair_SupportedSizes(t *testing.T) {
	store := NewStore(nil)

	for _, bits := range []int{2048, 3072, 4096} {
		kp, err := store.GenerateKeyPair(bits)
		require.NoError(t, err, "key size %d", bits)
		require.NotNil(t, kp.Private)
		require.NotNil(t, kp.Public)
		assert.Equal(t, bits, kp.Public.N.BitLen())
	}
}

func TestGenerateKeyPair_UnsupportedSize(t *testing.T) {
	store := NewStore(nil)

	_, err := store.GenerateKeyPair(1024)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestGenerateSelfSigned(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)

	cert, err := store.GenerateSelfSigned(kp, "CN=EBICS Test Client,O=ACME,C=DE", 365)
	require.NoError(t, err)

	assert.Equal(t, cert.Subject, cert.Issuer)
	assert.Contains(t, cert.Subject, "CN=EBICS Test Client")
	assert.Equal(t, "RSA", cert.KeyAlgorithm)
	assert.Equal(t, 2048, cert.KeySize)
	assert.NotEmpty(t, cert.PrivateKeyDER)

	validity := cert.NotAfter.Sub(cert.NotBefore)
	assert.InDelta(t, 365*24, validity.Hours(), 25)

	// Freshly generated certificates must validate immediately.
	assert.True(t, store.Validate(cert))
}

func TestGenerateSelfSigned_UniqueSerials(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)

	a, err := store.GenerateSelfSigned(kp, "CN=A", 30)
	require.NoError(t, err)
	b, err := store.GenerateSelfSigned(kp, "CN=A", 30)
	require.NoError(t, err)

	assert.NotEqual(t, a.SerialNumber, b.SerialNumber)
}

func TestValidate_Expired(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)

	cert, err := store.GenerateSelfSigned(kp, "CN=Expired", -1)
	require.NoError(t, err)
	assert.True(t, time.Now().After(cert.NotAfter))

	assert.False(t, store.Validate(cert))
}

func TestFingerprint_Deterministic(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)
	cert, err := store.GenerateSelfSigned(kp, "CN=Fingerprint", 30)
	require.NoError(t, err)

	first := store.Fingerprint(cert)
	second := store.Fingerprint(cert)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), first)
	assert.Equal(t, first, cert.Fingerprint)
}

func TestPEMRoundTrip(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)
	cert, err := store.GenerateSelfSigned(kp, "CN=Round Trip,O=ACME", 30)
	require.NoError(t, err)

	pemStr := store.ToPEM(cert)
	assert.Contains(t, pemStr, "-----BEGIN CERTIFICATE-----")
	assert.Contains(t, pemStr, "-----END CERTIFICATE-----")

	loaded, err := store.Load([]byte(pemStr))
	require.NoError(t, err)
	assert.Equal(t, cert.Subject, loaded.Subject)
	assert.Equal(t, cert.SerialNumber, loaded.SerialNumber)
	assert.Equal(t, cert.Fingerprint, loaded.Fingerprint)

	loadedPub, err := loaded.PublicKey()
	require.NoError(t, err)
	assert.True(t, kp.Public.Equal(loadedPub))
}

func TestDERRoundTrip(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)
	cert, err := store.GenerateSelfSigned(kp, "CN=DER", 30)
	require.NoError(t, err)

	loaded, err := store.Load(cert.Raw)
	require.NoError(t, err)
	assert.Equal(t, cert.Subject, loaded.Subject)
	assert.Equal(t, cert.SerialNumber, loaded.SerialNumber)
}

func TestLoad_GarbageFails(t *testing.T) {
	store := NewStore(nil)

	_, err := store.Load([]byte("this is not a certificate"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCertificateInvalid)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)
	cert, err := store.GenerateSelfSigned(kp, "CN=Keyed", 30)
	require.NoError(t, err)

	key, err := cert.PrivateKey()
	require.NoError(t, err)
	assert.True(t, kp.Private.Equal(key))
}

func TestInfo(t *testing.T) {
	store := NewStore(nil)
	kp, err := store.GenerateKeyPair(2048)
	require.NoError(t, err)
	cert, err := store.GenerateSelfSigned(kp, "CN=Info", 30)
	require.NoError(t, err)

	info := store.Info(cert)
	assert.Equal(t, cert.Subject, info.Subject)
	assert.Equal(t, cert.Fingerprint, info.Fingerprint)
	assert.Equal(t, "RSA", info.KeyAlgorithm)
}
