package ebics

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyAndCert(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "EBICS Auth Test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return key, cert
}

func TestNewSigner_RequiresKeyAndCert(t *testing.T) {
	key, cert := testKeyAndCert(t)

	_, err := NewSigner(nil, cert)
	assert.Error(t, err)

	_, err = NewSigner(key, nil)
	assert.Error(t, err)

	signer, err := NewSigner(key, cert)
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

func TestSigner_SignAddsAuthSignature(t *testing.T) {
	key, cert := testKeyAndCert(t)
	signer, err := NewSigner(key, cert)
	require.NoError(t, err)

	raw, err := Marshal(NewHKDRequest(testConnection()))
	require.NoError(t, err)

	signed, err := signer.Sign(raw)
	require.NoError(t, err)

	signedStr := string(signed)
	assert.Contains(t, signedStr, "<AuthSignature>")
	assert.Contains(t, signedStr, "<ds:Signature")
	assert.Contains(t, signedStr, "<ds:SignatureValue>")
	assert.Contains(t, signedStr, "<ds:X509Certificate>")
	assert.Contains(t, signedStr, "<Nonce>")
	assert.Contains(t, signedStr, "<Timestamp>")
	assert.NotContains(t, signedStr, "placeholder")
}

func TestSigner_SignVerifyRoundTrip(t *testing.T) {
	key, cert := testKeyAndCert(t)
	signer, err := NewSigner(key, cert)
	require.NoError(t, err)

	raw, err := Marshal(NewHKDRequest(testConnection()))
	require.NoError(t, err)

	signed, err := signer.Sign(raw)
	require.NoError(t, err)

	assert.NoError(t, signer.Verify(signed))
}

func TestSigner_RejectsNonRequest(t *testing.T) {
	key, cert := testKeyAndCert(t)
	signer, err := NewSigner(key, cert)
	require.NoError(t, err)

	_, err = signer.Sign([]byte("<somethingElse/>"))
	assert.Error(t, err)
}
