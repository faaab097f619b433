package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  mongodb:
    uri: mongodb://localhost:27017
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.EBICS.Timeout)
	assert.Equal(t, 2048, cfg.EBICS.KeySize)
	assert.Equal(t, 365, cfg.EBICS.CertificateValidityDays)
	assert.Equal(t, "ebics_gateway", cfg.Storage.MongoDB.Database)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
ebics:
  timeout: 10s
  keySize: 4096
  certificateValidityDays: 730
storage:
  mongodb:
    uri: mongodb://db.internal:27017
    database: gateway_prod
keys:
  sealingSecret: super-secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.EBICS.Timeout)
	assert.Equal(t, 4096, cfg.EBICS.KeySize)
	assert.Equal(t, 730, cfg.EBICS.CertificateValidityDays)
	assert.Equal(t, "gateway_prod", cfg.Storage.MongoDB.Database)
	assert.Equal(t, "super-secret", cfg.Keys.SealingSecret)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_MONGODB_URI", "mongodb://expanded:27017")

	path := writeConfig(t, `
storage:
  mongodb:
    uri: ${TEST_MONGODB_URI}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://expanded:27017", cfg.Storage.MongoDB.URI)
}

func TestLoad_MissingURI(t *testing.T) {
	path := writeConfig(t, `
ebics:
  keySize: 2048
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.mongodb.uri is required")
}

func TestLoad_InvalidKeySize(t *testing.T) {
	path := writeConfig(t, `
ebics:
  keySize: 1024
storage:
  mongodb:
    uri: mongodb://localhost:27017
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keySize")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
