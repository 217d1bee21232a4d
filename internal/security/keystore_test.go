package security

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewKeystore(t.TempDir(), logger)
}

func TestKeystoreSetAndGet(t *testing.T) {
	ks := testKeystore(t)

	require.NoError(t, ks.SetAPIKey("openai", "sk-test-1234567890abcdef"))

	key, err := ks.APIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890abcdef", key)
}

func TestKeystoreFilePermissions(t *testing.T) {
	ks := testKeystore(t)
	require.NoError(t, ks.SetAPIKey("openai", "sk-test-1234567890abcdef"))

	for _, name := range []string{credentialsFile, keyFile} {
		info, err := os.Stat(filepath.Join(ks.dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}
}

func TestKeystoreStoredFormIsEncrypted(t *testing.T) {
	ks := testKeystore(t)
	require.NoError(t, ks.SetAPIKey("openai", "sk-test-1234567890abcdef"))

	raw, err := os.ReadFile(ks.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-test-1234567890abcdef")
}

func TestKeystoreMissingKey(t *testing.T) {
	ks := testKeystore(t)

	_, err := ks.APIKey("openai")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	require.NoError(t, ks.SetAPIKey("openai", "sk-test-1234567890abcdef"))

	_, err = ks.APIKey("anthropic")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestKeystoreOverwrite(t *testing.T) {
	ks := testKeystore(t)

	require.NoError(t, ks.SetAPIKey("openai", "sk-old-1234567890"))
	require.NoError(t, ks.SetAPIKey("openai", "sk-new-0987654321"))

	key, err := ks.APIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-new-0987654321", key)
}

func TestKeystoreMultipleProviders(t *testing.T) {
	ks := testKeystore(t)

	require.NoError(t, ks.SetAPIKey("openai", "sk-openai-1234567890"))
	require.NoError(t, ks.SetAPIKey("anthropic", "sk-ant-1234567890"))

	providers, err := ks.Providers()
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "openai"}, providers)
}

func TestKeystoreProvidersEmpty(t *testing.T) {
	ks := testKeystore(t)

	providers, err := ks.Providers()
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestKeystoreDelete(t *testing.T) {
	ks := testKeystore(t)

	require.NoError(t, ks.SetAPIKey("openai", "sk-test-1234567890abcdef"))
	require.NoError(t, ks.DeleteAPIKey("openai"))

	_, err := ks.APIKey("openai")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	// Deleting again is a no-op
	assert.NoError(t, ks.DeleteAPIKey("openai"))
}

func TestKeystoreDeleteWithoutStore(t *testing.T) {
	ks := testKeystore(t)
	assert.NoError(t, ks.DeleteAPIKey("openai"))
}

func TestKeystorePersistsAcrossInstances(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	first := NewKeystore(dir, logger)
	require.NoError(t, first.SetAPIKey("openai", "sk-test-1234567890abcdef"))

	second := NewKeystore(dir, logger)
	key, err := second.APIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890abcdef", key)
}

func TestKeystoreMissingKeyFile(t *testing.T) {
	ks := testKeystore(t)
	require.NoError(t, ks.SetAPIKey("openai", "sk-test-1234567890abcdef"))

	require.NoError(t, os.Remove(filepath.Join(ks.dir, keyFile)))

	_, err := ks.APIKey("openai")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoAPIKey)
	assert.ErrorContains(t, err, "missing")
}

func TestKeystoreReset(t *testing.T) {
	ks := testKeystore(t)
	require.NoError(t, ks.SetAPIKey("openai", "sk-test-1234567890abcdef"))

	require.NoError(t, ks.Reset())

	_, err := ks.APIKey("openai")
	assert.ErrorIs(t, err, ErrNoAPIKey)
	_, err = os.Stat(ks.Path())
	assert.True(t, os.IsNotExist(err))

	// The store comes back after a reset
	require.NoError(t, ks.SetAPIKey("openai", "sk-fresh-1234567890"))
	key, err := ks.APIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-fresh-1234567890", key)
}

func TestKeystoreRejectsEmptyArguments(t *testing.T) {
	ks := testKeystore(t)

	assert.Error(t, ks.SetAPIKey("", "sk-test-1234567890abcdef"))
	assert.Error(t, ks.SetAPIKey("openai", ""))

	_, err := ks.APIKey("")
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "****"},
		{"sk-proj-abcdef123456", "sk-...3456"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.key))
	}
}
