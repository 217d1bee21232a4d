// Package security stores LLM provider API keys encrypted at rest.
// Keys are sealed with AES-256-GCM under a scrypt-derived key; the
// random key material lives next to the store with owner-only
// permissions, so a copied credentials file alone is useless.
package security

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"callpulse/internal/infrastructure"
)

const (
	credentialsFile = "credentials.enc"
	keyFile         = "credentials.key"
	keyFileSize     = 32
)

// ErrNoAPIKey is returned when the keystore has no key for a provider.
var ErrNoAPIKey = errors.New("no api key stored for provider")

// Keystore persists provider API keys in a single encrypted file.
// All operations are safe for concurrent use.
type Keystore struct {
	dir    string
	config *EncryptionConfig
	logger *slog.Logger
	mu     sync.Mutex
}

// NewKeystore creates a keystore rooted at dir. The directory is
// created on first write.
func NewKeystore(dir string, logger *slog.Logger) *Keystore {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Keystore{
		dir:    dir,
		config: DefaultEncryptionConfig(),
		logger: logger.With(slog.String("component", "security.keystore")),
	}
}

// Path returns the location of the encrypted credentials file.
func (k *Keystore) Path() string {
	return filepath.Join(k.dir, credentialsFile)
}

// SetAPIKey stores or replaces the API key for a provider.
func (k *Keystore) SetAPIKey(provider, key string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}
	if key == "" {
		return errors.New("api key cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	passphrase, err := k.loadPassphrase(true)
	if err != nil {
		return err
	}

	store, err := k.readStore(passphrase)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if store == nil {
		store = make(map[string]string)
	}

	store[provider] = key
	if err := k.writeStore(passphrase, store); err != nil {
		return err
	}

	k.logger.Info("api key stored",
		slog.String("provider", provider),
		slog.String("key", Redact(key)))
	return nil
}

// APIKey returns the stored key for a provider. A keystore that has
// never been written reports ErrNoAPIKey for every provider.
func (k *Keystore) APIKey(provider string) (string, error) {
	if provider == "" {
		return "", errors.New("provider cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	passphrase, err := k.loadPassphrase(false)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoAPIKey
		}
		return "", err
	}

	store, err := k.readStore(passphrase)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoAPIKey
		}
		return "", err
	}

	key, ok := store[provider]
	if !ok {
		return "", ErrNoAPIKey
	}

	k.logger.Debug("api key loaded", slog.String("provider", provider))
	return key, nil
}

// DeleteAPIKey removes a provider's key. Deleting a key that does not
// exist is not an error.
func (k *Keystore) DeleteAPIKey(provider string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	passphrase, err := k.loadPassphrase(false)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	store, err := k.readStore(passphrase)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if _, ok := store[provider]; !ok {
		return nil
	}

	delete(store, provider)
	if err := k.writeStore(passphrase, store); err != nil {
		return err
	}

	k.logger.Info("api key deleted", slog.String("provider", provider))
	return nil
}

// Providers lists the providers with stored keys, sorted.
func (k *Keystore) Providers() ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	passphrase, err := k.loadPassphrase(false)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	store, err := k.readStore(passphrase)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	providers := make([]string, 0, len(store))
	for p := range store {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers, nil
}

// Reset deletes the credentials file and its key material. The next
// SetAPIKey starts a fresh store.
func (k *Keystore) Reset() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, name := range []string{credentialsFile, keyFile} {
		if err := os.Remove(filepath.Join(k.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}

	k.logger.Info("keystore reset")
	return nil
}

// loadPassphrase reads the local key material, generating it when
// create is set and no key file exists yet.
func (k *Keystore) loadPassphrase(create bool) ([]byte, error) {
	path := filepath.Join(k.dir, keyFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != keyFileSize {
			return nil, fmt.Errorf("keystore key file %s is corrupt", path)
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read keystore key: %w", err)
	}

	// The credentials file is undecryptable without its key material
	if _, statErr := os.Stat(filepath.Join(k.dir, credentialsFile)); statErr == nil {
		return nil, fmt.Errorf("keystore key file %s is missing", path)
	}

	if !create {
		return nil, err
	}

	if err := os.MkdirAll(k.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}

	data = make([]byte, keyFileSize)
	if _, err := rand.Read(data); err != nil {
		return nil, fmt.Errorf("generate keystore key: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write keystore key: %w", err)
	}

	k.logger.Info("keystore key material generated", slog.String("path", path))
	return data, nil
}

func (k *Keystore) readStore(passphrase []byte) (map[string]string, error) {
	data, err := os.ReadFile(k.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var payload EncryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}

	secret, err := Decrypt(&payload, passphrase, k.config)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}
	defer secret.Clear()

	store := make(map[string]string)
	if err := json.Unmarshal(secret.Data(), &store); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return store, nil
}

func (k *Keystore) writeStore(passphrase []byte, store map[string]string) error {
	plaintext, err := json.Marshal(store)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	defer zeroBytes(plaintext)

	payload, err := Encrypt(plaintext, passphrase, k.config)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}

	// Write-then-rename keeps a crash from truncating the store
	tmp := k.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	if err := os.Rename(tmp, k.Path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}

// Redact masks an API key for log output, keeping just enough to tell
// keys apart.
func Redact(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 12 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}
