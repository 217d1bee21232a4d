package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/scrypt"
)

// integrityDomain separates the keystore integrity hash from other
// SHA-256 uses
const integrityDomain = "CALLPULSE-KEYSTORE-V1"

// EncryptionConfig defines the scrypt and AES-GCM parameters used for
// secrets at rest
type EncryptionConfig struct {
	// scrypt parameters (OWASP recommended minimum)
	SCryptN      int // CPU/memory cost parameter (32768 minimum)
	SCryptR      int // Block size parameter (8 recommended)
	SCryptP      int // Parallelization parameter (1 recommended)
	SCryptKeyLen int // Key length in bytes (32 for AES-256)

	// AES-GCM parameters
	NonceSize int // 96-bit nonce size for GCM
	TagSize   int // 128-bit authentication tag
}

// DefaultEncryptionConfig returns the parameters every keystore uses
// unless a caller overrides them
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		SCryptN:      32768,
		SCryptR:      8,
		SCryptP:      1,
		SCryptKeyLen: 32,
		NonceSize:    12,
		TagSize:      16,
	}
}

// ValidateEncryptionConfig rejects parameter choices below the
// supported floor
func ValidateEncryptionConfig(config *EncryptionConfig) error {
	if config == nil {
		return errors.New("encryption config cannot be nil")
	}
	if config.SCryptN < 32768 {
		return errors.New("SCryptN must be at least 32768")
	}
	if config.SCryptR < 8 {
		return errors.New("SCryptR must be at least 8")
	}
	if config.SCryptP < 1 {
		return errors.New("SCryptP must be at least 1")
	}
	if config.SCryptKeyLen != 32 {
		return errors.New("SCryptKeyLen must be 32 for AES-256")
	}
	if config.NonceSize != 12 {
		return errors.New("NonceSize must be 12 for AES-GCM")
	}
	if config.TagSize != 16 {
		return errors.New("TagSize must be 16 for AES-GCM")
	}
	return nil
}

// EncryptedPayload is the on-disk form of an encrypted secret
type EncryptedPayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"auth_tag"`
	Integrity  []byte `json:"integrity"`
	Timestamp  int64  `json:"timestamp"`
}

// Secret holds decrypted data that can be wiped after use
type Secret struct {
	data    []byte
	cleared bool
}

// Data returns the decrypted bytes, or nil once cleared
func (s *Secret) Data() []byte {
	if s.cleared {
		return nil
	}
	return s.data
}

// Clear overwrites the secret in memory. Safe to call more than once.
func (s *Secret) Clear() {
	if s.cleared {
		return
	}
	if s.data != nil {
		rand.Read(s.data)
		for i := range s.data {
			s.data[i] = 0
		}
	}
	s.cleared = true
	s.data = nil
}

// Encrypt seals plaintext with AES-256-GCM under a key derived from the
// passphrase via scrypt. Each call uses a fresh salt and nonce.
func Encrypt(plaintext, passphrase []byte, config *EncryptionConfig) (*EncryptedPayload, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}
	if len(passphrase) < 16 {
		return nil, errors.New("passphrase must be at least 16 bytes")
	}
	if config == nil {
		config = DefaultEncryptionConfig()
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key, err := scrypt.Key(passphrase, salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer zeroBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, config.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	// gcm.Seal appends the tag; store it separately so the payload is
	// explicit about its parts
	ciphertext := sealed[:len(sealed)-config.TagSize]
	authTag := sealed[len(sealed)-config.TagSize:]

	return &EncryptedPayload{
		Version:    1,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		AuthTag:    authTag,
		Integrity:  integrityHash(ciphertext, salt, nonce),
		Timestamp:  time.Now().Unix(),
	}, nil
}

// Decrypt opens a payload produced by Encrypt. The integrity hash is
// checked before the scrypt derivation so tampering fails fast.
func Decrypt(payload *EncryptedPayload, passphrase []byte, config *EncryptionConfig) (*Secret, error) {
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}
	if len(passphrase) < 16 {
		return nil, errors.New("passphrase must be at least 16 bytes")
	}
	if config == nil {
		config = DefaultEncryptionConfig()
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported payload version: %d", payload.Version)
	}

	expected := integrityHash(payload.Ciphertext, payload.Salt, payload.Nonce)
	if !SecureCompare(payload.Integrity, expected) {
		return nil, errors.New("integrity verification failed")
	}

	key, err := scrypt.Key(passphrase, payload.Salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer zeroBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(payload.Ciphertext)+len(payload.AuthTag))
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.AuthTag...)

	plaintext, err := gcm.Open(nil, payload.Nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return &Secret{data: plaintext}, nil
}

// SecureCompare performs a constant-time comparison
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

func integrityHash(ciphertext, salt, nonce []byte) []byte {
	h := sha256.New()
	h.Write([]byte(integrityDomain))
	h.Write(ciphertext)
	h.Write(salt)
	h.Write(nonce)
	return h.Sum(nil)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
