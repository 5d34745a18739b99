// Package crypto encrypts registry backups at rest. A backup leaves the host whenever it
// is shipped to object storage, and it carries every contact and staff mark, so the
// backup job seals it with AES-256-GCM under a key derived from an operator passphrase.
//
// Sealed layout:
//
//	"PNSE" | version (1 byte) | salt (16 bytes) | nonce | ciphertext+tag
//
// A fresh salt and nonce are drawn for every Seal; the key is re-derived from the header
// on Open, so a passphrase is all a restore needs.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sealedMagic   = "PNSE"
	sealedVersion = 1
	saltSize      = 16
	keySize       = 32

	// DefaultIterations is the PBKDF2 work factor used by NewBackupCipher.
	DefaultIterations = 210000
	minIterations     = 1000
)

var (
	// ErrEmptyPassphrase is returned when a cipher is built without a passphrase.
	ErrEmptyPassphrase = errors.New("crypto: passphrase must not be empty")
	// ErrNotSealed is returned by Open when the data lacks the sealed header.
	ErrNotSealed = errors.New("crypto: data is not a sealed backup")
	// ErrUnsupportedVersion is returned for a sealed header from a newer build.
	ErrUnsupportedVersion = errors.New("crypto: unsupported sealed backup version")
	// ErrCiphertextCorrupted is returned when the sealed data is truncated.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when authentication fails: wrong passphrase or tampering.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
)

// BackupCipher seals and opens backup files.
type BackupCipher struct {
	passphrase []byte
	iterations int
	rand       io.Reader
}

// NewBackupCipher creates a cipher using DefaultIterations.
func NewBackupCipher(passphrase string) (*BackupCipher, error) {
	return NewBackupCipherWithIterations(passphrase, DefaultIterations)
}

// NewBackupCipherWithIterations creates a cipher with an explicit PBKDF2 work factor.
// Factors below 1000 are raised to 1000.
func NewBackupCipherWithIterations(passphrase string, iterations int) (*BackupCipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if iterations < minIterations {
		iterations = minIterations
	}
	return &BackupCipher{
		passphrase: []byte(passphrase),
		iterations: iterations,
		rand:       rand.Reader,
	}, nil
}

// IsSealed reports whether data starts with the sealed header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(sealedMagic))
}

// Seal encrypts plaintext. The header is authenticated as additional data.
func (bc *BackupCipher) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(bc.rand, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := bc.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(bc.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	header := make([]byte, 0, len(sealedMagic)+1+saltSize+len(nonce))
	header = append(header, sealedMagic...)
	header = append(header, sealedVersion)
	header = append(header, salt...)
	header = append(header, nonce...)

	return aead.Seal(header, nonce, plaintext, header), nil
}

// Open decrypts data produced by Seal.
func (bc *BackupCipher) Open(data []byte) ([]byte, error) {
	if !IsSealed(data) {
		return nil, ErrNotSealed
	}
	rest := data[len(sealedMagic):]
	if len(rest) < 1+saltSize {
		return nil, ErrCiphertextCorrupted
	}
	if rest[0] != sealedVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rest[0])
	}
	salt := rest[1 : 1+saltSize]

	aead, err := bc.aead(salt)
	if err != nil {
		return nil, err
	}

	headerLen := len(sealedMagic) + 1 + saltSize + aead.NonceSize()
	if len(data) < headerLen+aead.Overhead() {
		return nil, ErrCiphertextCorrupted
	}
	header := data[:headerLen]
	nonce := header[headerLen-aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, data[headerLen:], header)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (bc *BackupCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(bc.passphrase, salt, bc.iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
