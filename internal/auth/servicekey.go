// Package auth provides authentication primitives for the project services HTTP API.
// Two credentials are accepted: operator JWTs (stateless, carrying the services
// account and its privileges) and service keys (long-lived pre-shared keys for other
// services, stored only as bcrypt hashes in the configuration).
// See internal/middleware/auth.go for the request-time logic that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// ServiceKeyPrefix starts every generated service key
	ServiceKeyPrefix = "pns"

	// ServiceKeyLength is the length of the random part of a service key in bytes
	ServiceKeyLength = 32

	// DisplayPrefixLength is the number of characters to show in logs
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateServiceKey creates a new random service key.
// Returns: full key (to show once), bcrypt hash (to put in the config), display prefix
func GenerateServiceKey() (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, ServiceKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := ServiceKeyPrefix + "_" + base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash service key: %w", err)
	}

	return fullKey, string(hashBytes), shortPrefix(fullKey), nil
}

func shortPrefix(key string) string {
	if len(key) > DisplayPrefixLength {
		return key[:DisplayPrefixLength]
	}
	return key
}

// ValidateServiceKey checks if a provided key matches the stored hash
func ValidateServiceKey(providedKey, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// ExtractBearerToken extracts the credential from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("authorization token is empty")
	}
	return token, nil
}

// ServiceKey is one configured pre-shared key.
type ServiceKey struct {
	Name       string
	Hash       string
	Privileges []string
}

// Keyring holds the configured service keys. Keys are few, so every hash is tried.
type Keyring struct {
	keys []ServiceKey
}

// NewKeyring validates keys and returns a keyring.
func NewKeyring(keys []ServiceKey) (*Keyring, error) {
	for _, k := range keys {
		if k.Name == "" {
			return nil, errors.New("service key without a name")
		}
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			return nil, fmt.Errorf("service key %q: hash is not bcrypt: %w", k.Name, err)
		}
		if err := ValidateScopes(k.Privileges); err != nil {
			return nil, fmt.Errorf("service key %q: %w", k.Name, err)
		}
	}
	return &Keyring{keys: keys}, nil
}

// Authenticate returns the key matching token, or nil.
func (r *Keyring) Authenticate(token string) *ServiceKey {
	if r == nil || !strings.HasPrefix(token, ServiceKeyPrefix+"_") {
		return nil
	}
	for i := range r.keys {
		if ValidateServiceKey(token, r.keys[i].Hash) {
			return &r.keys[i]
		}
	}
	return nil
}

// Len returns the number of configured keys.
func (r *Keyring) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}
