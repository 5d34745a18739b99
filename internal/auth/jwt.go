// Package auth - jwt.go handles operator token creation, signing, and verification
// using a shared secret, including lazy secret initialization and claims parsing.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is used when SetIssuer has not been called.
const DefaultIssuer = "projectns"

var (
	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error

	issuerMu sync.RWMutex
	issuer   = DefaultIssuer
)

// Claims represents an operator token. AccountID and Account name the services
// account the operator is logged in as; Privileges are Scope strings.
type Claims struct {
	AccountID  string   `json:"account_id"`
	Account    string   `json:"account"`
	Privileges []string `json:"privs,omitempty"`
	jwt.RegisteredClaims
}

// SetIssuer sets the iss claim written by GenerateJWT and required by ValidateJWT.
func SetIssuer(iss string) {
	if iss == "" {
		iss = DefaultIssuer
	}
	issuerMu.Lock()
	issuer = iss
	issuerMu.Unlock()
}

func currentIssuer() string {
	issuerMu.RLock()
	defer issuerMu.RUnlock()
	return issuer
}

// isDevMode checks if we're in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that the JWT secret is properly configured.
// Outside dev mode this fails if PNS_JWT_SECRET is not set; in dev mode a random
// secret is generated and a warning logged. Call this at application startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("PNS_JWT_SECRET")

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				slog.Warn("PNS_JWT_SECRET not set, using an auto-generated secret for development; operator tokens will not survive a restart")
			} else {
				jwtSecretErr = errors.New("SECURITY ERROR: PNS_JWT_SECRET environment variable is required in production. " +
					"Generate a secure secret with: openssl rand -hex 32")
			}
			return
		}

		if len(secret) < 32 {
			slog.Warn("PNS_JWT_SECRET is shorter than the recommended 32 characters")
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if the secret cannot be validated.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT creates an operator token for accountID/account carrying privs.
func GenerateJWT(accountID, account string, privs []string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 1 * time.Hour
	}

	now := time.Now()
	claims := &Claims{
		AccountID:  accountID,
		Account:    account,
		Privileges: privs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    currentIssuer(),
			Subject:   accountID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses and validates an operator token
func ValidateJWT(tokenString string) (*Claims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(currentIssuer()), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Account == "" {
		return nil, errors.New("token has no account")
	}

	return claims, nil
}
