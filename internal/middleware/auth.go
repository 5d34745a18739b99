package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	AccountKey    = "account"
	AccountIDKey  = "account_id"
	ScopesKey     = "scopes"
	AuthMethodKey = "auth_method"
	ServiceKey    = "service"
)

// Auth methods stored under AuthMethodKey.
const (
	AuthMethodJWT        = "jwt"
	AuthMethodServiceKey = "service_key"
)

// AuthMiddleware authenticates the bearer credential. Service keys are recognised by
// their pns_ prefix and checked against keys; anything else must be an operator JWT.
//
// An operator request carries the account it acts as, which becomes the source of
// any command it runs. A service key request carries only the service name and its
// configured privileges.
func AuthMiddleware(keys *auth.Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		if strings.HasPrefix(token, auth.ServiceKeyPrefix+"_") {
			key := keys.Authenticate(token)
			if key == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.Set(ServiceKey, key.Name)
			c.Set(AuthMethodKey, AuthMethodServiceKey)
			c.Set(ScopesKey, key.Privileges)
			c.Next()
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.Set(AccountKey, claims.Account)
		c.Set(AccountIDKey, claims.AccountID)
		c.Set(AuthMethodKey, AuthMethodJWT)
		c.Set(ScopesKey, claims.Privileges)
		c.Next()
	}
}

// GetScopes returns the privileges AuthMiddleware stored, or nil.
func GetScopes(c *gin.Context) []string {
	return c.GetStringSlice(ScopesKey)
}

// RequireScope checks that the authenticated caller has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ScopesKey); !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		if !auth.HasScope(GetScopes(c), scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}
		c.Next()
	}
}

// RequireAnyScope checks that the authenticated caller has at least one of the scopes
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ScopesKey); !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		if !auth.HasAnyScope(GetScopes(c), scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Missing required scope"})
			return
		}
		c.Next()
	}
}

// RequireOperator rejects service key callers. Commands need an account to act as.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(AuthMethodKey) != AuthMethodJWT {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "An operator token is required"})
			return
		}
		c.Next()
	}
}
