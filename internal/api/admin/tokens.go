// tokens.go implements operator token issuance. Operators authenticate as services
// accounts, so a token can only be issued for an account the mirror knows.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/auth"
)

// MaxTokenLifetime caps expires_in_hours.
const MaxTokenLifetime = 30 * 24 * time.Hour

// TokenHandlers issues operator tokens
type TokenHandlers struct {
	dir *accounts.Directory
}

// NewTokenHandlers creates a new TokenHandlers instance
func NewTokenHandlers(dir *accounts.Directory) *TokenHandlers {
	return &TokenHandlers{dir: dir}
}

// IssueTokenRequest represents the request to issue an operator token
type IssueTokenRequest struct {
	Account        string   `json:"account" binding:"required"`
	Privileges     []string `json:"privileges"`
	ExpiresInHours int      `json:"expires_in_hours"`
}

// @Summary      Issue operator token
// @Description  Signs an operator JWT for a mirrored account with the given privileges. Requires admin scope.
// @Tags         Auth
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  IssueTokenRequest  true  "Token request"
// @Success      201  {object}  map[string]interface{}  "token, account, expires_at"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or scope"
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Router       /api/v1/admin/tokens [post]
// IssueTokenHandler signs an operator token
// POST /api/v1/admin/tokens
func (h *TokenHandlers) IssueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IssueTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if err := auth.ValidateScopes(req.Privileges); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ref, ok := h.dir.FindByName(req.Account)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}

		lifetime := time.Duration(req.ExpiresInHours) * time.Hour
		if lifetime <= 0 {
			lifetime = time.Hour
		}
		if lifetime > MaxTokenLifetime {
			lifetime = MaxTokenLifetime
		}

		token, err := auth.GenerateJWT(ref.ID, ref.Name, req.Privileges, lifetime)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign token"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"token":      token,
			"account":    ref,
			"expires_at": time.Now().Add(lifetime).UTC().Format(time.RFC3339),
		})
	}
}
