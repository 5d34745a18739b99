// accounts.go implements handlers for the account mirror: the services host pushes
// registrations, renames and drops here when it does not publish them over NATS.
package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/accounts"
)

// AccountHandlers handles account mirror endpoints
type AccountHandlers struct {
	dir *accounts.Directory
}

// NewAccountHandlers creates a new AccountHandlers instance
func NewAccountHandlers(dir *accounts.Directory) *AccountHandlers {
	return &AccountHandlers{dir: dir}
}

// CreateAccountRequest registers an account. ID is optional; the services host's own
// account ID should be sent when there is one.
type CreateAccountRequest struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
}

// RenameAccountRequest changes an account's display name
type RenameAccountRequest struct {
	Name string `json:"name" binding:"required"`
}

func accountError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, accounts.ErrUnknownAccount):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
	case errors.Is(err, accounts.ErrNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Account name already registered"})
	case errors.Is(err, accounts.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account names may not contain spaces or control characters"})
	default:
		slog.Error("account mirror update failed", "action", action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " account"})
	}
}

// @Summary      List accounts
// @Description  Lists every mirrored account ordered by name. Requires accounts:write scope.
// @Tags         Accounts
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "accounts: []accounts.Ref, total: int"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/accounts [get]
// ListAccountsHandler lists mirrored accounts
// GET /api/v1/accounts
func (h *AccountHandlers) ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		all := h.dir.All()
		c.JSON(http.StatusOK, gin.H{"accounts": all, "total": len(all)})
	}
}

// @Summary      Get account
// @Description  Gets a mirrored account by ID. Requires accounts:write scope.
// @Tags         Accounts
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Account ID"
// @Success      200  {object}  accounts.Ref
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Router       /api/v1/accounts/{id} [get]
// GetAccountHandler returns one account
// GET /api/v1/accounts/:id
func (h *AccountHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, ok := h.dir.FindByID(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		c.JSON(http.StatusOK, ref)
	}
}

// @Summary      Register account
// @Description  Adds an account to the mirror. Requires accounts:write scope.
// @Tags         Accounts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAccountRequest  true  "Account"
// @Success      201  {object}  accounts.Ref
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      409  {object}  map[string]interface{}  "Account name already registered"
// @Router       /api/v1/accounts [post]
// CreateAccountHandler registers an account
// POST /api/v1/accounts
func (h *AccountHandlers) CreateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		ref, err := h.dir.Register(c.Request.Context(), accounts.Ref{ID: req.ID, Name: req.Name})
		if err != nil {
			accountError(c, err, "register")
			return
		}
		c.JSON(http.StatusCreated, ref)
	}
}

// @Summary      Rename account
// @Description  Changes an account's display name. Project contacts follow the new name. Requires accounts:write scope.
// @Tags         Accounts
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                true  "Account ID"
// @Param        body  body  RenameAccountRequest  true  "New name"
// @Success      200  {object}  accounts.Ref
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Failure      400  {object}  map[string]interface{}  "Invalid account name"
// @Failure      409  {object}  map[string]interface{}  "Account name already registered"
// @Router       /api/v1/accounts/{id} [put]
// RenameAccountHandler renames an account
// PUT /api/v1/accounts/:id
func (h *AccountHandlers) RenameAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenameAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		ref, err := h.dir.Rename(c.Request.Context(), c.Param("id"), req.Name)
		if err != nil {
			accountError(c, err, "rename")
			return
		}
		c.JSON(http.StatusOK, ref)
	}
}

// @Summary      Drop account
// @Description  Removes an account. Its project contacts are removed and each removal is written to the command log. Requires accounts:write scope.
// @Tags         Accounts
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Account ID"
// @Success      200  {object}  map[string]interface{}  "message: string"
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Router       /api/v1/accounts/{id} [delete]
// DeleteAccountHandler drops an account
// DELETE /api/v1/accounts/:id
func (h *AccountHandlers) DeleteAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := h.dir.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			accountError(c, err, "drop")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Account dropped", "account": ref})
	}
}
