// Package operator serves the operator-facing HTTP surface: running project commands
// and reading the registry.
package operator

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/auth"
	"github.com/projectns/projectns/internal/commands"
	"github.com/projectns/projectns/internal/middleware"
	"github.com/projectns/projectns/internal/module"
)

// CommandHandler runs commands against the module host.
type CommandHandler struct {
	host *module.Host
}

// NewCommandHandler creates a new CommandHandler
func NewCommandHandler(host *module.Host) *CommandHandler {
	return &CommandHandler{host: host}
}

// CommandRequest is either a raw line or a verb with its arguments.
type CommandRequest struct {
	Line string   `json:"line"`
	Verb string   `json:"verb"`
	Args []string `json:"args"`
}

// SourceFromContext builds the command source for an authenticated operator request.
// Privileges are expanded so that the admin scope carries project:admin.
func SourceFromContext(c *gin.Context) commands.Source {
	return commands.Source{
		Account: accounts.Ref{
			ID:   c.GetString(middleware.AccountIDKey),
			Name: c.GetString(middleware.AccountKey),
		},
		Privileges: auth.ExpandScopes(middleware.GetScopes(c)),
		RequestID:  middleware.GetRequestID(c),
	}
}

// @Summary      Execute command
// @Description  Runs one project command as the authenticated operator. The body carries either a raw line ("CONTACT atheme ADD jilles") or a verb plus arguments. A failed command still returns 200; the fault is reported in the body.
// @Tags         Commands
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CommandRequest  true  "Command"
// @Success      200  {object}  commands.Result
// @Failure      400  {object}  map[string]interface{}  "No command given"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "An operator token is required"
// @Router       /api/v1/command [post]
// ExecuteHandler runs a single command
// POST /api/v1/command
func (h *CommandHandler) ExecuteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CommandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		verb, args := strings.ToUpper(strings.TrimSpace(req.Verb)), req.Args
		if req.Line != "" {
			verb, args = commands.ParseLine(req.Line)
		}
		if verb == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No command given"})
			return
		}

		res := h.host.Execute(c.Request.Context(), SourceFromContext(c), verb, args)
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      List commands
// @Description  Lists the commands the service understands with their syntax and required privilege.
// @Tags         Commands
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "commands: []commands.CommandInfo"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/commands [get]
// ListCommandsHandler lists the command table
// GET /api/v1/commands
func (h *CommandHandler) ListCommandsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var infos []commands.CommandInfo
		err := h.host.Do(func(in *module.Instance) error {
			infos = in.Commands.Commands()
			return nil
		})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"commands": infos})
	}
}
