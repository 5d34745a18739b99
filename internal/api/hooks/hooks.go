// Package hooks exposes the registry's policy hooks to other services. A channel
// services bridge calls these before and after channel registration, when a contact
// claims a channel, and when it renders account or channel INFO.
package hooks

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/module"
	"github.com/projectns/projectns/internal/policy"
	"github.com/projectns/projectns/internal/projects"
)

// Handler serves the hook endpoints.
type Handler struct {
	host *module.Host
}

// NewHandler creates a new hook handler
func NewHandler(host *module.Host) *Handler {
	return &Handler{host: host}
}

// ChannelRequest names an account acting on a channel. The account may be empty for
// hooks that do not depend on who is asking.
type ChannelRequest struct {
	AccountID string `json:"account_id"`
	Channel   string `json:"channel" binding:"required"`
}

// UserInfoRequest asks for the project lines of target's INFO as viewer sees them.
type UserInfoRequest struct {
	ViewerID string `json:"viewer_id"`
	Auspex   bool   `json:"auspex"`
	TargetID string `json:"target_id" binding:"required"`
}

// DecisionResponse is the JSON form of policy.Decision.
type DecisionResponse struct {
	Allowed   bool     `json:"allowed"`
	Project   string   `json:"project,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
	Lines     []string `json:"lines"`
}

func decisionResponse(d policy.Decision) DecisionResponse {
	lines := d.Lines
	if lines == nil {
		lines = []string{}
	}
	return DecisionResponse{Allowed: d.Allowed, Project: d.Project, Namespace: d.Namespace, Lines: lines}
}

func (h *Handler) hooks(c *gin.Context, fn func(*policy.Hooks)) bool {
	err := h.host.Do(func(in *module.Instance) error {
		fn(in.Hooks)
		return nil
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
		return false
	}
	return true
}

// account resolves id through the account mirror. An empty id is the anonymous account;
// an unknown one is reported to the caller.
func (h *Handler) account(c *gin.Context, id string) (accounts.Ref, bool) {
	if id == "" {
		return accounts.Ref{}, true
	}
	ref, ok := h.host.Accounts().FindByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return accounts.Ref{}, false
	}
	return ref, true
}

// @Summary      Channel to project
// @Description  Resolves the project whose namespace covers a channel.
// @Tags         Hooks
// @Security     Bearer
// @Produce      json
// @Param        channel  query  string  true  "Channel name"
// @Success      200  {object}  map[string]interface{}  "project: projects.ProjectView, namespace: string"
// @Failure      400  {object}  map[string]interface{}  "channel is required"
// @Failure      404  {object}  map[string]interface{}  "No project owns the channel"
// @Router       /api/v1/hooks/channel [get]
// ChannelProjectHandler resolves a channel to its project
// GET /api/v1/hooks/channel?channel=#foo
func (h *Handler) ChannelProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Query("channel")
		if channel == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "channel is required"})
			return
		}
		var (
			view projects.ProjectView
			ns   string
			ok   bool
			info string
		)
		if !h.hooks(c, func(hk *policy.Hooks) {
			view, ns, ok = hk.ChannelToProject(channel)
			info = hk.ChannelInfo(channel)
		}) {
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "No project owns the channel", "info": info})
			return
		}
		c.JSON(http.StatusOK, gin.H{"project": view, "namespace": ns, "info": info})
	}
}

// @Summary      Projects for account
// @Description  Lists the projects an account is a contact for.
// @Tags         Hooks
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Account ID"
// @Success      200  {object}  map[string]interface{}  "projects: []projects.ProjectView"
// @Router       /api/v1/hooks/accounts/{id}/projects [get]
// AccountProjectsHandler lists the projects of a contact
// GET /api/v1/hooks/accounts/:id/projects
func (h *Handler) AccountProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []projects.ProjectView
		if !h.hooks(c, func(hk *policy.Hooks) { list = hk.ProjectsForAccount(c.Param("id")) }) {
			return
		}
		if list == nil {
			list = []projects.ProjectView{}
		}
		c.JSON(http.StatusOK, gin.H{"projects": list})
	}
}

// @Summary      Can register
// @Description  Decides whether an account may register a channel. When refused, lines carries the notices to send the user.
// @Tags         Hooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ChannelRequest  true  "Account and channel"
// @Success      200  {object}  DecisionResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Router       /api/v1/hooks/can-register [post]
// CanRegisterHandler runs the channel registration check
// POST /api/v1/hooks/can-register
func (h *Handler) CanRegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChannelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		acct, ok := h.account(c, req.AccountID)
		if !ok {
			return
		}
		var d policy.Decision
		if !h.hooks(c, func(hk *policy.Hooks) { d = hk.CanRegister(acct, req.Channel) }) {
			return
		}
		c.JSON(http.StatusOK, decisionResponse(d))
	}
}

// @Summary      Did register
// @Description  Returns the notices to show after a channel in a project namespace was registered.
// @Tags         Hooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ChannelRequest  true  "Channel"
// @Success      200  {object}  map[string]interface{}  "lines: []string"
// @Router       /api/v1/hooks/did-register [post]
// DidRegisterHandler renders the post-registration notice
// POST /api/v1/hooks/did-register
func (h *Handler) DidRegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChannelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		var lines []string
		if !h.hooks(c, func(hk *policy.Hooks) { lines = hk.DidRegister(req.Channel) }) {
			return
		}
		if lines == nil {
			lines = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"lines": lines})
	}
}

// @Summary      Claim channel
// @Description  Decides whether an account may take founder access to a channel as a contact of the owning project. The caller performs the access change.
// @Tags         Hooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ChannelRequest  true  "Account and channel"
// @Success      200  {object}  DecisionResponse
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Router       /api/v1/hooks/claim [post]
// ClaimHandler runs the claim check
// POST /api/v1/hooks/claim
func (h *Handler) ClaimHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChannelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		acct, ok := h.account(c, req.AccountID)
		if !ok {
			return
		}
		var d policy.Decision
		if !h.hooks(c, func(hk *policy.Hooks) { d = hk.Claim(acct, req.Channel) }) {
			return
		}
		c.JSON(http.StatusOK, decisionResponse(d))
	}
}

// @Summary      Account info lines
// @Description  Renders the project lines of an account INFO as seen by the viewer. Hidden contacts are shown only to the account itself and auspex viewers.
// @Tags         Hooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UserInfoRequest  true  "Viewer and target"
// @Success      200  {object}  map[string]interface{}  "lines: []string"
// @Failure      404  {object}  map[string]interface{}  "Account not found"
// @Router       /api/v1/hooks/user-info [post]
// UserInfoHandler renders account INFO lines
// POST /api/v1/hooks/user-info
func (h *Handler) UserInfoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UserInfoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		target, ok := h.account(c, req.TargetID)
		if !ok {
			return
		}
		viewer, ok := h.account(c, req.ViewerID)
		if !ok {
			return
		}
		var lines []string
		if !h.hooks(c, func(hk *policy.Hooks) {
			lines = hk.UserInfo(policy.Viewer{Account: viewer, Auspex: req.Auspex}, target)
		}) {
			return
		}
		if lines == nil {
			lines = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"lines": lines})
	}
}
