// projects.go implements read-only registry endpoints: project listing and lookup,
// marks, namespace listings and totals.
package operator

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/module"
	"github.com/projectns/projectns/internal/projects"
)

// ProjectHandler serves registry reads.
type ProjectHandler struct {
	host *module.Host
}

// NewProjectHandler creates a new ProjectHandler
func NewProjectHandler(host *module.Host) *ProjectHandler {
	return &ProjectHandler{host: host}
}

func (h *ProjectHandler) registry(c *gin.Context, fn func(reg *projects.Registry)) bool {
	err := h.host.Do(func(in *module.Instance) error {
		fn(in.Registry)
		return nil
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
		return false
	}
	return true
}

// @Summary      List projects
// @Description  Lists projects, optionally filtered by a glob over the project name. Requires project:auspex.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        pattern  query  string  false  "Glob pattern (default *)"
// @Success      200  {object}  map[string]interface{}  "projects: []projects.ProjectView, total: int"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Missing required scope"
// @Router       /api/v1/projects [get]
// ListProjectsHandler lists projects
// GET /api/v1/projects?pattern=*
func (h *ProjectHandler) ListProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.DefaultQuery("pattern", "*")
		var list []projects.ProjectView
		if !h.registry(c, func(reg *projects.Registry) { list = reg.List(pattern) }) {
			return
		}
		if list == nil {
			list = []projects.ProjectView{}
		}
		c.JSON(http.StatusOK, gin.H{"projects": list, "total": len(list)})
	}
}

// @Summary      Get project
// @Description  Returns one project with its namespaces, contacts and marks. Requires project:auspex.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Project name"
// @Success      200  {object}  projects.ProjectView
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Router       /api/v1/projects/{name} [get]
// GetProjectHandler returns a single project
// GET /api/v1/projects/:name
func (h *ProjectHandler) GetProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			view  projects.ProjectView
			found bool
		)
		if !h.registry(c, func(reg *projects.Registry) { view, found = reg.Find(c.Param("name")) }) {
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// @Summary      List marks
// @Description  Returns the marks on a project, oldest first. Requires project:auspex.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        name  path  string  true  "Project name"
// @Success      200  {object}  map[string]interface{}  "project: string, marks: []projects.Mark"
// @Failure      404  {object}  map[string]interface{}  "Project not found"
// @Router       /api/v1/projects/{name}/marks [get]
// ListMarksHandler returns a project's marks
// GET /api/v1/projects/:name/marks
func (h *ProjectHandler) ListMarksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		var (
			marks []projects.Mark
			err   error
		)
		if !h.registry(c, func(reg *projects.Registry) { marks, err = reg.Marks(name) }) {
			return
		}
		if errors.Is(err, projects.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read marks"})
			return
		}
		if marks == nil {
			marks = []projects.Mark{}
		}
		c.JSON(http.StatusOK, gin.H{"project": name, "marks": marks})
	}
}

// @Summary      List namespaces
// @Description  Lists registered channel or cloak namespaces with their owning project. Requires project:auspex.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Param        kind     path   string  true   "channels or cloaks"
// @Param        pattern  query  string  false  "Glob pattern (default *)"
// @Success      200  {object}  map[string]interface{}  "namespaces: []projects.NamespaceEntry"
// @Failure      404  {object}  map[string]interface{}  "Unknown namespace kind"
// @Router       /api/v1/namespaces/{kind} [get]
// ListNamespacesHandler lists channel or cloak namespaces
// GET /api/v1/namespaces/:kind?pattern=*
func (h *ProjectHandler) ListNamespacesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.DefaultQuery("pattern", "*")
		var list func(reg *projects.Registry) []projects.NamespaceEntry
		switch c.Param("kind") {
		case "channels":
			list = func(reg *projects.Registry) []projects.NamespaceEntry { return reg.ListChannelNamespaces(pattern) }
		case "cloaks":
			list = func(reg *projects.Registry) []projects.NamespaceEntry { return reg.ListCloakNamespaces(pattern) }
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown namespace kind"})
			return
		}

		var entries []projects.NamespaceEntry
		if !h.registry(c, func(reg *projects.Registry) { entries = list(reg) }) {
			return
		}
		if entries == nil {
			entries = []projects.NamespaceEntry{}
		}
		c.JSON(http.StatusOK, gin.H{"namespaces": entries})
	}
}

// @Summary      Registry totals
// @Description  Returns counts of projects, namespaces, contacts and marks. Requires project:auspex.
// @Tags         Projects
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "projects, channel_namespaces, cloak_namespaces, contacts, marks"
// @Router       /api/v1/stats [get]
// StatsHandler returns registry totals
// GET /api/v1/stats
func (h *ProjectHandler) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var s projects.Stats
		if !h.registry(c, func(reg *projects.Registry) { s = reg.Stats() }) {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"projects":           s.Projects,
			"channel_namespaces": s.ChannelNamespaces,
			"cloak_namespaces":   s.CloakNamespaces,
			"contacts":           s.Contacts,
			"marks":              s.Marks,
		})
	}
}
