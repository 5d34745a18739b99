// system.go implements module maintenance endpoints: hot reload, flush, export, and the
// backup archive.
package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/backup"
	"github.com/projectns/projectns/internal/module"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/storage"
)

// ReloadFunc re-reads the configuration and hot-reloads the module with it.
type ReloadFunc func(ctx context.Context) error

// BackupRunner takes one backup on demand. *jobs.BackupJob satisfies it.
type BackupRunner interface {
	RunOnce(ctx context.Context) (*storage.Object, error)
}

// SystemHandlers handles reload, flush, export and backup endpoints
type SystemHandlers struct {
	host    *module.Host
	reload  ReloadFunc
	archive *backup.Archive
	runner  BackupRunner
}

// NewSystemHandlers creates a new SystemHandlers instance. archive and runner are nil
// when backups are disabled.
func NewSystemHandlers(host *module.Host, reload ReloadFunc, archive *backup.Archive, runner BackupRunner) *SystemHandlers {
	return &SystemHandlers{host: host, reload: reload, archive: archive, runner: runner}
}

// @Summary      Reload module
// @Description  Re-reads the configuration file and hot-reloads the project registry with it. State is carried across through a handoff snapshot; on failure the previous configuration stays in effect. Requires admin scope.
// @Tags         System
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, duration"
// @Failure      500  {object}  map[string]interface{}  "Reload failed"
// @Router       /api/v1/admin/reload [post]
// ReloadHandler triggers a hot reload
// POST /api/v1/admin/reload
func (h *SystemHandlers) ReloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.reload == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Reload is not available"})
			return
		}
		start := time.Now()
		if err := h.reload(c.Request.Context()); err != nil {
			slog.Error("reload requested over HTTP failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Reload failed", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Module reloaded", "duration": time.Since(start).String()})
	}
}

// @Summary      Flush registry
// @Description  Writes the registry to the durable store now instead of waiting for the next periodic flush. Requires admin scope.
// @Tags         System
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      500  {object}  map[string]interface{}  "Flush failed"
// @Router       /api/v1/admin/flush [post]
// FlushHandler flushes the registry
// POST /api/v1/admin/flush
func (h *SystemHandlers) FlushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.host.Flush(c.Request.Context()); err != nil {
			slog.Error("flush requested over HTTP failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Flush failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Registry flushed"})
	}
}

// @Summary      Export registry
// @Description  Downloads the registry in flat-file format. The file can be loaded with "server import". Requires admin scope.
// @Tags         System
// @Security     Bearer
// @Produce      plain
// @Success      200  {string}  string  "Flat file"
// @Router       /api/v1/admin/export [get]
// ExportHandler streams the registry as a flat file
// GET /api/v1/admin/export
func (h *SystemHandlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := h.host.Export()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
			return
		}
		var buf bytes.Buffer
		if err := persist.Encode(&buf, persist.Header{Format: persist.FormatVersion, Build: h.host.Build()}, rows); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode registry"})
			return
		}
		name := fmt.Sprintf("projectns-%s.db", time.Now().UTC().Format("20060102T150405Z"))
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
	}
}

// @Summary      List backups
// @Description  Lists backups in the archive, oldest first. Requires admin scope.
// @Tags         System
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "backups: []storage.Object"
// @Failure      404  {object}  map[string]interface{}  "Backups are not enabled"
// @Router       /api/v1/admin/backups [get]
// ListBackupsHandler lists archived backups
// GET /api/v1/admin/backups
func (h *SystemHandlers) ListBackupsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.archive == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backups are not enabled"})
			return
		}
		list, err := h.archive.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list backups", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
			return
		}
		if list == nil {
			list = []storage.Object{}
		}
		c.JSON(http.StatusOK, gin.H{"backups": list})
	}
}

// @Summary      Take backup
// @Description  Writes a backup now and prunes the archive to its retention count. Requires admin scope.
// @Tags         System
// @Security     Bearer
// @Produce      json
// @Success      201  {object}  storage.Object
// @Failure      404  {object}  map[string]interface{}  "Backups are not enabled"
// @Failure      500  {object}  map[string]interface{}  "Backup failed"
// @Router       /api/v1/admin/backups [post]
// CreateBackupHandler takes a backup on demand
// POST /api/v1/admin/backups
func (h *SystemHandlers) CreateBackupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.runner == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backups are not enabled"})
			return
		}
		obj, err := h.runner.RunOnce(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Backup failed"})
			return
		}
		c.JSON(http.StatusCreated, obj)
	}
}

// @Summary      Latest backup
// @Description  Returns the key of the newest backup. Requires admin scope.
// @Tags         System
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "key: string"
// @Failure      404  {object}  map[string]interface{}  "No backups"
// @Router       /api/v1/admin/backups/latest [get]
// LatestBackupHandler names the newest backup
// GET /api/v1/admin/backups/latest
func (h *SystemHandlers) LatestBackupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.archive == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Backups are not enabled"})
			return
		}
		key, err := h.archive.Latest(c.Request.Context())
		if errors.Is(err, backup.ErrNoBackups) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No backups"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key})
	}
}
