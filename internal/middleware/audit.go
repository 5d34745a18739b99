// audit.go records administrative HTTP calls (reloads, imports, account mirror updates)
// in the command log. Project commands log themselves through commands.Service, so
// this middleware is mounted only on routes that bypass the command surface.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/safego"
)

// AuditMiddleware ships one admin entry for every successful state-changing request.
// Shipping happens off the request path.
func AuditMiddleware(shipper audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if shipper == nil {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		status := c.Writer.Status()
		if status >= 400 {
			return
		}

		entry := &audit.LogEntry{
			Timestamp: time.Now().UTC(),
			Category:  audit.CategoryAdmin,
			Verb:      "HTTP",
			Line:      fmt.Sprintf("HTTP: %s %s", c.Request.Method, c.Request.URL.Path),
			Account:   c.GetString(AccountKey),
			AccountID: c.GetString(AccountIDKey),
			Service:   c.GetString(ServiceKey),
			RequestID: GetRequestID(c),
			Metadata: map[string]string{
				"auth_method": c.GetString(AuthMethodKey),
				"status_code": strconv.Itoa(status),
				"ip_address":  c.ClientIP(),
			},
		}

		safego.Go("audit-ship", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shipper.Ship(ctx, entry); err != nil {
				slog.Warn("failed to ship admin audit entry", "line", entry.Line, "error", err)
			}
		})
	}
}
