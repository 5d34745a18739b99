// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/projectns/projectns/internal/telemetry"
)

// Go launches fn in a new goroutine under the given task name. A panic in fn is
// recovered, logged with its stack and counted in
// projectns_background_panics_total{task=name} instead of taking the daemon down
// with the registry still unflushed.
func Go(name string, fn func()) {
	go Run(name, fn)
}

// Run calls fn on the current goroutine with the same recovery as Go. It reports
// whether fn returned normally.
func Run(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.BackgroundPanicsTotal.WithLabelValues(name).Inc()
			slog.Error("recovered panic in background goroutine",
				"task", name, "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()
	fn()
	return true
}
