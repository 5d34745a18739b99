package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("projects:\n  service_name: \"Before\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *Config, 4)
	w := NewWatcher(path, func(c *Config) { changed <- c })
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// The watch is registered asynchronously; keep writing until it is seen.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changed:
			if c.Projects.ServiceName != "After" {
				t.Fatalf("ServiceName = %q, want After", c.Projects.ServiceName)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("projects:\n  service_name: \"After\"\n"), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("watcher never reported the change")
		}
	}
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: \"verbose\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	called := false
	w := NewWatcher(path, func(*Config) { called = true })
	w.reload()
	if called {
		t.Error("onChange called for a configuration that failed validation")
	}
}
