package audit_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/db/models"
)

func registerEntry(name string) *audit.LogEntry {
	return &audit.LogEntry{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Category:  audit.CategoryAdmin,
		Verb:      "REGISTER",
		Line:      "PROJECT:REGISTER: " + name,
		Account:   "oper",
		AccountID: "AAAAAAAAB",
	}
}

// ---------------------------------------------------------------------------
// MultiShipper
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Empty(t *testing.T) {
	ms, err := audit.NewMultiShipper(nil)
	if err != nil {
		t.Fatalf("NewMultiShipper(nil) error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
	if err := ms.Ship(context.Background(), registerEntry("foo")); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("Close() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  audit.ShipperConfig
	}{
		{"unknown type", audit.ShipperConfig{Enabled: true, Type: "syslog"}},
		{"webhook without config", audit.ShipperConfig{Enabled: true, Type: "webhook"}},
		{"file without config", audit.ShipperConfig{Enabled: true, Type: "file"}},
		{"webhook without url", audit.ShipperConfig{Enabled: true, Type: "webhook", Webhook: &audit.WebhookConfig{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := audit.NewMultiShipper([]audit.ShipperConfig{tt.cfg}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNewMultiShipper_DisabledConfigSkipped(t *testing.T) {
	ms, err := audit.NewMultiShipper([]audit.ShipperConfig{
		{Enabled: false, Type: "webhook", Webhook: &audit.WebhookConfig{URL: "http://example.com"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
}

type recordingShipper struct {
	entries []*audit.LogEntry
	err     error
	closed  bool
}

func (r *recordingShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func (r *recordingShipper) Close() error {
	r.closed = true
	return nil
}

func TestMultiShipper_ContinuesAfterShipperError(t *testing.T) {
	failing := &recordingShipper{err: errors.New("down")}
	healthy := &recordingShipper{}

	ms, _ := audit.NewMultiShipper(nil)
	ms.Add(failing)
	ms.Add(healthy)

	if err := ms.Ship(context.Background(), registerEntry("foo")); err == nil {
		t.Error("Ship() = nil, want error from first shipper")
	}
	if len(healthy.entries) != 1 {
		t.Errorf("second shipper received %d entries, want 1", len(healthy.entries))
	}

	if err := ms.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if !failing.closed || !healthy.closed {
		t.Error("Close() did not reach every shipper")
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_ShipEntry(t *testing.T) {
	var received bytes.Buffer
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		gotToken = r.Header.Get("X-Auth-Token")
		received.ReadFrom(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&audit.WebhookConfig{
		URL:     srv.URL,
		Timeout: 5 * time.Second,
		Headers: map[string]string{"X-Auth-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper error: %v", err)
	}
	defer ws.Close()

	entry := registerEntry("foo")
	if err := ws.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	var decoded audit.LogEntry
	if err := json.Unmarshal(received.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if decoded.Line != entry.Line {
		t.Errorf("Line = %q, want %q", decoded.Line, entry.Line)
	}
	if decoded.AccountID != entry.AccountID {
		t.Errorf("AccountID = %q, want %q", decoded.AccountID, entry.AccountID)
	}
	if gotToken != "secret" {
		t.Errorf("X-Auth-Token = %q, want secret", gotToken)
	}
}

func TestWebhookShipper_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&audit.WebhookConfig{URL: srv.URL, Timeout: 5 * time.Second})
	defer ws.Close()

	if err := ws.Ship(context.Background(), registerEntry("foo")); err == nil {
		t.Error("Ship() = nil, want error for 502 response")
	}
}

func TestWebhookShipper_CloseTwice(t *testing.T) {
	ws, err := audit.NewWebhookShipper(&audit.WebhookConfig{URL: "http://localhost:0", BatchSize: 10})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	ws.Close()
}

func TestWebhookShipper_Batching(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		interval  time.Duration
		close     bool
	}{
		{"flush when batch fills", 1, 5 * time.Second, false},
		{"flush on interval", 100, 50 * time.Millisecond, false},
		{"flush on close", 100, 5 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan []audit.LogEntry, 10)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var got []audit.LogEntry
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(http.StatusOK)
				done <- got
			}))
			defer srv.Close()

			ws, _ := audit.NewWebhookShipper(&audit.WebhookConfig{
				URL:           srv.URL,
				Timeout:       5 * time.Second,
				BatchSize:     tt.batchSize,
				FlushInterval: tt.interval,
			})
			if err := ws.Ship(context.Background(), registerEntry("foo")); err != nil {
				t.Fatalf("Ship() error: %v", err)
			}
			if tt.close {
				ws.Close()
			} else {
				defer ws.Close()
			}

			select {
			case got := <-done:
				if len(got) != 1 || got[0].Line != "PROJECT:REGISTER: foo" {
					t.Errorf("batch = %+v", got)
				}
			case <-time.After(3 * time.Second):
				t.Error("timed out waiting for batch")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_ShipEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.log")

	fs, err := audit.NewFileShipper(&audit.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper error: %v", err)
	}
	for _, name := range []string{"foo", "bar", "baz"} {
		if err := fs.Ship(context.Background(), registerEntry(name)); err != nil {
			t.Fatalf("Ship(%s) error: %v", name, err)
		}
	}
	if err := fs.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var decoded audit.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		lines = append(lines, decoded.Line)
	}
	want := []string{"PROJECT:REGISTER: foo", "PROJECT:REGISTER: bar", "PROJECT:REGISTER: baz"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %v, want %v", lines, want)
	}
}

func TestNewFileShipper_InvalidPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodir", "commands.log")
	if _, err := audit.NewFileShipper(&audit.FileConfig{Path: path}); err == nil {
		t.Error("expected error for path with nonexistent parent, got nil")
	}
}

func TestFileShipper_Rotate(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "commands.log")

	if err := os.WriteFile(logPath, make([]byte, 1024*1024+1), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs, err := audit.NewFileShipper(&audit.FileConfig{Path: logPath, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	if err := fs.Ship(context.Background(), registerEntry("foo")); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("log file missing after rotation: %v", err)
	}
	if info.Size() > 1024 {
		t.Errorf("live file size = %d, want a fresh file", info.Size())
	}
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("backup .1 missing after rotation: %v", err)
	}
}

// ---------------------------------------------------------------------------
// SlogShipper / DBShipper
// ---------------------------------------------------------------------------

func TestSlogShipper_Ship(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := audit.NewSlogShipper(logger)
	entry := registerEntry("foo")
	entry.RequestID = "req-1"
	if err := s.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`msg="PROJECT:REGISTER: foo"`, "verb=REGISTER", "account=oper", "request_id=req-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

type memCommandLog struct {
	rows []models.CommandLogEntry
	err  error
}

func (m *memCommandLog) Append(_ context.Context, e *models.CommandLogEntry) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *e)
	return nil
}

func TestDBShipper_Ship(t *testing.T) {
	store := &memCommandLog{}
	d := audit.NewDBShipper(store)

	entry := registerEntry("foo")
	if err := d.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(store.rows))
	}
	row := store.rows[0]
	if row.Source != "oper" || row.SourceID != "AAAAAAAAB" || row.Verb != "REGISTER" || row.Line != entry.Line {
		t.Errorf("row = %+v", row)
	}
	if !row.CreatedAt.Equal(entry.Timestamp) {
		t.Errorf("CreatedAt = %v, want %v", row.CreatedAt, entry.Timestamp)
	}

	store.err = errors.New("db down")
	if err := d.Ship(context.Background(), entry); err == nil {
		t.Error("Ship() = nil, want store error")
	}
}
