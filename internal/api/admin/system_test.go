package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/auth"
	"github.com/projectns/projectns/internal/backup"
	"github.com/projectns/projectns/internal/commands"
	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/jobs"
	"github.com/projectns/projectns/internal/module"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/storage"
	"github.com/projectns/projectns/internal/storage/local"
)

// ---------------------------------------------------------------------------
// Router helper
// ---------------------------------------------------------------------------

type countingStore struct {
	saves   int
	saveErr error
}

func (s *countingStore) Load(context.Context) ([]persist.Row, error) { return nil, nil }

func (s *countingStore) Save(context.Context, []persist.Row) error {
	s.saves++
	return s.saveErr
}

func newHost(t *testing.T, store persist.Store) *module.Host {
	t.Helper()
	ctx := context.Background()
	deps := module.Deps{}
	if store != nil {
		deps.Store = store
	}
	host, err := module.NewHost(ctx, module.Config{Build: "1.2.3"}, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close(ctx) })

	oper := commands.Source{Account: accounts.Ref{ID: "OPER1", Name: "oper"}, Privileges: []string{commands.PrivAdmin}}
	for _, line := range []string{"REGISTER atheme", "CHANNEL atheme ADD #atheme"} {
		verb, args := commands.ParseLine(line)
		res := host.Execute(ctx, oper, verb, args)
		require.Truef(t, res.OK(), "%s: %v", line, res.Lines)
	}
	return host
}

func newSystemRouter(h *SystemHandlers) *gin.Engine {
	r := gin.New()
	r.POST("/admin/reload", h.ReloadHandler())
	r.POST("/admin/flush", h.FlushHandler())
	r.GET("/admin/export", h.ExportHandler())
	r.GET("/admin/backups", h.ListBackupsHandler())
	r.POST("/admin/backups", h.CreateBackupHandler())
	r.GET("/admin/backups/latest", h.LatestBackupHandler())
	return r
}

// ---------------------------------------------------------------------------
// Reload / Flush / Export
// ---------------------------------------------------------------------------

func TestReloadHandler(t *testing.T) {
	host := newHost(t, nil)

	calls := 0
	ok := newSystemRouter(NewSystemHandlers(host, func(context.Context) error { calls++; return nil }, nil, nil))
	w := serve(ok, "POST", "/admin/reload", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)

	failing := newSystemRouter(NewSystemHandlers(host, func(context.Context) error { return errors.New("bad config") }, nil, nil))
	w = serve(failing, "POST", "/admin/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "bad config", getJSON(w)["details"])

	none := newSystemRouter(NewSystemHandlers(host, nil, nil, nil))
	w = serve(none, "POST", "/admin/reload", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestFlushHandler(t *testing.T) {
	store := &countingStore{}
	r := newSystemRouter(NewSystemHandlers(newHost(t, store), nil, nil, nil))

	w := serve(r, "POST", "/admin/flush", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.saves)

	store.saveErr = errDB
	w = serve(r, "POST", "/admin/flush", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestExportHandler(t *testing.T) {
	r := newSystemRouter(NewSystemHandlers(newHost(t, nil), nil, nil, nil))

	w := serve(r, "GET", "/admin/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "projectns-")

	h, rows, err := persist.Decode(strings.NewReader(w.Body.String()))
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", h.Build)
	require.Len(t, rows, 2)
	assert.Equal(t, persist.TypeProject, rows[0].Type())
	assert.Equal(t, "atheme", rows[0].Project())
}

// ---------------------------------------------------------------------------
// Backups
// ---------------------------------------------------------------------------

func TestBackups_Disabled(t *testing.T) {
	r := newSystemRouter(NewSystemHandlers(newHost(t, nil), nil, nil, nil))

	for _, tc := range []struct{ method, path string }{
		{"GET", "/admin/backups"},
		{"POST", "/admin/backups"},
		{"GET", "/admin/backups/latest"},
	} {
		w := serve(r, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
	}
}

func TestBackups_CreateListLatest(t *testing.T) {
	store, err := local.New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	host := newHost(t, nil)
	archive := backup.New(store, backup.Options{Prefix: "backups", Retain: 3, Build: host.Build()})
	job := jobs.NewBackupJob(host, archive, 0)
	r := newSystemRouter(NewSystemHandlers(host, nil, archive, job))

	w := serve(r, "GET", "/admin/backups/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, "GET", "/admin/backups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"backups":[]}`, w.Body.String())

	w = serve(r, "POST", "/admin/backups", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	key, _ := getJSON(w)["key"].(string)
	require.True(t, strings.HasPrefix(key, "backups/projectns-"), key)

	w = serve(r, "GET", "/admin/backups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, getJSON(w)["backups"], 1)

	w = serve(r, "GET", "/admin/backups/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, key, getJSON(w)["key"])

	rows, _, err := archive.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

type failingRunner struct{}

func (failingRunner) RunOnce(context.Context) (*storage.Object, error) { return nil, errDB }

func TestBackups_CreateFails(t *testing.T) {
	r := newSystemRouter(NewSystemHandlers(newHost(t, nil), nil, nil, failingRunner{}))
	w := serve(r, "POST", "/admin/backups", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func TestIssueToken(t *testing.T) {
	dir := accounts.NewDirectory(nil, nil)
	_, err := dir.Register(context.Background(), accounts.Ref{ID: "A1", Name: "alice"})
	require.NoError(t, err)

	h := NewTokenHandlers(dir)
	r := gin.New()
	r.POST("/admin/tokens", h.IssueTokenHandler())

	w := serve(r, "POST", "/admin/tokens", IssueTokenRequest{Account: "Alice", Privileges: []string{"project:auspex"}, ExpiresInHours: 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	token, _ := getJSON(w)["token"].(string)
	claims, err := auth.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "A1", claims.AccountID)
	assert.Equal(t, "alice", claims.Account)
	assert.Equal(t, []string{"project:auspex"}, claims.Privileges)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "unknown account", body: IssueTokenRequest{Account: "nobody"}, want: http.StatusNotFound},
		{name: "bad scope", body: IssueTokenRequest{Account: "alice", Privileges: []string{"root"}}, want: http.StatusBadRequest},
		{name: "no account", body: map[string]string{}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, "POST", "/admin/tokens", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}
