package backup

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/crypto"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/storage"
	"github.com/projectns/projectns/internal/storage/local"
	"github.com/projectns/projectns/pkg/checksum"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRows() []persist.Row {
	return []persist.Row{
		persist.ProjectRow{Name: "atheme", OpenRegistration: true, CreatedAt: start, Creator: "nenolod"},
		persist.ChannelNSRow{ProjectName: "atheme", Namespace: "#atheme"},
		persist.ContactRow{ProjectName: "atheme", Account: "jilles", Visible: true},
	}
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := local.New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return s
}

// newArchive returns an archive whose clock advances one hour per backup.
func newArchive(store storage.Storage, opts Options) *Archive {
	a := New(store, opts)
	next := start
	a.now = func() time.Time {
		t := next
		next = next.Add(time.Hour)
		return t
	}
	return a
}

func TestKey(t *testing.T) {
	a := New(nil, Options{Prefix: "/backups/"})
	assert.Equal(t, "backups/projectns-20240301T120000Z.db", a.Key(start))

	a = New(nil, Options{})
	assert.Equal(t, "projectns-20240301T120000Z.db", a.Key(start.In(time.FixedZone("X", 3600))))
}

func TestWriteRead_Plain(t *testing.T) {
	store := newStore(t)
	a := newArchive(store, Options{Prefix: "backups", Build: "1.0.0"})
	ctx := context.Background()

	obj, err := a.Write(ctx, sampleRows())
	require.NoError(t, err)
	assert.Equal(t, "backups/projectns-20240301T120000Z.db", obj.Key)

	rc, err := store.Get(ctx, obj.Key+checksum.SumsSuffix)
	require.NoError(t, err)
	sidecar, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, obj.Checksum+"  projectns-20240301T120000Z.db\n", string(sidecar))

	rows, h, err := a.Read(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", h.Build)
	require.Len(t, rows, 3)
	assert.Equal(t, "atheme", rows[0].Project())
	assert.Equal(t, persist.TypeChannelNS, rows[1].Type())
}

func TestWriteRead_Encrypted(t *testing.T) {
	store := newStore(t)
	cipher, err := crypto.NewBackupCipherWithIterations("hunter2", 1000)
	require.NoError(t, err)
	a := newArchive(store, Options{Prefix: "backups", Cipher: cipher})
	ctx := context.Background()

	obj, err := a.Write(ctx, sampleRows())
	require.NoError(t, err)

	rc, err := store.Get(ctx, obj.Key)
	require.NoError(t, err)
	raw, _ := io.ReadAll(rc)
	rc.Close()
	assert.True(t, crypto.IsSealed(raw))
	assert.NotContains(t, string(raw), "atheme")

	rows, _, err := a.Read(ctx, obj.Key)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	noCipher := New(store, Options{Prefix: "backups"})
	_, _, err = noCipher.Read(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrEncrypted)
}

func TestRead_DetectsCorruption(t *testing.T) {
	store := newStore(t)
	a := newArchive(store, Options{Prefix: "backups"})
	ctx := context.Background()

	obj, err := a.Write(ctx, sampleRows())
	require.NoError(t, err)

	_, err = store.Put(ctx, obj.Key, strings.NewReader("PNSV 1 *\nPROJ evil 1 0 *\n"), -1)
	require.NoError(t, err)

	_, _, err = a.Read(ctx, obj.Key)
	assert.ErrorIs(t, err, checksum.ErrMismatch)
}

func TestRead_WithoutSidecar(t *testing.T) {
	store := newStore(t)
	a := newArchive(store, Options{Prefix: "backups"})
	ctx := context.Background()

	obj, err := a.Write(ctx, sampleRows())
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, obj.Key+checksum.SumsSuffix))

	rows, _, err := a.Read(ctx, obj.Key)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRead_Missing(t *testing.T) {
	a := New(newStore(t), Options{})
	_, _, err := a.Read(context.Background(), "projectns-nope.db")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListLatestPrune(t *testing.T) {
	store := newStore(t)
	a := newArchive(store, Options{Prefix: "backups", Retain: 2})
	ctx := context.Background()

	_, err := a.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoBackups)

	var keys []string
	for i := 0; i < 4; i++ {
		obj, err := a.Write(ctx, sampleRows())
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}
	// Unrelated objects under the prefix are left alone.
	_, err = store.Put(ctx, "backups/notes.txt", strings.NewReader("hi"), 2)
	require.NoError(t, err)

	backups, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 4)

	latest, err := a.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys[3], latest)

	deleted, err := a.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	backups, err = a.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, keys[2], backups[0].Key)
	assert.Equal(t, keys[3], backups[1].Key)

	_, err = store.Get(ctx, keys[0]+checksum.SumsSuffix)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := store.List(ctx, "backups/")
	require.NoError(t, err)
	assert.Len(t, all, 5) // two backups, two sidecars, notes.txt
}

func TestPrune_RetainZeroKeepsEverything(t *testing.T) {
	store := newStore(t)
	a := newArchive(store, Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := a.Write(ctx, sampleRows())
		require.NoError(t, err)
	}
	deleted, err := a.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
