package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectns/projectns/internal/backup"
	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/storage"
	"github.com/projectns/projectns/internal/storage/local"
	"github.com/projectns/projectns/internal/telemetry"
)

type fakeExporter struct {
	calls atomic.Int32
	err   error
}

func (e *fakeExporter) Export() ([]persist.Row, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return []persist.Row{
		persist.ProjectRow{Name: "atheme", CreatedAt: time.Unix(1709294400, 0)},
		persist.ChannelNSRow{ProjectName: "atheme", Namespace: "#atheme"},
	}, nil
}

func backupCount(t *testing.T, outcome string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, telemetry.BackupsTotal.WithLabelValues(outcome).Write(m))
	return m.GetCounter().GetValue()
}

func newTestArchive(t *testing.T, retain int) (*backup.Archive, storage.Storage) {
	t.Helper()
	store, err := local.New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return backup.New(store, backup.Options{Prefix: "backups", Retain: retain}), store
}

func TestNewBackupJob_DefaultInterval(t *testing.T) {
	archive, _ := newTestArchive(t, 0)
	j := NewBackupJob(&fakeExporter{}, archive, 0)
	assert.Equal(t, DefaultBackupInterval, j.interval)
}

func TestBackupJob_RunOnce(t *testing.T) {
	archive, _ := newTestArchive(t, 0)
	j := NewBackupJob(&fakeExporter{}, archive, time.Hour)
	before := backupCount(t, "ok")

	obj, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Contains(t, obj.Key, "backups/projectns-")
	assert.Equal(t, before+1, backupCount(t, "ok"))

	rows, _, err := archive.Read(context.Background(), obj.Key)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestBackupJob_RunOnce_ExportError(t *testing.T) {
	archive, store := newTestArchive(t, 0)
	j := NewBackupJob(&fakeExporter{err: errors.New("module host is closed")}, archive, time.Hour)
	before := backupCount(t, "error")

	_, err := j.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, before+1, backupCount(t, "error"))

	objects, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestBackupJob_StartRunsImmediately(t *testing.T) {
	archive, _ := newTestArchive(t, 0)
	exp := &fakeExporter{}
	j := NewBackupJob(exp, archive, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return exp.calls.Load() == 1 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	j.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
