package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatFile_MissingFileLoadsEmpty(t *testing.T) {
	f := NewFlatFile(filepath.Join(t.TempDir(), "projectns.db"), "1.0.0")
	rows, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestFlatFile_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "projectns.db")
	f := NewFlatFile(path, "1.0.0")

	require.NoError(t, f.Save(context.Background(), sampleRows()))
	rows, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)

	// Only the target remains; the temporary file was renamed over it.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "projectns.db", entries[0].Name())
}

func TestFlatFile_SaveReplacesContent(t *testing.T) {
	f := NewFlatFile(filepath.Join(t.TempDir(), "projectns.db"), "")
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, sampleRows()))
	require.NoError(t, f.Save(ctx, []Row{ProjectRow{Name: "only"}}))

	rows, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Row{ProjectRow{Name: "only"}}, rows)
}

func TestFlatFile_FailedSaveKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectns.db")
	f := NewFlatFile(path, "")
	ctx := context.Background()
	require.NoError(t, f.Save(ctx, sampleRows()))

	err := f.Save(ctx, []Row{RegInfoRow{ProjectName: "foo", Text: "broken\nline"}})
	require.Error(t, err)

	rows, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)
}

func TestFlatFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectns.db")
	require.NoError(t, os.WriteFile(path, []byte("PNSV 1 *\nFNGROUP foo maybe\n"), 0o600))

	_, err := NewFlatFile(path, "").Load(context.Background())
	assert.Error(t, err)
}
