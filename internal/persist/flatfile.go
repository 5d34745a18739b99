package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/projectns/projectns/internal/validation"
)

// FlatFile stores rows in a single line-oriented text file. Saves go to a temporary file
// in the same directory that is then renamed over the target.
type FlatFile struct {
	path  string
	build string
}

// NewFlatFile creates a store at path. build is recorded in the header of saved files.
func NewFlatFile(path, build string) *FlatFile {
	return &FlatFile{path: path, build: build}
}

// Path returns the file location.
func (f *FlatFile) Path() string { return f.path }

// Load reads every row. A missing file yields no rows.
func (f *FlatFile) Load(ctx context.Context) ([]Row, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("flat file does not exist yet, starting empty", "path", f.path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open flat file: %w", err)
	}
	defer file.Close()

	h, rows, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", f.path, err)
	}

	if h.Build != "" && f.build != "" {
		if cmp, err := validation.CompareBuild(h.Build, f.build); err == nil && cmp > 0 {
			slog.Warn("flat file was written by a newer build", "path", f.path, "file_build", h.Build, "build", f.build)
		}
	}
	return rows, nil
}

// Save atomically replaces the file with rows.
func (f *FlatFile) Save(ctx context.Context, rows []Row) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Encode(tmp, Header{Format: FormatVersion, Build: f.build}, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace flat file: %w", err)
	}
	return nil
}
