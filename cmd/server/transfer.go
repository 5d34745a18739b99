package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/db/repositories"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/projects"
)

// runExport writes the stored registry as a flat file to path ("-" is stdout).
func runExport(cfg *config.Config, path string) error {
	ctx := context.Background()

	b, err := openBackend(cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	rows, err := b.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read registry: %w", err)
	}

	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	if err := persist.Encode(w, persist.Header{Format: persist.FormatVersion, Build: version}, rows); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	slog.Info("registry exported", "rows", len(rows), "path", path)
	return nil
}

// runImport replaces the stored registry with the contents of a flat file. The server
// should be stopped first; a running server overwrites the store on its next flush.
func runImport(cfg *config.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h, rows, err := persist.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	slog.Info("importing flat file", "path", path, "rows", len(rows), "build", h.Build)
	return replaceRegistry(context.Background(), cfg, rows)
}

// runRestore replaces the stored registry with a backup. An empty key restores the
// newest backup.
func runRestore(cfg *config.Config, key string) error {
	ctx := context.Background()
	archive, _, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive == nil {
		return fmt.Errorf("backups are not enabled (backup.enabled is false)")
	}
	if key == "" {
		if key, err = archive.Latest(ctx); err != nil {
			return err
		}
	}

	rows, h, err := archive.Read(ctx, key)
	if err != nil {
		return err
	}
	slog.Info("restoring backup", "key", key, "rows", len(rows), "build", h.Build)
	return replaceRegistry(ctx, cfg, rows)
}

// replaceRegistry loads rows into a scratch registry under the configured limits,
// so anything the server would skip at startup is reported now, and saves the result.
func replaceRegistry(ctx context.Context, cfg *config.Config, rows []persist.Row) error {
	modCfg, err := cfg.ModuleConfig(version)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	var accountStore accounts.Store
	if b.SQLX != nil {
		accountStore = repositories.NewAccountRepository(b.SQLX)
	}
	dir := accounts.NewDirectory(nil, accountStore)
	if err := dir.Hydrate(ctx); err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	reg := projects.New(modCfg.Registry)
	report, err := persist.Import(reg, dir, rows)
	if err != nil {
		return err
	}
	for _, p := range report.Problems {
		slog.Warn("row skipped", "problem", p)
	}

	if err := b.Store.Save(ctx, persist.Export(reg)); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	slog.Info("registry replaced", "projects", report.Projects, "rows", report.Rows, "skipped", report.Skipped)
	return nil
}
