// Package backup writes registry rows to object storage and reads them back.
//
// A backup is one flat file (the same line format the flat-file store uses), optionally
// sealed with crypto.BackupCipher, stored under "<prefix>/projectns-<UTC timestamp>.db".
// Next to it sits "<key>.sha256", a sha256sum line over the stored bytes, so a copy
// pulled out of the bucket can be checked with sha256sum -c before anyone trusts it.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/projectns/projectns/internal/crypto"
	"github.com/projectns/projectns/internal/persist"
	"github.com/projectns/projectns/internal/storage"
	"github.com/projectns/projectns/pkg/checksum"
)

const (
	keyPrefix = "projectns-"
	keySuffix = ".db"
	// keyTime sorts lexicographically in time order.
	keyTime = "20060102T150405Z"
)

var (
	// ErrNoBackups is returned by Latest when the prefix holds no backups.
	ErrNoBackups = errors.New("no backups found")
	// ErrEncrypted is returned when a sealed backup is read without a cipher.
	ErrEncrypted = errors.New("backup is encrypted and no passphrase is configured")
)

// Options configures an Archive.
type Options struct {
	// Prefix is the key prefix backups live under. Empty means the bucket root.
	Prefix string
	// Retain is how many backups Prune keeps. 0 keeps everything.
	Retain int
	// Build is written into the flat-file header.
	Build string
	// Cipher seals new backups and opens sealed ones. Nil writes plaintext.
	Cipher *crypto.BackupCipher
}

// Archive manages the backups under one prefix of a storage backend.
type Archive struct {
	store storage.Storage
	opts  Options
	now   func() time.Time
}

// New creates an Archive.
func New(store storage.Storage, opts Options) *Archive {
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	return &Archive{store: store, opts: opts, now: time.Now}
}

// Key returns the storage key for a backup taken at t.
func (a *Archive) Key(t time.Time) string {
	return path.Join(a.opts.Prefix, keyPrefix+t.UTC().Format(keyTime)+keySuffix)
}

func (a *Archive) listPrefix() string {
	if a.opts.Prefix == "" {
		return keyPrefix
	}
	return a.opts.Prefix + "/" + keyPrefix
}

// Write encodes rows, seals them when a cipher is configured, and uploads the backup
// followed by its checksum sidecar.
func (a *Archive) Write(ctx context.Context, rows []persist.Row) (*storage.Object, error) {
	var buf bytes.Buffer
	if err := persist.Encode(&buf, persist.Header{Format: persist.FormatVersion, Build: a.opts.Build}, rows); err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}

	data := buf.Bytes()
	if a.opts.Cipher != nil {
		sealed, err := a.opts.Cipher.Seal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt backup: %w", err)
		}
		data = sealed
	}

	key := a.Key(a.now())
	obj, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to upload backup: %w", err)
	}

	sum := obj.Checksum
	if sum == "" {
		sum = checksum.Bytes(data)
		obj.Checksum = sum
	}
	sidecar := checksum.FormatSums([]string{path.Base(key)}, map[string]string{path.Base(key): sum})
	if _, err := a.store.Put(ctx, key+checksum.SumsSuffix, strings.NewReader(sidecar), int64(len(sidecar))); err != nil {
		return nil, fmt.Errorf("failed to upload backup checksum: %w", err)
	}

	slog.Info("backup written", "key", key, "rows", len(rows), "bytes", obj.Size, "encrypted", a.opts.Cipher != nil)
	return obj, nil
}

// List returns the backups under the prefix, oldest first. Sidecars are not included.
func (a *Archive) List(ctx context.Context) ([]storage.Object, error) {
	objects, err := a.store.List(ctx, a.listPrefix())
	if err != nil {
		return nil, err
	}
	backups := objects[:0]
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, keySuffix) {
			backups = append(backups, obj)
		}
	}
	return backups, nil
}

// Latest returns the key of the newest backup.
func (a *Archive) Latest(ctx context.Context) (string, error) {
	backups, err := a.List(ctx)
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", ErrNoBackups
	}
	return backups[len(backups)-1].Key, nil
}

// Prune deletes all but the newest Retain backups along with their sidecars.
func (a *Archive) Prune(ctx context.Context) (int, error) {
	if a.opts.Retain <= 0 {
		return 0, nil
	}
	backups, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	excess := len(backups) - a.opts.Retain
	deleted := 0
	for i := 0; i < excess; i++ {
		key := backups[i].Key
		if err := a.store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %s: %w", key, err)
		}
		if err := a.store.Delete(ctx, key+checksum.SumsSuffix); err != nil {
			slog.Warn("failed to delete backup checksum", "key", key, "error", err)
		}
		deleted++
	}
	if deleted > 0 {
		slog.Info("old backups pruned", "deleted", deleted, "retained", a.opts.Retain)
	}
	return deleted, nil
}

// Read downloads a backup, checks it against its sidecar when one exists, opens it if
// sealed and decodes the rows.
func (a *Archive) Read(ctx context.Context, key string) ([]persist.Row, persist.Header, error) {
	data, err := a.fetch(ctx, key)
	if err != nil {
		return nil, persist.Header{}, err
	}

	sidecar, err := a.fetch(ctx, key+checksum.SumsSuffix)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.Warn("backup has no checksum file, skipping verification", "key", key)
	case err != nil:
		return nil, persist.Header{}, err
	default:
		sums, err := checksum.ParseSums(bytes.NewReader(sidecar))
		if err != nil {
			return nil, persist.Header{}, fmt.Errorf("failed to parse checksum for %s: %w", key, err)
		}
		want, ok := sums[path.Base(key)]
		if !ok {
			return nil, persist.Header{}, fmt.Errorf("checksum file for %s does not list it", key)
		}
		if err := checksum.Verify(data, want); err != nil {
			return nil, persist.Header{}, fmt.Errorf("backup %s: %w", key, err)
		}
	}

	if crypto.IsSealed(data) {
		if a.opts.Cipher == nil {
			return nil, persist.Header{}, ErrEncrypted
		}
		if data, err = a.opts.Cipher.Open(data); err != nil {
			return nil, persist.Header{}, fmt.Errorf("failed to decrypt backup %s: %w", key, err)
		}
	}

	h, rows, err := persist.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, h, fmt.Errorf("failed to decode backup %s: %w", key, err)
	}
	return rows, h, nil
}

func (a *Archive) fetch(ctx context.Context, key string) ([]byte, error) {
	rc, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}
