// Package storage defines the object store that registry backups are shipped to.
//
// Backends implement Storage and register a constructor from an init() function in their
// own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.StorageConfig) (storage.Storage, error) {
//	        return New(&cfg.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so the factory knows about all of them.
package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// Storage is a flat key/value object store.
type Storage interface {
	// Put stores the reader's content under key, replacing any previous object.
	// size is a hint; -1 means unknown.
	Put(ctx context.Context, key string, reader io.Reader, size int64) (*Object, error)

	// Get opens the object stored under key. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every object whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Object describes one stored object.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`

	// Checksum is the hex SHA-256 of the content. Only Put fills it in.
	Checksum string `json:"checksum,omitempty"`

	LastModified time.Time `json:"last_modified"`
}

// SortObjects orders objects by key.
func SortObjects(objects []Object) {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
}

// Ensurer is implemented by backends that can create their bucket or container on startup.
type Ensurer interface {
	EnsureBucket(ctx context.Context) error
}

// Ensure creates the backend's bucket when the backend supports it.
func Ensure(ctx context.Context, s Storage) error {
	if e, ok := s.(Ensurer); ok {
		return e.EnsureBucket(ctx)
	}
	return nil
}
