// Package gcs implements the Google Cloud Storage backend. It authenticates with
// Application Default Credentials, a service account key, or Workload Identity
// Federation on GKE and CI runners.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	appconfig "github.com/projectns/projectns/internal/config"
	appstorage "github.com/projectns/projectns/internal/storage"
	"github.com/projectns/projectns/pkg/checksum"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.StorageConfig) (appstorage.Storage, error) {
		return New(&cfg.GCS)
	})
}

const checksumMetadataKey = "sha256"

// GCSStorage implements appstorage.Storage for a GCS bucket.
type GCSStorage struct {
	client    *storage.Client
	bucket    string
	projectID string
}

// clientOptions maps the configured auth method onto client options.
//
//   - "default" or empty: Application Default Credentials
//   - "service_account": a key file or inline JSON key
//   - "workload_identity": ADC backed by an external account configuration
func clientOptions(cfg *appconfig.GCSStorageConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		authMethod = "default"
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		}
	}

	switch authMethod {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case "workload_identity", "default":
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}
	return opts, nil
}

// New creates a GCS backend.
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, bucket: cfg.Bucket, projectID: cfg.ProjectID}, nil
}

// Close closes the GCS client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Put streams the content to a new object, hashing on the way. The checksum is written
// as metadata once the upload has finished.
func (s *GCSStorage) Put(ctx context.Context, key string, reader io.Reader, size int64) (*appstorage.Object, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	hashed := checksum.NewReader(reader)

	writer := obj.NewWriter(ctx)
	if _, err := io.Copy(writer, hashed); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	sum := hashed.Sum()
	attrs, err := obj.Update(ctx, storage.ObjectAttrsToUpdate{
		Metadata: map[string]string{checksumMetadataKey: sum},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record checksum metadata: %w", err)
	}

	return &appstorage.Object{Key: key, Size: hashed.N(), Checksum: sum, LastModified: attrs.Updated}, nil
}

// Get opens a reader on the object.
func (s *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", appstorage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return reader, nil
}

// Delete removes the object; a missing object is not an error.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// List iterates the bucket under prefix.
func (s *GCSStorage) List(ctx context.Context, prefix string) ([]appstorage.Object, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []appstorage.Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		objects = append(objects, appstorage.Object{
			Key:          attrs.Name,
			Size:         attrs.Size,
			Checksum:     attrs.Metadata[checksumMetadataKey],
			LastModified: attrs.Updated,
		})
	}
	appstorage.SortObjects(objects)
	return objects, nil
}

// EnsureBucket creates the bucket when it does not exist. Creating needs project_id.
func (s *GCSStorage) EnsureBucket(ctx context.Context) error {
	bucket := s.client.Bucket(s.bucket)
	_, err := bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if s.projectID == "" {
		return fmt.Errorf("project_id is required to create a bucket")
	}
	if err := bucket.Create(ctx, s.projectID, nil); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}
