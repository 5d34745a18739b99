package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/storage"
)

// ---------------------------------------------------------------------------
// New(): constructor validation (no AWS connection required)
// ---------------------------------------------------------------------------

func TestNew_MissingBucket(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket: "",
		Region: "us-east-1",
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for missing bucket")
	}
}

func TestNew_MissingRegion(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket: "my-bucket",
		Region: "",
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for missing region")
	}
}

func TestNew_StaticAuth_MissingKeys(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket:      "my-bucket",
		Region:      "us-east-1",
		AuthMethod:  "static",
		AccessKeyID: "", // missing
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for static auth with missing keys")
	}
}

func TestNew_UnsupportedAuthMethod(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket:     "my-bucket",
		Region:     "us-east-1",
		AuthMethod: "unsupported-method",
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for unsupported auth method")
	}
}

func TestNew_DefaultAuth_LoadsConfig(t *testing.T) {
	// default auth tries to load AWS config (env vars, shared config, etc.)
	// In CI without AWS credentials, this may fail or succeed with no-op credentials.
	// We just ensure no panic and correct handling.
	cfg := &config.S3StorageConfig{
		Bucket:     "my-bucket",
		Region:     "us-east-1",
		AuthMethod: "default",
	}
	// May succeed or fail depending on environment; just ensure no panic
	_, _ = New(cfg)
}

func TestNew_OIDC_MissingRoleARN(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket:     "my-bucket",
		Region:     "us-east-1",
		AuthMethod: "oidc",
		RoleARN:    "", // missing
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for oidc auth with missing role_arn")
	}
}

func TestNew_OIDC_MissingTokenFile(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket:              "my-bucket",
		Region:              "us-east-1",
		AuthMethod:          "oidc",
		RoleARN:              "arn:aws:iam::123456789:role/test-role",
		WebIdentityTokenFile: "", // missing
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for oidc auth with missing token file")
	}
}

func TestNew_AssumeRole_MissingRoleARN(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket:     "my-bucket",
		Region:     "us-east-1",
		AuthMethod: "assume_role",
		RoleARN:    "", // missing
	}
	_, err := New(cfg)
	if err == nil {
		t.Error("New() = nil error, want error for assume_role auth with missing role_arn")
	}
}

func TestNew_AssumeRole_WithExternalID(t *testing.T) {
	// assume_role with role_arn + external_id should succeed constructor (no network call for assume_role)
	cfg := &config.S3StorageConfig{
		Bucket:     "my-bucket",
		Region:     "us-east-1",
		AuthMethod: "assume_role",
		RoleARN:    "arn:aws:iam::123456789:role/test-role",
		ExternalID: "external-id-123",
	}
	// This will succeed (no network call at construction time; AssumeRole is lazy)
	_, _ = New(cfg)
}

func TestNew_StaticAuth_WithEndpoint(t *testing.T) {
	cfg := &config.S3StorageConfig{
		Bucket:          "my-bucket",
		Region:          "us-east-1",
		AuthMethod:      "static",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "http://localhost:9000",
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() with custom endpoint error: %v", err)
	}
	if s == nil {
		t.Error("New() returned nil storage")
	}
}

// ---------------------------------------------------------------------------
// Mock S3-compatible HTTP server
// ---------------------------------------------------------------------------

type s3MockStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

const testBucket = "backup-bucket"

// newS3TestStorage serves just enough of the path-style S3 REST API for the backend.
func newS3TestStorage(t *testing.T) (*S3Storage, *s3MockStore) {
	t.Helper()

	ms := &s3MockStore{
		objects: map[string][]byte{},
		meta:    map[string]map[string]string{},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		_, key, _ := strings.Cut(path, "/")

		if key == "" {
			switch {
			case r.Method == http.MethodHead, r.Method == http.MethodPut:
				w.WriteHeader(http.StatusOK)
			case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
				prefix := r.URL.Query().Get("prefix")
				ms.mu.Lock()
				var b strings.Builder
				for k, v := range ms.objects {
					if strings.HasPrefix(k, prefix) {
						fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(v))
					}
				}
				ms.mu.Unlock()
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusOK)
				fmt.Fprintf(w, `<?xml version="1.0"?><ListBucketResult><Name>%s</Name><IsTruncated>false</IsTruncated>%s</ListBucketResult>`, testBucket, b.String())
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
			return
		}

		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			meta := map[string]string{}
			for hk, hv := range r.Header {
				lk := strings.ToLower(hk)
				if strings.HasPrefix(lk, "x-amz-meta-") && len(hv) > 0 {
					meta[strings.TrimPrefix(lk, "x-amz-meta-")] = hv[0]
				}
			}
			ms.mu.Lock()
			ms.objects[key] = data
			ms.meta[key] = meta
			ms.mu.Unlock()
			w.Header().Set("ETag", `"test-etag"`)
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			ms.mu.Lock()
			data, ok := ms.objects[key]
			ms.mu.Unlock()
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
			w.WriteHeader(http.StatusOK)
			w.Write(data)

		case http.MethodDelete:
			ms.mu.Lock()
			delete(ms.objects, key)
			delete(ms.meta, key)
			ms.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	s, err := New(&config.S3StorageConfig{
		Bucket:          testBucket,
		Region:          "us-east-1",
		AuthMethod:      "static",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		Endpoint:        srv.URL,
	})
	if err != nil {
		t.Fatalf("New() for mock S3: %v", err)
	}
	return s, ms
}

// ---------------------------------------------------------------------------
// Put / Get
// ---------------------------------------------------------------------------

func TestS3_PutGet(t *testing.T) {
	s, ms := newS3TestStorage(t)
	ctx := context.Background()

	want := []byte("PNSV 1 10 build\n")
	obj, err := s.Put(ctx, "backups/projectns-1.db", bytes.NewReader(want), int64(len(want)))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if obj.Key != "backups/projectns-1.db" || obj.Size != int64(len(want)) {
		t.Errorf("Put() = %+v", obj)
	}
	if len(obj.Checksum) != 64 {
		t.Errorf("Checksum length = %d, want 64", len(obj.Checksum))
	}

	ms.mu.Lock()
	stored := ms.meta["backups/projectns-1.db"][checksumMetadataKey]
	ms.mu.Unlock()
	if stored != obj.Checksum {
		t.Errorf("checksum metadata = %q, want %q", stored, obj.Checksum)
	}

	rc, err := s.Get(ctx, "backups/projectns-1.db")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, want) {
		t.Errorf("Get() content = %q, want %q", got, want)
	}
}

func TestS3_Get_NotFound(t *testing.T) {
	s, _ := newS3TestStorage(t)
	_, err := s.Get(context.Background(), "nonexistent.db")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Delete / List
// ---------------------------------------------------------------------------

func TestS3_DeleteAndList(t *testing.T) {
	s, _ := newS3TestStorage(t)
	ctx := context.Background()

	for _, key := range []string{"backups/b.db", "backups/a.db", "other/c.db"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), int64(len(key))); err != nil {
			t.Fatalf("Put(%q): %v", key, err)
		}
	}

	objects, err := s.List(ctx, "backups/")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(objects) != 2 || objects[0].Key != "backups/a.db" || objects[1].Key != "backups/b.db" {
		t.Fatalf("List() = %+v", objects)
	}
	if objects[0].Size != int64(len("backups/a.db")) {
		t.Errorf("Size = %d", objects[0].Size)
	}

	if err := s.Delete(ctx, "backups/a.db"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	objects, err = s.List(ctx, "backups/")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "backups/b.db" {
		t.Errorf("List() after delete = %+v", objects)
	}
}

// ---------------------------------------------------------------------------
// EnsureBucket
// ---------------------------------------------------------------------------

func TestS3_EnsureBucket(t *testing.T) {
	s, _ := newS3TestStorage(t)
	if err := storage.Ensure(context.Background(), s); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
}
