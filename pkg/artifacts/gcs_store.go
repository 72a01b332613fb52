//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore implements Store using Google Cloud Storage.
// Objects follow the sharded layout under an optional prefix.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string // Optional key prefix (e.g., "artifacts/")
}

// NewGCSStore creates a new GCS-backed artifact store.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs store requires a bucket")
	}
	// Uses application default credentials.
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *GCSStore) objectFor(location string) (*storage.ObjectHandle, error) {
	want := "gs://" + s.bucket + "/" + s.prefix
	if !strings.HasPrefix(location, want) || !validObjectKey(strings.TrimPrefix(location, want)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	name := strings.TrimPrefix(location, "gs://"+s.bucket+"/")
	return s.client.Bucket(s.bucket).Object(name), nil
}

func (s *GCSStore) StoreBytes(ctx context.Context, data []byte) (string, error) {
	name := s.prefix + ObjectKey(Digest(data))
	loc := "gs://" + s.bucket + "/" + name
	obj := s.client.Bucket(s.bucket).Object(name)

	if _, err := obj.Attrs(ctx); err == nil {
		return loc, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("gcs attrs error: %w", err)
	}

	// DoesNotExist turns the upload into a create-if-absent.
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return loc, nil
		}
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return loc, nil
}

func (s *GCSStore) ReadBytes(ctx context.Context, location string) ([]byte, error) {
	obj, err := s.objectFor(location)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("gcs get failed for %s: %w", location, err)
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

func (s *GCSStore) ReadHead(ctx context.Context, location string, limit int) ([]byte, error) {
	obj, err := s.objectFor(location)
	if err != nil {
		return nil, err
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("gcs attrs error: %w", err)
	}
	n := int64(limit)
	if attrs.Size < n {
		n = attrs.Size
	}
	if n <= 0 {
		return []byte{}, nil
	}
	reader, err := obj.NewRangeReader(ctx, 0, n)
	if err != nil {
		return nil, fmt.Errorf("gcs range read failed for %s: %w", location, err)
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

func (s *GCSStore) Exists(ctx context.Context, location string) (bool, error) {
	obj, err := s.objectFor(location)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
