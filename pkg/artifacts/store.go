package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Reader is the read side of a content store. Backends receive only this.
type Reader interface {
	// ReadBytes returns the full blob at location.
	ReadBytes(ctx context.Context, location string) ([]byte, error)
	// ReadHead returns at most limit leading bytes. Short blobs are not an error.
	ReadHead(ctx context.Context, location string, limit int) ([]byte, error)
}

// Store defines the contract for content-addressed storage of artifacts.
// Locations are opaque to callers and only meaningful to the store that
// issued them.
type Store interface {
	Reader
	// StoreBytes persists data under its digest and returns its location.
	// Storing bytes that are already present is a no-op.
	StoreBytes(ctx context.Context, data []byte) (string, error)
	// Exists reports whether an object is present at location.
	Exists(ctx context.Context, location string) (bool, error)
}

// ObjectKey returns the sharded key "<hex[0:2]>/<hex[2:4]>/<hex>" for a digest.
func ObjectKey(digest string) string {
	return path.Join(digest[:2], digest[2:4], digest)
}

func validObjectKey(key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return false
	}
	digest := parts[2]
	return isHexDigest(digest) && parts[0] == digest[:2] && parts[1] == digest[2:4]
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a new CAS store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact dir: %w", err)
	}
	//nolint:gosec // G301: 0755 is intentional for shared artifact directory
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: abs}, nil
}

// Root returns the store's base directory.
func (s *FileStore) Root() string { return s.baseDir }

func (s *FileStore) pathFor(digest string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(ObjectKey(digest)))
}

func (s *FileStore) StoreBytes(ctx context.Context, data []byte) (string, error) {
	digest := Digest(data)
	dest := s.pathFor(digest)

	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	dir := filepath.Dir(dest)
	//nolint:gosec // G301: 0755 is intentional for shared artifact directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create shard dir: %w", err)
	}

	// Write to a private temp name, then link into place. Link refuses to
	// replace an existing name, so concurrent writers of the same digest
	// cannot clobber each other and readers never see a partial blob.
	tmpPath := filepath.Join(dir, "."+digest+"."+uuid.NewString()+".tmp")
	if err := writeSynced(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if err := os.Link(tmpPath, dest); err != nil {
		if errors.Is(err, os.ErrExist) {
			return dest, nil
		}
		// Filesystems without hard links fall back to an atomic rename.
		if renameErr := os.Rename(tmpPath, dest); renameErr != nil {
			return "", fmt.Errorf("failed to commit blob: %w", renameErr)
		}
	}
	return dest, nil
}

func writeSynced(name string, data []byte) error {
	//nolint:gosec // G302: 0644 is intentional for readable blob files
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// resolve checks that location is a blob path this store issued.
func (s *FileStore) resolve(location string) (string, error) {
	clean := filepath.Clean(location)
	rel, err := filepath.Rel(s.baseDir, clean)
	if err != nil || !validObjectKey(filepath.ToSlash(rel)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	return clean, nil
}

func (s *FileStore) open(location string) (*os.File, error) {
	p, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) //nolint:gosec // path validated against the store layout
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		//nolint:wrapcheck // caller provides context
		return nil, err
	}
	return f, nil
}

func (s *FileStore) ReadBytes(ctx context.Context, location string) ([]byte, error) {
	f, err := s.open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // best-effort close

	//nolint:wrapcheck // caller provides context
	return io.ReadAll(f)
}

func (s *FileStore) ReadHead(ctx context.Context, location string, limit int) ([]byte, error) {
	f, err := s.open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // best-effort close

	if limit <= 0 {
		return []byte{}, nil
	}
	//nolint:wrapcheck // caller provides context
	return io.ReadAll(io.LimitReader(f, int64(limit)))
}

func (s *FileStore) Exists(ctx context.Context, location string) (bool, error) {
	p, err := s.resolve(location)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	//nolint:wrapcheck // caller provides context
	return false, err
}
