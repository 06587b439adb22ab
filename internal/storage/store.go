// Package storage reads analysis documents by URI.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidURI = errors.New("invalid object uri")
)

type ObjectStore interface {
	Get(ctx context.Context, uri string) ([]byte, error)
}

// ParseS3URI splits s3://bucket/key into its parts. The key may be empty.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q does not start with s3://", ErrInvalidURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// LocalStore serves objects from the filesystem. Bucket URIs map to
// directories below Root, so s3://bucket/key reads Root/bucket/key.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root}
}

func (s *LocalStore) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.Resolve(uri)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return data, nil
}

// Resolve maps a URI to the filesystem path LocalStore would read.
func (s *LocalStore) Resolve(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		bucket, key, err := ParseS3URI(uri)
		if err != nil {
			return "", err
		}
		if key == "" {
			return "", fmt.Errorf("%w: %q names a bucket, not an object", ErrInvalidURI, uri)
		}
		if s.Root == "" {
			return "", fmt.Errorf("%w: no store root configured for %q", ErrInvalidURI, uri)
		}
		rel := filepath.FromSlash(bucket + "/" + key)
		if !filepath.IsLocal(rel) {
			return "", fmt.Errorf("%w: %q escapes the store root", ErrInvalidURI, uri)
		}
		return filepath.Join(s.Root, rel), nil

	case strings.HasPrefix(uri, "file://"):
		return checkPath(strings.TrimPrefix(uri, "file://"), uri)

	case strings.Contains(uri, "://"):
		return "", fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURI, uri)

	default:
		return checkPath(uri, uri)
	}
}

func checkPath(path, uri string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidURI)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q contains a parent reference", ErrInvalidURI, uri)
		}
	}
	return filepath.Clean(path), nil
}
