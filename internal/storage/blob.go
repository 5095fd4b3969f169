// Package storage holds uploaded media and hands out durable URLs for it.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
)

// ErrBlobNotFound is returned when no blob is stored at a path.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore persists binary media under slash-separated paths.
type BlobStore interface {
	Upload(ctx context.Context, path string, contentType string, body io.Reader) error
	// URL returns the public address a stored blob is served from.
	URL(path string) string
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
}

// CleanPath normalizes a blob path and rejects traversal outside the root.
func CleanPath(p string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", errors.New("empty blob path")
	}
	return cleaned, nil
}

func publicURL(baseURL, blobPath string) string {
	segments := strings.Split(blobPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/media/" + strings.Join(segments, "/")
}

// MemoryBlobStore keeps blobs in memory.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	baseURL string
	blobs   map[string]memoryBlob
}

type memoryBlob struct {
	contentType string
	data        []byte
}

// NewMemoryBlobStore returns an empty store whose URLs start with baseURL.
func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{baseURL: baseURL, blobs: make(map[string]memoryBlob)}
}

func (s *MemoryBlobStore) Upload(ctx context.Context, blobPath string, contentType string, body io.Reader) error {
	clean, err := CleanPath(blobPath)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.blobs[clean] = memoryBlob{contentType: contentType, data: data}
	s.mu.Unlock()
	return nil
}

func (s *MemoryBlobStore) URL(blobPath string) string {
	return publicURL(s.baseURL, blobPath)
}

func (s *MemoryBlobStore) Open(ctx context.Context, blobPath string) (io.ReadCloser, string, error) {
	clean, err := CleanPath(blobPath)
	if err != nil {
		return nil, "", err
	}
	s.mu.RLock()
	blob, ok := s.blobs[clean]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.data)), blob.contentType, nil
}

// Len reports how many blobs are stored.
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
