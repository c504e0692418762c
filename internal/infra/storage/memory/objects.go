package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ObjectStore keeps uploaded objects in memory and issues URLs under a
// configurable base. It stands in for the S3 backend in tests and local runs.
type ObjectStore struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

func NewObjectStore(baseURL string) *ObjectStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &ObjectStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

func (s *ObjectStore) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("memory: object key is required")
	}
	if reader == nil {
		return "", errors.New("memory: reader is required")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("memory: read object: %w", err)
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return fmt.Sprintf("%s/%s", s.BaseURL, key), nil
}

// Object returns the stored bytes for key.
func (s *ObjectStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}
