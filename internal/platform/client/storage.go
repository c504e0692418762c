package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"livelocal/internal/remote"
)

// clientStorage implements remote.Storage over the object endpoint.
type clientStorage Client

func (s *clientStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	c := (*Client)(s)
	key = strings.TrimPrefix(key, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/storage/objects/"+key, reader)
	if err != nil {
		return "", fmt.Errorf("client: build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("client: upload %s: %w", key, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return "", fmt.Errorf("client: upload %s: %w", key, err)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("client: upload %s: decode response: %w", key, err)
	}
	return out.URL, nil
}

var _ remote.Storage = (*clientStorage)(nil)
