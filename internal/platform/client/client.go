// Package client talks to a remote Live Local platform over HTTP and
// websocket. It implements the same remote.Service contract as the
// in-process platform, so stores run unchanged against either.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"livelocal/internal/remote"
)

// Client is a remote.Service backed by the platform HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu            sync.Mutex
	token         string
	user          *remote.User
	authListeners map[int]remote.AuthHandler
	nextListener  int

	socket *socket
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger for transport-level warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client against the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default(),
		authListeners: make(map[int]remote.AuthHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.socket = newSocket(c)
	return c
}

// Close tears down the realtime connection.
func (c *Client) Close() {
	c.socket.close()
}

func (c *Client) Select(ctx context.Context, params remote.SelectParams) ([]remote.Row, error) {
	var out struct {
		Rows []remote.Row `json:"rows"`
	}
	body := map[string]any{
		"filter":   params.Filter,
		"order_by": params.OrderBy,
		"desc":     params.Desc,
		"limit":    params.Limit,
	}
	if err := c.post(ctx, "/api/v1/tables/"+params.Table+"/select", body, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *Client) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	var out struct {
		Row remote.Row `json:"row"`
	}
	if err := c.post(ctx, "/api/v1/tables/"+table+"/rows", row, &out); err != nil {
		return nil, err
	}
	return out.Row, nil
}

func (c *Client) Update(ctx context.Context, table string, filter remote.Filter, patch remote.Row) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	body := map[string]any{"filter": filter, "patch": patch}
	if err := c.post(ctx, "/api/v1/tables/"+table+"/update", body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Delete(ctx context.Context, table string, filter remote.Filter) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	body := map[string]any{"filter": filter}
	if err := c.post(ctx, "/api/v1/tables/"+table+"/delete", body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Subscribe(table string, filter remote.Filter, handler remote.EventHandler) (remote.Subscription, error) {
	return c.socket.subscribe(table, filter, handler)
}

func (c *Client) Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/functions/"+name, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: invoke %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, remote.ErrUnknownFunction
	}
	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("client: invoke %s: %w", name, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: invoke %s: %w", name, err)
	}
	return json.RawMessage(raw), nil
}

func (c *Client) Auth() remote.Auth {
	return (*clientAuth)(c)
}

func (c *Client) Storage() remote.Storage {
	return (*clientStorage)(c)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return fmt.Errorf("client: %s: %w", path, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: %s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Token returns the current session token, empty when signed out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return remote.ErrUnauthenticated
	case code == http.StatusConflict:
		return remote.ErrDuplicate
	case code == http.StatusNotFound:
		return remote.ErrNoRows
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

var _ remote.Service = (*Client)(nil)
