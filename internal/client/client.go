package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maintenance-gate/internal/maintenance"
)

// Client talks to a server's maintenance management endpoint.
type Client struct {
	baseURL   string
	path      string
	accessKey string
	http      *http.Client
}

type Option func(*Client)

func WithPath(path string) Option {
	return func(c *Client) { c.path = path }
}

func WithAccessKey(key string) Option {
	return func(c *Client) { c.accessKey = key }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    maintenance.DefaultManagementPath,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the management endpoint's reply. ResponseOptions is only
// populated by Enable and Disable.
type Result struct {
	Message         string                       `json:"message"`
	ResponseOptions *maintenance.ResponseOptions `json:"maintenanceResponseOptions,omitempty"`
}

// Error is returned for any non-2xx reply.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("maintenance endpoint returned %d", e.Status)
	}
	return fmt.Sprintf("maintenance endpoint returned %d: %s", e.Status, e.Message)
}

func (c *Client) Status(ctx context.Context) (Result, error) {
	return c.do(ctx, http.MethodGet, nil)
}

// Enable switches the server into maintenance mode. With nil opts the
// server keeps its previous response options.
func (c *Client) Enable(ctx context.Context, opts *maintenance.ResponseOptions) (Result, error) {
	var body []byte
	if opts != nil {
		raw, err := json.Marshal(opts)
		if err != nil {
			return Result{}, fmt.Errorf("encode response options: %w", err)
		}
		body = raw
	}
	return c.do(ctx, http.MethodPost, body)
}

func (c *Client) Disable(ctx context.Context) (Result, error) {
	return c.do(ctx, http.MethodDelete, nil)
}

func (c *Client) endpoint() string {
	u := c.baseURL + c.path
	if c.accessKey == "" {
		return u
	}
	return u + "?" + url.Values{maintenance.AccessKeyParam: {c.accessKey}}.Encode()
}

func (c *Client) do(ctx context.Context, method string, body []byte) (Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(), reader)
	if err != nil {
		return Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", method, c.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var result Result
	decodeErr := json.Unmarshal(raw, &result)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &Error{Status: resp.StatusCode, Message: result.Message}
	}
	if decodeErr != nil {
		return Result{}, fmt.Errorf("decode response: %w", decodeErr)
	}
	return result, nil
}
