// Package aero is a thin HTTP client for the aero core service API.
package aero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aero: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Client is the aero SDK entry point.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("aero: base URL required")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Query asks the assistant a question.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	var resp QueryResponse
	err := c.do(ctx, http.MethodPost, "/v1/query", req, &resp)
	return resp, err
}

// Ingest submits document text for ingestion and returns the final record.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (Document, error) {
	var doc Document
	err := c.do(ctx, http.MethodPost, "/v1/documents", req, &doc)
	return doc, err
}

// Document returns a document record with its ingestion status.
func (c *Client) Document(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := c.do(ctx, http.MethodGet, "/v1/documents/"+url.PathEscape(id), nil, &doc)
	return doc, err
}

// DeleteDocument removes a document, its chunks and every cached answer
// built from it.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(id), nil, nil)
}

// RebuildIndex queues a background vector index rebuild.
func (c *Client) RebuildIndex(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/index/rebuild", nil, nil)
}

// RecentActivity returns up to limit most recent activity events.
func (c *Client) RecentActivity(ctx context.Context, limit int) ([]ActivityEvent, error) {
	path := "/v1/activity/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Events []ActivityEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Health checks the health of all system components. A degraded report is
// returned without error; only transport failures error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var status HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, &status)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		// 503 still carries a full report body.
		return status, nil
	}
	return status, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("aero: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("aero: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("aero: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("aero: decode response: %w", err)
		}
		return nil
	}

	// Failed ingestion returns the document record, not an error envelope.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if out != nil && resp.StatusCode == http.StatusUnprocessableEntity {
		if json.Unmarshal(raw, out) == nil {
			return &APIError{StatusCode: resp.StatusCode, Code: "ingestion_failed", Message: "document ingestion failed"}
		}
	}
	if resp.StatusCode == http.StatusServiceUnavailable && out != nil {
		_ = json.Unmarshal(raw, out)
	}

	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &apiErr) != nil || apiErr.Code == "" {
		apiErr.Code = "unknown"
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
}
