// Package rest is the HTTP client for the document store and execution
// backend: GET /sections, PUT /sections/{id}, POST /node/{id}/deactivate,
// POST /execute, POST /stop/{nodeId}, POST /execute-flow. It implements
// both ports.SectionStore and ports.Executor.
package rest

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

	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/ports"
)

const defaultTimeout = 15 * time.Second

// Client talks to a remote railyard-compatible backend.
type Client struct {
	base string
	http *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests, custom
// transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	_ ports.SectionStore = (*Client)(nil)
	_ ports.Executor     = (*Client)(nil)
)

// LoadAll fetches every section document.
func (c *Client) LoadAll(ctx context.Context) ([]*domain.Section, error) {
	var sections []*domain.Section
	if err := c.do(ctx, http.MethodGet, "/sections", nil, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// Save replaces the stored document for the section.
func (c *Client) Save(ctx context.Context, section *domain.Section) error {
	path := "/sections/" + url.PathEscape(section.ID)
	return c.do(ctx, http.MethodPut, path, section, nil)
}

// Deactivate toggles a node's deactivation flag server-side.
func (c *Client) Deactivate(ctx context.Context, sectionID, nodeID string) error {
	path := "/node/" + url.PathEscape(nodeID) + "/deactivate"
	body := map[string]string{"sectionId": sectionID}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// Execute starts an asynchronous single-node run.
func (c *Client) Execute(ctx context.Context, req ports.ExecuteRequest) error {
	return c.do(ctx, http.MethodPost, "/execute", req, nil)
}

// Stop requests cancellation of a running node.
func (c *Client) Stop(ctx context.Context, nodeID string) error {
	return c.do(ctx, http.MethodPost, "/stop/"+url.PathEscape(nodeID), nil, nil)
}

// ExecuteFlow starts an asynchronous multi-node run from an entry node.
func (c *Client) ExecuteFlow(ctx context.Context, sectionID, startNodeID string) error {
	body := map[string]string{"sectionId": sectionID, "startNodeId": startNodeID}
	return c.do(ctx, http.MethodPost, "/execute-flow", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrSectionNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
