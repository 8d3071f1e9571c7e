// Package jsonbin is the client for the remote document store: one JSON
// bin holding the entire task list and family registry. The store has
// exactly two verbs, full read and full overwrite.
package jsonbin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/din98/family-tasks/internal/model"
)

const defaultBaseURL = "https://api.jsonbin.io/v3"

// Client reads and writes the single shared document.
type Client struct {
	baseURL   string
	binID     string
	masterKey string
	client    *http.Client
}

// New creates a client for the given bin. Every call is bounded by
// timeout; zero means 15 seconds.
func New(binID, masterKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   defaultBaseURL,
		binID:     binID,
		masterKey: masterKey,
		client:    &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// getResponse is the JSONBin read envelope.
type getResponse struct {
	Record model.Document `json:"record"`
}

// Get fetches the latest version of the document. Errors wrap
// model.ErrStoreUnavailable.
func (c *Client) Get(ctx context.Context) (*model.Document, error) {
	url := fmt.Sprintf("%s/b/%s/latest", c.baseURL, c.binID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: read failed: %v", model.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read failed: %v", model.ErrStoreUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: read status %d: %s", model.ErrStoreUnavailable, resp.StatusCode, body)
	}

	var envelope getResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed document: %v", model.ErrStoreUnavailable, err)
	}

	doc := envelope.Record
	doc.Normalize()
	return &doc, nil
}

// Put overwrites the entire document. There is no partial update and no
// version check: the last writer wins.
func (c *Client) Put(ctx context.Context, doc *model.Document) error {
	url := fmt.Sprintf("%s/b/%s", c.baseURL, c.binID)

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: write failed: %v", model.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: write status %d: %s", model.ErrStoreUnavailable, resp.StatusCode, respBody)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.masterKey != "" {
		req.Header.Set("X-Master-Key", c.masterKey)
	}
}
