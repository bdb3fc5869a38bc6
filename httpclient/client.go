// Package httpclient is a small client for the one-shot operation endpoint
// anyclassd serves under /1/operations. It fits scripts and tests that fire
// a handful of calls; long-lived sessions are better served by the
// WebSocket client in pkg/store/wirestore.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/anyclass/anyclass"
)

// Client calls one anyclassd server.
type Client struct {
	// BaseURL is the server root, for example "http://127.0.0.1:8080".
	BaseURL string

	// HTTPClient overrides http.DefaultClient when set.
	HTTPClient *http.Client
}

// New returns a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Do posts one operation and decodes the response envelope. The HTTP status
// is not consulted: the envelope carries the outcome, so a failure envelope
// arrives with a nil error.
func (c *Client) Do(ctx context.Context, op anyclass.Operation, params map[string]any) (anyclass.Envelope, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return anyclass.Envelope{}, fmt.Errorf("encode parameters: %w", err)
	}
	url := c.BaseURL + "/1/operations/" + string(op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return anyclass.Envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return anyclass.Envelope{}, err
	}
	defer resp.Body.Close()

	var env anyclass.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return anyclass.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// CreateRecord stores data as a new record of className.
func (c *Client) CreateRecord(ctx context.Context, className string, data map[string]any) (anyclass.Envelope, error) {
	return c.Do(ctx, anyclass.OpCreateRecord, map[string]any{"className": className, "data": data})
}

// ReadTable fetches records of className matching filters; pass nil filters
// for all records. Pagination stays at the server defaults.
func (c *Client) ReadTable(ctx context.Context, className string, filters map[string]any) (anyclass.Envelope, error) {
	params := map[string]any{"className": className}
	if filters != nil {
		params["filters"] = filters
	}
	return c.Do(ctx, anyclass.OpReadTable, params)
}

// UpdateRecord merges data into the record objectID of className.
func (c *Client) UpdateRecord(ctx context.Context, className, objectID string, data map[string]any) (anyclass.Envelope, error) {
	return c.Do(ctx, anyclass.OpUpdateRecord, map[string]any{
		"className": className,
		"objectId":  objectID,
		"data":      data,
	})
}

// DeleteRecord removes the record objectID of className.
func (c *Client) DeleteRecord(ctx context.Context, className, objectID string) (anyclass.Envelope, error) {
	return c.Do(ctx, anyclass.OpDeleteRecord, map[string]any{"className": className, "objectId": objectID})
}

// CountRecords counts records of className matching filters.
func (c *Client) CountRecords(ctx context.Context, className string, filters map[string]any) (anyclass.Envelope, error) {
	params := map[string]any{"className": className}
	if filters != nil {
		params["filters"] = filters
	}
	return c.Do(ctx, anyclass.OpCountRecords, params)
}

// Health reports whether the server answers its health route.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
