package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client is the raw document store transport. Implementations perform a
// single attempt per call; retry policy lives in the Gateway.
type Client interface {
	QueryTasks(ctx context.Context, statusFilter []Status, limit int) ([]TaskRecord, error)
	ReadContent(ctx context.Context, taskID string) ([]ContentBlock, error)
	AppendBlocks(ctx context.Context, taskID string, blocks []ContentBlock) error
	UpdateStatus(ctx context.Context, taskID string, status Status) error
}

// HTTPClient talks to the store's REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	databaseID string
	client     *http.Client
}

// NewHTTPClient creates a store client for the given database.
func NewHTTPClient(baseURL, token, databaseID string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		databaseID: databaseID,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type queryRequest struct {
	Statuses []Status `json:"statuses,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type queryResponse struct {
	Tasks []TaskRecord `json:"tasks"`
}

// QueryTasks lists tasks matching the status filter, bounded by limit.
func (c *HTTPClient) QueryTasks(ctx context.Context, statusFilter []Status, limit int) ([]TaskRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/databases/%s/query", c.baseURL, url.PathEscape(c.databaseID))
	var resp queryResponse
	err := c.do(ctx, http.MethodPost, endpoint, queryRequest{Statuses: statusFilter, Limit: limit}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

type contentResponse struct {
	Blocks []ContentBlock `json:"blocks"`
}

// ReadContent fetches the ordered content blocks of a task.
func (c *HTTPClient) ReadContent(ctx context.Context, taskID string) ([]ContentBlock, error) {
	endpoint := fmt.Sprintf("%s/v1/tasks/%s/blocks", c.baseURL, url.PathEscape(taskID))
	var resp contentResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

type appendRequest struct {
	Blocks []ContentBlock `json:"blocks"`
}

// AppendBlocks appends blocks to the end of a task's content.
func (c *HTTPClient) AppendBlocks(ctx context.Context, taskID string, blocks []ContentBlock) error {
	endpoint := fmt.Sprintf("%s/v1/tasks/%s/blocks", c.baseURL, url.PathEscape(taskID))
	return c.do(ctx, http.MethodPatch, endpoint, appendRequest{Blocks: blocks}, nil)
}

type statusRequest struct {
	Status Status `json:"status"`
}

// UpdateStatus sets the task's status property.
func (c *HTTPClient) UpdateStatus(ctx context.Context, taskID string, status Status) error {
	endpoint := fmt.Sprintf("%s/v1/tasks/%s", c.baseURL, url.PathEscape(taskID))
	return c.do(ctx, http.MethodPatch, endpoint, statusRequest{Status: status}, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTP(resp.StatusCode, fmt.Sprintf("%s %s", method, endpoint))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
