package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ExecResult is the outcome of running learner code. Execution failures come
// back as textual output with Success false, not as Go errors; errors are
// reserved for transport problems.
type ExecResult struct {
	Output          string `json:"output"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Success         bool   `json:"success"`
}

// Client talks to the code execution sandbox service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientConfig holds configuration for the runner client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new runner client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Execute runs the given code in the sandbox.
func (c *Client) Execute(ctx context.Context, code string) (*ExecResult, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sandbox returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ExecResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
