package tutor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// Client talks to the AI gateway service over HTTP. The streaming endpoint
// answers with SSE-style frames, each a line prefixed "data: " holding a JSON
// object; for validate actions the first frame carries the verdict.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds configuration for the gateway client
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each call end to end, including reading a streamed
	// body to completion (default 120s). Streams additionally honor the
	// request context.
	Timeout time.Duration
}

// NewClient creates a new gateway client
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// frame is one decoded protocol frame.
type frame struct {
	IsCorrect *bool  `json:"isCorrect,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
}

// Stream starts a tutoring exchange. For validate actions it consumes frames
// synchronously until the verdict frame arrives, then hands the remainder of
// the body to a goroutine that feeds the chunk channel in order.
func (c *Client) Stream(ctx context.Context, req *StreamRequest) (*Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/ai", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrGateway, resp.StatusCode, string(bodyBytes))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	stream := &Stream{}
	ch := make(chan Chunk, 100)
	stream.Chunks = ch

	// Verdict-then-text framing: for validate, block until the first frame
	// so the caller sees the verdict before any chunk is applied.
	var pending []string
	if req.Action == ActionValidate {
		f, ok, err := nextFrame(scanner)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: read verdict frame: %v", domain.ErrGateway, err)
		}
		if !ok || f.IsCorrect == nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: missing verdict frame", domain.ErrGateway)
		}
		stream.Correct = f.IsCorrect
		if f.Chunk != "" {
			pending = append(pending, f.Chunk)
		}
	}

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		for _, text := range pending {
			ch <- Chunk{Text: text}
		}

		for {
			f, ok, err := nextFrame(scanner)
			if err != nil {
				ch <- Chunk{Err: err}
				return
			}
			if !ok {
				return
			}
			if f.Chunk != "" {
				ch <- Chunk{Text: f.Chunk}
			}
		}
	}()

	return stream, nil
}

// nextFrame scans to the next "data: " line and decodes it. ok is false when
// the stream ended cleanly.
func nextFrame(scanner *bufio.Scanner) (frame, bool, error) {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var f frame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			// Malformed frames are skipped rather than killing the stream.
			continue
		}
		return f, true, nil
	}
	if err := scanner.Err(); err != nil {
		return frame{}, false, err
	}
	return frame{}, false, nil
}

// Hint performs a single-shot hint request.
func (c *Client) Hint(ctx context.Context, req *HintRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/hint", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrGateway, resp.StatusCode, string(bodyBytes))
	}

	var hintResp struct {
		Hint string `json:"hint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hintResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return hintResp.Hint, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

var _ Gateway = (*Client)(nil)
