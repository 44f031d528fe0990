package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "arete/pkg/errors"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-Id"

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	TraceID    string
}

// Envelope mirrors the server response wrapper.
type Envelope struct {
	Code    pkgerrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Details json.RawMessage     `json:"details"`
	TraceID string              `json:"trace_id"`
}

// OK reports whether the server accepted the request.
func (e Envelope) OK() bool {
	return e.Code == pkgerrors.Success
}

// Envelope decodes the body. Non-JSON bodies are an error.
func (r ResponseInfo) Envelope() (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return env, fmt.Errorf("decode response failed: %w", err)
	}
	return env, nil
}

// Client wraps HTTP requests for the interview API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.http.Timeout = timeout
	}
}

// Do sends one request. Every request carries a fresh trace id so server logs can
// be matched to CLI output.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	info.TraceID = uuid.NewString()
	req.Header.Set(traceHeader, info.TraceID)

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}
