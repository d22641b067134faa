package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// Endpoint paths served by the newsdesk server.
const (
	SummariesPath = "/api/generate-summaries"
	PromptsPath   = "/api/run-grok-prompts"
	QueriesPath   = "/api/run-pplx-queries"
)

// StatusError reports a non-200 response from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("API request failed with status %d", e.Code)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.Code, body)
}

// Client starts generation jobs and returns their NDJSON response bodies.
type Client struct {
	base   *url.URL
	http   *http.Client
	header http.Header
}

// New constructs a Client for the server at base. headerTimeout bounds the
// wait for response headers; the streamed body itself is never timed out.
func New(base string, headerTimeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", base)
	}
	return &Client{
		base:   u,
		http:   getHTTPClient(headerTimeout),
		header: defaultHeaders(),
	}, nil
}

// defaultHeaders returns the default headers for the API requests.
func defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/x-ndjson, text/plain")
	h.Set("Cache-Control", "no-cache")
	return h
}

// GenerateSummaries starts a news summary run over the given email text.
func (c *Client) GenerateSummaries(ctx context.Context, email string) (io.ReadCloser, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("email content is required")
	}
	return c.post(ctx, SummariesPath, map[string]any{"email": email})
}

// RunPrompts starts a batch of prompts; each becomes one session in the stream.
func (c *Client) RunPrompts(ctx context.Context, prompts []string) (io.ReadCloser, error) {
	if len(prompts) == 0 {
		return nil, errors.New("at least one prompt is required")
	}
	return c.post(ctx, PromptsPath, map[string]any{"prompts": prompts})
}

// RunQueries starts a batch of queries; each becomes one session in the stream.
func (c *Client) RunQueries(ctx context.Context, queries []string) (io.ReadCloser, error) {
	if len(queries) == 0 {
		return nil, errors.New("at least one query is required")
	}
	return c.post(ctx, QueriesPath, map[string]any{"queries": queries})
}

func (c *Client) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := c.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = append([]string(nil), v...)
	}

	log := pslog.Ctx(ctx).With("endpoint", path)
	log.Debug("request started", "bytes", len(data))
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("request failed", "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := resp.Body.Close(); err != nil {
			log.Debug("failed to close response body", "err", err)
		}
		log.Warn("request rejected", "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	log.Debug("stream opened", "status", resp.StatusCode)
	return resp.Body, nil
}

var (
	transport     *http.Transport
	transportOnce sync.Once
)

// getHTTPClient returns a client sharing one transport. No overall client
// timeout is set because response bodies stream for as long as the job runs.
func getHTTPClient(headerTimeout time.Duration) *http.Client {
	transportOnce.Do(func() {
		transport = &http.Transport{
			MaxIdleConns:       100,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: false,
			DisableKeepAlives:  false,
			ForceAttemptHTTP2:  true,
		}

		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	})

	t := transport
	if headerTimeout > 0 {
		t = transport.Clone()
		t.ResponseHeaderTimeout = headerTimeout
	}
	return &http.Client{Transport: t}
}
