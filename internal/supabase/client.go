package supabase

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
)

// Client talks to a Supabase-compatible platform: the GoTrue auth API under
// /auth/v1 and the PostgREST table API under /rest/v1.
//
// A Client is immutable; WithAccessToken returns a copy bound to a user
// session so one base client can be shared across requests.
type Client struct {
	baseURL string
	apiKey  string
	bearer  string
	http    *http.Client
}

// NewClient returns a client that sends apiKey both as the apikey header and
// as the bearer token until WithAccessToken overrides the latter.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		bearer:  apiKey,
		http:    httpClient,
	}
}

// WithAccessToken returns a copy of c authenticated as the session owning token.
func (c *Client) WithAccessToken(token string) *Client {
	cp := *c
	cp.bearer = token
	return &cp
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	body    interface{}
}

// do sends req and decodes a 2xx JSON response into out (when non-nil).
// Non-2xx responses are returned as *Error.
func (c *Client) do(ctx context.Context, req request, out interface{}) (*http.Response, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("apikey", c.apiKey)
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, parseError(resp.StatusCode, raw)
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

// Ping reports whether the platform answers at all. Any response below 500
// counts as reachable; the auth health route is not implemented everywhere.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/health"}, nil)
	if err == nil {
		return nil
	}
	if apiErr, ok := AsError(err); ok && apiErr.Status < 500 {
		return nil
	}
	return err
}
