// Package transport is the single request pipeline every REST call goes
// through: it attaches the bearer token, speaks JSON both ways, and
// centralizes error observation. Requests carry no default deadline; the
// caller's context is the only timeout authority.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// TokenSource yields the current bearer token, or "" when the session is
// absent or expired. Requests without a token proceed unauthenticated;
// rejecting them is the backend's job.
type TokenSource interface {
	Token() (string, error)
}

// Client is the shared HTTP pipeline.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New creates a transport client rooted at baseURL.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
	}
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Body: string(data)}
		log.Printf("transport: api error method=%s path=%s status=%d", method, path, resp.StatusCode)
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// authorize attaches the bearer token when one is stored. The stored
// value may or may not already carry the Bearer prefix.
func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == "" {
		return
	}
	if !strings.HasPrefix(tok, "Bearer") {
		tok = "Bearer " + tok
	}
	req.Header.Set("Authorization", tok)
}
