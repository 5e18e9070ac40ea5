// Package upstream talks to the API that owns credential verification
// and token minting. The gateway treats everything it returns opaquely;
// response fields are pulled out with JMESPath expressions so schema
// drift stays a config change, not a code change.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmespath/go-jmespath"
)

var ErrNotConfigured = errors.New("upstream api not configured")

// APIError carries the upstream's own (already user-safe) message.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Client posts GraphQL documents to the upstream API. Calls are
// time-bounded and never retried: retrying a consumed authorization
// code would fail anyway.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Do executes one GraphQL request and returns the decoded response
// document. A GraphQL-level error becomes an *APIError with the
// upstream's message.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any) (any, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("upstream decode: %w", err)
	}
	if msg, ok := graphqlError(doc); ok {
		return nil, &APIError{Message: msg}
	}
	return doc, nil
}

// Extract evaluates a JMESPath expression against a response document
// and returns the string it selects.
func Extract(doc any, path string) (string, bool) {
	v, err := jmespath.Search(path, doc)
	if err != nil || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func graphqlError(doc any) (string, bool) {
	msg, ok := Extract(doc, "errors[0].message")
	return msg, ok
}
