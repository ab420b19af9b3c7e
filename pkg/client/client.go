// Package client talks to a kvq server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skshohagmiah/kvquery/internal/kv"
	"github.com/skshohagmiah/kvquery/internal/query"
)

var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response. Method is set when a builder call was rejected.
type APIError struct {
	Status  int
	Message string
	Method  string
}

func (e *APIError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("kvq: %d: %s (method %s)", e.Status, e.Message, e.Method)
	}
	return fmt.Sprintf("kvq: %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type Client struct {
	base string
	http *http.Client
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error  string `json:"error"`
			Method string `json:"method"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Method: e.Method}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func keyPath(key string) string {
	return "/v1/kv/" + url.PathEscape(key)
}

func (c *Client) Put(ctx context.Context, key string, v kv.Value) error {
	return c.do(ctx, http.MethodPut, keyPath(key), v, nil)
}

func (c *Client) Get(ctx context.Context, key string) (kv.Value, error) {
	var e kv.Entry
	if err := c.do(ctx, http.MethodGet, keyPath(key), nil, &e); err != nil {
		return kv.Value{}, err
	}
	return e.Value, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, keyPath(key), nil, nil)
}

// Batch puts entries then deletes keys.
func (c *Client) Batch(ctx context.Context, put []kv.Entry, del []string) error {
	req := struct {
		Put    []kv.Entry `json:"put,omitempty"`
		Delete []string   `json:"delete,omitempty"`
	}{put, del}
	return c.do(ctx, http.MethodPost, "/v1/kv/batch", req, nil)
}

// Entries lists the local device's entries under prefix.
func (c *Client) Entries(ctx context.Context, prefix string) ([]kv.Entry, error) {
	var resp struct {
		Entries []kv.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/kv?prefix="+url.QueryEscape(prefix), nil, &resp)
	return resp.Entries, err
}

// Query sends the rendered form of q. Builder errors are returned before
// any request is made.
func (c *Client) Query(ctx context.Context, q *query.Query) ([]kv.Entry, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	var resp struct {
		Entries []kv.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/query", map[string]string{"sqlLike": q.SQLLike()}, &resp)
	return resp.Entries, err
}

// QueryCalls sends a call program for the server to build and run. An
// empty program matches everything.
func (c *Client) QueryCalls(ctx context.Context, prog query.Program) ([]kv.Entry, string, error) {
	if prog == nil {
		prog = query.Program{}
	}
	var resp struct {
		SQLLike string     `json:"sqlLike"`
		Entries []kv.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/query", map[string]query.Program{"calls": prog}, &resp)
	return resp.Entries, resp.SQLLike, err
}

func (c *Client) Size(ctx context.Context, q *query.Query) (int, error) {
	if err := q.Err(); err != nil {
		return 0, err
	}
	var resp struct {
		Size int `json:"size"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/query/size", map[string]string{"sqlLike": q.SQLLike()}, &resp)
	return resp.Size, err
}

// Render asks the server to render a call program.
func (c *Client) Render(ctx context.Context, prog query.Program) (string, error) {
	if prog == nil {
		prog = query.Program{}
	}
	var resp struct {
		SQLLike string `json:"sqlLike"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/query/render", map[string]query.Program{"calls": prog}, &resp)
	return resp.SQLLike, err
}

func (c *Client) RemoveDeviceData(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/devices/"+url.PathEscape(deviceID), nil, nil)
}
