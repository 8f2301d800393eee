// Package sync decides what incremental parameters each (kind, scope) pair
// sends to the backend and folds responses back into the normalized store.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Result is the transport seam's response envelope. Any non-OK result is
// never merged into the store.
type Result struct {
	OK     bool
	Status int
	Data   map[string]any
}

// Transport is the wire seam. Implementations own HTTP concerns (auth,
// retries, serialization quirks); the coordinator only cares about the
// envelope. All methods must honor the context.
type Transport interface {
	Get(ctx context.Context, path string, params map[string]any) (Result, error)
	Post(ctx context.Context, path string, params map[string]any) (Result, error)
	Put(ctx context.Context, path string, params map[string]any) (Result, error)
	Delete(ctx context.Context, path string, params map[string]any) (Result, error)
}

// HTTPTransport is a plain JSON-over-HTTP implementation of Transport.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport creates a transport against baseURL using the default
// client when client is nil.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: client}
}

func (t *HTTPTransport) Get(ctx context.Context, path string, params map[string]any) (Result, error) {
	return t.do(ctx, http.MethodGet, path, params)
}

func (t *HTTPTransport) Post(ctx context.Context, path string, params map[string]any) (Result, error) {
	return t.do(ctx, http.MethodPost, path, params)
}

func (t *HTTPTransport) Put(ctx context.Context, path string, params map[string]any) (Result, error) {
	return t.do(ctx, http.MethodPut, path, params)
}

func (t *HTTPTransport) Delete(ctx context.Context, path string, params map[string]any) (Result, error) {
	return t.do(ctx, http.MethodDelete, path, params)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, params map[string]any) (Result, error) {
	endpoint := t.BaseURL + "/" + strings.TrimPrefix(path, "/")

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			endpoint += "?" + q.Encode()
		}
	} else {
		payload, err := json.Marshal(params)
		if err != nil {
			return Result{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var data map[string]any
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: resp.StatusCode}, err
	}
	if len(raw) > 0 {
		// A malformed body is "nothing to merge", not a hard failure.
		_ = json.Unmarshal(raw, &data)
	}

	return Result{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Data:   data,
	}, nil
}
