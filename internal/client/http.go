// Package client holds the HTTP clients the sales service uses to reach the
// customer and inventory services.
//
// Failures are reported as *apperr.Error. A structured 4xx answer keeps the
// remote code (CUSTOMER_NOT_FOUND, INSUFFICIENT_STOCK, ...) and means the
// operation was rejected. Transport errors, timeouts, 5xx answers and
// unreadable bodies are all SERVICE_UNAVAILABLE: the caller cannot tell
// whether the operation ran.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// Resolver maps a service name to a base URL.
type Resolver interface {
	ServiceURL(name string) string
}

// FixedURL resolves every service to the same base URL.
type FixedURL string

func (u FixedURL) ServiceURL(string) string { return string(u) }

type baseClient struct {
	service    string
	resolver   Resolver
	httpClient *http.Client
}

func newBaseClient(service string, resolver Resolver, timeout time.Duration) baseClient {
	return baseClient{
		service:  service,
		resolver: resolver,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *baseClient) unavailable(err error) *apperr.Error {
	return apperr.Wrap(err, apperr.CodeServiceUnavailable, c.service+" unavailable").With("service", c.service)
}

// do sends a JSON request and decodes a JSON response into out.
func (c *baseClient) do(ctx context.Context, method, path string, body any, key string, out any) error {
	header := http.Header{}
	if key != "" {
		header.Set(HeaderIdempotencyKey, key)
	}
	return c.send(ctx, method, path, body, header, out)
}

// send is do with caller-supplied request headers.
func (c *baseClient) send(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimRight(c.resolver.ServiceURL(c.service), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logging.RequestID(ctx); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.unavailable(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *baseClient) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var remote apperr.Error
	if err := json.Unmarshal(data, &remote); err != nil || remote.Code == "" {
		remote = apperr.Error{
			Code:    apperr.FromStatus(resp.StatusCode),
			Message: fmt.Sprintf("%s returned status %d", c.service, resp.StatusCode),
		}
	}

	if resp.StatusCode >= 500 {
		return c.unavailable(&remote).
			With("status", resp.StatusCode).
			With("remote_code", string(remote.Code))
	}
	return &remote
}
