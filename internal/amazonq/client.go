// Package amazonq calls the vendor generateAssistantResponse endpoint.
package amazonq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvcrn/amazonq-proxy/internal/httpclient"
	"github.com/dvcrn/amazonq-proxy/internal/metrics"
	"github.com/tidwall/gjson"
)

const generatePath = "/generateAssistantResponse"

// maxErrorBody caps how much of a failed response is read for the error message.
const maxErrorBody = 4096

// TokenSource runs an upstream call with a bearer token, handling authorization
// rejections.
type TokenSource interface {
	Do(ctx context.Context, call func(token string) (*http.Response, error)) (*http.Response, error)
}

// TransportError is a non-2xx, non-auth upstream reply.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("amazon q request failed with status %d: %s", e.Status, e.Message())
}

// Message returns the vendor's error message when the body carries one.
func (e *TransportError) Message() string {
	for _, path := range []string{"message", "Message", "error.message"} {
		if v := gjson.Get(e.Body, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	return http.StatusText(e.Status)
}

type Client struct {
	endpoint string
	http     httpclient.HTTPClient
	tokens   TokenSource
}

func NewClient(endpoint string, client httpclient.HTTPClient, tokens TokenSource) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     client,
		tokens:   tokens,
	}
}

// Generate sends req and returns the successful upstream response. The caller
// owns the body.
func (c *Client) Generate(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(NewPayload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream payload: %w", err)
	}

	resp, err := c.tokens.Do(ctx, func(token string) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+generatePath, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("x-amzn-codewhisperer-optout", "false")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{Status: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}
