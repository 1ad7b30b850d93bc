//go:build js && wasm

// Package httpclient builds the outbound transport used for token exchange and
// upstream chat calls.
package httpclient

import (
	"net/http"
	"time"

	"github.com/syumai/workers/cloudflare/fetch"
)

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// New creates an HTTP client backed by the Workers fetch API.
func New(timeout time.Duration) HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := fetch.NewClient().HTTPClient(fetch.RedirectModeFollow)
	c.Timeout = timeout
	return c
}

// TLSOptions is accepted for parity with native builds.
type TLSOptions struct {
	CABundle           string
	InsecureSkipVerify bool
}

// NewWithTLS returns New(timeout). The Workers fetch API manages
// certificate verification itself, so opts are ignored.
func NewWithTLS(timeout time.Duration, opts TLSOptions) (HTTPClient, error) {
	return New(timeout), nil
}
