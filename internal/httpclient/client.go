//go:build !js || !wasm

// Package httpclient builds the outbound transport used for token exchange and
// upstream chat calls.
package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// New creates an HTTP client for regular environments. timeout bounds every
// call made through it; zero falls back to 120s.
func New(timeout time.Duration) HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// TLSOptions adjusts certificate verification. CABundle takes precedence over
// InsecureSkipVerify.
type TLSOptions struct {
	CABundle           string
	InsecureSkipVerify bool
}

// NewWithTLS creates an HTTP client like New whose transport trusts the PEM
// certificates in opts.CABundle in addition to the system roots, or skips
// verification entirely.
func NewWithTLS(timeout time.Duration, opts TLSOptions) (HTTPClient, error) {
	if opts.CABundle == "" && !opts.InsecureSkipVerify {
		return New(timeout), nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.CABundle != "" {
		pemData, err := os.ReadFile(opts.CABundle)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", opts.CABundle)
		}
		tlsConfig.RootCAs = pool
	} else {
		tlsConfig.InsecureSkipVerify = true
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	client := New(timeout).(*http.Client)
	client.Transport = transport
	return client, nil
}
