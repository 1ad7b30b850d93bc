package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/dvcrn/amazonq-proxy/internal/httpclient"
)

const (
	// DefaultExpiresIn is used when the token endpoint omits expiresIn.
	DefaultExpiresIn = 3600
	// DefaultRefreshMargin is subtracted from a token's lifetime to refresh early.
	DefaultRefreshMargin = 300 * time.Second
)

// maxErrorBody caps how much of an error response is kept for reporting.
const maxErrorBody = 4096

// RefreshToken exchanges the record's refresh token for a new access token.
func RefreshToken(ctx context.Context, client httpclient.HTTPClient, tokenURL string, creds *credentials.Credentials) (*TokenRefreshResponse, error) {
	request := TokenRefreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: creds.RefreshToken,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamAuthError{Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var tokenResp TokenRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("refresh response carried no access token")
	}
	return &tokenResp, nil
}

// CalculateExpiry returns now + expiresIn - margin, defaulting expiresIn when unset.
func CalculateExpiry(now time.Time, expiresIn int, margin time.Duration) time.Time {
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	return now.Add(time.Duration(expiresIn)*time.Second - margin)
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(b)
}
