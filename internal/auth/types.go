package auth

import (
	"fmt"
	"strings"
	"time"
)

// TokenRefreshRequest is the OIDC token endpoint request body.
type TokenRefreshRequest struct {
	GrantType    string `json:"grantType"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// TokenRefreshResponse is the OIDC token endpoint response body.
type TokenRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn"`
	TokenType    string `json:"tokenType,omitempty"`
}

// ConfigurationError reports a refresh attempted without the required credential fields.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required credential fields: %s", strings.Join(e.Missing, ", "))
}

// UpstreamAuthError reports a rejected token exchange, or an upstream call
// rejected again after a forced refresh.
type UpstreamAuthError struct {
	Status int
	Body   string
}

func (e *UpstreamAuthError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("amazon q authorization failed with status %d", e.Status)
	}
	return fmt.Sprintf("amazon q authorization failed with status %d: %s", e.Status, e.Body)
}

// Status describes the cached credential state.
type Status struct {
	HasCredentials bool
	HasAccessToken bool
	TokenExpiry    *time.Time
}
