package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/dvcrn/amazonq-proxy/internal/amazonq"
	"github.com/dvcrn/amazonq-proxy/internal/auth"
)

// Error types reported in the JSON error envelope.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeConfiguration  = "configuration_error"
	errTypeAmazonQ        = "amazon_q_error"
	errTypeServer         = "server_error"
	errTypeNotFound       = "not_found"
	errTypeMethod         = "method_not_allowed"
)

type apiError struct {
	Message string   `json:"message"`
	Type    string   `json:"type"`
	Code    string   `json:"code,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, e apiError) {
	s.writeJSON(w, status, errorResponse{Error: e})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeError(w, http.StatusBadRequest, apiError{Message: message, Type: errTypeInvalidRequest})
}

// writeUpstreamError maps a failed token acquisition or upstream call onto
// the error envelope.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cfgErr       *auth.ConfigurationError
		authErr      *auth.UpstreamAuthError
		transportErr *amazonq.TransportError
		netErr       net.Error
	)

	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		s.logger.Info().Msg("Client went away before the upstream replied")
	case errors.As(err, &cfgErr):
		s.logger.Error().Err(err).Msg("❌ Credentials are not configured")
		s.writeError(w, http.StatusInternalServerError, apiError{
			Message: fmt.Sprintf("Credentials are incomplete: %v", err),
			Type:    errTypeConfiguration,
			Missing: cfgErr.Missing,
		})
	case errors.As(err, &authErr):
		s.logger.Warn().Int("status_code", authErr.Status).Str("response_body", authErr.Body).Msg("Amazon Q rejected the credentials")
		s.writeError(w, authErr.Status, apiError{
			Message: "Amazon Q authorization failed: " + authErr.Body,
			Type:    errTypeAmazonQ,
			Code:    "unauthorized",
		})
	case errors.As(err, &transportErr):
		s.logger.Warn().Int("status_code", transportErr.Status).Str("response_body", transportErr.Body).Msg("Received error response from upstream API")
		s.writeError(w, transportErr.Status, apiError{
			Message: "Amazon Q API request failed: " + transportErr.Message(),
			Type:    errTypeAmazonQ,
			Code:    "service_unavailable",
		})
	case errors.As(err, &netErr):
		s.logger.Error().Err(err).Msg("Error making request to Amazon Q")
		s.writeError(w, http.StatusServiceUnavailable, apiError{
			Message: "Failed to communicate with upstream API: " + err.Error(),
			Type:    errTypeAmazonQ,
			Code:    "service_unavailable",
		})
	default:
		s.logger.Error().Err(err).Msg("Error handling request")
		s.writeError(w, http.StatusInternalServerError, apiError{
			Message: err.Error(),
			Type:    errTypeServer,
			Code:    "internal_error",
		})
	}
}
