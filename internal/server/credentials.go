package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dvcrn/amazonq-proxy/internal/credentials"
)

type credentialsSavedResponse struct {
	Message       string `json:"message"`
	HasProfileArn bool   `json:"has_profile_arn"`
}

type credentialsStatusResponse struct {
	HasCredentials bool    `json:"has_credentials"`
	HasAccessToken bool    `json:"has_access_token"`
	TokenExpiry    *string `json:"token_expiry"`
}

func (s *Server) credentialsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.credentialsStatus(w, r)
	case http.MethodPost:
		s.saveCredentials(w, r)
	default:
		s.methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) credentialsStatus(w http.ResponseWriter, r *http.Request) {
	st := s.creds.Status(r.Context())
	resp := credentialsStatusResponse{
		HasCredentials: st.HasCredentials,
		HasAccessToken: st.HasAccessToken,
	}
	if st.TokenExpiry != nil {
		expiry := formatTimestamp(*st.TokenExpiry)
		resp.TokenExpiry = &expiry
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveCredentials(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.badRequest(w, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	rec, err := credentials.Parse(raw)
	if err != nil {
		s.badRequest(w, fmt.Sprintf("Invalid credentials: %v", err))
		return
	}

	if missing := rec.Missing(); len(missing) > 0 {
		s.logger.Warn().Strs("missing", missing).Msg("Rejected incomplete credentials")
		s.writeError(w, http.StatusBadRequest, apiError{
			Message: "Missing required fields: " + strings.Join(missing, ", "),
			Type:    errTypeInvalidRequest,
			Missing: missing,
		})
		return
	}

	if err := s.creds.SetCredentials(r.Context(), rec); err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}

	s.logger.Info().
		Bool("has_access_token", rec.AccessToken != "").
		Bool("has_profile_arn", rec.ProfileARN() != "").
		Msg("💾 Credentials saved")
	s.writeJSON(w, http.StatusOK, credentialsSavedResponse{
		Message:       "Credentials saved successfully",
		HasProfileArn: rec.ProfileARN() != "",
	})
}
