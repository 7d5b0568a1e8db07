// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/phicloud/phi-backend/internal/api"
	"github.com/phicloud/phi-backend/internal/saveretriever"
	"github.com/phicloud/phi-backend/internal/session"
)

// sessionIssueRequest mirrors the credential shapes session.Credential
// accepts: a raw official session token, or external-platform credentials,
// plus the exchange secret proving the caller is allowed to mint a token.
type sessionIssueRequest struct {
	Sub                 string                                 `json:"sub"`
	ExchangeSecret      string                                 `json:"exchange_secret"`
	SessionToken        *string                                `json:"session_token,omitempty"`
	ExternalCredentials *saveretriever.ExternalAPICredentials `json:"external_credentials,omitempty"`
	TapTapVersion       *string                                `json:"taptap_version,omitempty"`
}

type sessionIssueResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

func (s *server) handleSessionIssue(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Enabled() {
		api.RespondError(w, r, http.StatusServiceUnavailable, api.ErrServiceUnavailable)
		return
	}

	var req sessionIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, err.Error())
		return
	}
	if req.Sub == "" {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrInvalidInput, "sub is required")
		return
	}

	cred := session.Credential{
		SessionToken:        req.SessionToken,
		ExternalCredentials: req.ExternalCredentials,
		TapTapVersion:       req.TapTapVersion,
	}
	if !cred.HasCredentials() {
		api.RespondError(w, r, http.StatusBadRequest, api.ErrSaveHandler)
		return
	}

	token, err := s.sessions.Issue(r.Context(), req.Sub, cred, req.ExchangeSecret)
	if err != nil {
		api.RespondError(w, r, http.StatusUnauthorized, api.ErrUnauthorized, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sessionIssueResponse{
		Token:     token,
		ExpiresIn: s.cfg.Session.TTLSecs,
	})
}

func (s *server) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.DecodeBearer(r.Context(), r.Header.Get("Authorization"))
	if !state.Valid {
		api.RespondError(w, r, http.StatusUnauthorized, api.ErrInvalidToken)
		return
	}
	if err := s.sessions.Logout(r.Context(), state.Claims); err != nil {
		api.RespondError(w, r, http.StatusInternalServerError, api.ErrInternalServer, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSessionLogoutEverywhere(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.DecodeBearer(r.Context(), r.Header.Get("Authorization"))
	if !state.Valid {
		api.RespondError(w, r, http.StatusUnauthorized, api.ErrInvalidToken)
		return
	}
	ttl := time.Duration(s.cfg.Session.TTLSecs) * time.Second
	if err := s.sessions.LogoutEverywhere(r.Context(), state.Claims.Sub, ttl); err != nil {
		api.RespondError(w, r, http.StatusInternalServerError, api.ErrInternalServer, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
