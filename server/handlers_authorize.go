package server

import (
	"encoding/json"
	"net/http"

	"github.com/questlog/identity/oauthmodel"
)

// AuthorizePrepare validates the query parameters of an authorization
// request and stages it for the consent decision. The response tells the
// caller whether a consent screen must be shown.
func (s *Server) AuthorizePrepare() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := &oauthmodel.AuthorizeParameters{
			ClientID:            q.Get("client_id"),
			ResponseType:        oauthmodel.ResponseType(q.Get("response_type")),
			RedirectURI:         q.Get("redirect_uri"),
			Scope:               q.Get("scope"),
			State:               q.Get("state"),
			Nonce:               q.Get("nonce"),
			CodeChallenge:       q.Get("code_challenge"),
			CodeChallengeMethod: oauthmodel.CodeMethodType(q.Get("code_challenge_method")),
			Prompt:              oauthmodel.PromptType(q.Get("prompt")),
		}

		result, err := s.flow.Prepare(r.Context(), userIDFromContext(r.Context()), params)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

type decisionRequest struct {
	RequestID string `json:"request_id"`

	// Scopes narrows the grant to a subset of the requested scopes. Absent
	// means approve everything that was requested.
	Scopes   []string `json:"scopes,omitempty"`
	Remember bool     `json:"remember,omitempty"`
}

// AuthorizeApprove records the user's approval, mints the authorization code
// and returns the redirect the user agent must follow.
func (s *Server) AuthorizeApprove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_REQUEST", Message: "malformed request body"})
			return
		}

		result, err := s.flow.Approve(r.Context(), userIDFromContext(r.Context()), body.RequestID, body.Scopes, body.Remember)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

// AuthorizeDeny records a denial and returns the error redirect.
func (s *Server) AuthorizeDeny() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_REQUEST", Message: "malformed request body"})
			return
		}

		result, err := s.flow.Deny(r.Context(), userIDFromContext(r.Context()), body.RequestID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}
