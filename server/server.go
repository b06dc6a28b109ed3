// Package server exposes the identity service over HTTP: the authorization
// decision endpoints, the token endpoint, userinfo, revocation, JWKS and the
// OIDC discovery document.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/questlog/identity/oauthmodel"
	"github.com/questlog/identity/oidc"
	"github.com/questlog/identity/token"
)

// Route paths.
const (
	RouteAuthorizePrepare = "/oauth/authorize/prepare"
	RouteAuthorizeApprove = "/oauth/authorize/approve"
	RouteAuthorizeDeny    = "/oauth/authorize/deny"
	RouteToken            = "/oauth/token"
	RouteUserinfo         = "/oauth/userinfo"
	RouteRevoke           = "/oauth/revoke"
	RouteJWKS             = "/oauth/jwks"
	RouteWellKnownJWKS    = "/.well-known/jwks.json"
	RouteWellKnownConfig  = "/.well-known/openid-configuration"
)

// identityHeader carries the authenticated user id set by the fronting
// gateway. End-user session handling lives outside this service.
const identityHeader = "X-Authenticated-User"

// Server wires the authorization flow and token manager to HTTP routes.
type Server struct {
	mux    *http.ServeMux
	flow   *oidc.Service
	tokens *token.Manager
	issuer string
	logger zerolog.Logger
}

// New creates the HTTP surface around the given services.
func New(flow *oidc.Service, tokens *token.Manager, issuer string, logger zerolog.Logger) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		flow:   flow,
		tokens: tokens,
		issuer: issuer,
		logger: logger,
	}
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	api := func(h http.HandlerFunc) http.HandlerFunc {
		return ChainMiddleware(h, s.RecoverMiddleware, s.LoggingMiddleware)
	}
	user := func(h http.HandlerFunc) http.HandlerFunc {
		return ChainMiddleware(h, s.RecoverMiddleware, s.LoggingMiddleware, s.RequireIdentity)
	}

	s.mux.HandleFunc("GET "+RouteAuthorizePrepare, user(s.AuthorizePrepare()))
	s.mux.HandleFunc("POST "+RouteAuthorizeApprove, user(s.AuthorizeApprove()))
	s.mux.HandleFunc("POST "+RouteAuthorizeDeny, user(s.AuthorizeDeny()))

	s.mux.HandleFunc("POST "+RouteToken, api(s.Token()))
	s.mux.HandleFunc("GET "+RouteUserinfo, api(s.Userinfo()))
	s.mux.HandleFunc("POST "+RouteRevoke, api(s.Revoke()))
	s.mux.HandleFunc("GET "+RouteJWKS, api(s.JWKS()))
	s.mux.HandleFunc("GET "+RouteWellKnownJWKS, api(s.JWKS()))
	s.mux.HandleFunc("GET "+RouteWellKnownConfig, api(s.WellKnownOpenIDConfig()))
}

// Handler returns the root handler for the service.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("write response body")
	}
}

// writeError maps service errors to the JSON error envelope. Errors that do
// not carry an oauthmodel.Error become opaque 500s so internal detail never
// leaks to clients.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if oauthErr, ok := oauthmodel.AsError(err); ok {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
		s.writeJSON(w, oauthErr.Status, errorBody{Code: oauthErr.Code, Message: oauthErr.Message})
		return
	}
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	s.writeJSON(w, http.StatusInternalServerError, errorBody{Code: "SERVER_ERROR", Message: "internal server error"})
}
