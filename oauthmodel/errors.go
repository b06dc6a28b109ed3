package oauthmodel

import (
	"net/http"

	"github.com/pkg/errors"
)

// Error is the structured failure envelope returned by every operation in the
// token issuance core. Code is a stable machine-readable identifier and Status
// the HTTP status the transport layer should respond with.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Client and configuration errors.
var (
	ErrInvalidClient           = &Error{Code: "INVALID_CLIENT", Message: "client authentication failed", Status: http.StatusUnauthorized}
	ErrClientNotFound          = &Error{Code: "CLIENT_NOT_FOUND", Message: "unknown client", Status: http.StatusNotFound}
	ErrInvalidRedirectURI      = &Error{Code: "INVALID_REDIRECT_URI", Message: "redirect uri is not registered for this client", Status: http.StatusBadRequest}
	ErrUnsupportedResponseType = &Error{Code: "UNSUPPORTED_RESPONSE_TYPE", Message: "unsupported response type", Status: http.StatusBadRequest}
	ErrUnsupportedGrantType    = &Error{Code: "UNSUPPORTED_GRANT_TYPE", Message: "grant type not allowed for this client", Status: http.StatusBadRequest}
	ErrPKCERequired            = &Error{Code: "PKCE_REQUIRED", Message: "public clients must supply a code challenge", Status: http.StatusBadRequest}
)

// Ephemeral-state errors (authorization requests and codes).
var (
	ErrRequestNotFound = &Error{Code: "REQUEST_NOT_FOUND", Message: "authorization request not found", Status: http.StatusNotFound}
	ErrRequestExpired  = &Error{Code: "REQUEST_EXPIRED", Message: "authorization request has expired", Status: http.StatusBadRequest}
	ErrInvalidCode     = &Error{Code: "INVALID_CODE", Message: "authorization code is invalid", Status: http.StatusBadRequest}
	ErrCodeExpired     = &Error{Code: "CODE_EXPIRED", Message: "authorization code has expired or was already used", Status: http.StatusBadRequest}
	ErrInvalidPKCE     = &Error{Code: "INVALID_PKCE", Message: "code verifier does not match the stored challenge", Status: http.StatusBadRequest}
)

// Account-eligibility errors.
var (
	ErrAccountSuspended = &Error{Code: "ACCOUNT_SUSPENDED", Message: "account is suspended", Status: http.StatusForbidden}
	ErrAccountBanned    = &Error{Code: "ACCOUNT_BANNED", Message: "account is banned", Status: http.StatusForbidden}
)

// Token-lifecycle errors.
var (
	ErrInvalidRefreshToken = &Error{Code: "INVALID_REFRESH_TOKEN", Message: "refresh token is invalid, expired or revoked", Status: http.StatusBadRequest}
	ErrTokenRevoked        = &Error{Code: "TOKEN_REVOKED", Message: "token has been revoked", Status: http.StatusUnauthorized}
	ErrInvalidToken        = &Error{Code: "INVALID_TOKEN", Message: "token is invalid or expired", Status: http.StatusUnauthorized}
	ErrUnknownKey          = &Error{Code: "UNKNOWN_KEY", Message: "token was signed with an unknown key", Status: http.StatusUnauthorized}
)

// AsError unwraps err down to its root cause and returns the *Error if the
// cause is one, so wrapped service errors keep their code and status all the
// way to the HTTP boundary.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(errors.Cause(err), &oe) {
		return oe, true
	}
	return nil, false
}
