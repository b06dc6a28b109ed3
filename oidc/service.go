// Package oidc implements the authorization half of the token issuance
// engine: request preparation, consent decisions and single-use code
// minting. The token half (exchange, rotation, revocation) lives in the
// token package.
package oidc

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/questlog/identity/clients"
	"github.com/questlog/identity/consent"
	"github.com/questlog/identity/oauthmodel"
	"github.com/questlog/identity/oidc/authcode"
	"github.com/questlog/identity/oidc/authrequest"
	"github.com/questlog/identity/users"
)

const (
	requestTTL = 10 * time.Minute
	codeTTL    = 5 * time.Minute
)

// Repos holds the storage dependencies of the authorization flow.
type Repos struct {
	Clients  clients.Repo
	Users    users.Repo
	Requests authrequest.Repo
	Codes    authcode.Repo
	Consents consent.Repo
}

// Service drives the authorization code flow from prepare to approve/deny.
// Callers must present an already-authenticated user identity; session
// handling belongs to the surrounding gateway.
type Service struct {
	repos   Repos
	nowFunc func() time.Time
}

type ServiceOption func(*Service)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// NewService creates the authorization flow service.
func NewService(repos Repos, options ...ServiceOption) (*Service, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewService] Clients repo is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Requests == nil {
		return nil, errors.New("[NewService] Requests repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewService] Codes repo is required")
	}
	if repos.Consents == nil {
		return nil, errors.New("[NewService] Consents repo is required")
	}

	s := &Service{
		repos:   repos,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// PrepareResult tells the caller what to render: the pending request id, the
// normalized scopes, and whether a consent screen is needed at all.
type PrepareResult struct {
	RequestID       string   `json:"request_id"`
	ClientID        string   `json:"client_id"`
	ClientName      string   `json:"client_name"`
	Scopes          []string `json:"scopes"`
	RedirectURI     string   `json:"redirect_uri"`
	State           string   `json:"state,omitempty"`
	ConsentRequired bool     `json:"consent_required"`
}

// RedirectResult carries the URL the user agent must be sent to after an
// approve or deny decision.
type RedirectResult struct {
	RedirectURL string `json:"redirect_url"`
}

// Prepare validates an incoming authorization request, persists it with a
// fresh opaque id, and reports whether consent is still needed.
func (s *Service) Prepare(ctx context.Context, userID string, params *oauthmodel.AuthorizeParameters) (*PrepareResult, error) {
	if params.ResponseType != oauthmodel.CodeResponseType {
		return nil, errors.Wrapf(oauthmodel.ErrUnsupportedResponseType, "[Service.Prepare] response_type %q", params.ResponseType)
	}

	client, err := s.repos.Clients.Get(ctx, params.ClientID)
	if err != nil {
		return nil, errors.Wrapf(oauthmodel.ErrClientNotFound, "[Service.Prepare] client %q", params.ClientID)
	}
	if !client.AllowsRedirect(params.RedirectURI) {
		return nil, errors.Wrap(oauthmodel.ErrInvalidRedirectURI, "[Service.Prepare] redirect not registered")
	}
	if !client.AllowsResponseType(params.ResponseType) {
		return nil, errors.Wrap(oauthmodel.ErrUnsupportedResponseType, "[Service.Prepare] response type not declared by client")
	}
	if !params.CodeChallengeMethod.Valid() {
		return nil, errors.Wrapf(oauthmodel.ErrPKCERequired, "[Service.Prepare] unknown challenge method %q", params.CodeChallengeMethod)
	}
	if client.IsPublic() && params.CodeChallenge == "" {
		return nil, errors.Wrap(oauthmodel.ErrPKCERequired, "[Service.Prepare] public client without code challenge")
	}

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Prepare] Users.GetByID")
	}

	scopes := s.normalizeScopes(client, user, params.Scope)

	now := s.nowFunc()
	request := &authrequest.Request{
		ID:                  uuid.New().String(),
		ClientID:            client.ID,
		UserID:              user.ID,
		RedirectURI:         params.RedirectURI,
		Scope:               oauthmodel.JoinScope(scopes),
		State:               params.State,
		Nonce:               params.Nonce,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: string(params.CodeChallengeMethod),
		Prompt:              string(params.Prompt),
		CreatedAt:           now,
		ExpiresAt:           now.Add(requestTTL),
	}
	if err := s.repos.Requests.Put(ctx, request); err != nil {
		return nil, errors.Wrap(err, "[Service.Prepare] Requests.Put")
	}

	return &PrepareResult{
		RequestID:       request.ID,
		ClientID:        client.ID,
		ClientName:      client.Name,
		Scopes:          scopes,
		RedirectURI:     params.RedirectURI,
		State:           params.State,
		ConsentRequired: s.consentRequired(ctx, user.ID, client.ID, scopes, params.Prompt),
	}, nil
}

// Approve turns a pending request into a single-use authorization code.
// approvedScopes, when non-nil, narrows the grant to the caller-approved
// subset; openid is always force-included. The request is one-shot: it is
// deleted whether or not a consent record is remembered.
func (s *Service) Approve(ctx context.Context, userID, requestID string, approvedScopes []string, remember bool) (*RedirectResult, error) {
	request, err := s.takeRequest(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}

	requested := oauthmodel.SplitScope(request.Scope)
	final := requested
	if approvedScopes != nil {
		final = intersectScopes(requested, approvedScopes)
	}
	final = ensureScope(final, "openid")

	now := s.nowFunc()
	codeValue, err := authcode.NewCodeValue()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Approve] NewCodeValue")
	}
	code := &authcode.Code{
		Code:                codeValue,
		ClientID:            request.ClientID,
		UserID:              request.UserID,
		RedirectURI:         request.RedirectURI,
		Scope:               oauthmodel.JoinScope(final),
		Nonce:               request.Nonce,
		CodeChallenge:       request.CodeChallenge,
		CodeChallengeMethod: request.CodeChallengeMethod,
		ExpiresAt:           now.Add(codeTTL),
		CreatedAt:           now,
	}
	if err := s.repos.Codes.Create(ctx, code); err != nil {
		return nil, errors.Wrap(err, "[Service.Approve] Codes.Create")
	}

	if remember {
		grant := &consent.Consent{
			UserID:     request.UserID,
			ClientID:   request.ClientID,
			Scopes:     final,
			GrantedAt:  now,
			LastUsedAt: now,
		}
		if err := s.repos.Consents.Upsert(ctx, grant); err != nil {
			return nil, errors.Wrap(err, "[Service.Approve] Consents.Upsert")
		}
	}

	redirect, err := buildRedirect(request.RedirectURI, map[string]string{
		"code":  codeValue,
		"state": request.State,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Approve] buildRedirect")
	}
	return &RedirectResult{RedirectURL: redirect}, nil
}

// Deny discards a pending request and produces the access_denied redirect.
func (s *Service) Deny(ctx context.Context, userID, requestID string) (*RedirectResult, error) {
	request, err := s.takeRequest(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}

	redirect, err := buildRedirect(request.RedirectURI, map[string]string{
		"error": "access_denied",
		"state": request.State,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Deny] buildRedirect")
	}
	return &RedirectResult{RedirectURL: redirect}, nil
}

// takeRequest fetches, ownership-checks and removes a pending request.
// Requests owned by another user look like missing requests to avoid leaking
// their existence.
func (s *Service) takeRequest(ctx context.Context, userID, requestID string) (*authrequest.Request, error) {
	request, err := s.repos.Requests.Get(ctx, requestID)
	if errors.Is(err, authrequest.ErrExpired) {
		return nil, errors.Wrap(oauthmodel.ErrRequestExpired, "[Service.takeRequest] past TTL")
	}
	if err != nil {
		return nil, errors.Wrapf(oauthmodel.ErrRequestNotFound, "[Service.takeRequest] id %q", requestID)
	}
	if request.UserID != userID {
		return nil, errors.Wrap(oauthmodel.ErrRequestNotFound, "[Service.takeRequest] owned by another user")
	}
	if request.Expired(s.nowFunc()) {
		_ = s.repos.Requests.Delete(ctx, requestID)
		return nil, errors.Wrap(oauthmodel.ErrRequestExpired, "[Service.takeRequest] past TTL")
	}
	if err := s.repos.Requests.Delete(ctx, requestID); err != nil {
		return nil, errors.Wrap(err, "[Service.takeRequest] Requests.Delete")
	}
	return request, nil
}

// normalizeScopes intersects the requested scopes with the client allow-list,
// always includes openid, and strips scopes the user has privacy-denied.
func (s *Service) normalizeScopes(client *clients.Client, user *users.User, requested string) []string {
	scopes := make([]string, 0, 4)
	for _, scope := range ensureScope(oauthmodel.SplitScope(requested), "openid") {
		if scope == "openid" {
			scopes = append(scopes, scope)
			continue
		}
		if !client.HasScope(scope) || user.DeniesScope(scope) {
			continue
		}
		scopes = append(scopes, scope)
	}
	return scopes
}

// consentRequired is false only when a remembered consent already covers the
// full requested scope set and the client did not force a fresh prompt.
func (s *Service) consentRequired(ctx context.Context, userID, clientID string, scopes []string, prompt oauthmodel.PromptType) bool {
	if prompt == oauthmodel.PromptConsent {
		return true
	}
	grant, err := s.repos.Consents.Get(ctx, userID, clientID)
	if err != nil {
		return true
	}
	return !grant.Covers(scopes)
}

func intersectScopes(requested, approved []string) []string {
	approvedSet := oauthmodel.ScopeSet(approved)
	final := make([]string, 0, len(requested))
	for _, scope := range requested {
		if _, ok := approvedSet[scope]; ok {
			final = append(final, scope)
		}
	}
	return final
}

func ensureScope(scopes []string, required string) []string {
	for _, s := range scopes {
		if s == required {
			return scopes
		}
	}
	return append([]string{required}, scopes...)
}

func buildRedirect(redirectURI string, params map[string]string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	query := u.Query()
	for key, value := range params {
		if value != "" {
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
