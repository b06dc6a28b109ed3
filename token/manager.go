package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/questlog/identity/clients"
	"github.com/questlog/identity/consent"
	"github.com/questlog/identity/oauthmodel"
	"github.com/questlog/identity/oidc/authcode"
	"github.com/questlog/identity/users"
)

// Repos holds the storage dependencies of the Manager.
type Repos struct {
	Users    users.Repo
	Codes    authcode.Repo
	Consents consent.Repo
	Records  RecordRepo
}

// Manager is the token side of the issuance engine: it exchanges
// authorization codes, rotates refresh tokens, revokes tokens and serves
// userinfo claims. The authorization flow that produces the codes lives in
// the oidc package.
type Manager struct {
	authenticator *clients.Authenticator
	repos         Repos
	keys          *KeySet

	issuer      string
	refreshSalt string

	accessTokenExpiry  time.Duration
	idTokenExpiry      time.Duration
	refreshTokenExpiry time.Duration

	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

// WithTokenExpiry overrides the access, id and refresh token lifetimes.
func WithTokenExpiry(access, id, refresh time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = access
		m.idTokenExpiry = id
		m.refreshTokenExpiry = refresh
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// New creates a Manager. The refresh salt keys the HMAC under which refresh
// tokens are persisted; it must stay stable across restarts or every
// outstanding refresh token dies.
func New(authenticator *clients.Authenticator, repos Repos, keys *KeySet, issuer, refreshSalt string, options ...ManagerOption) (*Manager, error) {
	if authenticator == nil {
		return nil, errors.New("[token.New] authenticator is required")
	}
	if repos.Users == nil || repos.Codes == nil || repos.Consents == nil || repos.Records == nil {
		return nil, errors.New("[token.New] all repos are required")
	}
	if keys == nil {
		return nil, errors.New("[token.New] key set is required")
	}
	if refreshSalt == "" {
		return nil, errors.New("[token.New] refresh salt is required")
	}

	m := &Manager{
		authenticator:      authenticator,
		repos:              repos,
		keys:               keys,
		issuer:             issuer,
		refreshSalt:        refreshSalt,
		accessTokenExpiry:  30 * time.Minute,
		idTokenExpiry:      10 * time.Minute,
		refreshTokenExpiry: 30 * 24 * time.Hour,
		nowFunc:            time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Token dispatches a token endpoint request on its grant type.
func (m *Manager) Token(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	switch req.GrantType {
	case oauthmodel.AuthorizationCodeGrant:
		return m.ExchangeCode(ctx, req)
	case oauthmodel.RefreshTokenGrant:
		return m.Refresh(ctx, req)
	}
	return nil, errors.Wrapf(oauthmodel.ErrUnsupportedGrantType, "[Manager.Token] grant %q", req.GrantType)
}

// ExchangeCode trades a single-use authorization code for a token set.
// The code is consumed (used_at set by compare-and-swap) before any token is
// minted, so a concurrent duplicate exchange loses cleanly.
func (m *Manager) ExchangeCode(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	client, err := m.authenticator.Authenticate(ctx, clients.Credentials{ClientID: req.ClientID, ClientSecret: req.ClientSecret})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.ExchangeCode] client authentication")
	}
	if !client.AllowsGrant(oauthmodel.AuthorizationCodeGrant) {
		return nil, errors.Wrap(oauthmodel.ErrUnsupportedGrantType, "[Manager.ExchangeCode] authorization_code not allowed")
	}

	now := m.nowFunc()
	code, err := m.repos.Codes.Consume(ctx, req.Code, now)
	switch {
	case errors.Is(err, authcode.ErrNotFound):
		return nil, errors.Wrap(oauthmodel.ErrInvalidCode, "[Manager.ExchangeCode] unknown code")
	case errors.Is(err, authcode.ErrAlreadyUsed):
		return nil, errors.Wrap(oauthmodel.ErrCodeExpired, "[Manager.ExchangeCode] code already used")
	case err != nil:
		return nil, errors.Wrap(err, "[Manager.ExchangeCode] Codes.Consume")
	}

	// A presented code is burned on first touch; the checks below reject the
	// exchange but never resurrect the code.
	if code.ClientID != client.ID {
		return nil, errors.Wrap(oauthmodel.ErrInvalidCode, "[Manager.ExchangeCode] code belongs to another client")
	}
	if code.Expired(now) {
		return nil, errors.Wrap(oauthmodel.ErrCodeExpired, "[Manager.ExchangeCode] code past TTL")
	}
	if req.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		return nil, errors.Wrap(oauthmodel.ErrInvalidRedirectURI, "[Manager.ExchangeCode] redirect mismatch")
	}
	if code.CodeChallenge != "" || req.CodeVerifier != "" {
		if !VerifyCodeChallenge(code.CodeChallenge, req.CodeVerifier, oauthmodel.CodeMethodType(code.CodeChallengeMethod)) {
			return nil, errors.Wrap(oauthmodel.ErrInvalidPKCE, "[Manager.ExchangeCode] verifier mismatch")
		}
	}

	user, err := m.repos.Users.GetByID(ctx, code.UserID)
	if err != nil {
		return nil, errors.Wrap(oauthmodel.ErrInvalidCode, "[Manager.ExchangeCode] code user missing")
	}

	return m.issueTokens(ctx, user, client, code.Scope, code.Nonce, m.repos.Records.Create)
}

// Refresh rotates a refresh token: the presented record is revoked and a new
// token set minted in one unit of work. Replaying the old value afterwards
// fails with INVALID_REFRESH_TOKEN.
func (m *Manager) Refresh(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	client, err := m.authenticator.Authenticate(ctx, clients.Credentials{ClientID: req.ClientID, ClientSecret: req.ClientSecret})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] client authentication")
	}
	if !client.AllowsGrant(oauthmodel.RefreshTokenGrant) {
		return nil, errors.Wrap(oauthmodel.ErrUnsupportedGrantType, "[Manager.Refresh] refresh_token not allowed")
	}

	now := m.nowFunc()
	hash := HashRefreshToken(m.refreshSalt, req.RefreshToken)
	record, err := m.repos.Records.GetByRefreshHash(ctx, client.ID, hash)
	if err != nil {
		return nil, errors.Wrap(oauthmodel.ErrInvalidRefreshToken, "[Manager.Refresh] no live record")
	}
	if now.After(record.RefreshExpiresAt) {
		return nil, errors.Wrap(oauthmodel.ErrInvalidRefreshToken, "[Manager.Refresh] refresh token past TTL")
	}

	// Account eligibility is re-checked on every rotation, before anything
	// is revoked or minted.
	user, err := m.repos.Users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, errors.Wrap(oauthmodel.ErrInvalidRefreshToken, "[Manager.Refresh] record user missing")
	}
	if user.Banned() {
		return nil, errors.Wrap(oauthmodel.ErrAccountBanned, "[Manager.Refresh] user banned")
	}
	if user.Suspended() {
		return nil, errors.Wrap(oauthmodel.ErrAccountSuspended, "[Manager.Refresh] user suspended")
	}

	// Revoke-old and create-new travel together: if minting fails the old
	// record stays usable.
	rotate := func(ctx context.Context, next *IssuedTokenRecord) error {
		err := m.repos.Records.Rotate(ctx, record.ID, now, next)
		if errors.Is(err, ErrRecordNotFound) {
			// A concurrent rotation or revocation claimed the record
			// between lookup and rotate; same outcome as a replay.
			return errors.Wrap(oauthmodel.ErrInvalidRefreshToken, "[Manager.Refresh] record no longer live")
		}
		return err
	}
	return m.issueTokens(ctx, user, client, record.Scope, "", rotate)
}

// Revoke invalidates a token by value: refresh tokens by salted hash,
// access/id tokens by verified jti. Unknown or already-revoked tokens are an
// idempotent no-op per standard revocation semantics.
func (m *Manager) Revoke(ctx context.Context, tokenValue string) error {
	now := m.nowFunc()

	hash := HashRefreshToken(m.refreshSalt, tokenValue)
	if record, err := m.repos.Records.FindByRefreshHash(ctx, hash); err == nil {
		return errors.Wrap(m.repos.Records.Revoke(ctx, record.ID, now), "[Manager.Revoke] revoke refresh record")
	}

	claims, err := m.keys.Verify(tokenValue)
	if err != nil {
		return nil // not one of ours, or already dead
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}
	record, err := m.repos.Records.GetByJTI(ctx, jti)
	if err != nil || record.Revoked() {
		return nil
	}
	return errors.Wrap(m.repos.Records.Revoke(ctx, record.ID, now), "[Manager.Revoke] revoke by jti")
}

// Userinfo verifies an access token and assembles claims live from the
// current user record, so profile edits show up without re-issuing tokens.
func (m *Manager) Userinfo(ctx context.Context, rawToken string) (map[string]any, error) {
	claims, err := m.keys.Verify(rawToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Userinfo] token verification")
	}

	jti, _ := claims["jti"].(string)
	record, err := m.repos.Records.GetByJTI(ctx, jti)
	if err != nil || record.Revoked() {
		return nil, errors.Wrap(oauthmodel.ErrTokenRevoked, "[Manager.Userinfo] no live record for jti")
	}

	user, err := m.repos.Users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, errors.Wrap(oauthmodel.ErrInvalidToken, "[Manager.Userinfo] user missing")
	}

	scope, _ := claims["scope"].(string)
	return AssembleClaims(user, oauthmodel.SplitScope(scope)), nil
}

// JWKS returns the published key set.
func (m *Manager) JWKS() *JWKS {
	return m.keys.JWKS()
}

// issueTokens mints an access token, an id token and (with offline_access)
// a refresh token, then persists the issuance record through persist - the
// record creation for a fresh grant, or the rotation for a refresh.
func (m *Manager) issueTokens(ctx context.Context, user *users.User, client *clients.Client, scope, nonce string, persist func(context.Context, *IssuedTokenRecord) error) (*oauthmodel.TokenResponse, error) {
	now := m.nowFunc()
	scopes := oauthmodel.SplitScope(scope)
	sub := user.Subject()

	accessJTI := uuid.New().String()
	accessExpiresAt := now.Add(m.accessTokenExpiry)
	accessToken, err := m.keys.Sign(jwt.MapClaims{
		"iss":   m.issuer,
		"sub":   sub,
		"aud":   client.ID,
		"iat":   now.Unix(),
		"exp":   accessExpiresAt.Unix(),
		"jti":   accessJTI,
		"scope": scope,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.issueTokens] sign access token")
	}

	idJTI := uuid.New().String()
	idClaims := jwt.MapClaims{
		"iss":   m.issuer,
		"sub":   sub,
		"aud":   client.ID,
		"iat":   now.Unix(),
		"exp":   now.Add(m.idTokenExpiry).Unix(),
		"jti":   idJTI,
		"scope": scope,
	}
	for claim, value := range AssembleClaims(user, scopes) {
		idClaims[claim] = value
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	idToken, err := m.keys.Sign(idClaims)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.issueTokens] sign id token")
	}

	record := &IssuedTokenRecord{
		ID:              uuid.New().String(),
		ClientID:        client.ID,
		UserID:          user.ID,
		AccessJTI:       accessJTI,
		IDJTI:           idJTI,
		Scope:           scope,
		AccessExpiresAt: accessExpiresAt,
		CreatedAt:       now,
	}

	var refreshToken string
	if containsScope(scopes, ScopeOfflineAccess) {
		refreshToken, err = NewRefreshTokenValue()
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.issueTokens] generate refresh token")
		}
		record.RefreshHash = HashRefreshToken(m.refreshSalt, refreshToken)
		record.RefreshExpiresAt = now.Add(m.refreshTokenExpiry)
	}

	if err := persist(ctx, record); err != nil {
		return nil, errors.Wrap(err, "[Manager.issueTokens] persist record")
	}

	// Best-effort metadata; never gates issuance.
	_ = m.repos.Consents.Touch(ctx, user.ID, client.ID, now)

	return &oauthmodel.TokenResponse{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(m.accessTokenExpiry.Seconds()),
		Scope:        scope,
	}, nil
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
