package oidc_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/questlog/identity/clients"
	clientfake "github.com/questlog/identity/clients/repofake"
	"github.com/questlog/identity/consent"
	consentfake "github.com/questlog/identity/consent/repofake"
	"github.com/questlog/identity/oauthmodel"
	"github.com/questlog/identity/oidc"
	codefake "github.com/questlog/identity/oidc/authcode/repofake"
	"github.com/questlog/identity/oidc/authrequest"
	"github.com/questlog/identity/users"
	userfake "github.com/questlog/identity/users/repofake"
)

type flowFixture struct {
	service  *oidc.Service
	clients  *clientfake.FakeClientRepo
	users    *userfake.FakeUserRepo
	requests *authrequest.InMemoryRepo
	codes    *codefake.FakeCodeRepo
	consents *consentfake.FakeConsentRepo
	clock    *time.Time
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	clientRepo := clientfake.NewFakeClientRepo()
	userRepo := userfake.NewFakeUserRepo()
	codeRepo := codefake.NewFakeCodeRepo()
	consentRepo := consentfake.NewFakeConsentRepo()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nowFunc := func() time.Time { return clock }
	requestRepo := authrequest.NewInMemoryRepo(authrequest.WithNowFunc(nowFunc))

	require.NoError(t, clientRepo.Upsert(context.Background(), &clients.Client{
		ID:            "web-client",
		Name:          "Web Client",
		RedirectURIs:  []string{"https://app.example.com/callback"},
		Scopes:        []string{"openid", "profile", "email", "offline_access"},
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
	}))
	require.NoError(t, clientRepo.Upsert(context.Background(), &clients.Client{
		ID:           "native-client",
		Name:         "Native App",
		RedirectURIs: []string{"app.example://callback"},
		Scopes:       []string{"openid", "profile"},
		GrantTypes:   []string{"authorization_code"},
		Public:       true,
	}))
	require.NoError(t, userRepo.Upsert(context.Background(), &users.User{
		ID:     "user-1",
		Email:  "ada@example.com",
		Status: users.StatusActive,
	}))

	service, err := oidc.NewService(oidc.Repos{
		Clients:  clientRepo,
		Users:    userRepo,
		Requests: requestRepo,
		Codes:    codeRepo,
		Consents: consentRepo,
	}, oidc.WithNowFunc(nowFunc))
	require.NoError(t, err)

	return &flowFixture{
		service:  service,
		clients:  clientRepo,
		users:    userRepo,
		requests: requestRepo,
		codes:    codeRepo,
		consents: consentRepo,
		clock:    &clock,
	}
}

func authorizeParams() *oauthmodel.AuthorizeParameters {
	return &oauthmodel.AuthorizeParameters{
		ClientID:            "web-client",
		ResponseType:        oauthmodel.CodeResponseType,
		RedirectURI:         "https://app.example.com/callback",
		Scope:               "openid profile email",
		State:               "xyz",
		Nonce:               "nonce-1",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: oauthmodel.CodeMethodS256,
	}
}

func requireFlowError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oauthErr, ok := oauthmodel.AsError(err)
	require.True(t, ok, "expected structured error, got %v", err)
	require.Equal(t, code, oauthErr.Code)
}

func TestService_Prepare(t *testing.T) {
	t.Run("stages a valid request", func(t *testing.T) {
		f := newFlowFixture(t)

		result, err := f.service.Prepare(context.Background(), "user-1", authorizeParams())
		require.NoError(t, err)
		require.NotEmpty(t, result.RequestID)
		require.Equal(t, "Web Client", result.ClientName)
		require.Equal(t, []string{"openid", "profile", "email"}, result.Scopes)
		require.True(t, result.ConsentRequired)
	})

	t.Run("rejects unknown response types", func(t *testing.T) {
		f := newFlowFixture(t)
		params := authorizeParams()
		params.ResponseType = "token"

		_, err := f.service.Prepare(context.Background(), "user-1", params)
		requireFlowError(t, err, "UNSUPPORTED_RESPONSE_TYPE")
	})

	t.Run("rejects unknown clients", func(t *testing.T) {
		f := newFlowFixture(t)
		params := authorizeParams()
		params.ClientID = "ghost"

		_, err := f.service.Prepare(context.Background(), "user-1", params)
		requireFlowError(t, err, "CLIENT_NOT_FOUND")
	})

	t.Run("rejects unregistered redirect URIs", func(t *testing.T) {
		f := newFlowFixture(t)
		params := authorizeParams()
		params.RedirectURI = "https://evil.example.com/callback"

		_, err := f.service.Prepare(context.Background(), "user-1", params)
		requireFlowError(t, err, "INVALID_REDIRECT_URI")
	})

	t.Run("public clients must send a code challenge", func(t *testing.T) {
		f := newFlowFixture(t)
		params := authorizeParams()
		params.ClientID = "native-client"
		params.RedirectURI = "app.example://callback"
		params.CodeChallenge = ""

		_, err := f.service.Prepare(context.Background(), "user-1", params)
		requireFlowError(t, err, "PKCE_REQUIRED")
	})

	t.Run("rejects unknown challenge methods", func(t *testing.T) {
		f := newFlowFixture(t)
		params := authorizeParams()
		params.CodeChallengeMethod = "S512"

		_, err := f.service.Prepare(context.Background(), "user-1", params)
		requireFlowError(t, err, "PKCE_REQUIRED")
	})

	t.Run("scopes outside the client allow-list are dropped", func(t *testing.T) {
		f := newFlowFixture(t)
		params := authorizeParams()
		params.Scope = "openid profile admin:everything"

		result, err := f.service.Prepare(context.Background(), "user-1", params)
		require.NoError(t, err)
		require.Equal(t, []string{"openid", "profile"}, result.Scopes)
	})

	t.Run("privacy-denied scopes are dropped", func(t *testing.T) {
		f := newFlowFixture(t)
		require.NoError(t, f.users.Upsert(context.Background(), &users.User{
			ID:            "user-1",
			Email:         "ada@example.com",
			Status:        users.StatusActive,
			PrivacyDenied: []string{"email"},
		}))

		result, err := f.service.Prepare(context.Background(), "user-1", authorizeParams())
		require.NoError(t, err)
		require.Equal(t, []string{"openid", "profile"}, result.Scopes)
	})

	t.Run("remembered consent skips the consent screen", func(t *testing.T) {
		f := newFlowFixture(t)
		require.NoError(t, f.consents.Upsert(context.Background(), &consent.Consent{
			UserID:   "user-1",
			ClientID: "web-client",
			Scopes:   []string{"openid", "profile", "email"},
		}))

		result, err := f.service.Prepare(context.Background(), "user-1", authorizeParams())
		require.NoError(t, err)
		require.False(t, result.ConsentRequired)
	})

	t.Run("broader scope than remembered still needs consent", func(t *testing.T) {
		f := newFlowFixture(t)
		require.NoError(t, f.consents.Upsert(context.Background(), &consent.Consent{
			UserID:   "user-1",
			ClientID: "web-client",
			Scopes:   []string{"openid", "profile"},
		}))

		result, err := f.service.Prepare(context.Background(), "user-1", authorizeParams())
		require.NoError(t, err)
		require.True(t, result.ConsentRequired)
	})

	t.Run("prompt=consent always forces the screen", func(t *testing.T) {
		f := newFlowFixture(t)
		require.NoError(t, f.consents.Upsert(context.Background(), &consent.Consent{
			UserID:   "user-1",
			ClientID: "web-client",
			Scopes:   []string{"openid", "profile", "email"},
		}))
		params := authorizeParams()
		params.Prompt = oauthmodel.PromptConsent

		result, err := f.service.Prepare(context.Background(), "user-1", params)
		require.NoError(t, err)
		require.True(t, result.ConsentRequired)
	})
}

func TestService_Approve(t *testing.T) {
	prepare := func(t *testing.T, f *flowFixture) string {
		t.Helper()
		result, err := f.service.Prepare(context.Background(), "user-1", authorizeParams())
		require.NoError(t, err)
		return result.RequestID
	}

	t.Run("produces a code redirect carrying state", func(t *testing.T) {
		f := newFlowFixture(t)
		requestID := prepare(t, f)

		result, err := f.service.Approve(context.Background(), "user-1", requestID, nil, false)
		require.NoError(t, err)

		redirect, err := url.Parse(result.RedirectURL)
		require.NoError(t, err)
		require.Equal(t, "app.example.com", redirect.Host)
		require.NotEmpty(t, redirect.Query().Get("code"))
		require.Equal(t, "xyz", redirect.Query().Get("state"))
	})

	t.Run("narrows the grant to the approved subset", func(t *testing.T) {
		f := newFlowFixture(t)
		requestID := prepare(t, f)

		result, err := f.service.Approve(context.Background(), "user-1", requestID, []string{"openid", "profile"}, false)
		require.NoError(t, err)

		codeValue := queryParam(t, result.RedirectURL, "code")
		code, err := f.codes.Consume(context.Background(), codeValue, *f.clock)
		require.NoError(t, err)
		require.Equal(t, "openid profile", code.Scope)
	})

	t.Run("openid survives even when the subset drops it", func(t *testing.T) {
		f := newFlowFixture(t)
		requestID := prepare(t, f)

		result, err := f.service.Approve(context.Background(), "user-1", requestID, []string{"profile"}, false)
		require.NoError(t, err)

		codeValue := queryParam(t, result.RedirectURL, "code")
		code, err := f.codes.Consume(context.Background(), codeValue, *f.clock)
		require.NoError(t, err)
		require.Equal(t, "openid profile", code.Scope)
	})

	t.Run("requests are one-shot", func(t *testing.T) {
		f := newFlowFixture(t)
		requestID := prepare(t, f)

		_, err := f.service.Approve(context.Background(), "user-1", requestID, nil, false)
		require.NoError(t, err)

		_, err = f.service.Approve(context.Background(), "user-1", requestID, nil, false)
		requireFlowError(t, err, "REQUEST_NOT_FOUND")
	})

	t.Run("remember stores a consent covering the grant", func(t *testing.T) {
		f := newFlowFixture(t)
		requestID := prepare(t, f)

		_, err := f.service.Approve(context.Background(), "user-1", requestID, nil, true)
		require.NoError(t, err)

		grant, err := f.consents.Get(context.Background(), "user-1", "web-client")
		require.NoError(t, err)
		require.True(t, grant.Covers([]string{"openid", "profile", "email"}))

		// The next prepare skips consent.
		result, err := f.service.Prepare(context.Background(), "user-1", authorizeParams())
		require.NoError(t, err)
		require.False(t, result.ConsentRequired)
	})

	t.Run("another user's request looks missing", func(t *testing.T) {
		f := newFlowFixture(t)
		require.NoError(t, f.users.Upsert(context.Background(), &users.User{
			ID:     "user-2",
			Status: users.StatusActive,
		}))
		requestID := prepare(t, f)

		_, err := f.service.Approve(context.Background(), "user-2", requestID, nil, false)
		requireFlowError(t, err, "REQUEST_NOT_FOUND")
	})

	t.Run("expired request", func(t *testing.T) {
		f := newFlowFixture(t)
		requestID := prepare(t, f)
		*f.clock = f.clock.Add(11 * time.Minute)

		_, err := f.service.Approve(context.Background(), "user-1", requestID, nil, false)
		requireFlowError(t, err, "REQUEST_EXPIRED")

		// The stale entry is gone, so a retry gets the generic not-found.
		_, err = f.service.Approve(context.Background(), "user-1", requestID, nil, false)
		requireFlowError(t, err, "REQUEST_NOT_FOUND")
	})
}

func TestService_Deny(t *testing.T) {
	f := newFlowFixture(t)
	result, err := f.service.Prepare(context.Background(), "user-1", authorizeParams())
	require.NoError(t, err)

	denied, err := f.service.Deny(context.Background(), "user-1", result.RequestID)
	require.NoError(t, err)

	redirect, err := url.Parse(denied.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "access_denied", redirect.Query().Get("error"))
	require.Equal(t, "xyz", redirect.Query().Get("state"))
	require.Empty(t, redirect.Query().Get("code"))

	// Denial consumes the request too.
	_, err = f.service.Deny(context.Background(), "user-1", result.RequestID)
	requireFlowError(t, err, "REQUEST_NOT_FOUND")
}

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	value := u.Query().Get(key)
	require.NotEmpty(t, value)
	return value
}
