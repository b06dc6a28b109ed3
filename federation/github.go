package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubProvider federates logins through GitHub OAuth. GitHub is plain
// OAuth2 rather than OIDC, so the subject comes from the /user API.
type GitHubProvider struct {
	config  *oauth2.Config
	breaker *gobreaker.CircuitBreaker

	// apiBase is overridable for tests.
	apiBase string
}

// NewGitHubProvider configures the GitHub provider.
func NewGitHubProvider(clientID, clientSecret string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		breaker: newBreaker("github"),
		apiBase: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() string { return "github" }

// AuthorizeURL builds the GitHub authorization URL. GitHub ignores nonce;
// it is accepted for interface symmetry.
func (p *GitHubProvider) AuthorizeURL(state, _, redirectURI string) string {
	cfg := *p.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Exchange trades the code for a token and resolves the GitHub user.
func (p *GitHubProvider) Exchange(ctx context.Context, code, redirectURI string) (*Subject, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		cfg := *p.config
		cfg.RedirectURL = redirectURI
		upstream, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, errors.Wrap(err, "exchange code")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/user", nil)
		if err != nil {
			return nil, errors.Wrap(err, "build user request")
		}
		req.Header.Set("Authorization", "Bearer "+upstream.AccessToken)
		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "fetch user")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Errorf("user endpoint returned %d", resp.StatusCode)
		}

		var user githubUser
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, errors.Wrap(err, "decode user")
		}
		return &Subject{
			ProviderID: fmt.Sprintf("%d", user.ID),
			Email:      user.Email,
			// GitHub only exposes verified primary emails through the API.
			EmailVerified: user.Email != "",
			Username:      user.Login,
			Name:          user.Name,
			Picture:       user.AvatarURL,
		}, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "[GitHubProvider.Exchange]")
	}
	return result.(*Subject), nil
}
