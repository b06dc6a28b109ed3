package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

// DiscordProvider federates logins through Discord OAuth.
type DiscordProvider struct {
	config  *oauth2.Config
	breaker *gobreaker.CircuitBreaker
	apiBase string
}

// NewDiscordProvider configures the Discord provider.
func NewDiscordProvider(clientID, clientSecret string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
			Scopes: []string{"identify", "email"},
		},
		breaker: newBreaker("discord"),
		apiBase: "https://discord.com/api",
	}
}

func (p *DiscordProvider) Name() string { return "discord" }

// AuthorizeURL builds the Discord authorization URL.
func (p *DiscordProvider) AuthorizeURL(state, _, redirectURI string) string {
	cfg := *p.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Global   string `json:"global_name"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Avatar   string `json:"avatar"`
	Locale   string `json:"locale"`
}

// Exchange trades the code for a token and resolves the Discord user.
func (p *DiscordProvider) Exchange(ctx context.Context, code, redirectURI string) (*Subject, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		cfg := *p.config
		cfg.RedirectURL = redirectURI
		upstream, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, errors.Wrap(err, "exchange code")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/users/@me", nil)
		if err != nil {
			return nil, errors.Wrap(err, "build user request")
		}
		req.Header.Set("Authorization", "Bearer "+upstream.AccessToken)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "fetch user")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Errorf("user endpoint returned %d", resp.StatusCode)
		}

		var user discordUser
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, errors.Wrap(err, "decode user")
		}

		var picture string
		if user.Avatar != "" {
			picture = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", user.ID, user.Avatar)
		}
		return &Subject{
			ProviderID:    user.ID,
			Email:         user.Email,
			EmailVerified: user.Verified,
			Username:      user.Username,
			Name:          user.Global,
			Picture:       picture,
			Locale:        user.Locale,
		}, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "[DiscordProvider.Exchange]")
	}
	return result.(*Subject), nil
}
