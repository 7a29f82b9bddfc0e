package youtube

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

// OAuthManager handles the Google OAuth 2.0 flow for YouTube accounts
type OAuthManager struct {
	config      *oauth2.Config
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// Identity describes the Google user and YouTube channel behind a token
type Identity struct {
	GoogleID     string
	Email        string
	Name         string
	ChannelID    string
	ChannelTitle string
	ThumbnailURL string
}

// NewOAuthManager creates a new OAuth manager
func NewOAuthManager(cfg config.GoogleConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *OAuthManager {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{
			oauth2api.UserinfoEmailScope,
			oauth2api.UserinfoProfileScope,
			youtube.YoutubeScope,
			youtube.YoutubeForceSslScope,
		}
	}

	return &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoints.Google,
		},
		rateLimiter: limiter,
		log:         log.WithComponent("oauth"),
	}
}

// GetAuthURL returns the consent URL. Offline access with forced consent
// makes Google return a refresh token on every connect.
func (m *OAuthManager) GetAuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for tokens
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if err := m.rateLimiter.Wait(ctx, ratelimit.LimiterOAuth); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	m.log.Info().Msg("Exchanging authorization code for token")

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to exchange code")
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// Refresh exchanges a refresh token for a new access token
func (m *OAuthManager) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if err := m.rateLimiter.Wait(ctx, ratelimit.LimiterOAuth); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	// An empty access token forces the source to hit the token endpoint
	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, err
	}
	return token, nil
}

// FetchIdentity loads the Google profile and the YouTube channel of a fresh token
func (m *OAuthManager) FetchIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	httpClient := m.config.Client(ctx, token)

	userinfoService, err := oauth2api.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}
	info, err := userinfoService.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	identity := &Identity{
		GoogleID:     info.Id,
		Email:        info.Email,
		Name:         info.Name,
		ThumbnailURL: info.Picture,
	}

	ytService, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	channel, err := myChannel(ctx, ytService)
	if err != nil {
		// Accounts without a channel can still be connected
		m.log.Warn().Err(err).Str("email", info.Email).Msg("Could not load YouTube channel")
		return identity, nil
	}

	identity.ChannelID = channel.ID
	identity.ChannelTitle = channel.Title
	if channel.ThumbnailURL != "" {
		identity.ThumbnailURL = channel.ThumbnailURL
	}
	return identity, nil
}
