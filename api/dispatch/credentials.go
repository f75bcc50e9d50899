package dispatch

import (
	"context"
	"fmt"

	"area/api/handlers"
	"area/database"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"
)

// discordEndpoint is not shipped with the oauth2 package.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// OAuthClientConfig carries the per-provider client credentials the refresh
// flow needs. The authorization-code dance itself happens in the external
// OAuth collaborator; the dispatch engine only ever exchanges refresh tokens.
type OAuthClientConfig struct {
	GoogleClientID      string
	GoogleClientSecret  string
	GithubClientID      string
	GithubClientSecret  string
	DiscordClientID     string
	DiscordClientSecret string
}

// OAuthConfigs maps each service type to its token-endpoint config. The three
// Google services share one client.
func OAuthConfigs(cfg OAuthClientConfig) map[string]*oauth2.Config {
	googleConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
	}
	return map[string]*oauth2.Config{
		database.ServiceGoogleCalendar: googleConfig,
		database.ServiceGmail:          googleConfig,
		database.ServiceYoutube:        googleConfig,
		database.ServiceGithub: {
			ClientID:     cfg.GithubClientID,
			ClientSecret: cfg.GithubClientSecret,
			Endpoint:     github.Endpoint,
		},
		database.ServiceDiscord: {
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			Endpoint:     discordEndpoint,
		},
	}
}

// CredentialStore resolves and refreshes per-user service tokens. The
// persistent store stays the single source of truth; nothing is cached
// across invocations.
type CredentialStore struct {
	DB      *gorm.DB
	Configs map[string]*oauth2.Config
}

func NewCredentialStore(db *gorm.DB, configs map[string]*oauth2.Config) *CredentialStore {
	return &CredentialStore{DB: db, Configs: configs}
}

// GetToken returns the user's connection for a service type.
func (cs *CredentialStore) GetToken(userID uint, serviceType string) (*database.UserService, error) {
	return database.GetUserService(cs.DB, userID, serviceType)
}

// RefreshToken exchanges the connection's refresh token for a new access
// token and rotates it in place. A connection without a refresh token cannot
// recover from AuthExpired.
func (cs *CredentialStore) RefreshToken(ctx context.Context, connection *database.UserService) error {
	config := cs.Configs[connection.ServiceType]
	if config == nil {
		return fmt.Errorf("%w: no oauth config for service %q", handlers.ErrAuthExpired, connection.ServiceType)
	}
	if connection.RefreshToken == nil || *connection.RefreshToken == "" {
		return fmt.Errorf("%w: connection has no refresh token", handlers.ErrAuthExpired)
	}

	ctx, cancel := context.WithTimeout(ctx, handlers.UpstreamTimeout)
	defer cancel()

	token := &oauth2.Token{RefreshToken: *connection.RefreshToken}
	refreshed, err := config.TokenSource(ctx, token).Token()
	if err != nil {
		return fmt.Errorf("%w: token refresh failed: %v", handlers.ErrAuthExpired, err)
	}

	if refreshed.RefreshToken != "" && refreshed.RefreshToken != *connection.RefreshToken {
		connection.RefreshToken = &refreshed.RefreshToken
		if err := cs.DB.Model(connection).Update("refresh_token", refreshed.RefreshToken).Error; err != nil {
			return err
		}
	}
	return database.SaveAccessToken(cs.DB, connection, refreshed.AccessToken)
}
