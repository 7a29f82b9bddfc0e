package youtube

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/pkg/logger"
)

// Exchanger trades a refresh token for a new access token
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenStore persists refreshed tokens and account status changes
type TokenStore interface {
	UpdateAccountToken(ctx context.Context, id uint, accessToken string, expiry time.Time) error
	UpdateAccountStatus(ctx context.Context, id uint, status models.AccountStatus) error
}

// TokenRefresher keeps account access tokens current
type TokenRefresher struct {
	exchanger Exchanger
	store     TokenStore
	now       func() time.Time
	log       *logger.Logger
}

// NewTokenRefresher creates a new token refresher
func NewTokenRefresher(exchanger Exchanger, store TokenStore, log *logger.Logger) *TokenRefresher {
	return &TokenRefresher{
		exchanger: exchanger,
		store:     store,
		now:       time.Now,
		log:       log.WithComponent("token_refresher"),
	}
}

// RefreshIfNeeded refreshes the account's access token when it has expired or force is set.
// It reports whether a refresh happened. A rejected refresh marks the account inactive.
func (r *TokenRefresher) RefreshIfNeeded(ctx context.Context, account *models.Account, force bool) (bool, error) {
	if !force && !account.NeedsTokenRefresh(r.now()) {
		return false, nil
	}

	if account.Google.RefreshToken == "" {
		return false, ErrNoRefreshToken
	}

	log := r.log.WithAccountID(account.ID)

	token, err := r.exchanger.Refresh(ctx, account.Google.RefreshToken)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh token, marking account inactive")

		if serr := r.store.UpdateAccountStatus(ctx, account.ID, models.AccountStatusInactive); serr != nil {
			log.Error().Err(serr).Msg("Failed to update account status")
		}
		account.Status = models.AccountStatusInactive
		return false, fmt.Errorf("%w: %s", ErrAuthFailure, err.Error())
	}

	expiry := token.Expiry
	if err := r.store.UpdateAccountToken(ctx, account.ID, token.AccessToken, expiry); err != nil {
		return false, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	account.Google.AccessToken = token.AccessToken
	account.Google.TokenExpiry = &expiry

	log.Info().Time("expires_at", expiry).Msg("Token refreshed successfully")
	return true, nil
}
