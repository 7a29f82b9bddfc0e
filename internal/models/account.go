package models

import (
	"time"

	"golang.org/x/oauth2"
)

// AccountStatus represents the state of a connected YouTube account
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive" // token refresh failed, needs re-auth
	AccountStatusLimited  AccountStatus = "limited"  // quota exhausted
	AccountStatusBanned   AccountStatus = "banned"
)

// Valid reports whether s is a known account status
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusLimited, AccountStatusBanned:
		return true
	}
	return false
}

// DailyUsage counts actions taken by an account on one calendar day
type DailyUsage struct {
	Date         *time.Time `json:"date"`
	CommentCount int        `gorm:"default:0" json:"comment_count"`
	LikeCount    int        `gorm:"default:0" json:"like_count"`
}

// GoogleCredentials holds the OAuth credential pair of an account
type GoogleCredentials struct {
	ID           string     `gorm:"size:255;index" json:"-"`
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry"`
}

// Account represents one connected YouTube channel
type Account struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UserID        uint              `gorm:"index;not null" json:"user_id"`
	Email         string            `gorm:"size:255;not null" json:"email"`
	Status        AccountStatus     `gorm:"size:20;default:'active';index" json:"status"`
	ChannelID     string            `gorm:"size:255" json:"channel_id"`
	ChannelTitle  string            `gorm:"size:255" json:"channel_title"`
	ThumbnailURL  string            `gorm:"size:1024" json:"thumbnail_url"`
	ProxyID       *uint             `gorm:"index" json:"proxy_id"`
	Proxy         *Proxy            `gorm:"foreignKey:ProxyID" json:"proxy,omitempty"`
	LastUsed      *time.Time        `json:"last_used"`
	DailyUsage    DailyUsage        `gorm:"embedded;embeddedPrefix:usage_" json:"daily_usage"`
	Google        GoogleCredentials `gorm:"embedded;embeddedPrefix:google_" json:"google"`
	ConnectedDate time.Time         `json:"connected_date"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the account may be used for posting
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// NeedsTokenRefresh returns true if no expiry is recorded or the token has expired
func (a *Account) NeedsTokenRefresh(now time.Time) bool {
	if a.Google.TokenExpiry == nil || a.Google.TokenExpiry.IsZero() {
		return true
	}
	return !now.Before(*a.Google.TokenExpiry)
}

// OAuth2Token converts the stored credentials to golang.org/x/oauth2.Token
func (a *Account) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  a.Google.AccessToken,
		RefreshToken: a.Google.RefreshToken,
		TokenType:    "Bearer",
	}
	if a.Google.TokenExpiry != nil {
		token.Expiry = *a.Google.TokenExpiry
	}
	return token
}

// StartOfDay truncates t to local midnight, the boundary of daily usage counters
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
