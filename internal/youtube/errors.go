package youtube

import (
	"errors"
	"strings"

	"google.golang.org/api/googleapi"
)

var (
	// ErrAuthFailure means the refresh token was rejected; the account needs re-authentication
	ErrAuthFailure = errors.New("oauth token refresh failed")
	// ErrNoRefreshToken means no refresh token is stored; the account needs re-authentication
	ErrNoRefreshToken = errors.New("no refresh token available, user needs to re-authenticate")
	// ErrProxyUnavailable means the account's proxy could not be turned into a transport
	ErrProxyUnavailable = errors.New("proxy unavailable")
	// ErrQuotaExceeded means YouTube refused the call because of quota
	ErrQuotaExceeded = errors.New("youtube quota exceeded")
)

var quotaReasons = []string{"quotaExceeded", "dailyLimitExceeded"}

// IsQuotaError reports whether a YouTube API error signals exhausted quota
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			for _, reason := range quotaReasons {
				if item.Reason == reason {
					return true
				}
			}
		}
	}

	msg := err.Error()
	for _, reason := range quotaReasons {
		if strings.Contains(msg, reason) {
			return true
		}
	}
	return false
}
