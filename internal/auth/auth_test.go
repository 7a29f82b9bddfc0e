package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youtube-agent/internal/config"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens(config.AuthConfig{JWTSecret: "secret"})

	token, err := tokens.Issue(42)
	require.NoError(t, err)

	id, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestTokens_RejectsWrongSecretAndAudience(t *testing.T) {
	tokens := NewTokens(config.AuthConfig{JWTSecret: "secret"})
	other := NewTokens(config.AuthConfig{JWTSecret: "other"})

	token, err := other.Issue(1)
	require.NoError(t, err)
	_, err = tokens.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	state, err := tokens.IssueState(1)
	require.NoError(t, err)
	_, err = tokens.Parse(state)
	assert.ErrorIs(t, err, ErrInvalidToken, "a connect state is not a session token")

	id, err := tokens.ParseState(state)
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)

	_, err = tokens.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_Expired(t *testing.T) {
	tokens := NewTokens(config.AuthConfig{JWTSecret: "secret", StateTTL: time.Minute})
	issued := time.Now()
	tokens.now = func() time.Time { return issued }

	state, err := tokens.IssueState(7)
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.ParseState(state)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, CheckPassword(hash, "hunter22"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckPassword("", "hunter22"), ErrInvalidCredentials)
}
