package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/youtube-agent/internal/config"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const (
	audienceSession = "session"
	audienceConnect = "connect"
	issuer          = "youtube-agent"
)

// Claims identifies the user a token was issued to
type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

// Tokens issues and validates bearer tokens and OAuth connect states
type Tokens struct {
	secret   []byte
	tokenTTL time.Duration
	stateTTL time.Duration
	now      func() time.Time
}

// NewTokens creates a token issuer from the auth configuration
func NewTokens(cfg config.AuthConfig) *Tokens {
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &Tokens{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: tokenTTL,
		stateTTL: stateTTL,
		now:      time.Now,
	}
}

// Issue returns a signed session token for the user
func (t *Tokens) Issue(userID uint) (string, error) {
	return t.sign(userID, audienceSession, t.tokenTTL)
}

// Parse validates a session token and returns the user id
func (t *Tokens) Parse(token string) (uint, error) {
	return t.parse(token, audienceSession)
}

// IssueState returns the short-lived state for the Google connect flow
func (t *Tokens) IssueState(userID uint) (string, error) {
	return t.sign(userID, audienceConnect, t.stateTTL)
}

// ParseState validates a connect state and returns the user id it was issued to
func (t *Tokens) ParseState(state string) (uint, error) {
	return t.parse(state, audienceConnect)
}

func (t *Tokens) sign(userID uint, audience string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) parse(token, audience string) (uint, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a password
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
