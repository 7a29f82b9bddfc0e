package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/youtube-agent/internal/auth"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repository.GetUserByEmail(ctx, email); err == nil {
		respondError(c, http.StatusBadRequest, "User already exists", nil)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.fail(c, "User not found", err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	user := &models.User{Name: req.Name, Email: email, PasswordHash: hash}
	if err := s.repository.CreateUser(ctx, user); err != nil {
		s.fail(c, "", err)
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := c.Request.Context()
	user, err := s.repository.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(c, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		s.fail(c, "", err)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	now := s.now()
	user.LastLogin = &now
	if err := s.repository.UpdateUser(ctx, user); err != nil {
		s.log.Warn().Err(err).Uint("user_id", user.ID).Msg("Failed to record last login")
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.repository.GetUserByID(c.Request.Context(), currentUser(c))
	if err != nil {
		s.fail(c, "User not found", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Tokens are stateless, the client drops its copy
func (s *Server) handleLogout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// handleGoogleCallback finishes the connect flow started by handleConnectAccount.
// The account is created, or updated when the Google id is already linked to the user.
func (s *Server) handleGoogleCallback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		s.redirectToClient(c, "error", msg)
		return
	}

	userID, err := s.tokens.ParseState(c.Query("state"))
	if err != nil {
		s.redirectToClient(c, "error", "invalid_state")
		return
	}

	code := c.Query("code")
	if code == "" {
		s.redirectToClient(c, "error", "missing_code")
		return
	}

	ctx := c.Request.Context()
	log := s.log.With().Uint("user_id", userID).Logger()

	token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("Google code exchange failed")
		s.redirectToClient(c, "error", "google_auth_failed")
		return
	}

	identity, err := s.oauth.FetchIdentity(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load Google identity")
		s.redirectToClient(c, "error", "google_auth_failed")
		return
	}

	account, err := s.repository.GetAccountByGoogleID(ctx, userID, identity.GoogleID)
	isNew := errors.Is(err, storage.ErrNotFound)
	if err != nil && !isNew {
		log.Error().Err(err).Msg("Failed to look up account")
		s.redirectToClient(c, "error", "server_error")
		return
	}
	if isNew {
		account = &models.Account{UserID: userID, ConnectedDate: s.now()}
	}

	account.Email = identity.Email
	account.Status = models.AccountStatusActive
	account.ChannelID = identity.ChannelID
	account.ChannelTitle = identity.ChannelTitle
	account.ThumbnailURL = identity.ThumbnailURL
	account.Google.ID = identity.GoogleID
	account.Google.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.Google.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		account.Google.TokenExpiry = &expiry
	}

	if isNew {
		err = s.repository.CreateAccount(ctx, account)
	} else {
		account.Proxy = nil
		err = s.repository.UpdateAccount(ctx, account)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to save account")
		s.redirectToClient(c, "error", "server_error")
		return
	}

	log.Info().
		Uint("account_id", account.ID).
		Str("channel_id", account.ChannelID).
		Bool("new", isNew).
		Msg("YouTube account connected")

	s.redirectToClient(c, "connected", "true")
}

func (s *Server) redirectToClient(c *gin.Context, key, value string) {
	target := strings.TrimRight(s.cfg.ClientURL, "/") + "/accounts?" + url.Values{key: {value}}.Encode()
	c.Redirect(http.StatusFound, target)
}
