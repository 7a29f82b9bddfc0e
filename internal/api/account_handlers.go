package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
)

const accountNotFound = "YouTube account not found"

type updateAccountRequest struct {
	Status *models.AccountStatus `json:"status"`
	// Zero detaches the current proxy
	ProxyID *uint `json:"proxy_id"`
}

func (s *Server) handleListAccounts(c *gin.Context) {
	userID := currentUser(c)
	filter := storage.AccountFilter{UserID: &userID}
	if status := c.Query("status"); status != "" {
		st := models.AccountStatus(status)
		filter.Status = &st
	}

	accounts, err := s.repository.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// handleConnectAccount returns the Google consent URL for linking a new account
func (s *Server) handleConnectAccount(c *gin.Context) {
	state, err := s.tokens.IssueState(currentUser(c))
	if err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": s.oauth.GetAuthURL(state)})
}

func (s *Server) handleGetAccount(c *gin.Context) {
	id, ok := pathID(c, accountNotFound)
	if !ok {
		return
	}

	account, err := s.repository.GetUserAccount(c.Request.Context(), currentUser(c), id)
	if err != nil {
		s.fail(c, accountNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (s *Server) handleUpdateAccount(c *gin.Context) {
	id, ok := pathID(c, accountNotFound)
	if !ok {
		return
	}

	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	account, err := s.repository.GetUserAccount(ctx, userID, id)
	if err != nil {
		s.fail(c, accountNotFound, err)
		return
	}

	if req.Status != nil {
		if !req.Status.Valid() {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid status %q", *req.Status), nil)
			return
		}
		account.Status = *req.Status
	}

	if req.ProxyID != nil {
		if *req.ProxyID == 0 {
			account.ProxyID = nil
		} else {
			p, err := s.repository.GetUserProxy(ctx, userID, *req.ProxyID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					respondError(c, http.StatusBadRequest, "Proxy not found", nil)
					return
				}
				s.fail(c, "", err)
				return
			}
			account.ProxyID = &p.ID
		}
	}

	account.Proxy = nil
	if err := s.repository.UpdateAccount(ctx, account); err != nil {
		s.fail(c, "", err)
		return
	}

	updated, err := s.repository.GetUserAccount(ctx, userID, id)
	if err != nil {
		s.fail(c, accountNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account updated successfully", "account": updated})
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	id, ok := pathID(c, accountNotFound)
	if !ok {
		return
	}

	if err := s.repository.DeleteAccount(c.Request.Context(), currentUser(c), id); err != nil {
		s.fail(c, accountNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

// handleVerifyAccount checks the credentials by loading the account's own channel
func (s *Server) handleVerifyAccount(c *gin.Context) {
	id, ok := pathID(c, accountNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	account, err := s.repository.GetUserAccount(ctx, userID, id)
	if err != nil {
		s.fail(c, accountNotFound, err)
		return
	}

	if _, err := s.refresher.RefreshIfNeeded(ctx, account, false); err != nil {
		respondError(c, http.StatusBadRequest, "Account verification failed", err)
		return
	}

	client, err := s.clients.New(ctx, account)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Account verification failed", err)
		return
	}

	channel, err := client.MyChannel(ctx)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Account verification failed", err)
		return
	}

	account.ChannelID = channel.ID
	account.ChannelTitle = channel.Title
	if channel.ThumbnailURL != "" {
		account.ThumbnailURL = channel.ThumbnailURL
	}
	account.Proxy = nil
	if err := s.repository.UpdateAccount(ctx, account); err != nil {
		s.fail(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account verified successfully", "account": account})
}

func (s *Server) handleRefreshAccountToken(c *gin.Context) {
	id, ok := pathID(c, accountNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	account, err := s.repository.GetUserAccount(ctx, currentUser(c), id)
	if err != nil {
		s.fail(c, accountNotFound, err)
		return
	}

	if _, err := s.refresher.RefreshIfNeeded(ctx, account, true); err != nil {
		respondError(c, http.StatusBadRequest, "Failed to refresh token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Token refreshed successfully", "account": account})
}
