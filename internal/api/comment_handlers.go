package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
)

const commentNotFound = "Comment not found"

type createCommentRequest struct {
	AccountID    uint       `json:"account_id" binding:"required"`
	VideoID      string     `json:"video_id" binding:"required"`
	ParentID     string     `json:"parent_id"`
	Content      string     `json:"content" binding:"required"`
	PostNow      bool       `json:"post_now"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

func (s *Server) handleListComments(c *gin.Context) {
	userID := currentUser(c)
	page, limit := pageParams(c, 20)

	filter := storage.DefaultCommentFilter()
	filter.UserID = &userID
	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	if status := c.Query("status"); status != "" {
		st := models.CommentStatus(status)
		filter.Status = &st
	}

	ctx := c.Request.Context()
	comments, err := s.repository.ListComments(ctx, filter)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	total, err := s.repository.CountComments(ctx, filter)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments":   comments,
		"pagination": newPagination(total, page, limit),
	})
}

// handleCreateComment stores a comment and either posts it now or leaves it for the due-comment job
func (s *Server) handleCreateComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	account, err := s.repository.GetUserAccount(ctx, userID, req.AccountID)
	if err != nil {
		s.fail(c, accountNotFound, err)
		return
	}
	if !account.IsActive() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "YouTube account is not active",
			"status":  account.Status,
		})
		return
	}

	comment := &models.Comment{
		UserID:       userID,
		AccountID:    account.ID,
		VideoID:      strings.TrimSpace(req.VideoID),
		ParentID:     strings.TrimSpace(req.ParentID),
		Content:      req.Content,
		Status:       models.CommentStatusScheduled,
		ScheduledFor: req.ScheduledFor,
	}
	if req.PostNow {
		comment.Status = models.CommentStatusPending
		comment.ScheduledFor = nil
	}

	if err := s.repository.CreateComment(ctx, comment); err != nil {
		s.fail(c, "", err)
		return
	}

	if !req.PostNow {
		c.JSON(http.StatusCreated, gin.H{"message": "Comment scheduled successfully", "comment": comment})
		return
	}

	result, err := s.poster.PostAndRecord(ctx, comment)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	if !result.Success {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Failed to post comment",
			"error":   result.Message(),
			"comment": comment,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Comment posted successfully", "comment": comment})
}

// handleCommentStats returns per-day counts for the last seven days
func (s *Server) handleCommentStats(c *gin.Context) {
	since := models.StartOfDay(s.now().AddDate(0, 0, -6))

	stats, err := s.repository.GetCommentStats(c.Request.Context(), currentUser(c), since)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	id, ok := pathID(c, commentNotFound)
	if !ok {
		return
	}

	if err := s.repository.DeleteComment(c.Request.Context(), currentUser(c), id); err != nil {
		s.fail(c, commentNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}

func (s *Server) handleRetryComment(c *gin.Context) {
	id, ok := pathID(c, commentNotFound)
	if !ok {
		return
	}

	comment, result, err := s.poster.Retry(c.Request.Context(), currentUser(c), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(c, http.StatusNotFound, commentNotFound, nil)
		return
	case err != nil && comment != nil:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Only failed comments can be retried",
			"status":  comment.Status,
		})
		return
	case err != nil:
		s.fail(c, commentNotFound, err)
		return
	}

	if !result.Success {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Failed to post comment",
			"error":   result.Message(),
			"comment": comment,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comment posted successfully", "comment": comment})
}
