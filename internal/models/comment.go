package models

import (
	"time"
)

// CommentStatus represents the current state of a comment
type CommentStatus string

const (
	CommentStatusPending   CommentStatus = "pending"
	CommentStatusScheduled CommentStatus = "scheduled"
	CommentStatusPosted    CommentStatus = "posted"
	CommentStatusFailed    CommentStatus = "failed"
)

// Comment represents one attempt to post a comment or reply on YouTube
type Comment struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	UserID       uint          `gorm:"index;not null" json:"user_id"`
	AccountID    uint          `gorm:"index;not null" json:"account_id"`
	Account      *Account      `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	VideoID      string        `gorm:"size:64;not null" json:"video_id"`
	ParentID     string        `gorm:"size:255" json:"parent_id,omitempty"` // set for replies
	Content      string        `gorm:"type:text;not null" json:"content"`
	Status       CommentStatus `gorm:"size:20;default:'pending';index" json:"status"`
	ScheduledFor *time.Time    `gorm:"index" json:"scheduled_for"` // nil means as soon as picked up
	PostedAt     *time.Time    `json:"posted_at"`
	CommentID    string        `gorm:"size:255" json:"comment_id"` // YouTube's ID for the posted comment
	ErrorMessage string        `gorm:"type:text" json:"error_message"`
	RetryCount   int           `gorm:"default:0" json:"retry_count"`
	ScheduleID   *uint         `gorm:"index" json:"schedule_id"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// MarkPosted records a successful post
func (c *Comment) MarkPosted(youtubeID string, at time.Time) {
	c.Status = CommentStatusPosted
	c.CommentID = youtubeID
	c.PostedAt = &at
	c.ErrorMessage = ""
}

// MarkFailed records a failed attempt
func (c *Comment) MarkFailed(message string) {
	if message == "" {
		message = "failed to post comment"
	}
	c.Status = CommentStatusFailed
	c.ErrorMessage = message
	c.RetryCount++
}

// CanRetry returns true if the comment can be retried by the user
func (c *Comment) CanRetry() bool {
	return c.Status == CommentStatusFailed
}
