package models

import (
	"time"
)

// ScheduleStatus represents the lifecycle state of a schedule
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusError     ScheduleStatus = "error"
)

// AccountSelection is the policy choosing which accounts post during a firing
type AccountSelection string

const (
	SelectionSpecific   AccountSelection = "specific"
	SelectionRandom     AccountSelection = "random"
	SelectionRoundRobin AccountSelection = "round-robin"
)

// CadenceType governs when a schedule fires
type CadenceType string

const (
	CadenceImmediate CadenceType = "immediate"
	CadenceOnce      CadenceType = "once"
	CadenceRecurring CadenceType = "recurring"
	CadenceInterval  CadenceType = "interval"
)

// Interval units
const (
	IntervalMinutes = "minutes"
	IntervalHours   = "hours"
	IntervalDays    = "days"
)

// TargetVideo is a video a schedule comments on
type TargetVideo struct {
	VideoID      string `json:"video_id"`
	ChannelID    string `json:"channel_id,omitempty"`
	Title        string `json:"title,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// TargetChannel is a channel whose uploads a schedule may comment on
type TargetChannel struct {
	ChannelID    string `json:"channel_id"`
	Name         string `json:"name,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	LatestOnly   bool   `json:"latest_only"`
}

// Cadence describes the trigger policy of a schedule
type Cadence struct {
	Type           CadenceType `gorm:"size:20;default:'immediate'" json:"type"`
	StartDate      *time.Time  `json:"start_date,omitempty"`
	EndDate        *time.Time  `gorm:"index" json:"end_date,omitempty"`
	CronExpression string      `gorm:"size:255" json:"cron_expression,omitempty"`
	IntervalValue  int         `json:"interval_value,omitempty"`
	IntervalUnit   string      `gorm:"size:20;default:'minutes'" json:"interval_unit,omitempty"`
}

// Delays are expressed in seconds
type Delays struct {
	MinDelay        int `gorm:"default:0" json:"min_delay"`
	MaxDelay        int `gorm:"default:0" json:"max_delay"`
	BetweenAccounts int `gorm:"default:0" json:"between_accounts"`
}

// Progress counts comments created and resolved by a schedule
type Progress struct {
	TotalComments  int `gorm:"default:0" json:"total_comments"`
	PostedComments int `gorm:"default:0" json:"posted_comments"`
	FailedComments int `gorm:"default:0" json:"failed_comments"`
}

// Schedule is a commenting campaign
type Schedule struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	UserID           uint             `gorm:"index;not null" json:"user_id"`
	Name             string           `gorm:"size:255;not null" json:"name"`
	Status           ScheduleStatus   `gorm:"size:20;default:'active';index" json:"status"`
	CommentTemplates StringSlice      `gorm:"type:text" json:"comment_templates"`
	TargetVideos     []TargetVideo    `gorm:"type:text;serializer:json" json:"target_videos"`
	TargetChannels   []TargetChannel  `gorm:"type:text;serializer:json" json:"target_channels"`
	AccountSelection AccountSelection `gorm:"size:20;default:'specific'" json:"account_selection"`
	SelectedAccounts []Account        `gorm:"many2many:schedule_accounts" json:"selected_accounts"`
	Cadence          Cadence          `gorm:"embedded;embeddedPrefix:cadence_" json:"schedule"`
	Delays           Delays           `gorm:"embedded;embeddedPrefix:delay_" json:"delays"`
	Progress         Progress         `gorm:"embedded;embeddedPrefix:progress_" json:"progress"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// IntervalDuration normalizes the interval cadence to a duration.
// Unknown units fall back to minutes.
func (c Cadence) IntervalDuration() time.Duration {
	value := time.Duration(c.IntervalValue)
	switch c.IntervalUnit {
	case IntervalHours:
		return value * time.Hour
	case IntervalDays:
		return value * 24 * time.Hour
	default:
		return value * time.Minute
	}
}

// HasEnded returns true if an end date is set and has passed
func (s *Schedule) HasEnded(now time.Time) bool {
	return s.Cadence.EndDate != nil && s.Cadence.EndDate.Before(now)
}

// IsActive reports whether the schedule should be firing
func (s *Schedule) IsActive() bool {
	return s.Status == ScheduleStatusActive
}

// VideoIDs returns the directly listed target video ids
func (s *Schedule) VideoIDs() []string {
	ids := make([]string, 0, len(s.TargetVideos))
	for _, v := range s.TargetVideos {
		if v.VideoID != "" {
			ids = append(ids, v.VideoID)
		}
	}
	return ids
}

// AccountIDs returns the ids of the selected accounts
func (s *Schedule) AccountIDs() []uint {
	ids := make([]uint, 0, len(s.SelectedAccounts))
	for _, a := range s.SelectedAccounts {
		ids = append(ids, a.ID)
	}
	return ids
}
