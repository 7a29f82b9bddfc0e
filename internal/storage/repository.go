package storage

import (
	"context"
	"errors"
	"time"

	"github.com/youtube-agent/internal/models"
)

// ErrNotFound is returned when a record does not exist or is not visible to the caller
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// Account operations
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByID(ctx context.Context, id uint) (*models.Account, error)
	GetUserAccount(ctx context.Context, userID, id uint) (*models.Account, error)
	GetAccountByGoogleID(ctx context.Context, userID uint, googleID string) (*models.Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, userID, id uint) error
	UpdateAccountStatus(ctx context.Context, id uint, status models.AccountStatus) error
	UpdateAccountToken(ctx context.Context, id uint, accessToken string, expiry time.Time) error
	RecordAccountUsage(ctx context.Context, id uint, now time.Time) error
	ResetDailyUsage(ctx context.Context, day time.Time) (int64, error)

	// Proxy operations
	CreateProxy(ctx context.Context, proxy *models.Proxy) error
	GetProxyByID(ctx context.Context, id uint) (*models.Proxy, error)
	GetUserProxy(ctx context.Context, userID, id uint) (*models.Proxy, error)
	ListProxies(ctx context.Context, filter ProxyFilter) ([]*models.Proxy, error)
	UpdateProxy(ctx context.Context, proxy *models.Proxy) error
	DeleteProxy(ctx context.Context, userID, id uint) error
	RecordProxyCheck(ctx context.Context, id uint, status models.ProxyStatus, checkedAt time.Time, speed time.Duration) error

	// Comment operations
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentByID(ctx context.Context, id uint) (*models.Comment, error)
	GetUserComment(ctx context.Context, userID, id uint) (*models.Comment, error)
	ListComments(ctx context.Context, filter CommentFilter) ([]*models.Comment, error)
	CountComments(ctx context.Context, filter CommentFilter) (int64, error)
	UpdateComment(ctx context.Context, comment *models.Comment) error
	DeleteComment(ctx context.Context, userID, id uint) error
	ClaimDueComments(ctx context.Context, now time.Time, limit int) ([]*models.Comment, error)
	GetCommentStats(ctx context.Context, userID uint, since time.Time) ([]DailyCommentStats, error)

	// Schedule operations
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	GetScheduleByID(ctx context.Context, id uint) (*models.Schedule, error)
	GetUserSchedule(ctx context.Context, userID, id uint) (*models.Schedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*models.Schedule, error)
	CountSchedules(ctx context.Context, filter ScheduleFilter) (int64, error)
	UpdateSchedule(ctx context.Context, schedule *models.Schedule) error
	DeleteSchedule(ctx context.Context, userID, id uint) error
	UpdateScheduleStatus(ctx context.Context, id uint, status models.ScheduleStatus) error
	IncrementScheduleProgress(ctx context.Context, id uint, delta models.Progress) error
	ListExpiredSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)

	// Maintenance
	Close() error
	Migrate() error
}

// AccountFilter defines filtering options for accounts
type AccountFilter struct {
	UserID *uint
	Status *models.AccountStatus
	IDs    []uint
}

// ProxyFilter defines filtering options for proxies
type ProxyFilter struct {
	UserID *uint
	Status *models.ProxyStatus
	IDs    []uint
}

// CommentFilter defines filtering options for comments
type CommentFilter struct {
	UserID     *uint
	Status     *models.CommentStatus
	AccountID  *uint
	ScheduleID *uint
	Limit      int
	Offset     int
	OrderBy    string
	OrderDesc  bool
}

// ScheduleFilter defines filtering options for schedules
type ScheduleFilter struct {
	UserID    *uint
	Status    *models.ScheduleStatus
	Limit     int
	Offset    int
	OrderBy   string
	OrderDesc bool
}

// DailyCommentStats aggregates comments created on one day
type DailyCommentStats struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Total  int    `json:"total"`
	Posted int    `json:"posted"`
	Failed int    `json:"failed"`
}

// DefaultCommentFilter returns a filter with sensible defaults
func DefaultCommentFilter() CommentFilter {
	return CommentFilter{
		Limit:     20,
		OrderBy:   "created_at",
		OrderDesc: true,
	}
}

// DefaultScheduleFilter returns a filter with sensible defaults
func DefaultScheduleFilter() ScheduleFilter {
	return ScheduleFilter{
		Limit:     20,
		OrderBy:   "created_at",
		OrderDesc: true,
	}
}
