package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
)

// Repository implements storage.Repository on top of gorm
type Repository struct {
	db *gorm.DB
}

// New opens the configured database (sqlite or postgres)
func New(cfg config.DatabaseConfig) (*Repository, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		// Ensure directory exists
		path := strings.SplitN(cfg.DSN, "?", 2)[0]
		dir := filepath.Dir(path)
		if dir != "." && dir != "" && path != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver != "postgres" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.Proxy{},
		&models.Account{},
		&models.Comment{},
		&models.Schedule{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func applyOrder(query *gorm.DB, orderBy, fallback string, desc bool, limit, offset int) *gorm.DB {
	orderCol := fallback
	if orderBy != "" {
		orderCol = orderBy
	}
	if desc {
		query = query.Order(orderCol + " DESC")
	} else {
		query = query.Order(orderCol + " ASC")
	}

	// Pagination
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) UpdateUser(ctx context.Context, user *models.User) error {
	return updateRow(r.db.WithContext(ctx), user)
}

// Account operations

func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Omit("Proxy").Create(account).Error
}

func (r *Repository) GetAccountByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Preload("Proxy").First(&account, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *Repository) GetUserAccount(ctx context.Context, userID, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).
		Preload("Proxy").
		Where("id = ? AND user_id = ?", id, userID).
		First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *Repository) GetAccountByGoogleID(ctx context.Context, userID uint, googleID string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND google_id = ?", userID, googleID).
		First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *Repository) ListAccounts(ctx context.Context, filter storage.AccountFilter) ([]*models.Account, error) {
	var accounts []*models.Account
	query := r.db.WithContext(ctx).Model(&models.Account{}).Preload("Proxy")

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.IDs != nil {
		query = query.Where("id IN ?", filter.IDs)
	}

	if err := query.Order("created_at DESC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, account *models.Account) error {
	return updateRow(r.db.WithContext(ctx), account, "Proxy")
}

func (r *Repository) DeleteAccount(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Account{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return tx.Exec("DELETE FROM schedule_accounts WHERE account_id = ?", id).Error
	})
}

func (r *Repository) UpdateAccountStatus(ctx context.Context, id uint, status models.AccountStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *Repository) UpdateAccountToken(ctx context.Context, id uint, accessToken string, expiry time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"google_access_token": accessToken,
			"google_token_expiry": expiry,
		}).Error
}

// RecordAccountUsage increments today's comment counter, starting a new day if needed
func (r *Repository) RecordAccountUsage(ctx context.Context, id uint, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Select("id", "usage_date", "usage_comment_count").First(&account, id).Error; err != nil {
			return notFound(err)
		}

		today := models.StartOfDay(now)
		count := account.DailyUsage.CommentCount + 1
		if account.DailyUsage.Date == nil || !models.StartOfDay(account.DailyUsage.Date.In(now.Location())).Equal(today) {
			count = 1
		}

		return tx.Model(&models.Account{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"usage_date":          today,
				"usage_comment_count": count,
				"last_used":           now,
			}).Error
	})
}

// ResetDailyUsage zeroes every account's counters for the given day
func (r *Repository) ResetDailyUsage(ctx context.Context, day time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("1 = 1").
		Updates(map[string]interface{}{
			"usage_date":          models.StartOfDay(day),
			"usage_comment_count": 0,
			"usage_like_count":    0,
		})
	return res.RowsAffected, res.Error
}

// Proxy operations

func (r *Repository) CreateProxy(ctx context.Context, proxy *models.Proxy) error {
	return r.db.WithContext(ctx).Create(proxy).Error
}

func (r *Repository) GetProxyByID(ctx context.Context, id uint) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := r.db.WithContext(ctx).First(&proxy, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &proxy, nil
}

func (r *Repository) GetUserProxy(ctx context.Context, userID, id uint) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&proxy).Error; err != nil {
		return nil, notFound(err)
	}
	return &proxy, nil
}

func (r *Repository) ListProxies(ctx context.Context, filter storage.ProxyFilter) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	query := r.db.WithContext(ctx).Model(&models.Proxy{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.IDs != nil {
		query = query.Where("id IN ?", filter.IDs)
	}

	if err := query.Order("created_at DESC").Find(&proxies).Error; err != nil {
		return nil, err
	}
	return proxies, nil
}

func (r *Repository) UpdateProxy(ctx context.Context, proxy *models.Proxy) error {
	return updateRow(r.db.WithContext(ctx), proxy)
}

// DeleteProxy removes the proxy and detaches it from every account using it
func (r *Repository) DeleteProxy(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Proxy{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return tx.Model(&models.Account{}).
			Where("proxy_id = ?", id).
			Update("proxy_id", nil).Error
	})
}

func (r *Repository) RecordProxyCheck(ctx context.Context, id uint, status models.ProxyStatus, checkedAt time.Time, speed time.Duration) error {
	return r.db.WithContext(ctx).
		Model(&models.Proxy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"last_checked":     checkedAt,
			"connection_speed": speed.Milliseconds(),
		}).Error
}

// Comment operations

func (r *Repository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Omit("Account").Create(comment).Error
}

func (r *Repository) GetCommentByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("Account.Proxy").First(&comment, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &comment, nil
}

func (r *Repository) GetUserComment(ctx context.Context, userID, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).
		Preload("Account").
		Where("id = ? AND user_id = ?", id, userID).
		First(&comment).Error; err != nil {
		return nil, notFound(err)
	}
	return &comment, nil
}

func (r *Repository) commentQuery(ctx context.Context, filter storage.CommentFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Comment{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.ScheduleID != nil {
		query = query.Where("schedule_id = ?", *filter.ScheduleID)
	}
	return query
}

func (r *Repository) ListComments(ctx context.Context, filter storage.CommentFilter) ([]*models.Comment, error) {
	var comments []*models.Comment
	query := applyOrder(r.commentQuery(ctx, filter).Preload("Account"),
		filter.OrderBy, "created_at", filter.OrderDesc, filter.Limit, filter.Offset)

	if err := query.Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

func (r *Repository) CountComments(ctx context.Context, filter storage.CommentFilter) (int64, error) {
	var count int64
	err := r.commentQuery(ctx, filter).Count(&count).Error
	return count, err
}

func (r *Repository) UpdateComment(ctx context.Context, comment *models.Comment) error {
	return updateRow(r.db.WithContext(ctx), comment, "Account")
}

func (r *Repository) DeleteComment(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Comment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClaimDueComments moves due scheduled comments to pending and returns the ones this caller won
func (r *Repository) ClaimDueComments(ctx context.Context, now time.Time, limit int) ([]*models.Comment, error) {
	var due []*models.Comment
	query := r.db.WithContext(ctx).
		Where("status = ? AND (scheduled_for IS NULL OR scheduled_for <= ?)", models.CommentStatusScheduled, now).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&due).Error; err != nil {
		return nil, err
	}

	claimed := make([]*models.Comment, 0, len(due))
	for _, c := range due {
		res := r.db.WithContext(ctx).
			Model(&models.Comment{}).
			Where("id = ? AND status = ?", c.ID, models.CommentStatusScheduled).
			Update("status", models.CommentStatusPending)
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 1 {
			c.Status = models.CommentStatusPending
			claimed = append(claimed, c)
		}
	}
	return claimed, nil
}

// GetCommentStats groups the user's comments created since the given time by day
func (r *Repository) GetCommentStats(ctx context.Context, userID uint, since time.Time) ([]storage.DailyCommentStats, error) {
	var rows []models.Comment
	if err := r.db.WithContext(ctx).
		Select("created_at", "status").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	start := models.StartOfDay(since)
	end := models.StartOfDay(time.Now())
	index := make(map[string]int)
	var stats []storage.DailyCommentStats
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		index[key] = len(stats)
		stats = append(stats, storage.DailyCommentStats{Date: key})
	}

	for _, c := range rows {
		i, ok := index[c.CreatedAt.In(since.Location()).Format("2006-01-02")]
		if !ok {
			continue
		}
		stats[i].Total++
		switch c.Status {
		case models.CommentStatusPosted:
			stats[i].Posted++
		case models.CommentStatusFailed:
			stats[i].Failed++
		}
	}
	return stats, nil
}

// Schedule operations

func (r *Repository) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return r.db.WithContext(ctx).Omit("SelectedAccounts.*").Create(schedule).Error
}

func (r *Repository) GetScheduleByID(ctx context.Context, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := r.db.WithContext(ctx).Preload("SelectedAccounts.Proxy").First(&schedule, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &schedule, nil
}

func (r *Repository) GetUserSchedule(ctx context.Context, userID, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := r.db.WithContext(ctx).
		Preload("SelectedAccounts").
		Where("id = ? AND user_id = ?", id, userID).
		First(&schedule).Error; err != nil {
		return nil, notFound(err)
	}
	return &schedule, nil
}

func (r *Repository) scheduleQuery(ctx context.Context, filter storage.ScheduleFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Schedule{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

func (r *Repository) ListSchedules(ctx context.Context, filter storage.ScheduleFilter) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	query := applyOrder(r.scheduleQuery(ctx, filter).Preload("SelectedAccounts"),
		filter.OrderBy, "created_at", filter.OrderDesc, filter.Limit, filter.Offset)

	if err := query.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *Repository) CountSchedules(ctx context.Context, filter storage.ScheduleFilter) (int64, error) {
	var count int64
	err := r.scheduleQuery(ctx, filter).Count(&count).Error
	return count, err
}

// UpdateSchedule saves the schedule and replaces its account selection.
// Progress columns are left to IncrementScheduleProgress.
func (r *Repository) UpdateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateRow(tx, schedule, "SelectedAccounts",
			"progress_total_comments", "progress_posted_comments", "progress_failed_comments"); err != nil {
			return err
		}
		return tx.Model(schedule).
			Association("SelectedAccounts").
			Replace(schedule.SelectedAccounts)
	})
}

func (r *Repository) DeleteSchedule(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var schedule models.Schedule
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&schedule).Error; err != nil {
			return notFound(err)
		}
		return tx.Select("SelectedAccounts").Delete(&schedule).Error
	})
}

func (r *Repository) UpdateScheduleStatus(ctx context.Context, id uint, status models.ScheduleStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// IncrementScheduleProgress adds delta to the progress counters in a single statement
func (r *Repository) IncrementScheduleProgress(ctx context.Context, id uint, delta models.Progress) error {
	updates := map[string]interface{}{}
	if delta.TotalComments != 0 {
		updates["progress_total_comments"] = gorm.Expr("progress_total_comments + ?", delta.TotalComments)
	}
	if delta.PostedComments != 0 {
		updates["progress_posted_comments"] = gorm.Expr("progress_posted_comments + ?", delta.PostedComments)
	}
	if delta.FailedComments != 0 {
		updates["progress_failed_comments"] = gorm.Expr("progress_failed_comments + ?", delta.FailedComments)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

// ListExpiredSchedules returns active schedules whose end date has passed
func (r *Repository) ListExpiredSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	if err := r.db.WithContext(ctx).
		Where("status = ? AND cadence_end_date IS NOT NULL AND cadence_end_date < ?", models.ScheduleStatusActive, now).
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

var _ storage.Repository = (*Repository)(nil)

// updateRow writes every column of an existing row and never inserts.
// A missing row yields storage.ErrNotFound.
func updateRow(tx *gorm.DB, value interface{}, omit ...string) error {
	res := tx.Model(value).
		Select("*").
		Omit(append([]string{"ID", "CreatedAt"}, omit...)...).
		Updates(value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
