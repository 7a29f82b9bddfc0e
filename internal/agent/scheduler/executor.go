package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/youtube-agent/internal/agent/poster"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/pkg/logger"
)

// Executor installs schedule triggers and runs the comment campaigns they fire
type Executor struct {
	repository storage.Repository
	poster     *poster.Agent
	cron       *cron.Cron
	registry   *Registry
	log        *logger.Logger

	// replaceable in tests
	after func(d time.Duration, f func()) (stop func())
	every func(d time.Duration, f func()) (stop func())
	now   func() time.Time
	intn  func(n int) int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewExecutor creates a new schedule executor. Recurring schedules are added to c.
func NewExecutor(repository storage.Repository, posterAgent *poster.Agent, c *cron.Cron, log *logger.Logger) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		repository: repository,
		poster:     posterAgent,
		cron:       c,
		registry:   NewRegistry(),
		log:        log.WithComponent("scheduler"),
		after:      afterFunc,
		every:      everyFunc,
		now:        time.Now,
		intn:       rand.Intn,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func afterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// everyFunc runs f on a ticker until the returned stop function is called
func everyFunc(d time.Duration, f func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				f()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ValidateCadence checks the type-specific fields of a cadence
func ValidateCadence(c models.Cadence) error {
	switch c.Type {
	case models.CadenceImmediate, "":
	case models.CadenceOnce:
		if c.StartDate == nil {
			return fmt.Errorf("once schedules need a start date")
		}
	case models.CadenceRecurring:
		if c.CronExpression == "" {
			return fmt.Errorf("recurring schedules need a cron expression")
		}
		if _, err := Parser.Parse(c.CronExpression); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", c.CronExpression, err)
		}
	case models.CadenceInterval:
		if c.IntervalValue <= 0 {
			return fmt.Errorf("interval value must be positive")
		}
	default:
		return fmt.Errorf("unknown schedule type %q", c.Type)
	}
	return nil
}

// Setup installs the triggers of every active schedule. Used at startup.
func (e *Executor) Setup(ctx context.Context) (int, error) {
	status := models.ScheduleStatusActive
	schedules, err := e.repository.ListSchedules(ctx, storage.ScheduleFilter{Status: &status, OrderBy: "id"})
	if err != nil {
		return 0, fmt.Errorf("failed to list active schedules: %w", err)
	}

	e.log.Info().Int("count", len(schedules)).Msg("Found active schedules")

	installed := 0
	for _, s := range schedules {
		if err := e.Install(ctx, s); err != nil {
			e.log.Error().Err(err).Uint("schedule_id", s.ID).Msg("Failed to install schedule")
			continue
		}
		installed++
	}
	return installed, nil
}

// Install (re)arms the trigger for a schedule. Any previous trigger for the same id is cancelled first.
func (e *Executor) Install(ctx context.Context, schedule *models.Schedule) error {
	id := schedule.ID
	log := e.log.WithScheduleID(id)

	e.registry.Remove(id)
	if !schedule.IsActive() {
		return nil
	}

	switch schedule.Cadence.Type {
	case models.CadenceImmediate, "":
		log.Info().Msg("Processing immediate schedule")
		e.Process(ctx, id)

	case models.CadenceOnce:
		if schedule.Cadence.StartDate == nil {
			log.Warn().Msg("Once schedule has no start date, nothing to install")
			return nil
		}
		wait := schedule.Cadence.StartDate.Sub(e.now())
		if wait <= 0 {
			e.Process(ctx, id)
			return nil
		}

		cancelled := make(chan struct{})
		var once sync.Once
		seq := e.registry.Put(id, KindOneShot, func() {
			once.Do(func() { close(cancelled) })
		})
		stop := e.after(wait, func() {
			select {
			case <-cancelled:
				return
			default:
			}
			once.Do(func() { close(cancelled) })
			e.registry.forget(id, seq)
			e.Process(e.ctx, id)
		})
		go func() {
			<-cancelled
			stop()
		}()
		log.Info().Time("start_date", *schedule.Cadence.StartDate).Msg("One-time schedule armed")

	case models.CadenceRecurring:
		entryID, err := e.cron.AddFunc(schedule.Cadence.CronExpression, func() {
			e.Process(e.ctx, id)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", schedule.Cadence.CronExpression, err)
		}
		e.registry.Put(id, KindCron, func() { e.cron.Remove(entryID) })
		log.Info().Str("cron", schedule.Cadence.CronExpression).Msg("Recurring schedule installed")

	case models.CadenceInterval:
		period := schedule.Cadence.IntervalDuration()
		if period <= 0 {
			return fmt.Errorf("interval must be positive, got %s", period)
		}
		stop := e.every(period, func() {
			e.Process(e.ctx, id)
		})
		e.registry.Put(id, KindInterval, stop)
		log.Info().Dur("period", period).Msg("Interval schedule installed")

		e.Process(ctx, id)

	default:
		return fmt.Errorf("unknown schedule type %q", schedule.Cadence.Type)
	}

	return nil
}

// Remove tears down the trigger of a schedule. In-flight delayed comments still run.
func (e *Executor) Remove(id uint) bool {
	removed := e.registry.Remove(id)
	if removed {
		e.log.Info().Uint("schedule_id", id).Msg("Schedule trigger removed")
	}
	return removed
}

// Installed returns the kind of the live trigger for a schedule
func (e *Executor) Installed(id uint) (HandleKind, bool) {
	h, ok := e.registry.Get(id)
	return h.Kind, ok
}

// ActiveTriggers returns the number of live triggers
func (e *Executor) ActiveTriggers() int {
	return e.registry.Len()
}

// Stop cancels every trigger and pending delayed task
func (e *Executor) Stop() {
	e.registry.Clear()
	e.cancel()
}

// Process runs one firing of a schedule. Setup failures move the schedule to error.
func (e *Executor) Process(ctx context.Context, id uint) {
	log := e.log.WithScheduleID(id)

	if err := e.process(ctx, id); err != nil {
		log.Error().Err(err).Msg("Error processing schedule")

		if serr := e.repository.UpdateScheduleStatus(ctx, id, models.ScheduleStatusError); serr != nil {
			log.Error().Err(serr).Msg("Failed to update schedule status")
		}
	}
}

func (e *Executor) process(ctx context.Context, id uint) error {
	log := e.log.WithScheduleID(id)
	log.Debug().Msg("Processing schedule")

	schedule, err := e.repository.GetScheduleByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info().Msg("Schedule no longer exists")
			return nil
		}
		return fmt.Errorf("failed to load schedule: %w", err)
	}
	if !schedule.IsActive() {
		log.Info().Str("status", string(schedule.Status)).Msg("Schedule is no longer active")
		return nil
	}

	if schedule.HasEnded(e.now()) {
		log.Info().Msg("Schedule has ended")
		if err := e.repository.UpdateScheduleStatus(ctx, id, models.ScheduleStatusCompleted); err != nil {
			return fmt.Errorf("failed to complete schedule: %w", err)
		}
		e.registry.Remove(id)
		return nil
	}

	if (len(schedule.TargetVideos) == 0 && len(schedule.TargetChannels) == 0) || len(schedule.CommentTemplates) == 0 {
		log.Info().Msg("Schedule has no targets or comment templates")
		return nil
	}

	// Only directly listed videos are commented on; channel targets are not expanded
	videos := schedule.VideoIDs()
	if len(videos) == 0 {
		log.Info().Msg("Schedule has no videos to comment on")
		return nil
	}

	accounts := e.selectAccounts(schedule)
	if len(accounts) == 0 {
		log.Info().Msg("Schedule has no active accounts")
		return nil
	}

	for i := range accounts {
		account := accounts[i]
		if account.ProxyID == nil {
			log.Debug().Uint("account_id", account.ID).Msg("Account has no proxy, posting directly")
		}

		offset := time.Duration(0)
		if i > 0 {
			offset = time.Duration(schedule.Delays.BetweenAccounts) * time.Second
		}
		e.after(offset, func() {
			e.burst(schedule, account, videos)
		})
	}

	log.Info().
		Int("accounts", len(accounts)).
		Int("videos", len(videos)).
		Msg("Schedule processed")
	return nil
}

// selectAccounts applies the schedule's account selection policy
func (e *Executor) selectAccounts(schedule *models.Schedule) []models.Account {
	var accounts []models.Account

	switch schedule.AccountSelection {
	case models.SelectionRandom:
		if len(schedule.SelectedAccounts) == 0 {
			return nil
		}
		pick := schedule.SelectedAccounts[e.intn(len(schedule.SelectedAccounts))]
		if pick.IsActive() {
			accounts = append(accounts, pick)
		}

	case models.SelectionRoundRobin:
		for _, a := range schedule.SelectedAccounts {
			if a.IsActive() {
				accounts = append(accounts, a)
			}
		}
		sortByLastUsed(accounts)

	default:
		for _, a := range schedule.SelectedAccounts {
			if a.IsActive() {
				accounts = append(accounts, a)
			}
		}
	}

	return accounts
}

// sortByLastUsed orders accounts by last use, never used first
func sortByLastUsed(accounts []models.Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i].LastUsed, accounts[j].LastUsed
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
}

// burst creates one comment per video for the account and posts each after its own delay
func (e *Executor) burst(schedule *models.Schedule, account models.Account, videos []string) {
	ctx := e.ctx
	if ctx.Err() != nil {
		return
	}
	log := e.log.WithScheduleID(schedule.ID).WithAccountID(account.ID)
	scheduleID := schedule.ID

	for _, videoID := range videos {
		template := schedule.CommentTemplates[e.intn(len(schedule.CommentTemplates))]
		delay := e.commentDelay(schedule.Delays)

		comment := &models.Comment{
			UserID:     schedule.UserID,
			AccountID:  account.ID,
			VideoID:    videoID,
			Content:    template,
			Status:     models.CommentStatusPending,
			ScheduleID: &scheduleID,
		}
		if err := e.repository.CreateComment(ctx, comment); err != nil {
			log.Error().Err(err).Str("video_id", videoID).Msg("Failed to create comment")
			continue
		}

		// Counted at creation, before the post is attempted
		if err := e.repository.IncrementScheduleProgress(ctx, scheduleID, models.Progress{TotalComments: 1}); err != nil {
			log.Error().Err(err).Msg("Failed to update schedule progress")
		}

		e.after(delay, func() {
			e.post(comment)
		})
	}
}

func (e *Executor) post(comment *models.Comment) {
	ctx := e.ctx
	if ctx.Err() != nil {
		return
	}
	log := e.log.WithCommentID(comment.ID)

	result, err := e.poster.PostAndRecord(ctx, comment)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info().Msg("Comment deleted before posting finished, progress unchanged")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to record comment result")
	}

	delta := models.Progress{FailedComments: 1}
	if result.Success {
		delta = models.Progress{PostedComments: 1}
	}
	if err := e.repository.IncrementScheduleProgress(ctx, *comment.ScheduleID, delta); err != nil {
		log.Error().Err(err).Msg("Failed to update schedule progress")
	}
}

// commentDelay picks a delay uniformly in [min, max] seconds
func (e *Executor) commentDelay(d models.Delays) time.Duration {
	lo, hi := d.MinDelay, d.MaxDelay
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	return time.Duration(lo+e.intn(hi-lo+1)) * time.Second
}
