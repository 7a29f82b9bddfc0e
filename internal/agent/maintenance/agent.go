package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/pkg/logger"
)

// TriggerRemover tears down the live trigger of a schedule
type TriggerRemover interface {
	Remove(id uint) bool
}

// Agent runs the daily housekeeping job
type Agent struct {
	repository storage.Repository
	triggers   TriggerRemover
	now        func() time.Time
	log        *logger.Logger
}

// NewAgent creates a new maintenance agent
func NewAgent(repository storage.Repository, triggers TriggerRemover, log *logger.Logger) *Agent {
	return &Agent{
		repository: repository,
		triggers:   triggers,
		now:        time.Now,
		log:        log.WithComponent("maintenance"),
	}
}

// Result contains the results of a maintenance run
type Result struct {
	AccountsReset      int64
	SchedulesCompleted int
	Errors             []error
}

// Run resets daily usage counters and completes schedules past their end date
func (a *Agent) Run(ctx context.Context) (*Result, error) {
	now := a.now()
	result := &Result{}

	a.log.Info().Msg("Starting daily maintenance")

	reset, err := a.repository.ResetDailyUsage(ctx, models.StartOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("failed to reset daily usage: %w", err)
	}
	result.AccountsReset = reset

	expired, err := a.repository.ListExpiredSchedules(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to list expired schedules: %w", err)
	}

	for _, s := range expired {
		if err := a.repository.UpdateScheduleStatus(ctx, s.ID, models.ScheduleStatusCompleted); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("schedule %d: %w", s.ID, err))
			continue
		}
		if a.triggers != nil {
			a.triggers.Remove(s.ID)
		}
		result.SchedulesCompleted++
	}

	a.log.Info().
		Int64("accounts_reset", result.AccountsReset).
		Int("schedules_completed", result.SchedulesCompleted).
		Int("errors", len(result.Errors)).
		Msg("Daily maintenance completed")

	return result, nil
}
