package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/youtube-agent/internal/agent/scheduler"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
)

const scheduleNotFound = "Schedule not found"

var defaultDelays = models.Delays{MinDelay: 30, MaxDelay: 180, BetweenAccounts: 300}

type scheduleRequest struct {
	Name             *string                 `json:"name"`
	CommentTemplates []string                `json:"comment_templates"`
	TargetVideos     []models.TargetVideo    `json:"target_videos"`
	TargetChannels   []models.TargetChannel  `json:"target_channels"`
	AccountSelection models.AccountSelection `json:"account_selection"`
	SelectedAccounts []uint                  `json:"selected_accounts"`
	Schedule         *models.Cadence         `json:"schedule"`
	Delays           *models.Delays          `json:"delays"`
}

// apply copies the fields present in the request onto the schedule
func (r scheduleRequest) apply(s *models.Schedule) {
	if r.Name != nil {
		s.Name = strings.TrimSpace(*r.Name)
	}
	if r.CommentTemplates != nil {
		templates := make(models.StringSlice, 0, len(r.CommentTemplates))
		for _, t := range r.CommentTemplates {
			if strings.TrimSpace(t) != "" {
				templates = append(templates, t)
			}
		}
		s.CommentTemplates = templates
	}
	if r.TargetVideos != nil {
		s.TargetVideos = r.TargetVideos
	}
	if r.TargetChannels != nil {
		s.TargetChannels = r.TargetChannels
	}
	if r.AccountSelection != "" {
		s.AccountSelection = r.AccountSelection
	}
	if r.Schedule != nil {
		s.Cadence = *r.Schedule
	}
	if r.Delays != nil {
		s.Delays = *r.Delays
	}
}

func validateSchedule(s *models.Schedule) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.CommentTemplates) == 0 {
		return fmt.Errorf("at least one comment template is required")
	}
	switch s.AccountSelection {
	case models.SelectionSpecific, models.SelectionRandom, models.SelectionRoundRobin:
	default:
		return fmt.Errorf("unknown account selection %q", s.AccountSelection)
	}
	if s.Delays.MinDelay < 0 || s.Delays.MaxDelay < s.Delays.MinDelay || s.Delays.BetweenAccounts < 0 {
		return fmt.Errorf("delays must satisfy 0 <= min_delay <= max_delay and between_accounts >= 0")
	}
	return scheduler.ValidateCadence(s.Cadence)
}

// resolveAccounts loads the selected accounts, which must all be active and owned by the user.
// With no selection every active account of the user is used.
func (s *Server) resolveAccounts(c *gin.Context, userID uint, ids []uint) ([]models.Account, bool) {
	active := models.AccountStatusActive
	filter := storage.AccountFilter{UserID: &userID, Status: &active}
	if len(ids) > 0 {
		filter.IDs = ids
	}

	accounts, err := s.repository.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, "", err)
		return nil, false
	}

	if len(ids) == 0 {
		if len(accounts) == 0 {
			respondError(c, http.StatusBadRequest, "No active YouTube accounts available", nil)
			return nil, false
		}
	} else {
		if len(accounts) == 0 {
			respondError(c, http.StatusBadRequest, "No valid active YouTube accounts selected", nil)
			return nil, false
		}
		if len(accounts) != len(uniqueIDs(ids)) {
			valid := make([]uint, 0, len(accounts))
			for _, a := range accounts {
				valid = append(valid, a.ID)
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"message":        "Some selected accounts are invalid or inactive",
				"valid_accounts": valid,
			})
			return nil, false
		}
	}

	selected := make([]models.Account, 0, len(accounts))
	for _, a := range accounts {
		a.Proxy = nil
		selected = append(selected, *a)
	}
	return selected, true
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// install arms the schedule trigger. On failure the schedule is moved to error.
func (s *Server) install(c *gin.Context, schedule *models.Schedule) bool {
	ctx := c.Request.Context()
	if err := s.schedules.Install(ctx, schedule); err != nil {
		s.log.Error().Err(err).Uint("schedule_id", schedule.ID).Msg("Error setting up schedule job")
		if serr := s.repository.UpdateScheduleStatus(ctx, schedule.ID, models.ScheduleStatusError); serr != nil {
			s.log.Error().Err(serr).Uint("schedule_id", schedule.ID).Msg("Failed to update schedule status")
		}
		schedule.Status = models.ScheduleStatusError
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"message":  "Error setting up schedule job",
			"error":    err.Error(),
			"schedule": schedule,
		})
		return false
	}
	return true
}

// reload returns the stored schedule, falling back to the in-memory copy
func (s *Server) reload(c *gin.Context, schedule *models.Schedule) *models.Schedule {
	fresh, err := s.repository.GetScheduleByID(c.Request.Context(), schedule.ID)
	if err != nil {
		return schedule
	}
	return fresh
}

func (s *Server) handleListSchedules(c *gin.Context) {
	userID := currentUser(c)
	page, limit := pageParams(c, 20)

	filter := storage.DefaultScheduleFilter()
	filter.UserID = &userID
	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	if status := c.Query("status"); status != "" {
		st := models.ScheduleStatus(status)
		filter.Status = &st
	}

	ctx := c.Request.Context()
	schedules, err := s.repository.ListSchedules(ctx, filter)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	total, err := s.repository.CountSchedules(ctx, filter)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules":  schedules,
		"pagination": newPagination(total, page, limit),
	})
}

// handleScheduleSummary counts the user's schedules per status
func (s *Server) handleScheduleSummary(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)

	summary := gin.H{}
	var total int64
	for _, status := range []models.ScheduleStatus{
		models.ScheduleStatusActive,
		models.ScheduleStatusPaused,
		models.ScheduleStatusCompleted,
		models.ScheduleStatusError,
	} {
		st := status
		count, err := s.repository.CountSchedules(ctx, storage.ScheduleFilter{UserID: &userID, Status: &st})
		if err != nil {
			s.fail(c, "", err)
			return
		}
		summary[string(status)] = count
		total += count
	}
	summary["total"] = total

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	id, ok := pathID(c, scheduleNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	schedule, err := s.repository.GetUserSchedule(ctx, userID, id)
	if err != nil {
		s.fail(c, scheduleNotFound, err)
		return
	}

	filter := storage.DefaultCommentFilter()
	filter.UserID = &userID
	filter.ScheduleID = &schedule.ID
	comments, err := s.repository.ListComments(ctx, filter)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedule": schedule, "comments": comments})
}

func (s *Server) handleCreateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	userID := currentUser(c)
	schedule := &models.Schedule{
		UserID:           userID,
		Status:           models.ScheduleStatusActive,
		AccountSelection: models.SelectionSpecific,
		Cadence:          models.Cadence{Type: models.CadenceImmediate},
		Delays:           defaultDelays,
	}
	req.apply(schedule)

	if err := validateSchedule(schedule); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid schedule", err)
		return
	}

	accounts, ok := s.resolveAccounts(c, userID, req.SelectedAccounts)
	if !ok {
		return
	}
	schedule.SelectedAccounts = accounts

	if err := s.repository.CreateSchedule(c.Request.Context(), schedule); err != nil {
		s.fail(c, "", err)
		return
	}

	if !s.install(c, schedule) {
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Schedule created successfully", "schedule": s.reload(c, schedule)})
}

func (s *Server) handleUpdateSchedule(c *gin.Context) {
	id, ok := pathID(c, scheduleNotFound)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	schedule, err := s.repository.GetUserSchedule(ctx, userID, id)
	if err != nil {
		s.fail(c, scheduleNotFound, err)
		return
	}

	req.apply(schedule)
	if err := validateSchedule(schedule); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid schedule", err)
		return
	}

	if req.SelectedAccounts != nil {
		accounts, ok := s.resolveAccounts(c, userID, req.SelectedAccounts)
		if !ok {
			return
		}
		schedule.SelectedAccounts = accounts
	}

	if err := s.repository.UpdateSchedule(ctx, schedule); err != nil {
		s.fail(c, "", err)
		return
	}

	if schedule.IsActive() {
		if !s.install(c, schedule) {
			return
		}
	} else {
		s.schedules.Remove(schedule.ID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule updated successfully", "schedule": s.reload(c, schedule)})
}

func (s *Server) handleDeleteSchedule(c *gin.Context) {
	id, ok := pathID(c, scheduleNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	if _, err := s.repository.GetUserSchedule(ctx, userID, id); err != nil {
		s.fail(c, scheduleNotFound, err)
		return
	}

	s.schedules.Remove(id)
	if err := s.repository.DeleteSchedule(ctx, userID, id); err != nil {
		s.fail(c, scheduleNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted successfully"})
}

func (s *Server) handlePauseSchedule(c *gin.Context) {
	id, ok := pathID(c, scheduleNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	schedule, err := s.repository.GetUserSchedule(ctx, currentUser(c), id)
	if err != nil {
		s.fail(c, scheduleNotFound, err)
		return
	}

	s.schedules.Remove(id)
	if err := s.repository.UpdateScheduleStatus(ctx, id, models.ScheduleStatusPaused); err != nil {
		s.fail(c, "", err)
		return
	}
	schedule.Status = models.ScheduleStatusPaused

	c.JSON(http.StatusOK, gin.H{"message": "Schedule paused successfully", "schedule": schedule})
}

func (s *Server) handleResumeSchedule(c *gin.Context) {
	id, ok := pathID(c, scheduleNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	schedule, err := s.repository.GetUserSchedule(ctx, currentUser(c), id)
	if err != nil {
		s.fail(c, scheduleNotFound, err)
		return
	}

	// completed is terminal
	if schedule.Status == models.ScheduleStatusCompleted {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Completed schedules cannot be resumed",
			"status":  schedule.Status,
		})
		return
	}

	if err := s.repository.UpdateScheduleStatus(ctx, id, models.ScheduleStatusActive); err != nil {
		s.fail(c, "", err)
		return
	}
	schedule.Status = models.ScheduleStatusActive

	if !s.install(c, schedule) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule resumed successfully", "schedule": s.reload(c, schedule)})
}
