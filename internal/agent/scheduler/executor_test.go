package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/youtube-agent/internal/agent/poster"
	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/proxy"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/internal/storage/database"
	"github.com/youtube-agent/internal/youtube"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

type noRefresh struct{}

func (noRefresh) Refresh(context.Context, string) (*oauth2.Token, error) {
	return nil, errors.New("refresh not expected")
}

type testEnv struct {
	repo     *database.Repository
	poster   *poster.Agent
	executor *Executor
	hits     *atomic.Int32
	user     *models.User
	delays   []time.Duration
	periods  []time.Duration
}

func newTestEnv(t *testing.T, status int) *testEnv {
	t.Helper()

	repo, err := database.New(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "scheduler.db")})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })

	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"id":"yt-comment"}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad request","errors":[{"reason":"invalidCommentMetadata","message":"bad"}]}}`))
	}))
	t.Cleanup(srv.Close)

	log := logger.Nop()
	factory := youtube.NewClientFactory(proxy.NewResolver(repo), ratelimit.Unlimited(),
		config.YouTubeConfig{UserAgent: "test", AllowUnproxied: true}, log, youtube.WithEndpoint(srv.URL+"/"))
	posterAgent := poster.NewAgent(repo, youtube.NewTokenRefresher(noRefresh{}, repo, log), factory, log)

	user := &models.User{Email: "owner@example.com"}
	require.NoError(t, repo.CreateUser(context.Background(), user))

	env := &testEnv{repo: repo, poster: posterAgent, hits: hits, user: user}

	exec := NewExecutor(repo, posterAgent, NewCron(log), log)
	exec.after = func(d time.Duration, f func()) func() {
		env.delays = append(env.delays, d)
		f()
		return func() {}
	}
	exec.every = func(d time.Duration, f func()) func() {
		env.periods = append(env.periods, d)
		return func() {}
	}
	exec.intn = func(int) int { return 0 }
	t.Cleanup(exec.Stop)
	env.executor = exec

	return env
}

// failingLoads breaks schedule lookups and passes everything else through
type failingLoads struct {
	storage.Repository
}

func (failingLoads) GetScheduleByID(context.Context, uint) (*models.Schedule, error) {
	return nil, errors.New("database is locked")
}

func (e *testEnv) account(t *testing.T, status models.AccountStatus, lastUsed *time.Time) models.Account {
	t.Helper()
	expiry := time.Now().Add(time.Hour)
	acc := &models.Account{
		UserID:   e.user.ID,
		Email:    "channel@example.com",
		Status:   status,
		LastUsed: lastUsed,
		Google:   models.GoogleCredentials{AccessToken: "token", RefreshToken: "refresh", TokenExpiry: &expiry},
	}
	require.NoError(t, e.repo.CreateAccount(context.Background(), acc))
	return *acc
}

func (e *testEnv) schedule(t *testing.T, cadence models.Cadence, accounts ...models.Account) *models.Schedule {
	t.Helper()
	s := &models.Schedule{
		UserID:           e.user.ID,
		Name:             "campaign",
		Status:           models.ScheduleStatusActive,
		CommentTemplates: models.StringSlice{"great video"},
		TargetVideos:     []models.TargetVideo{{VideoID: "video-1"}},
		AccountSelection: models.SelectionSpecific,
		SelectedAccounts: accounts,
		Cadence:          cadence,
		Delays:           models.Delays{MinDelay: 5, MaxDelay: 10, BetweenAccounts: 30},
	}
	require.NoError(t, e.repo.CreateSchedule(context.Background(), s))
	return s
}

func TestRegistry_PutReplacesAndCancels(t *testing.T) {
	r := NewRegistry()
	cancelled := 0

	r.Put(1, KindCron, func() { cancelled++ })
	r.Put(1, KindInterval, func() { cancelled++ })

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, cancelled)

	h, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, KindInterval, h.Kind)

	assert.True(t, r.Remove(1))
	assert.False(t, r.Remove(1))
	assert.Equal(t, 2, cancelled)
}

func TestRegistry_ForgetIgnoresStaleSequence(t *testing.T) {
	r := NewRegistry()

	first := r.Put(1, KindOneShot, nil)
	r.Put(1, KindOneShot, nil)

	r.forget(1, first)
	assert.Equal(t, 1, r.Len())

	r.Put(2, KindCron, nil)
	r.Clear()
	assert.Zero(t, r.Len())
}

func TestValidateCadence(t *testing.T) {
	start := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		cadence models.Cadence
		wantErr bool
	}{
		{"immediate", models.Cadence{Type: models.CadenceImmediate}, false},
		{"once", models.Cadence{Type: models.CadenceOnce, StartDate: &start}, false},
		{"once without start", models.Cadence{Type: models.CadenceOnce}, true},
		{"cron", models.Cadence{Type: models.CadenceRecurring, CronExpression: "*/5 * * * *"}, false},
		{"cron with seconds", models.Cadence{Type: models.CadenceRecurring, CronExpression: "0 */5 * * * *"}, false},
		{"bad cron", models.Cadence{Type: models.CadenceRecurring, CronExpression: "every tuesday"}, true},
		{"interval", models.Cadence{Type: models.CadenceInterval, IntervalValue: 2, IntervalUnit: models.IntervalHours}, false},
		{"zero interval", models.Cadence{Type: models.CadenceInterval}, true},
		{"unknown", models.Cadence{Type: "weekly"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCadence(tt.cadence)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSelectAccounts_RoundRobinNeverUsedFirst(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-time.Hour)
	s := &models.Schedule{
		AccountSelection: models.SelectionRoundRobin,
		SelectedAccounts: []models.Account{
			{ID: 1, Status: models.AccountStatusActive, LastUsed: &newer},
			{ID: 2, Status: models.AccountStatusActive},
			{ID: 3, Status: models.AccountStatusBanned},
			{ID: 4, Status: models.AccountStatusActive, LastUsed: &older},
		},
	}

	accounts := env.executor.selectAccounts(s)
	ids := make([]uint, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []uint{2, 4, 1}, ids)
}

func TestSelectAccounts_Random(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	empty := &models.Schedule{AccountSelection: models.SelectionRandom}
	assert.Empty(t, env.executor.selectAccounts(empty))

	inactive := &models.Schedule{
		AccountSelection: models.SelectionRandom,
		SelectedAccounts: []models.Account{{ID: 1, Status: models.AccountStatusLimited}},
	}
	assert.Empty(t, env.executor.selectAccounts(inactive))

	env.executor.intn = func(int) int { return 1 }
	mixed := &models.Schedule{
		AccountSelection: models.SelectionRandom,
		SelectedAccounts: []models.Account{
			{ID: 1, Status: models.AccountStatusActive},
			{ID: 2, Status: models.AccountStatusActive},
		},
	}
	accounts := env.executor.selectAccounts(mixed)
	require.Len(t, accounts, 1)
	assert.Equal(t, uint(2), accounts[0].ID)
}

func TestProcess_EndedScheduleCompletes(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	ended := time.Now().Add(-time.Minute)
	s := env.schedule(t, models.Cadence{Type: models.CadenceInterval, IntervalValue: 1, EndDate: &ended}, acc)

	require.NoError(t, env.executor.Install(ctx, s))

	got, err := env.repo.GetScheduleByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusCompleted, got.Status)
	assert.Zero(t, got.Progress.TotalComments)
	assert.Zero(t, env.hits.Load())
	assert.Zero(t, env.executor.ActiveTriggers())
}

func TestInstall_IntervalPostsComment(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	s := env.schedule(t, models.Cadence{Type: models.CadenceInterval, IntervalValue: 1, IntervalUnit: models.IntervalMinutes}, acc)

	require.NoError(t, env.executor.Install(ctx, s))

	assert.Equal(t, []time.Duration{time.Minute}, env.periods)
	kind, ok := env.executor.Installed(s.ID)
	require.True(t, ok)
	assert.Equal(t, KindInterval, kind)

	// account offset, then the per-comment delay of MinDelay
	assert.Equal(t, []time.Duration{0, 5 * time.Second}, env.delays)
	assert.Equal(t, int32(1), env.hits.Load())

	got, err := env.repo.GetScheduleByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Progress.TotalComments)
	assert.Equal(t, 1, got.Progress.PostedComments)
	assert.Zero(t, got.Progress.FailedComments)

	scheduleID := s.ID
	comments, err := env.repo.ListComments(ctx, storage.CommentFilter{ScheduleID: &scheduleID})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, models.CommentStatusPosted, comments[0].Status)
	assert.Equal(t, "great video", comments[0].Content)
}

func TestInstall_FailedPostCountsFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusBadRequest)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	s := env.schedule(t, models.Cadence{Type: models.CadenceImmediate}, acc)

	require.NoError(t, env.executor.Install(ctx, s))

	got, err := env.repo.GetScheduleByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Progress.TotalComments)
	assert.Equal(t, 1, got.Progress.FailedComments)
	assert.Equal(t, models.ScheduleStatusActive, got.Status)
	assert.Zero(t, env.executor.ActiveTriggers())
}

func TestInstall_BetweenAccountsOffset(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	a1 := env.account(t, models.AccountStatusActive, nil)
	a2 := env.account(t, models.AccountStatusActive, nil)
	s := env.schedule(t, models.Cadence{Type: models.CadenceImmediate}, a1, a2)

	require.NoError(t, env.executor.Install(ctx, s))

	assert.Equal(t, []time.Duration{0, 5 * time.Second, 30 * time.Second, 5 * time.Second}, env.delays)
	assert.Equal(t, int32(2), env.hits.Load())
}

func TestInstall_ReinstallKeepsOneHandle(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	s := env.schedule(t, models.Cadence{Type: models.CadenceRecurring, CronExpression: "0 9 * * *"}, acc)

	require.NoError(t, env.executor.Install(ctx, s))
	require.NoError(t, env.executor.Install(ctx, s))

	assert.Equal(t, 1, env.executor.ActiveTriggers())
	assert.Len(t, env.executor.cron.Entries(), 1)
	assert.Zero(t, env.hits.Load())

	assert.True(t, env.executor.Remove(s.ID))
	assert.Empty(t, env.executor.cron.Entries())
}

func TestInstall_InvalidCron(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	s := env.schedule(t, models.Cadence{Type: models.CadenceRecurring, CronExpression: "not a cron"})
	assert.Error(t, env.executor.Install(context.Background(), s))
	assert.Zero(t, env.executor.ActiveTriggers())
}

func TestInstall_PausedScheduleRemovesTrigger(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	s := env.schedule(t, models.Cadence{Type: models.CadenceInterval, IntervalValue: 1}, acc)
	require.NoError(t, env.executor.Install(ctx, s))
	require.Equal(t, 1, env.executor.ActiveTriggers())

	s.Status = models.ScheduleStatusPaused
	require.NoError(t, env.executor.Install(ctx, s))
	assert.Zero(t, env.executor.ActiveTriggers())
}

func TestInstall_OnceInFutureFiresAndForgets(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.executor.now = func() time.Time { return now }

	acc := env.account(t, models.AccountStatusActive, nil)
	start := now.Add(time.Hour)
	s := env.schedule(t, models.Cadence{Type: models.CadenceOnce, StartDate: &start}, acc)

	require.NoError(t, env.executor.Install(ctx, s))

	require.NotEmpty(t, env.delays)
	assert.Equal(t, time.Hour, env.delays[0])
	assert.Equal(t, int32(1), env.hits.Load())
	assert.Zero(t, env.executor.ActiveTriggers())
}

func TestSetup_InstallsActiveSchedules(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	env.schedule(t, models.Cadence{Type: models.CadenceRecurring, CronExpression: "@daily"}, acc)
	paused := env.schedule(t, models.Cadence{Type: models.CadenceRecurring, CronExpression: "@hourly"}, acc)
	require.NoError(t, env.repo.UpdateScheduleStatus(ctx, paused.ID, models.ScheduleStatusPaused))

	installed, err := env.executor.Setup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, installed)
	assert.Equal(t, 1, env.executor.ActiveTriggers())
}

func TestProcess_LoadFailureMarksErrorAndKeepsTrigger(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	s := env.schedule(t, models.Cadence{Type: models.CadenceInterval, IntervalValue: 1}, acc)

	log := logger.Nop()
	exec := NewExecutor(failingLoads{Repository: env.repo}, env.poster, NewCron(log), log)
	exec.every = func(time.Duration, func()) func() { return func() {} }
	t.Cleanup(exec.Stop)

	require.NoError(t, exec.Install(ctx, s))
	assert.Equal(t, 1, exec.ActiveTriggers())

	got, err := env.repo.GetScheduleByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusError, got.Status)

	// later firings fail the same way and the handle stays
	exec.Process(ctx, s.ID)
	kind, ok := exec.Installed(s.ID)
	require.True(t, ok)
	assert.Equal(t, KindInterval, kind)
	assert.Zero(t, env.hits.Load())
}

func TestInstall_OnceAtOrBeforeNowFiresImmediately(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, start := range map[string]time.Time{
		"past": now.Add(-time.Minute),
		"now":  now,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, http.StatusOK)
			env.executor.now = func() time.Time { return now }

			acc := env.account(t, models.AccountStatusActive, nil)
			s := env.schedule(t, models.Cadence{Type: models.CadenceOnce, StartDate: &start}, acc)

			require.NoError(t, env.executor.Install(context.Background(), s))

			// no start wait, only the account offset and the comment delay
			assert.Equal(t, []time.Duration{0, 5 * time.Second}, env.delays)
			assert.Equal(t, int32(1), env.hits.Load())
			assert.Zero(t, env.executor.ActiveTriggers())
		})
	}
}

func TestInstall_DeletedCommentLeavesProgress(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	ctx := context.Background()

	acc := env.account(t, models.AccountStatusActive, nil)
	s := env.schedule(t, models.Cadence{Type: models.CadenceImmediate}, acc)

	// the user deletes the comment while its delayed post is pending
	env.executor.after = func(d time.Duration, f func()) func() {
		env.delays = append(env.delays, d)
		if d > 0 {
			scheduleID := s.ID
			comments, err := env.repo.ListComments(ctx, storage.CommentFilter{ScheduleID: &scheduleID})
			require.NoError(t, err)
			for _, c := range comments {
				require.NoError(t, env.repo.DeleteComment(ctx, env.user.ID, c.ID))
			}
		}
		f()
		return func() {}
	}

	require.NoError(t, env.executor.Install(ctx, s))

	got, err := env.repo.GetScheduleByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Progress{TotalComments: 1}, got.Progress)
	assert.Zero(t, env.hits.Load())

	scheduleID := s.ID
	comments, err := env.repo.ListComments(ctx, storage.CommentFilter{ScheduleID: &scheduleID})
	require.NoError(t, err)
	assert.Empty(t, comments)
}
