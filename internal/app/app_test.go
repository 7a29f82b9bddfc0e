package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: test\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(dir, "data", "app.db")
	return cfg
}

func TestNew_WiresServices(t *testing.T) {
	a, err := New(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Repository)
	assert.NotNil(t, a.Poster)
	assert.NotNil(t, a.Executor)
	assert.NotNil(t, a.Maintainer)
	assert.NotNil(t, a.Feed)
	assert.Equal(t, 0, a.Executor.ActiveTriggers())
}

func TestScheduleJobs(t *testing.T) {
	a, err := New(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.ScheduleJobs(logger.Nop()))
	assert.Len(t, a.Cron.Entries(), 2)
}

func TestScheduleJobs_InvalidExpression(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.DueCommentsCron = "every minute"

	a, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	err = a.ScheduleJobs(logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "due comments")
}
