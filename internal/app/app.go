package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/youtube-agent/internal/agent/maintenance"
	"github.com/youtube-agent/internal/agent/poster"
	"github.com/youtube-agent/internal/agent/scheduler"
	"github.com/youtube-agent/internal/auth"
	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/internal/proxy"
	"github.com/youtube-agent/internal/source/channel"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/internal/storage/database"
	"github.com/youtube-agent/internal/youtube"
	"github.com/youtube-agent/pkg/logger"
	"github.com/youtube-agent/pkg/ratelimit"
)

// App holds the wired services shared by the server and the CLI
type App struct {
	Config     *config.Config
	Repository storage.Repository
	Limiter    *ratelimit.MultiLimiter
	Tokens     *auth.Tokens
	OAuth      *youtube.OAuthManager
	Refresher  *youtube.TokenRefresher
	Clients    *youtube.ClientFactory
	Poster     *poster.Agent
	Checker    *proxy.Checker
	Feed       *channel.Feed
	Cron       *cron.Cron
	Executor   *scheduler.Executor
	Maintainer *maintenance.Agent
}

// New opens the database, runs migrations and builds every service
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	repo, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	limiter := ratelimit.NewDefaultLimiter(ratelimit.Limits{
		YouTubeRequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		YouTubeBurst:             cfg.YouTube.Burst,
	})

	oauthManager := youtube.NewOAuthManager(cfg.Google, limiter, log)
	refresher := youtube.NewTokenRefresher(oauthManager, repo, log)
	clients := youtube.NewClientFactory(proxy.NewResolver(repo), limiter, cfg.YouTube, log)
	posterAgent := poster.NewAgent(repo, refresher, clients, log)

	c := scheduler.NewCron(log)
	executor := scheduler.NewExecutor(repo, posterAgent, c, log)

	return &App{
		Config:     cfg,
		Repository: repo,
		Limiter:    limiter,
		Tokens:     auth.NewTokens(cfg.Auth),
		OAuth:      oauthManager,
		Refresher:  refresher,
		Clients:    clients,
		Poster:     posterAgent,
		Checker:    proxy.NewChecker(repo, limiter, cfg.Proxy.CheckURL, cfg.Proxy.CheckTimeout, log),
		Feed:       channel.NewFeed(cfg.Channels, limiter, cfg.YouTube.UserAgent, log),
		Cron:       c,
		Executor:   executor,
		Maintainer: maintenance.NewAgent(repo, executor, log),
	}, nil
}

// ScheduleJobs registers the maintenance and due-comment jobs on the cron engine
func (a *App) ScheduleJobs(log *logger.Logger) error {
	_, err := a.Cron.AddFunc(a.Config.Scheduler.MaintenanceCron, func() {
		if _, err := a.Maintainer.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("Scheduled maintenance failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}
	log.Info().Str("cron", a.Config.Scheduler.MaintenanceCron).Msg("Maintenance job scheduled")

	_, err = a.Cron.AddFunc(a.Config.Scheduler.DueCommentsCron, func() {
		posted, errs := a.Poster.ProcessDueComments(context.Background(), a.Config.Scheduler.DueCommentsBatch)
		for _, e := range errs {
			log.Error().Err(e).Msg("Due comment error")
		}
		if posted > 0 || len(errs) > 0 {
			log.Info().
				Int("posted", posted).
				Int("errors", len(errs)).
				Msg("Due comments processed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule due comments job: %w", err)
	}
	log.Info().Str("cron", a.Config.Scheduler.DueCommentsCron).Msg("Due comments job scheduled")

	return nil
}

// Close stops background work and closes the database
func (a *App) Close() error {
	ctx := a.Cron.Stop()
	<-ctx.Done()
	a.Executor.Stop()
	return a.Repository.Close()
}
