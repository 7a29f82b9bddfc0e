package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/youtube-agent/internal/api"
	"github.com/youtube-agent/internal/app"
	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/pkg/logger"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "youtube-agent-server",
		Short: "REST API and scheduler for the YouTube agent",
		Long: `Serves the REST API, runs comment schedules and the background
maintenance and due-comment jobs. Run it as a service.`,
		RunE: runServer,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	log.Info().Str("driver", cfg.Database.Driver).Msg("Starting YouTube Agent server")

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		if err := a.ScheduleJobs(log); err != nil {
			return err
		}

		installed, err := a.Executor.Setup(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up schedules: %w", err)
		}
		log.Info().Int("installed", installed).Msg("Schedules installed")

		a.Cron.Start()
		log.Info().Msg("Scheduler started")
	} else {
		log.Warn().Msg("Scheduler disabled, schedules will not fire")
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Repository: a.Repository,
		Tokens:     a.Tokens,
		OAuth:      a.OAuth,
		Refresher:  a.Refresher,
		Clients:    a.Clients,
		Poster:     a.Poster,
		Schedules:  a.Executor,
		Checker:    a.Checker,
		Videos:     a.Feed,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	return nil
}
