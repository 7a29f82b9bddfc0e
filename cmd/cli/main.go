package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/youtube-agent/internal/app"
	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	svc     *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "youtube-agent",
		Short: "Operator tooling for the YouTube agent",
		Long: `Inspect and operate connected YouTube accounts, proxies, comments
and schedules against the same database the server uses.`,
		PersistentPreRunE:  initializeApp,
		PersistentPostRunE: closeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(proxiesCmd())
	rootCmd.AddCommand(commentsCmd())
	rootCmd.AddCommand(schedulesCmd())
	rootCmd.AddCommand(maintenanceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	svc, err = app.New(cfg, log)
	return err
}

func closeApp(cmd *cobra.Command, args []string) error {
	if svc == nil {
		return nil
	}
	return svc.Close()
}

// ============ ACCOUNTS COMMANDS ============

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Connected YouTube account commands",
	}

	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsRefreshCmd())
	cmd.AddCommand(accountsVerifyCmd())
	return cmd
}

func accountsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List connected accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.AccountFilter{}
			if status != "" {
				s := models.AccountStatus(status)
				filter.Status = &s
			}

			accounts, err := svc.Repository.ListAccounts(context.Background(), filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Accounts (%d) ===\n\n", len(accounts))
			for _, a := range accounts {
				fmt.Printf("[%d] %s | %s | user %d\n", a.ID, a.Email, a.Status, a.UserID)
				if a.ChannelTitle != "" {
					fmt.Printf("    Channel: %s (%s)\n", a.ChannelTitle, a.ChannelID)
				}
				if a.Proxy != nil {
					fmt.Printf("    Proxy: %s:%d (%s)\n", a.Proxy.Host, a.Proxy.Port, a.Proxy.Status)
				}
				if a.LastUsed != nil {
					fmt.Printf("    Last used: %s ago\n", formatDuration(time.Since(*a.LastUsed)))
				}
				fmt.Printf("    Comments today: %d\n", a.DailyUsage.CommentCount)
				if a.Google.TokenExpiry != nil {
					fmt.Printf("    Token expires: %s\n", a.Google.TokenExpiry.Format(time.RFC1123))
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active, inactive, limited, banned)")

	return cmd
}

func accountsRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [account-id]",
		Short: "Force an access token refresh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			account, err := loadAccount(ctx, args[0])
			if err != nil {
				return err
			}

			if _, err := svc.Refresher.RefreshIfNeeded(ctx, account, true); err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}

			fmt.Printf("Token refreshed for account %d\n", account.ID)
			if account.Google.TokenExpiry != nil {
				fmt.Printf("New expiry: %s\n", account.Google.TokenExpiry.Format(time.RFC1123))
			}
			return nil
		},
	}

	return cmd
}

func accountsVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [account-id]",
		Short: "Check that an account can reach its YouTube channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			account, err := loadAccount(ctx, args[0])
			if err != nil {
				return err
			}

			if _, err := svc.Refresher.RefreshIfNeeded(ctx, account, false); err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}

			client, err := svc.Clients.New(ctx, account)
			if err != nil {
				return err
			}

			channel, err := client.MyChannel(ctx)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			fmt.Printf("\n=== Account %d verified ===\n", account.ID)
			fmt.Printf("Channel:     %s\n", channel.Title)
			fmt.Printf("Channel ID:  %s\n", channel.ID)
			return nil
		},
	}

	return cmd
}

// ============ PROXIES COMMANDS ============

func proxiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Proxy commands",
	}

	cmd.AddCommand(proxiesListCmd())
	cmd.AddCommand(proxiesCheckCmd())
	return cmd
}

func proxiesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proxies",
		RunE: func(cmd *cobra.Command, args []string) error {
			proxies, err := svc.Repository.ListProxies(context.Background(), storage.ProxyFilter{})
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Proxies (%d) ===\n\n", len(proxies))
			for _, p := range proxies {
				fmt.Printf("[%d] %s://%s:%d | %s | user %d\n", p.ID, p.Protocol, p.Host, p.Port, p.Status, p.UserID)
				if p.Location != "" {
					fmt.Printf("    Location: %s\n", p.Location)
				}
				if p.LastChecked != nil {
					fmt.Printf("    Last checked: %s ago (%dms)\n", formatDuration(time.Since(*p.LastChecked)), p.ConnectionSpeed)
				}
				if p.Notes != "" {
					fmt.Printf("    Notes: %s\n", truncateStr(p.Notes, 100))
				}
				fmt.Println()
			}

			return nil
		},
	}

	return cmd
}

func proxiesCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [proxy-id...]",
		Short: "Probe proxies and record their health (all proxies when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			filter := storage.ProxyFilter{}
			for _, arg := range args {
				id, err := strconv.ParseUint(arg, 10, 32)
				if err != nil {
					return fmt.Errorf("invalid proxy ID: %s", arg)
				}
				filter.IDs = append(filter.IDs, uint(id))
			}

			proxies, err := svc.Repository.ListProxies(ctx, filter)
			if err != nil {
				return err
			}
			if len(proxies) == 0 {
				fmt.Println("No proxies to check.")
				return nil
			}

			fmt.Printf("Checking %d proxy(ies)...\n\n", len(proxies))

			results, err := svc.Checker.CheckAll(ctx, proxies)
			if err != nil {
				return err
			}

			for _, r := range results {
				if r.Error != "" {
					fmt.Printf("  [%d] %s: %s\n", r.ProxyID, r.Status, r.Error)
					continue
				}
				fmt.Printf("  [%d] %s (%dms)\n", r.ProxyID, r.Status, r.Speed)
			}

			return nil
		},
	}

	return cmd
}

// ============ COMMENTS COMMANDS ============

func commentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Comment commands",
	}

	cmd.AddCommand(commentsListCmd())
	cmd.AddCommand(commentsProcessDueCmd())
	return cmd
}

func commentsListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List comments",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultCommentFilter()
			filter.Limit = limit

			if status != "" {
				s := models.CommentStatus(status)
				filter.Status = &s
			}

			comments, err := svc.Repository.ListComments(context.Background(), filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Comments (%d) ===\n\n", len(comments))
			for _, c := range comments {
				fmt.Printf("[%d] %s | Video: %s | Account: %d\n", c.ID, c.Status, c.VideoID, c.AccountID)
				if c.ScheduleID != nil {
					fmt.Printf("    Schedule: %d\n", *c.ScheduleID)
				}
				fmt.Printf("    Comment: %s\n", truncateStr(c.Content, 100))
				if c.ScheduledFor != nil {
					fmt.Printf("    Scheduled for: %s\n", c.ScheduledFor.Format(time.RFC1123))
				}
				if c.PostedAt != nil {
					fmt.Printf("    Posted: %s\n", c.PostedAt.Format(time.RFC1123))
				}
				if c.ErrorMessage != "" {
					fmt.Printf("    Error: %s\n", c.ErrorMessage)
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, scheduled, posted, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum comments to show")

	return cmd
}

func commentsProcessDueCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "process-due",
		Short: "Post scheduled comments that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch <= 0 {
				batch = cfg.Scheduler.DueCommentsBatch
			}

			posted, errs := svc.Poster.ProcessDueComments(context.Background(), batch)

			fmt.Printf("\n=== Due Comments ===\n")
			fmt.Printf("Posted: %d\n", posted)

			if len(errs) > 0 {
				fmt.Printf("\nErrors:\n")
				for _, e := range errs {
					fmt.Printf("  - %s\n", e)
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "Maximum comments to claim (default from config)")

	return cmd
}

// ============ SCHEDULES COMMANDS ============

func schedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Comment schedule commands",
	}

	cmd.AddCommand(schedulesListCmd())
	cmd.AddCommand(schedulesStatusCmd("pause", "Pause a schedule", models.ScheduleStatusPaused))
	cmd.AddCommand(schedulesStatusCmd("resume", "Resume a paused schedule (takes effect when the server next loads schedules)", models.ScheduleStatusActive))
	return cmd
}

func schedulesListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultScheduleFilter()
			filter.Limit = limit

			if status != "" {
				s := models.ScheduleStatus(status)
				filter.Status = &s
			}

			schedules, err := svc.Repository.ListSchedules(context.Background(), filter)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Schedules (%d) ===\n\n", len(schedules))
			for _, s := range schedules {
				fmt.Printf("[%d] %s | %s | %s\n", s.ID, s.Name, s.Status, s.Cadence.Type)
				switch s.Cadence.Type {
				case models.CadenceRecurring:
					fmt.Printf("    Cron: %s\n", s.Cadence.CronExpression)
				case models.CadenceInterval:
					fmt.Printf("    Every: %s\n", s.Cadence.IntervalDuration())
				}
				fmt.Printf("    Selection: %s (%d account(s))\n", s.AccountSelection, len(s.SelectedAccounts))
				fmt.Printf("    Targets: %d video(s), %d channel(s), %d template(s)\n",
					len(s.TargetVideos), len(s.TargetChannels), len(s.CommentTemplates))
				fmt.Printf("    Progress: %d posted, %d failed of %d\n",
					s.Progress.PostedComments, s.Progress.FailedComments, s.Progress.TotalComments)
				if s.Cadence.EndDate != nil {
					fmt.Printf("    Ends: %s\n", s.Cadence.EndDate.Format(time.RFC1123))
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active, paused, completed, error)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum schedules to show")

	return cmd
}

func schedulesStatusCmd(use, short string, status models.ScheduleStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [schedule-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid schedule ID: %s", args[0])
			}

			schedule, err := svc.Repository.GetScheduleByID(ctx, uint(id))
			if err != nil {
				return err
			}

			if status == models.ScheduleStatusActive && schedule.Status == models.ScheduleStatusCompleted {
				return fmt.Errorf("schedule %d is completed and cannot be resumed", schedule.ID)
			}

			if err := svc.Repository.UpdateScheduleStatus(ctx, schedule.ID, status); err != nil {
				return err
			}

			fmt.Printf("Schedule %d (%s): %s -> %s\n", schedule.ID, schedule.Name, schedule.Status, status)
			return nil
		},
	}

	return cmd
}

// ============ MAINTENANCE COMMANDS ============

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Maintenance commands",
	}

	cmd.AddCommand(maintenanceRunCmd())
	return cmd
}

func maintenanceRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reset daily usage counters and complete expired schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()

			result, err := svc.Maintainer.Run(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Maintenance Results ===\n")
			fmt.Printf("Accounts Reset:      %d\n", result.AccountsReset)
			fmt.Printf("Schedules Completed: %d\n", result.SchedulesCompleted)
			fmt.Printf("Duration:            %s\n", time.Since(start).Round(time.Millisecond))

			if len(result.Errors) > 0 {
				fmt.Printf("\nErrors:\n")
				for _, e := range result.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}

			return nil
		},
	}

	return cmd
}

func loadAccount(ctx context.Context, arg string) (*models.Account, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid account ID: %s", arg)
	}
	return svc.Repository.GetAccountByID(ctx, uint(id))
}

// Helper function to truncate strings
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Helper function to format duration nicely
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
