// Command vcsync keeps a shared team calendar in step with the away status of
// each member's individual calendar.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/beekhof/vacation-calendar-sync/internal/audit"
	"github.com/beekhof/vacation-calendar-sync/internal/auth"
	"github.com/beekhof/vacation-calendar-sync/internal/config"
	"github.com/beekhof/vacation-calendar-sync/internal/event"
	"github.com/beekhof/vacation-calendar-sync/internal/graph"
	"github.com/beekhof/vacation-calendar-sync/internal/notify"
	"github.com/beekhof/vacation-calendar-sync/internal/report"
	"github.com/beekhof/vacation-calendar-sync/internal/sync"
	"github.com/beekhof/vacation-calendar-sync/internal/window"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "vcsync",
	Short:        "Synchronize team vacation status to a shared calendar",
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run synchronization cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		return runSync(cmd.Context(), once, from, to)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print who is away according to the shared calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		icsPath, _ := cmd.Flags().GetString("ics")
		return runReport(cmd.Context(), asJSON, icsPath)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Microsoft Graph with the device-code flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		_, err = auth.Login(cmd.Context(),
			auth.NewOAuthConfig(cfg.TenantID, cfg.ClientID),
			auth.NewFileTokenStore(cfg.TokenPath))
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		fmt.Sprintf("path to the YAML config file (default $%s)", config.EnvConfigPath))

	syncCmd.Flags().Bool("once", false, "run a single cycle and exit")
	syncCmd.Flags().String("from", "", "start of a manual window (YYYY-MM-DD, inclusive)")
	syncCmd.Flags().String("to", "", "end of a manual window (YYYY-MM-DD, inclusive)")

	reportCmd.Flags().Bool("json", false, "emit the report as JSON")
	reportCmd.Flags().String("ics", "", "write the report as an iCalendar file at the given path")

	rootCmd.AddCommand(syncCmd, reportCmd, loginCmd)
}

// connect loads the config and builds an authenticated Graph client.
func connect(ctx context.Context) (*config.Config, *graph.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	httpClient, err := auth.GetAuthenticatedClient(ctx,
		auth.NewOAuthConfig(cfg.TenantID, cfg.ClientID),
		auth.NewFileTokenStore(cfg.TokenPath))
	if err != nil {
		return nil, nil, err
	}

	return cfg, graph.NewClient(httpClient, cfg.RequestTimeout.Std()), nil
}

// manualWindow parses an inclusive --from/--to date pair into a window.
func manualWindow(from, to string) (window.Window, error) {
	start, err := time.Parse(event.DayFormat, from)
	if err != nil {
		return window.Window{}, fmt.Errorf("invalid --from date: %w", err)
	}
	end, err := time.Parse(event.DayFormat, to)
	if err != nil {
		return window.Window{}, fmt.Errorf("invalid --to date: %w", err)
	}
	if end.Before(start) {
		return window.Window{}, fmt.Errorf("--to %s precedes --from %s", to, from)
	}
	return window.New(start, end.AddDate(0, 0, 1)), nil
}

func runSync(ctx context.Context, once bool, from, to string) error {
	if (from == "") != (to == "") {
		return fmt.Errorf("--from and --to must be given together")
	}

	cfg, client, err := connect(ctx)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if len(cfg.NotifyRecipients) > 0 {
		notifier = notify.NewMailer(client, cfg.NotifyRecipients)
	}

	trail, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer trail.Close()

	syncer, err := sync.NewSyncer(client, cfg, notify.NewCollector(notifier), trail)
	if err != nil {
		return err
	}

	if from != "" {
		win, err := manualWindow(from, to)
		if err != nil {
			return err
		}
		_, err = syncer.Sync(ctx, win)
		return err
	}

	if once {
		_, err := syncer.Sync(ctx, syncer.DefaultWindow(time.Now()))
		return err
	}

	// Continuous mode: one cycle immediately, then on the refresh interval.
	// SkipIfStillRunning guarantees cycles never overlap.
	cycle := func() {
		if _, err := syncer.Sync(ctx, syncer.DefaultWindow(time.Now())); err != nil {
			log.Printf("Cycle failed: %v", err)
		}
	}
	cycle()

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.RefreshInterval.Std()), cycle); err != nil {
		return fmt.Errorf("failed to schedule cycles: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Printf("Received %v, shutting down", sig)
	case <-ctx.Done():
	}
	return nil
}

func runReport(ctx context.Context, asJSON bool, icsPath string) error {
	cfg, client, err := connect(ctx)
	if err != nil {
		return err
	}

	syncer, err := sync.NewSyncer(client, cfg, notify.NewCollector(notify.LogNotifier{}), nil)
	if err != nil {
		return err
	}

	shared, _, _, err := syncer.SharedState(ctx, syncer.DefaultWindow(time.Now()))
	if err != nil {
		return err
	}

	if icsPath != "" {
		f, err := os.Create(icsPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", icsPath, err)
		}
		defer f.Close()
		return report.WriteICS(f, shared, time.Now())
	}

	days := report.Build(shared)
	if asJSON {
		return report.WriteJSON(os.Stdout, days)
	}
	return report.WriteTable(os.Stdout, days)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
