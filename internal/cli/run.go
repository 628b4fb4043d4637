package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/learnsync/internal/config"
	"github.com/example/learnsync/internal/notify"
	"github.com/example/learnsync/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful stop of the metrics server
const shutdownTimeout = 5 * time.Second

func newRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background sync engine",
		Long: `Run until interrupted: probe the remote store, push pending attempts of
every learner, send daily streak reminders when a Telegram token is set, and
serve Prometheus metrics on METRICS_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, runEngine)
		},
	}
}

func runEngine(ctx context.Context, e *Engine) error {
	logger := config.NewLogger(e.LogOutput, "run")
	loc, err := e.Config.Location()
	if err != nil {
		return err
	}

	var notifier scheduler.Notifier
	if e.Config.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(e.Config.TelegramBotToken)
		if err != nil {
			return err
		}
		notifier = tg
	} else {
		logger.Println("TELEGRAM_BOT_TOKEN is not set, streak reminders are disabled")
	}

	sched := scheduler.New(scheduler.Config{
		ProbeInterval: e.Config.ProbeInterval,
		SyncInterval:  e.Config.SyncInterval,
		ReminderHour:  e.Config.ReminderHour,
		Location:      loc,
	}, e.Prober, e.Tracker.Syncer(), e.Remote, notifier, config.NewLogger(e.LogOutput, "scheduler"))
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	var srv *http.Server
	if e.Config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{
			Addr:              e.Config.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
		logger.Printf("Serving metrics on %s/metrics", e.Config.MetricsAddr)
	}

	logger.Println("Engine started. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Println("Stopping engine...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Error during shutdown: %v", err)
		}
	}
	return nil
}
