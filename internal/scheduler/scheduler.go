// Package scheduler runs the periodic jobs of a long-running engine:
// connectivity probes, background sync passes and daily streak reminders.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/internal/streak"
	"github.com/example/learnsync/internal/syncer"
	"github.com/example/learnsync/pkg/models"
	"github.com/go-co-op/gocron"
)

// Notifier interface for sending notifications
type Notifier interface {
	SendStreakReminder(ctx context.Context, target models.ReminderTarget) error
}

// Syncer pushes pending attempts of every user
type Syncer interface {
	SyncPending(ctx context.Context) ([]syncer.Report, error)
}

// Prober refreshes the connectivity gate
type Prober interface {
	Probe(ctx context.Context) bool
}

// Config holds job intervals
type Config struct {
	ProbeInterval time.Duration
	SyncInterval  time.Duration
	// Local hour of the daily reminder job
	ReminderHour int
	Location     *time.Location
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	prober    Prober
	syncer    Syncer
	reminders remote.ReminderSource
	notifier  Notifier
	now       func() time.Time
	logger    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler instance. reminders and notifier may be nil,
// in which case no reminder job is scheduled.
func New(cfg Config, prober Prober, s Syncer, reminders remote.ReminderSource, notifier Notifier, logger *log.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		cfg:       cfg,
		prober:    prober,
		syncer:    s,
		reminders: reminders,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the jobs and runs them in the background
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.cfg.ProbeInterval).Do(s.probe); err != nil {
		return fmt.Errorf("failed to schedule probe: %w", err)
	}
	// Sync waits one interval so the first probe has set the gate
	if _, err := s.scheduler.Every(s.cfg.SyncInterval).WaitForSchedule().Do(s.syncPending); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	if s.reminders != nil && s.notifier != nil {
		at := fmt.Sprintf("%02d:00", s.cfg.ReminderHour)
		if _, err := s.scheduler.Every(1).Day().At(at).Do(s.checkAndSendReminders); err != nil {
			return fmt.Errorf("failed to schedule reminders: %w", err)
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks and cancels running ones
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) probe() {
	s.prober.Probe(s.ctx)
}

func (s *Scheduler) syncPending() {
	reports, err := s.syncer.SyncPending(s.ctx)
	if err != nil {
		s.logger.Printf("Error syncing pending attempts: %v", err)
		return
	}
	for _, r := range reports {
		if len(r.Synced) > 0 || len(r.DeadLettered) > 0 {
			s.logger.Printf("Synced %d attempts of %s (%d dead-lettered, %d pending)",
				len(r.Synced), r.UserID, len(r.DeadLettered), r.Pending)
		}
	}
}

// checkAndSendReminders notifies learners whose streak ends today unless
// they practice. Those were last active yesterday.
func (s *Scheduler) checkAndSendReminders() {
	if _, err := s.RunReminderCheck(s.ctx); err != nil {
		s.logger.Printf("Error sending reminders: %v", err)
	}
}

// RunReminderCheck sends streak reminders now and returns how many were sent
func (s *Scheduler) RunReminderCheck(ctx context.Context) (int, error) {
	today := s.now().In(s.cfg.Location).Format(streak.DateLayout)
	targets, err := s.reminders.ListReminderTargets(ctx, streak.Yesterday(today, s.cfg.Location))
	if err != nil {
		return 0, fmt.Errorf("failed to list reminder targets: %w", err)
	}

	sent := 0
	for _, target := range targets {
		if err := s.notifier.SendStreakReminder(ctx, target); err != nil {
			s.logger.Printf("Error sending reminder to user %s: %v", target.UserID, err)
			continue
		}
		sent++
	}
	return sent, nil
}
