package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Veraticus/courier/internal/common"
)

var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a six-field cron expression (with seconds) or a descriptor such as @daily.
func ValidateSchedule(schedule string) error {
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return nil
}

// Scheduler runs a Cleaner on a cron schedule.
type Scheduler struct {
	cleaner  *Cleaner
	logger   *slog.Logger
	cron     *cron.Cron
	onResult func(Result, error)
	root     string
	schedule string
	days     int
	entryID  cron.EntryID
	running  sync.Mutex
}

// NewScheduler creates a scheduler that cleans root on schedule.
func NewScheduler(cleaner *Cleaner, root string, days int, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}
	return &Scheduler{
		cleaner:  cleaner,
		logger:   common.LoggerOrDefault(logger),
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(time.Local)),
		root:     root,
		schedule: schedule,
		days:     days,
	}, nil
}

// OnResult registers a callback invoked after every scheduled pass.
func (s *Scheduler) OnResult(fn func(Result, error)) {
	s.onResult = fn
}

// Run schedules cleanup and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.schedule, func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule retention cleanup: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.logger.Info("retention cleanup scheduled",
		"root", s.root,
		"days", s.days,
		"schedule", s.schedule,
		"next_run", s.Next())

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("retention scheduler stopped")
	return nil
}

// Next returns the next scheduled run, or the zero time when not scheduled.
func (s *Scheduler) Next() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// runOnce skips a tick while the previous pass is still deleting.
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("previous retention cleanup still running, skipping this run")
		return
	}
	defer s.running.Unlock()

	result, err := s.cleaner.Cleanup(ctx, s.root, s.days)
	if err != nil {
		s.logger.Error("retention cleanup failed", "root", s.root, "error", err)
	} else {
		s.logger.Info("retention cleanup finished",
			"deleted", len(result.Deleted),
			"skipped", len(result.Skipped),
			"kept", result.Kept)
	}
	if s.onResult != nil {
		s.onResult(result, err)
	}
}
