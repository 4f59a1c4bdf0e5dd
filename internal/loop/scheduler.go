package loop

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

const schedulerTick = time.Minute

// Scheduler starts auto-run loops. An instance qualifies when auto_run
// is on, it is a business day inside the send window, no loop is live
// and no run was recorded today.
type Scheduler struct {
	settings outreach.SettingsRepository
	manager  *Manager
	logger   *zap.Logger
}

func NewScheduler(settings outreach.SettingsRepository, manager *Manager, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		settings: settings,
		manager:  manager,
		logger:   logger.Named("loop.scheduler"),
	}
}

// Run ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	items, err := s.settings.ListAutoRun(ctx)
	if err != nil {
		s.logger.Error("schedule_scan_failed", zap.Error(err))
		return
	}

	for _, settings := range items {
		if !shouldAutoStart(settings, now) {
			continue
		}
		if s.manager.Running(settings.InstanceID) {
			continue
		}
		if err := s.manager.Start(settings.InstanceID); err != nil {
			if errors.Is(err, outreach.ErrAlreadyRunning) {
				continue
			}
			s.logger.Error("auto_start_failed", zap.String("instance_id", settings.InstanceID), zap.Error(err))
			continue
		}
		s.logger.Info("auto_start", zap.String("instance_id", settings.InstanceID))
	}
}

func shouldAutoStart(settings *outreach.Settings, now time.Time) bool {
	if !settings.AutoRun {
		return false
	}
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if !settings.WithinWindow(now) {
		return false
	}
	if settings.LoopStatus == outreach.LoopRunning {
		return false
	}
	if settings.LastRunAt != nil {
		last := settings.LastRunAt.UTC()
		today := now.UTC()
		if last.Year() == today.Year() && last.YearDay() == today.YearDay() {
			return false
		}
	}
	return true
}
