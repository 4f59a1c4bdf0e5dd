package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

// Tuesday inside business hours.
var tuesdayMorning = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func autoRunSettings(instanceID string) *outreach.Settings {
	return &outreach.Settings{
		InstanceID:  instanceID,
		AutoRun:     true,
		DailyLimit:  30,
		WindowStart: "08:00",
		WindowEnd:   "18:00",
		LoopStatus:  outreach.LoopIdle,
	}
}

func TestShouldAutoStart(t *testing.T) {
	ranToday := tuesdayMorning.Add(-2 * time.Hour)
	ranYesterday := tuesdayMorning.Add(-24 * time.Hour)

	tests := []struct {
		name string
		mod  func(*outreach.Settings)
		now  time.Time
		want bool
	}{
		{
			name: "qualifies",
			mod:  func(*outreach.Settings) {},
			now:  tuesdayMorning,
			want: true,
		},
		{
			name: "auto run disabled",
			mod:  func(s *outreach.Settings) { s.AutoRun = false },
			now:  tuesdayMorning,
			want: false,
		},
		{
			name: "saturday",
			mod:  func(*outreach.Settings) {},
			now:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "sunday",
			mod:  func(*outreach.Settings) {},
			now:  time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "before window",
			mod:  func(*outreach.Settings) {},
			now:  time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "after window",
			mod:  func(*outreach.Settings) {},
			now:  time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "status already running",
			mod:  func(s *outreach.Settings) { s.LoopStatus = outreach.LoopRunning },
			now:  tuesdayMorning,
			want: false,
		},
		{
			name: "ran earlier today",
			mod:  func(s *outreach.Settings) { s.LastRunAt = &ranToday },
			now:  tuesdayMorning,
			want: false,
		},
		{
			name: "ran yesterday",
			mod:  func(s *outreach.Settings) { s.LastRunAt = &ranYesterday },
			now:  tuesdayMorning,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := autoRunSettings("inst-1")
			tt.mod(settings)
			assert.Equal(t, tt.want, shouldAutoStart(settings, tt.now))
		})
	}
}

func TestSchedulerTickStartsQualifyingLoops(t *testing.T) {
	f := newManagerFixture(t)
	scheduler := NewScheduler(f.settings, f.manager, zap.NewNop())

	auto := autoRunSettings("inst-1")
	auto.WindowStart = "00:00"
	auto.WindowEnd = "23:59"
	f.settings.items["inst-1"] = auto

	manual := autoRunSettings("inst-manual")
	manual.AutoRun = false
	f.settings.items["inst-manual"] = manual

	f.seedContacts("inst-1", "5511111")

	tick := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	scheduler.tick(context.Background(), tick)
	waitFor(t, func() bool { return !f.manager.Running("inst-1") })

	assert.Len(t, f.gateway.Sent(), 1)
	assert.False(t, f.manager.Running("inst-manual"))

	// A second tick the same day is a no-op once last_run_at is recorded.
	f.settings.items["inst-1"].LastRunAt = &tick
	scheduler.tick(context.Background(), tick.Add(time.Hour))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, f.manager.Running("inst-1"))
	assert.Len(t, f.gateway.Sent(), 1)
}
