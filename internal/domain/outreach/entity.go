package outreach

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultDailyLimit caps sends per instance per day when settings
	// carry no explicit limit.
	DefaultDailyLimit = 30

	// DefaultTemplate is used when the tenant never set one.
	DefaultTemplate = "Olá {name}, tudo bem?"
)

// LoopStatus is the persisted run state of the outreach loop.
type LoopStatus string

const (
	LoopIdle    LoopStatus = "idle"
	LoopRunning LoopStatus = "running"
)

// ContactStatus is the queue state of a contact.
type ContactStatus string

const (
	ContactPending ContactStatus = "pending"
)

// ContactSource records how a contact entered the queue.
type ContactSource string

const (
	SourceManual ContactSource = "manual"
	SourceCSV    ContactSource = "csv"
)

var (
	ErrAlreadyRunning = errors.New("outreach loop already running")
	ErrNotRunning     = errors.New("outreach loop not running")
)

// Contact is one queued outbound target.
type Contact struct {
	ID         int64         `json:"id,string"`
	InstanceID string        `json:"instance_id"`
	Name       string        `json:"name"`
	Phone      string        `json:"phone"`
	Niche      string        `json:"niche,omitempty"`
	Source     ContactSource `json:"source"`
	Status     ContactStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Total is the per-phone send ledger. One row per (instance, phone),
// updated in place on every attempt.
type Total struct {
	ID          int64     `json:"id,string"`
	InstanceID  string    `json:"instance_id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	Niche       string    `json:"niche,omitempty"`
	MessageSent bool      `json:"message_sent"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Settings holds the per-instance outreach configuration.
type Settings struct {
	InstanceID      string     `json:"instance_id"`
	AutoRun         bool       `json:"auto_run"`
	IAAuto          bool       `json:"ia_auto"`
	DailyLimit      int        `json:"daily_limit"`
	MessageTemplate string     `json:"message_template"`
	WindowStart     string     `json:"window_start"`
	WindowEnd       string     `json:"window_end"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LoopStatus      LoopStatus `json:"loop_status"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Event is one durable entry of the loop event log, also fanned out to
// live subscribers.
type Event struct {
	ID         int64          `json:"id,string"`
	InstanceID string         `json:"instance_id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Limit returns the effective daily quota.
func (s *Settings) Limit() int {
	if s.DailyLimit > 0 {
		return s.DailyLimit
	}
	return DefaultDailyLimit
}

// Template returns the effective message template.
func (s *Settings) Template() string {
	if strings.TrimSpace(s.MessageTemplate) != "" {
		return s.MessageTemplate
	}
	return DefaultTemplate
}

// WithinWindow reports whether now falls inside the send window. A
// window whose end precedes its start wraps past midnight.
func (s *Settings) WithinWindow(now time.Time) bool {
	start, okStart := parseClock(s.WindowStart)
	end, okEnd := parseClock(s.WindowEnd)
	if !okStart || !okEnd {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

// UntilWindowEnd returns how long the current send window still lasts.
// Zero when now is outside the window or the window is unparseable.
func (s *Settings) UntilWindowEnd(now time.Time) time.Duration {
	if !s.WithinWindow(now) {
		return 0
	}
	start, okStart := parseClock(s.WindowStart)
	end, okEnd := parseClock(s.WindowEnd)
	if !okStart || !okEnd {
		return 0
	}
	cur := now.Hour()*60 + now.Minute()
	var remaining int
	switch {
	case start <= end:
		remaining = end - cur
	case cur >= start:
		remaining = (24*60 - cur) + end
	default:
		remaining = end - cur
	}
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining) * time.Minute
}

func parseClock(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	parts := strings.Split(v, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
