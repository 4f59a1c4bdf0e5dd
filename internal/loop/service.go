package loop

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

// AddStatus is the outcome of an add-contact attempt.
type AddStatus string

const (
	AddOK                 AddStatus = "ok"
	AddSkippedAlreadySent AddStatus = "already_sent"
	AddSkippedDuplicate   AddStatus = "duplicate_in_queue"
)

// State is the aggregate loop view the panel renders.
type State struct {
	Cap             int                 `json:"cap"`
	SentToday       int64               `json:"sent_today"`
	RemainingToday  int64               `json:"remaining_today"`
	LoopStatus      outreach.LoopStatus `json:"loop_status"`
	LastRunAt       *time.Time          `json:"last_run_at,omitempty"`
	AutoRun         bool                `json:"auto_run"`
	IAAuto          bool                `json:"ia_auto"`
	MessageTemplate string              `json:"message_template"`
	QueuePending    int64               `json:"queue_pending"`
	ActuallyRunning bool                `json:"actually_running"`
}

// UpdateSettingsInput patches settings; nil fields stay untouched.
type UpdateSettingsInput struct {
	AutoRun         *bool   `json:"auto_run"`
	IAAuto          *bool   `json:"ia_auto"`
	DailyLimit      *int    `json:"daily_limit"`
	MessageTemplate *string `json:"message_template"`
	WindowStart     *string `json:"window_start"`
	WindowEnd       *string `json:"window_end"`
}

// Service is the admin surface over queue, totals and settings.
type Service struct {
	settings outreach.SettingsRepository
	queue    outreach.QueueRepository
	totals   outreach.TotalsRepository
	manager  *Manager
	logger   *zap.Logger
}

func NewService(
	settings outreach.SettingsRepository,
	queue outreach.QueueRepository,
	totals outreach.TotalsRepository,
	manager *Manager,
	logger *zap.Logger,
) *Service {
	return &Service{
		settings: settings,
		queue:    queue,
		totals:   totals,
		manager:  manager,
		logger:   logger.Named("loop.service"),
	}
}

// Settings returns the instance settings, creating defaults if needed.
func (s *Service) Settings(ctx context.Context, instanceID string) (*outreach.Settings, error) {
	return s.settings.Ensure(ctx, instanceID)
}

// UpdateSettings applies a partial settings patch.
func (s *Service) UpdateSettings(ctx context.Context, instanceID string, in UpdateSettingsInput) (*outreach.Settings, error) {
	settings, err := s.settings.Ensure(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if in.AutoRun != nil {
		settings.AutoRun = *in.AutoRun
	}
	if in.IAAuto != nil {
		settings.IAAuto = *in.IAAuto
	}
	if in.DailyLimit != nil {
		settings.DailyLimit = *in.DailyLimit
	}
	if in.MessageTemplate != nil {
		settings.MessageTemplate = *in.MessageTemplate
	}
	if in.WindowStart != nil {
		settings.WindowStart = *in.WindowStart
	}
	if in.WindowEnd != nil {
		settings.WindowEnd = *in.WindowEnd
	}
	if err := s.settings.Update(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// AddContact queues one contact. Phones already answered (ledger says a
// message went out) or already queued are skipped, not duplicated.
func (s *Service) AddContact(ctx context.Context, instanceID, name, phone, niche string, source outreach.ContactSource) (AddStatus, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return "", fmt.Errorf("invalid phone: %q", phone)
	}

	total, err := s.totals.Find(ctx, instanceID, normalized)
	if err != nil {
		return "", err
	}
	if total != nil && total.MessageSent {
		return AddSkippedAlreadySent, nil
	}

	queued, err := s.queue.HasPendingPhone(ctx, instanceID, normalized)
	if err != nil {
		return "", err
	}
	if queued {
		return AddSkippedDuplicate, nil
	}

	contact := &outreach.Contact{
		InstanceID: instanceID,
		Name:       strings.TrimSpace(name),
		Phone:      normalized,
		Niche:      strings.TrimSpace(niche),
		Source:     source,
		Status:     outreach.ContactPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.queue.Add(ctx, contact); err != nil {
		return "", err
	}
	return AddOK, nil
}

// State assembles the loop dashboard for one instance.
func (s *Service) State(ctx context.Context, instanceID string) (*State, error) {
	settings, err := s.settings.Ensure(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	sent, err := s.totals.SentToday(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	pending, err := s.queue.CountPending(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	remaining := int64(settings.Limit()) - sent
	if remaining < 0 {
		remaining = 0
	}

	return &State{
		Cap:             settings.Limit(),
		SentToday:       sent,
		RemainingToday:  remaining,
		LoopStatus:      settings.LoopStatus,
		LastRunAt:       settings.LastRunAt,
		AutoRun:         settings.AutoRun,
		IAAuto:          settings.IAAuto,
		MessageTemplate: settings.Template(),
		QueuePending:    pending,
		ActuallyRunning: s.manager.Running(instanceID),
	}, nil
}

// ListQueue pages through pending contacts.
func (s *Service) ListQueue(ctx context.Context, instanceID, search string, limit, offset int) ([]*outreach.Contact, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.queue.List(ctx, instanceID, search, limit, offset)
}

// ListTotals pages through the send ledger.
func (s *Service) ListTotals(ctx context.Context, instanceID, search string, limit, offset int) ([]*outreach.Total, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.totals.List(ctx, instanceID, search, limit, offset)
}

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
