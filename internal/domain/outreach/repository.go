package outreach

import "context"

// SettingsRepository persists per-instance outreach settings.
type SettingsRepository interface {
	// Find returns (nil, nil) when the instance has no settings row.
	Find(ctx context.Context, instanceID string) (*Settings, error)
	// Ensure returns the settings row, creating a default one if needed.
	Ensure(ctx context.Context, instanceID string) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
	SetLoopStatus(ctx context.Context, instanceID string, status LoopStatus) error
	// FinishRun marks the loop idle and stamps last_run_at.
	FinishRun(ctx context.Context, instanceID string) error
	ListAutoRun(ctx context.Context) ([]*Settings, error)
}

// QueueRepository persists the pending-contact queue.
type QueueRepository interface {
	Add(ctx context.Context, c *Contact) error
	// NextPending returns the oldest pending contact, or (nil, nil).
	NextPending(ctx context.Context, instanceID string) (*Contact, error)
	Delete(ctx context.Context, id int64) error
	CountPending(ctx context.Context, instanceID string) (int64, error)
	HasPendingPhone(ctx context.Context, instanceID, phone string) (bool, error)
	List(ctx context.Context, instanceID, search string, limit, offset int) ([]*Contact, int64, error)
}

// TotalsRepository persists the per-phone send ledger.
type TotalsRepository interface {
	// Upsert inserts or updates the (instance, phone) row, refreshing
	// name, niche, outcome and timestamp.
	Upsert(ctx context.Context, entry *Total) error
	Find(ctx context.Context, instanceID, phone string) (*Total, error)
	// SentToday counts rows with a delivered message updated today.
	SentToday(ctx context.Context, instanceID string) (int64, error)
	List(ctx context.Context, instanceID, search string, limit, offset int) ([]*Total, int64, error)
}

// EventRepository persists the durable loop event log.
type EventRepository interface {
	Append(ctx context.Context, e *Event) error
	// Recent returns up to limit events, oldest first.
	Recent(ctx context.Context, instanceID string, limit int) ([]*Event, error)
}
