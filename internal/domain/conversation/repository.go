package conversation

import "context"

// MemoryRepository persists model conversation memory.
type MemoryRepository interface {
	Append(ctx context.Context, entry *MemoryEntry) error
	// Recent returns up to limit entries for the chat in chronological
	// order (oldest first).
	Recent(ctx context.Context, instanceID, chatID string, limit int) ([]*MemoryEntry, error)
	DeleteByInstance(ctx context.Context, instanceID string) error
}

// MessageRepository persists the durable message log.
type MessageRepository interface {
	Save(ctx context.Context, msg *StoredMessage) error
	ListByChat(ctx context.Context, instanceID, chatID string, limit int) ([]*StoredMessage, error)
}
