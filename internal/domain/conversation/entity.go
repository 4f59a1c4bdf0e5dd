package conversation

import "time"

// Role is the speaker of a memory entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MemoryEntry is one turn of the per-chat conversation memory the reply
// pipeline feeds back to the model.
type MemoryEntry struct {
	ID         int64             `json:"id"`
	InstanceID string            `json:"instance_id"`
	ChatID     string            `json:"chat_id"`
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// StoredMessage is the durable copy of a WhatsApp message, inbound or
// outbound, kept independently of the model memory.
type StoredMessage struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	ChatID     string    `json:"chat_id"`
	FromMe     bool      `json:"from_me"`
	Timestamp  int64     `json:"timestamp"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
