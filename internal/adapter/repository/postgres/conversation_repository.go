package postgres

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/conversation"
)

// MemoryModel is the database DTO for model conversation memory.
type MemoryModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	InstanceID string `gorm:"index:idx_ai_memory_chat;type:varchar(255)"`
	ChatID     string `gorm:"index:idx_ai_memory_chat;type:varchar(255)"`
	Role       string `gorm:"type:varchar(20)"`
	Content    string `gorm:"type:text"`
	Timestamp  time.Time
	Metadata   string `gorm:"type:jsonb"`
}

func (MemoryModel) TableName() string {
	return "ai_memory"
}

// MessageModel is the database DTO for the durable message log.
type MessageModel struct {
	ID         string `gorm:"primaryKey;type:varchar(255)"`
	InstanceID string `gorm:"index:idx_messages_chat;type:varchar(255)"`
	ChatID     string `gorm:"index:idx_messages_chat;type:varchar(255)"`
	FromMe     bool
	Timestamp  int64
	Content    string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (MessageModel) TableName() string {
	return "messages"
}

type MemoryRepository struct {
	db *gorm.DB
}

func NewMemoryRepository(db *gorm.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func (r *MemoryRepository) Append(ctx context.Context, entry *conversation.MemoryEntry) error {
	model := MemoryModel{
		InstanceID: entry.InstanceID,
		ChatID:     entry.ChatID,
		Role:       string(entry.Role),
		Content:    entry.Content,
		Timestamp:  entry.Timestamp,
	}
	if model.Timestamp.IsZero() {
		model.Timestamp = time.Now().UTC()
	}
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		model.Metadata = string(raw)
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	entry.ID = model.ID
	return nil
}

// Recent loads the newest entries for the chat and returns them oldest
// first, ready to feed to the model.
func (r *MemoryRepository) Recent(ctx context.Context, instanceID, chatID string, limit int) ([]*conversation.MemoryEntry, error) {
	var models []MemoryModel
	query := r.db.WithContext(ctx).
		Where("instance_id = ? AND chat_id = ?", instanceID, chatID).
		Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	items := make([]*conversation.MemoryEntry, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		items = append(items, memoryToDomain(models[i]))
	}
	return items, nil
}

func (r *MemoryRepository) DeleteByInstance(ctx context.Context, instanceID string) error {
	return r.db.WithContext(ctx).Where("instance_id = ?", instanceID).Delete(&MemoryModel{}).Error
}

func memoryToDomain(m MemoryModel) *conversation.MemoryEntry {
	entry := &conversation.MemoryEntry{
		ID:         m.ID,
		InstanceID: m.InstanceID,
		ChatID:     m.ChatID,
		Role:       conversation.Role(m.Role),
		Content:    m.Content,
		Timestamp:  m.Timestamp,
	}
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &entry.Metadata)
	}
	return entry
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Save(ctx context.Context, msg *conversation.StoredMessage) error {
	model := MessageModel{
		ID:         msg.ID,
		InstanceID: msg.InstanceID,
		ChatID:     msg.ChatID,
		FromMe:     msg.FromMe,
		Timestamp:  msg.Timestamp,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *MessageRepository) ListByChat(ctx context.Context, instanceID, chatID string, limit int) ([]*conversation.StoredMessage, error) {
	var models []MessageModel
	query := r.db.WithContext(ctx).
		Where("instance_id = ? AND chat_id = ?", instanceID, chatID).
		Order("timestamp desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	items := make([]*conversation.StoredMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		m := models[i]
		items = append(items, &conversation.StoredMessage{
			ID:         m.ID,
			InstanceID: m.InstanceID,
			ChatID:     m.ChatID,
			FromMe:     m.FromMe,
			Timestamp:  m.Timestamp,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
		})
	}
	return items, nil
}
