package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
)

// InstanceModel is the database DTO with Gorm tags.
type InstanceModel struct {
	ID          string `gorm:"primaryKey;type:varchar(255)"`
	UserID      int64  `gorm:"index"`
	Name        string `gorm:"type:varchar(255)"`
	Token       string `gorm:"type:varchar(255)"`
	Host        string `gorm:"type:varchar(255)"`
	Status      string `gorm:"type:varchar(50)"`
	AdminStatus string `gorm:"type:varchar(50)"`
	PhoneNumber string `gorm:"type:varchar(50)"`
	PhoneName   string `gorm:"type:varchar(255)"`
	Prompt      string `gorm:"type:text"`
	AdminNotes  string `gorm:"type:text"`

	RedirectPhone string `gorm:"type:varchar(50)"`
	ConfiguredBy  string `gorm:"type:varchar(255)"`
	ConfiguredAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (InstanceModel) TableName() string {
	return "instances"
}

type InstanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*instance.Instance, error) {
	var model InstanceModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return instanceToDomain(model), nil
}

func (r *InstanceRepository) FindByUserID(ctx context.Context, userID int64) ([]*instance.Instance, error) {
	var models []InstanceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]*instance.Instance, 0, len(models))
	for _, model := range models {
		items = append(items, instanceToDomain(model))
	}
	return items, nil
}

func (r *InstanceRepository) ListAll(ctx context.Context) ([]*instance.Instance, error) {
	var models []InstanceModel
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]*instance.Instance, 0, len(models))
	for _, model := range models {
		items = append(items, instanceToDomain(model))
	}
	return items, nil
}

func (r *InstanceRepository) Save(ctx context.Context, entity *instance.Instance) error {
	model := instanceToModel(entity)
	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *InstanceRepository) UpdateStatus(ctx context.Context, id string, status instance.Status) error {
	return r.db.WithContext(ctx).Model(&InstanceModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// Delete removes the instance together with its messages, memory,
// settings, queue, ledger and event rows in one transaction.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&MessageModel{},
			&MemoryModel{},
			&LoopSettingsModel{},
			&LoopContactModel{},
			&LoopTotalModel{},
			&LoopEventModel{},
		} {
			if err := tx.Where("instance_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&InstanceModel{}).Error
	})
}

// Mappers

func instanceToDomain(m InstanceModel) *instance.Instance {
	return &instance.Instance{
		ID:            m.ID,
		UserID:        m.UserID,
		Name:          m.Name,
		Token:         m.Token,
		Host:          m.Host,
		Status:        instance.Status(m.Status),
		AdminStatus:   instance.AdminStatus(m.AdminStatus),
		PhoneNumber:   m.PhoneNumber,
		PhoneName:     m.PhoneName,
		Prompt:        m.Prompt,
		AdminNotes:    m.AdminNotes,
		RedirectPhone: m.RedirectPhone,
		ConfiguredBy:  m.ConfiguredBy,
		ConfiguredAt:  m.ConfiguredAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func instanceToModel(d *instance.Instance) InstanceModel {
	return InstanceModel{
		ID:            d.ID,
		UserID:        d.UserID,
		Name:          d.Name,
		Token:         d.Token,
		Host:          d.Host,
		Status:        string(d.Status),
		AdminStatus:   string(d.AdminStatus),
		PhoneNumber:   d.PhoneNumber,
		PhoneName:     d.PhoneName,
		Prompt:        d.Prompt,
		AdminNotes:    d.AdminNotes,
		RedirectPhone: d.RedirectPhone,
		ConfiguredBy:  d.ConfiguredBy,
		ConfiguredAt:  d.ConfiguredAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
