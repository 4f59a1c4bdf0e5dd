package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

// LoopSettingsModel is the database DTO for per-instance outreach settings.
type LoopSettingsModel struct {
	InstanceID      string `gorm:"primaryKey;type:varchar(255)"`
	AutoRun         bool
	IAAuto          bool   `gorm:"column:ia_auto"`
	DailyLimit      int
	MessageTemplate string `gorm:"type:text"`
	WindowStart     string `gorm:"type:varchar(5)"`
	WindowEnd       string `gorm:"type:varchar(5)"`
	LastRunAt       *time.Time
	LoopStatus      string `gorm:"type:varchar(20)"`
	UpdatedAt       time.Time
}

func (LoopSettingsModel) TableName() string {
	return "instance_loop_settings"
}

// LoopContactModel is the database DTO for the pending-contact queue.
type LoopContactModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	InstanceID string `gorm:"index;type:varchar(255)"`
	Name       string `gorm:"type:varchar(255)"`
	Phone      string `gorm:"type:varchar(50)"`
	Niche      string `gorm:"type:varchar(255)"`
	Source     string `gorm:"type:varchar(20)"`
	Status     string `gorm:"type:varchar(20)"`
	CreatedAt  time.Time
}

func (LoopContactModel) TableName() string {
	return "instance_loop_queue"
}

// LoopTotalModel is the database DTO for the per-phone send ledger.
type LoopTotalModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	InstanceID  string `gorm:"uniqueIndex:idx_loop_totals_instance_phone;type:varchar(255)"`
	Phone       string `gorm:"uniqueIndex:idx_loop_totals_instance_phone;type:varchar(50)"`
	Name        string `gorm:"type:varchar(255)"`
	Niche       string `gorm:"type:varchar(255)"`
	MessageSent bool   `gorm:"column:mensagem_enviada"`
	Status      string `gorm:"type:varchar(50)"`
	UpdatedAt   time.Time
}

func (LoopTotalModel) TableName() string {
	return "instance_loop_totals"
}

// LoopEventModel is the database DTO for the durable loop event log.
type LoopEventModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	InstanceID string `gorm:"index;type:varchar(255)"`
	EventType  string `gorm:"type:varchar(50)"`
	Payload    string `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

func (LoopEventModel) TableName() string {
	return "instance_loop_events"
}

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Find(ctx context.Context, instanceID string) (*outreach.Settings, error) {
	var model LoopSettingsModel
	if err := r.db.WithContext(ctx).Where("instance_id = ?", instanceID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return settingsToDomain(model), nil
}

func (r *SettingsRepository) Ensure(ctx context.Context, instanceID string) (*outreach.Settings, error) {
	model := LoopSettingsModel{
		InstanceID:  instanceID,
		DailyLimit:  outreach.DefaultDailyLimit,
		WindowStart: "08:00",
		WindowEnd:   "18:00",
		LoopStatus:  string(outreach.LoopIdle),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return nil, err
	}
	return r.Find(ctx, instanceID)
}

func (r *SettingsRepository) Update(ctx context.Context, s *outreach.Settings) error {
	model := settingsToModel(s)
	model.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *SettingsRepository) SetLoopStatus(ctx context.Context, instanceID string, status outreach.LoopStatus) error {
	return r.db.WithContext(ctx).Model(&LoopSettingsModel{}).
		Where("instance_id = ?", instanceID).
		Updates(map[string]any{
			"loop_status": string(status),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *SettingsRepository) FinishRun(ctx context.Context, instanceID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&LoopSettingsModel{}).
		Where("instance_id = ?", instanceID).
		Updates(map[string]any{
			"loop_status": string(outreach.LoopIdle),
			"last_run_at": now,
			"updated_at":  now,
		}).Error
}

func (r *SettingsRepository) ListAutoRun(ctx context.Context) ([]*outreach.Settings, error) {
	var models []LoopSettingsModel
	if err := r.db.WithContext(ctx).Where("auto_run = ?", true).Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]*outreach.Settings, 0, len(models))
	for _, model := range models {
		items = append(items, settingsToDomain(model))
	}
	return items, nil
}

func settingsToDomain(m LoopSettingsModel) *outreach.Settings {
	return &outreach.Settings{
		InstanceID:      m.InstanceID,
		AutoRun:         m.AutoRun,
		IAAuto:          m.IAAuto,
		DailyLimit:      m.DailyLimit,
		MessageTemplate: m.MessageTemplate,
		WindowStart:     m.WindowStart,
		WindowEnd:       m.WindowEnd,
		LastRunAt:       m.LastRunAt,
		LoopStatus:      outreach.LoopStatus(m.LoopStatus),
		UpdatedAt:       m.UpdatedAt,
	}
}

func settingsToModel(d *outreach.Settings) LoopSettingsModel {
	return LoopSettingsModel{
		InstanceID:      d.InstanceID,
		AutoRun:         d.AutoRun,
		IAAuto:          d.IAAuto,
		DailyLimit:      d.DailyLimit,
		MessageTemplate: d.MessageTemplate,
		WindowStart:     d.WindowStart,
		WindowEnd:       d.WindowEnd,
		LastRunAt:       d.LastRunAt,
		LoopStatus:      string(d.LoopStatus),
		UpdatedAt:       d.UpdatedAt,
	}
}

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Add(ctx context.Context, c *outreach.Contact) error {
	model := contactToModel(c)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	c.ID = model.ID
	return nil
}

func (r *QueueRepository) NextPending(ctx context.Context, instanceID string) (*outreach.Contact, error) {
	var model LoopContactModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND status = ?", instanceID, string(outreach.ContactPending)).
		Order("created_at asc, id asc").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return contactToDomain(model), nil
}

func (r *QueueRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&LoopContactModel{}).Error
}

func (r *QueueRepository) CountPending(ctx context.Context, instanceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&LoopContactModel{}).
		Where("instance_id = ? AND status = ?", instanceID, string(outreach.ContactPending)).
		Count(&count).Error
	return count, err
}

func (r *QueueRepository) HasPendingPhone(ctx context.Context, instanceID, phone string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&LoopContactModel{}).
		Where("instance_id = ? AND phone = ? AND status = ?", instanceID, phone, string(outreach.ContactPending)).
		Count(&count).Error
	return count > 0, err
}

func (r *QueueRepository) List(ctx context.Context, instanceID, search string, limit, offset int) ([]*outreach.Contact, int64, error) {
	query := r.db.WithContext(ctx).Model(&LoopContactModel{}).Where("instance_id = ?", instanceID)
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR phone LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []LoopContactModel
	if err := query.Order("created_at asc, id asc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*outreach.Contact, 0, len(models))
	for _, model := range models {
		items = append(items, contactToDomain(model))
	}
	return items, total, nil
}

func contactToDomain(m LoopContactModel) *outreach.Contact {
	return &outreach.Contact{
		ID:         m.ID,
		InstanceID: m.InstanceID,
		Name:       m.Name,
		Phone:      m.Phone,
		Niche:      m.Niche,
		Source:     outreach.ContactSource(m.Source),
		Status:     outreach.ContactStatus(m.Status),
		CreatedAt:  m.CreatedAt,
	}
}

func contactToModel(d *outreach.Contact) LoopContactModel {
	return LoopContactModel{
		ID:         d.ID,
		InstanceID: d.InstanceID,
		Name:       d.Name,
		Phone:      d.Phone,
		Niche:      d.Niche,
		Source:     string(d.Source),
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt,
	}
}

type TotalsRepository struct {
	db *gorm.DB
}

func NewTotalsRepository(db *gorm.DB) *TotalsRepository {
	return &TotalsRepository{db: db}
}

func (r *TotalsRepository) Upsert(ctx context.Context, entry *outreach.Total) error {
	model := LoopTotalModel{
		InstanceID:  entry.InstanceID,
		Phone:       entry.Phone,
		Name:        entry.Name,
		Niche:       entry.Niche,
		MessageSent: entry.MessageSent,
		Status:      entry.Status,
		UpdatedAt:   time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}, {Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "niche", "mensagem_enviada", "status", "updated_at"}),
	}).Create(&model).Error
}

func (r *TotalsRepository) Find(ctx context.Context, instanceID, phone string) (*outreach.Total, error) {
	var model LoopTotalModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND phone = ?", instanceID, phone).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return totalToDomain(model), nil
}

func (r *TotalsRepository) SentToday(ctx context.Context, instanceID string) (int64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var count int64
	err := r.db.WithContext(ctx).Model(&LoopTotalModel{}).
		Where("instance_id = ? AND mensagem_enviada = ? AND updated_at >= ?", instanceID, true, midnight).
		Count(&count).Error
	return count, err
}

func (r *TotalsRepository) List(ctx context.Context, instanceID, search string, limit, offset int) ([]*outreach.Total, int64, error) {
	query := r.db.WithContext(ctx).Model(&LoopTotalModel{}).Where("instance_id = ?", instanceID)
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(name) LIKE LOWER(?) OR phone LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []LoopTotalModel
	if err := query.Order("updated_at desc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*outreach.Total, 0, len(models))
	for _, model := range models {
		items = append(items, totalToDomain(model))
	}
	return items, total, nil
}

func totalToDomain(m LoopTotalModel) *outreach.Total {
	return &outreach.Total{
		ID:          m.ID,
		InstanceID:  m.InstanceID,
		Phone:       m.Phone,
		Name:        m.Name,
		Niche:       m.Niche,
		MessageSent: m.MessageSent,
		Status:      m.Status,
		UpdatedAt:   m.UpdatedAt,
	}
}

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, e *outreach.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	model := LoopEventModel{
		InstanceID: e.InstanceID,
		EventType:  e.Type,
		Payload:    string(payload),
		CreatedAt:  e.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	e.ID = model.ID
	return nil
}

// Recent loads the newest events and returns them oldest first so a
// stream replay reads chronologically.
func (r *EventRepository) Recent(ctx context.Context, instanceID string, limit int) ([]*outreach.Event, error) {
	var models []LoopEventModel
	query := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	items := make([]*outreach.Event, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		m := models[i]
		event := &outreach.Event{
			ID:         m.ID,
			InstanceID: m.InstanceID,
			Type:       m.EventType,
			CreatedAt:  m.CreatedAt,
		}
		if m.Payload != "" {
			_ = json.Unmarshal([]byte(m.Payload), &event.Payload)
		}
		items = append(items, event)
	}
	return items, nil
}
