package instance

import (
	"errors"
	"strings"
	"time"
)

// Status represents the WhatsApp connection state reported by the gateway.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// AdminStatus represents the provisioning review state controlled by operators.
type AdminStatus string

const (
	AdminPendingConfig AdminStatus = "pending_config"
	AdminConfigured    AdminStatus = "configured"
	AdminActive        AdminStatus = "active"
	AdminSuspended     AdminStatus = "suspended"
)

var (
	ErrNotFound      = errors.New("instance not found")
	ErrNotConfigured = errors.New("instance not configured for automation")
)

// Instance is the core tenant entity. One row per provisioned WhatsApp line.
type Instance struct {
	ID          string      `json:"id"`
	UserID      int64       `json:"user_id,string"`
	Name        string      `json:"name"`
	Token       string      `json:"-"`
	Host        string      `json:"host"`
	Status      Status      `json:"status"`
	AdminStatus AdminStatus `json:"admin_status"`
	PhoneNumber string      `json:"phone_number"`
	PhoneName   string      `json:"phone_name"`
	Prompt      string      `json:"-"`
	AdminNotes  string      `json:"admin_notes,omitempty"`

	// RedirectPhone receives handoff notifications for this tenant.
	RedirectPhone string `json:"redirect_phone,omitempty"`

	ConfiguredBy string     `json:"configured_by,omitempty"`
	ConfiguredAt *time.Time `json:"configured_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanProcess reports whether inbound messages may flow into the reply
// pipeline: the line must be connected, reviewed by an operator and
// carry a non-empty system prompt.
func (i *Instance) CanProcess() bool {
	if i == nil {
		return false
	}
	if strings.TrimSpace(i.Prompt) == "" {
		return false
	}
	if i.Status != StatusConnected {
		return false
	}
	return i.AdminStatus == AdminConfigured || i.AdminStatus == AdminActive
}

// MarkConnected records the connection state reported by the gateway.
func (i *Instance) MarkConnected(number, name string) {
	i.Status = StatusConnected
	if number != "" {
		i.PhoneNumber = number
	}
	if name != "" {
		i.PhoneName = name
	}
	i.UpdatedAt = time.Now().UTC()
}

// MarkDisconnected records a dropped connection.
func (i *Instance) MarkDisconnected() {
	i.Status = StatusDisconnected
	i.UpdatedAt = time.Now().UTC()
}

// Configure applies the operator review payload.
func (i *Instance) Configure(prompt, notes, redirectPhone, reviewer string) {
	i.Prompt = prompt
	i.AdminNotes = notes
	i.RedirectPhone = redirectPhone
	i.AdminStatus = AdminConfigured
	i.ConfiguredBy = reviewer
	now := time.Now().UTC()
	i.ConfiguredAt = &now
	i.UpdatedAt = now
}
