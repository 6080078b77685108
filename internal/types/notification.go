package types

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the durable copy of a pushed notification. The bus only
// carries the push copy; list and unread-count reads go through plain HTTP
// against this table.
type Notification struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	Category    string    `gorm:"not null;column:category" json:"category"`
	Priority    string    `gorm:"not null;default:'normal';column:priority" json:"priority"`
	Title       string    `gorm:"not null;column:title" json:"title"`
	Message     string    `gorm:"column:message" json:"message"`
	Read        bool      `gorm:"not null;default:false;index;column:read" json:"read"`
	ActionURL   string    `gorm:"column:action_url" json:"action_url,omitempty"`
	ActionLabel string    `gorm:"column:action_label" json:"action_label,omitempty"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Notification) TableName() string {
	return "notification"
}
