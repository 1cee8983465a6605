package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// InAppNotification is the durable copy of a delivered notification. The
// websocket push and the email are fire-and-forget; this row is what the
// bell icon lists.
type InAppNotification struct {
	ID                   uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	RecipientID          uuid.UUID      `json:"recipient_id" gorm:"type:uuid;not null;index"`
	SenderEmployeeNumber string         `json:"sender_employee_number"`
	Title                string         `json:"title" gorm:"not null"`
	Content              string         `json:"content" gorm:"type:text"`
	LinkURL              string         `json:"link_url"`
	Metadata             datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	IsRead               bool           `json:"is_read" gorm:"default:false;index"`
	ReadAt               *time.Time     `json:"read_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (InAppNotification) TableName() string { return "in_app_notifications" }
