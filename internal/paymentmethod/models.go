package paymentmethod

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentMethod configures an offline payment channel. Transactions
// recorded against a method with IsApprovalRequired start in
// pending_approval instead of settling immediately.
type PaymentMethod struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	Name               string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	MethodType         string       `gorm:"type:text;not null;default:offline;column:method_type" json:"method_type"`
	IsActive           bool         `gorm:"not null" json:"is_active"`
	IsApprovalRequired bool         `gorm:"not null" json:"is_approval_required"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PaymentMethod) TableName() string { return "payment_methods" }
