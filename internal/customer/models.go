package customer

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is a subscriber account billed by the platform.
type Customer struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	FullName    string        `gorm:"type:text;not null" json:"full_name"`
	Email       string        `gorm:"type:text" json:"email,omitempty"`
	PhoneNumber string        `gorm:"type:text;not null" json:"phone_number"`
	Address     string        `gorm:"type:text;not null" json:"address"`
	ZoneID      *snowflake.ID `gorm:"index" json:"zone_id,omitempty"`
	CreatedBy   *snowflake.ID `json:"created_by,omitempty"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
