package user

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a staff account operating the back office.
type User struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	Username     string        `gorm:"type:text;not null;uniqueIndex" json:"username"`
	Email        string        `gorm:"type:text" json:"email,omitempty"`
	PasswordHash string        `gorm:"type:text;not null" json:"-"`
	RoleID       *snowflake.ID `gorm:"index" json:"role_id,omitempty"`
	IsActive     bool          `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
