package role

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role groups permissions granted to staff users.
type Role struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// Permission names a single capability checked by the access gate.
type Permission struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Permission) TableName() string { return "permissions" }

// RolePermission links a role to a permission.
type RolePermission struct {
	RoleID       snowflake.ID `gorm:"primaryKey" json:"role_id"`
	PermissionID snowflake.ID `gorm:"primaryKey" json:"permission_id"`
}

// TableName sets the database table name.
func (RolePermission) TableName() string { return "role_permissions" }
