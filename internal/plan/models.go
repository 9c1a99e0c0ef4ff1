package plan

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan is a pricing template for internet service. Price and
// duration_days drive the billing cycle; speed and data caps are
// descriptive.
type Plan struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	PlanCode     *string      `gorm:"type:text;uniqueIndex" json:"plan_code,omitempty"`
	SpeedMbps    int          `gorm:"not null" json:"speed_mbps"`
	DataLimitGB  *int         `json:"data_limit_gb,omitempty"`
	Price        int64        `gorm:"not null" json:"price"`
	DurationDays int          `gorm:"not null" json:"duration_days"`
	IsActive     bool         `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }
