package subscription

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status of a subscription's lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Subscription enrolls a customer in a plan. EndDate always marks the
// last billing-cycle boundary and doubles as the next due date;
// PriceAtSubscription snapshots the plan price at enrollment so later
// plan price changes never affect open cycles.
type Subscription struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID            snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	PlanID                snowflake.ID  `gorm:"not null;index" json:"plan_id"`
	Status                Status        `gorm:"type:text;not null;default:active" json:"status"`
	StartDate             time.Time     `gorm:"not null" json:"start_date"`
	EndDate               time.Time     `gorm:"not null" json:"end_date"`
	PriceAtSubscription   int64         `gorm:"not null" json:"price_at_subscription"`
	BillingCycleStartDate time.Time     `gorm:"not null" json:"billing_cycle_start_date"`
	NextBillingDate       time.Time     `gorm:"not null" json:"next_billing_date"`
	ActivatedBy           *snowflake.ID `json:"activated_by,omitempty"`
	CreatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionWithPlan is the read model for listing endpoints.
type SubscriptionWithPlan struct {
	Subscription
	PlanName            string `json:"plan_name"`
	PlanDurationDays    int    `json:"plan_duration_days"`
	CurrentPlanPrice    int64  `json:"current_plan_price"`
	ActivatedByUsername string `json:"activated_by_username,omitempty"`
}
