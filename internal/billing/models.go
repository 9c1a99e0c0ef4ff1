package billing

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus tracks settlement progress. amount_due is the single
// source of truth: paid means amount_due reached zero.
type InvoiceStatus string

const (
	StatusUnpaid        InvoiceStatus = "unpaid"
	StatusPartiallyPaid InvoiceStatus = "partially_paid"
	StatusPaid          InvoiceStatus = "paid"
)

// Invoice bills one subscription cycle. Amount is frozen at issue;
// AmountDue decreases as approved payments settle against it.
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID  `gorm:"not null;index" json:"subscription_id"`
	CustomerID     snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Amount         int64         `gorm:"not null" json:"amount"`
	AmountDue      int64         `gorm:"not null" json:"amount_due"`
	Status         InvoiceStatus `gorm:"type:text;not null;default:unpaid" json:"status"`
	IssueDate      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"issue_date"`
	DueDate        time.Time     `gorm:"not null" json:"due_date"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Open reports whether the invoice still carries a balance.
func (i Invoice) Open() bool {
	return i.Status == StatusUnpaid || i.Status == StatusPartiallyPaid
}

// InvoiceWithPlan is the customer-facing read model.
type InvoiceWithPlan struct {
	Invoice
	PlanName string `json:"plan_name"`
}
