package payment

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionStatus tracks a payment attempt through its lifecycle.
type TransactionStatus string

const (
	StatusPendingApproval TransactionStatus = "pending_approval"
	StatusApproved        TransactionStatus = "approved"
	StatusRejected        TransactionStatus = "rejected"
	StatusSuccessful      TransactionStatus = "successful"
	StatusFailed          TransactionStatus = "failed"
)

// Transaction is one payment attempt against an invoice. Manual
// payments move pending_approval -> approved/rejected; gateway
// payments land directly as successful once the signature verifies.
type Transaction struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID            snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	Amount               int64             `gorm:"not null" json:"amount"`
	Status               TransactionStatus `gorm:"type:text;not null" json:"status"`
	PaymentMethodID      *snowflake.ID     `json:"payment_method_id,omitempty"`
	ReferenceNumber      *string           `gorm:"type:text" json:"reference_number,omitempty"`
	TransactionDate      *time.Time        `json:"transaction_date,omitempty"`
	TransactionIDGateway *string           `gorm:"type:text" json:"transaction_id_gateway,omitempty"`
	RecordedBy           *snowflake.ID     `json:"recorded_by,omitempty"`
	ApprovedBy           *snowflake.ID     `json:"approved_by,omitempty"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

// TransactionNote is one immutable audit line on a transaction.
// Notes are append-only and render as a single text trail ordered by
// insertion.
type TransactionNote struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	TransactionID snowflake.ID  `gorm:"not null;index" json:"transaction_id"`
	ActorID       *snowflake.ID `json:"actor_id,omitempty"`
	Action        string        `gorm:"type:text;not null" json:"action"`
	Note          string        `gorm:"type:text;not null" json:"note"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TransactionNote) TableName() string { return "transaction_notes" }

// RenderNotes flattens an ordered note trail into the legacy
// newline-joined text form used by the API.
func RenderNotes(notes []TransactionNote) string {
	if len(notes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, n.Note)
	}
	return strings.Join(parts, "\n")
}

// PendingApproval is the review-queue read model: everything an
// approver needs to judge a manual payment at a glance.
type PendingApproval struct {
	TransactionID     snowflake.ID `gorm:"column:transaction_id" json:"transaction_id"`
	InvoiceID         snowflake.ID `gorm:"column:invoice_id" json:"invoice_id"`
	Amount            int64        `gorm:"column:amount" json:"amount"`
	ReferenceNumber   *string      `gorm:"column:reference_number" json:"reference_number,omitempty"`
	TransactionDate   *time.Time   `gorm:"column:transaction_date" json:"transaction_date,omitempty"`
	CreatedAt         time.Time    `gorm:"column:created_at" json:"created_at"`
	CustomerID        snowflake.ID `gorm:"column:customer_id" json:"customer_id"`
	CustomerName      string       `gorm:"column:customer_name" json:"customer_name"`
	InvoiceAmount     int64        `gorm:"column:invoice_amount" json:"invoice_amount"`
	InvoiceAmountDue  int64        `gorm:"column:invoice_amount_due" json:"invoice_amount_due"`
	PaymentMethodName string       `gorm:"column:payment_method_name" json:"payment_method_name"`
	RecordedByName    string       `gorm:"column:recorded_by_name" json:"recorded_by_name"`
	ApprovedByName    *string      `gorm:"column:approved_by_name" json:"approved_by_name,omitempty"`
	Notes             string       `gorm:"-" json:"notes"`
}
