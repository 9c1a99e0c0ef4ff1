package billing

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvoiceNotFound = errors.New("invoice_not_found")

// Service answers invoice read queries. All settlement writes go
// through the payment processor, never through this service.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("billing.service"),
	}
}

// ListByCustomer returns a customer's invoices joined with the plan
// that produced them, newest due date first.
func (s *Service) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]InvoiceWithPlan, error) {
	var rows []InvoiceWithPlan
	err := s.db.WithContext(ctx).Raw(
		`SELECT i.*, p.name AS plan_name
		 FROM invoices i
		 JOIN subscriptions s ON i.subscription_id = s.id
		 JOIN plans p ON s.plan_id = p.id
		 WHERE i.customer_id = ?
		 ORDER BY i.due_date DESC`,
		customerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (Invoice, error) {
	var invoice Invoice
	err := s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return invoice, nil
}
