package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/broadbill/broadbill/internal/clock"
	plandomain "github.com/broadbill/broadbill/internal/plan"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("subscription_not_found")
	ErrPlanNotFound       = errors.New("plan_not_found")
	ErrCustomerNotFound   = errors.New("customer_not_found")
	ErrInvalidStatus      = errors.New("invalid_subscription_status")
	ErrInvalidStartDate   = errors.New("invalid_start_date")
	ErrSubscriptionInUse  = errors.New("subscription_has_invoices")
	ErrMissingActivatedBy = errors.New("missing_activated_by")
)

// CreateSubscriptionRequest enrolls a customer in a plan.
type CreateSubscriptionRequest struct {
	CustomerID  snowflake.ID
	PlanID      snowflake.ID
	StartDate   time.Time
	Status      Status
	ActivatedBy snowflake.ID
}

// UpdateSubscriptionRequest is an explicit partial update; nil fields
// are left untouched. Changing the plan re-snapshots the price.
type UpdateSubscriptionRequest struct {
	PlanID                *snowflake.ID
	StartDate             *time.Time
	EndDate               *time.Time
	Status                *Status
	BillingCycleStartDate *time.Time
	NextBillingDate       *time.Time
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Create enrolls a customer: the plan price is snapshotted and the
// first billing cycle boundary derived from plan.duration_days.
func (s *Service) Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error) {
	if req.StartDate.IsZero() {
		return Subscription{}, ErrInvalidStartDate
	}
	if req.ActivatedBy == 0 {
		return Subscription{}, ErrMissingActivatedBy
	}
	status := req.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return Subscription{}, ErrInvalidStatus
	}

	var created Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customerCount int64
		if err := tx.Table("customers").Where("id = ?", req.CustomerID).Count(&customerCount).Error; err != nil {
			return err
		}
		if customerCount == 0 {
			return ErrCustomerNotFound
		}

		var p plandomain.Plan
		if err := tx.First(&p, "id = ?", req.PlanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlanNotFound
			}
			return err
		}

		now := s.clock.Now()
		cycleEnd := req.StartDate.AddDate(0, 0, p.DurationDays)
		created = Subscription{
			ID:                    s.genID.Generate(),
			CustomerID:            req.CustomerID,
			PlanID:                req.PlanID,
			Status:                status,
			StartDate:             req.StartDate,
			EndDate:               cycleEnd,
			PriceAtSubscription:   p.Price,
			BillingCycleStartDate: req.StartDate,
			NextBillingDate:       cycleEnd,
			ActivatedBy:           &req.ActivatedBy,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return Subscription{}, err
	}
	return created, nil
}

// ListByCustomer returns a customer's subscriptions joined with plan
// details, newest start_date first.
func (s *Service) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]SubscriptionWithPlan, error) {
	var rows []SubscriptionWithPlan
	err := s.db.WithContext(ctx).Raw(
		`SELECT s.*, p.name AS plan_name, p.duration_days AS plan_duration_days,
		        p.price AS current_plan_price,
		        COALESCE(u.username, '') AS activated_by_username
		 FROM subscriptions s
		 JOIN plans p ON s.plan_id = p.id
		 LEFT JOIN users u ON s.activated_by = u.id
		 WHERE s.customer_id = ?
		 ORDER BY s.start_date DESC`,
		customerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (SubscriptionWithPlan, error) {
	var row SubscriptionWithPlan
	err := s.db.WithContext(ctx).Raw(
		`SELECT s.*, p.name AS plan_name, p.duration_days AS plan_duration_days,
		        p.price AS current_plan_price,
		        COALESCE(u.username, '') AS activated_by_username
		 FROM subscriptions s
		 JOIN plans p ON s.plan_id = p.id
		 LEFT JOIN users u ON s.activated_by = u.id
		 WHERE s.id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return SubscriptionWithPlan{}, err
	}
	if row.ID == 0 {
		return SubscriptionWithPlan{}, ErrNotFound
	}
	return row, nil
}

// Update applies a whitelisted partial update. A plan change reads the
// new plan inside the same transaction and re-snapshots its price.
func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdateSubscriptionRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{}
		if req.PlanID != nil {
			var p plandomain.Plan
			if err := tx.First(&p, "id = ?", *req.PlanID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrPlanNotFound
				}
				return err
			}
			updates["plan_id"] = *req.PlanID
			updates["price_at_subscription"] = p.Price
		}
		if req.StartDate != nil {
			updates["start_date"] = *req.StartDate
		}
		if req.EndDate != nil {
			updates["end_date"] = *req.EndDate
		}
		if req.Status != nil {
			if !req.Status.Valid() {
				return ErrInvalidStatus
			}
			updates["status"] = *req.Status
		}
		if req.BillingCycleStartDate != nil {
			updates["billing_cycle_start_date"] = *req.BillingCycleStartDate
		}
		if req.NextBillingDate != nil {
			updates["next_billing_date"] = *req.NextBillingDate
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = s.clock.Now()

		result := tx.Model(&Subscription{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes a subscription unless invoices reference it.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoiceCount int64
		if err := tx.Table("invoices").Where("subscription_id = ?", id).Count(&invoiceCount).Error; err != nil {
			return err
		}
		if invoiceCount > 0 {
			return ErrSubscriptionInUse
		}
		result := tx.Delete(&Subscription{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
