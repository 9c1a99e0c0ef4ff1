package reporting

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Overview is the back-office landing snapshot.
type Overview struct {
	ActiveSubscriptions  int64 `json:"active_subscriptions"`
	OpenInvoices         int64 `json:"open_invoices"`
	OutstandingBalance   int64 `json:"outstanding_balance"`
	PendingApprovals     int64 `json:"pending_approvals"`
	PendingApprovalValue int64 `json:"pending_approval_value"`
	CollectedAllTime     int64 `json:"collected_all_time"`
}

// ZoneBalance aggregates outstanding balances by service zone.
type ZoneBalance struct {
	ZoneID      *int64 `gorm:"column:zone_id" json:"zone_id,omitempty"`
	ZoneName    string `gorm:"column:zone_name" json:"zone_name"`
	Customers   int64  `gorm:"column:customers" json:"customers"`
	Outstanding int64  `gorm:"column:outstanding" json:"outstanding"`
}

// Service answers read-only billing aggregates for dashboards.
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
		log: p.Log.Named("reporting.service"),
	}
}

// Overview computes the landing-page aggregates in one round trip per
// figure. Everything is derived, so stale reads are acceptable.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var out Overview
	conn := s.db.WithContext(ctx)

	if err := conn.Table("subscriptions").
		Where("status = ?", "active").
		Count(&out.ActiveSubscriptions).Error; err != nil {
		return Overview{}, err
	}

	row := struct {
		OpenInvoices       int64
		OutstandingBalance int64
	}{}
	if err := conn.Raw(
		`SELECT COUNT(*) AS open_invoices,
		        COALESCE(SUM(amount_due), 0) AS outstanding_balance
		 FROM invoices
		 WHERE status IN ('unpaid', 'partially_paid')`,
	).Scan(&row).Error; err != nil {
		return Overview{}, err
	}
	out.OpenInvoices = row.OpenInvoices
	out.OutstandingBalance = row.OutstandingBalance

	pending := struct {
		Count int64
		Value int64
	}{}
	if err := conn.Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS value
		 FROM transactions
		 WHERE status = 'pending_approval'`,
	).Scan(&pending).Error; err != nil {
		return Overview{}, err
	}
	out.PendingApprovals = pending.Count
	out.PendingApprovalValue = pending.Value

	if err := conn.Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM transactions
		 WHERE status IN ('approved', 'successful')`,
	).Scan(&out.CollectedAllTime).Error; err != nil {
		return Overview{}, err
	}

	return out, nil
}

// OutstandingByZone breaks open balances down by service zone.
// Customers without a zone land in a single unzoned bucket.
func (s *Service) OutstandingByZone(ctx context.Context) ([]ZoneBalance, error) {
	var rows []ZoneBalance
	err := s.db.WithContext(ctx).Raw(
		`SELECT c.zone_id, COALESCE(z.name, 'Unzoned') AS zone_name,
		        COUNT(DISTINCT c.id) AS customers,
		        COALESCE(SUM(i.amount_due), 0) AS outstanding
		 FROM invoices i
		 JOIN customers c ON i.customer_id = c.id
		 LEFT JOIN zones z ON c.zone_id = z.id
		 WHERE i.status IN ('unpaid', 'partially_paid')
		 GROUP BY c.zone_id, z.name
		 ORDER BY outstanding DESC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
