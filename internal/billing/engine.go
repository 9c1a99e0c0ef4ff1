package billing

import (
	"context"
	"time"

	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/internal/config"
	"github.com/broadbill/broadbill/internal/ledger"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// renewalCandidate is one active subscription whose cycle ends inside
// the lookahead window and has no unpaid invoice yet.
type renewalCandidate struct {
	SubscriptionID      snowflake.ID `gorm:"column:subscription_id"`
	CustomerID          snowflake.ID `gorm:"column:customer_id"`
	EndDate             time.Time    `gorm:"column:end_date"`
	PriceAtSubscription int64        `gorm:"column:price_at_subscription"`
	DurationDays        int          `gorm:"column:duration_days"`
}

// RenewalResult summarizes one engine run.
type RenewalResult struct {
	Candidates int
	Generated  int
	Failed     int
}

// Engine generates renewal invoices for subscriptions approaching
// their cycle boundary. Each candidate is processed in its own
// transaction so one bad row never blocks the rest of the batch.
type Engine struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	ledger    *ledger.Service
	currency  string
	lookahead int
}

type EngineParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Ledger *ledger.Service
	Config config.Config
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:        p.DB,
		log:       p.Log.Named("billing.engine"),
		genID:     p.GenID,
		clock:     p.Clock,
		ledger:    p.Ledger,
		currency:  p.Config.Gateway.Currency,
		lookahead: p.Config.Renewal.LookaheadDays,
	}
}

// GenerateRenewalInvoices issues one unpaid invoice per active
// subscription whose end_date falls within the lookahead window,
// then advances that subscription's cycle by its plan duration.
// The unpaid-invoice guard makes reruns idempotent: a subscription
// keeps its untouched invoice until someone pays against it. A
// partially paid invoice does not block the next cycle.
func (e *Engine) GenerateRenewalInvoices(ctx context.Context) (RenewalResult, error) {
	now := e.clock.Now()
	cutoff := now.AddDate(0, 0, e.lookahead)

	var candidates []renewalCandidate
	err := e.db.WithContext(ctx).Raw(
		`SELECT s.id AS subscription_id, s.customer_id, s.end_date,
		        s.price_at_subscription, p.duration_days
		 FROM subscriptions s
		 JOIN plans p ON s.plan_id = p.id
		 WHERE s.status = 'active'
		   AND s.end_date <= ?
		   AND NOT EXISTS (
		       SELECT 1 FROM invoices i
		       WHERE i.subscription_id = s.id
		         AND i.status = 'unpaid'
		   )
		 ORDER BY s.end_date`,
		cutoff,
	).Scan(&candidates).Error
	if err != nil {
		return RenewalResult{}, err
	}

	result := RenewalResult{Candidates: len(candidates)}
	for _, c := range candidates {
		if err := e.renewOne(ctx, c, now); err != nil {
			result.Failed++
			e.log.Error("renewal failed",
				zap.Int64("subscription_id", int64(c.SubscriptionID)),
				zap.Error(err))
			continue
		}
		result.Generated++
	}

	if result.Candidates > 0 {
		e.log.Info("renewal run finished",
			zap.Int("candidates", result.Candidates),
			zap.Int("generated", result.Generated),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// renewOne issues the invoice, posts it to the ledger, and advances
// the subscription cycle atomically.
func (e *Engine) renewOne(ctx context.Context, c renewalCandidate, now time.Time) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice := Invoice{
			ID:             e.genID.Generate(),
			SubscriptionID: c.SubscriptionID,
			CustomerID:     c.CustomerID,
			Amount:         c.PriceAtSubscription,
			AmountDue:      c.PriceAtSubscription,
			Status:         StatusUnpaid,
			IssueDate:      now,
			DueDate:        c.EndDate,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}

		if err := e.postInvoiceIssued(ctx, tx, invoice); err != nil {
			return err
		}

		// The next cycle continues from the current boundary, not
		// from the run date, so early runs never shift due dates.
		newEnd := c.EndDate.AddDate(0, 0, c.DurationDays)
		return tx.Table("subscriptions").
			Where("id = ?", c.SubscriptionID).
			Updates(map[string]any{
				"end_date":          newEnd,
				"next_billing_date": newEnd,
				"updated_at":        now,
			}).Error
	})
}

func (e *Engine) postInvoiceIssued(ctx context.Context, tx *gorm.DB, invoice Invoice) error {
	arID, err := e.ledger.EnsureAccountTx(ctx, tx, ledger.AccountCodeAccountsReceivable, "Accounts Receivable")
	if err != nil {
		return err
	}
	revenueID, err := e.ledger.EnsureAccountTx(ctx, tx, ledger.AccountCodeRevenue, "Subscription Revenue")
	if err != nil {
		return err
	}
	return e.ledger.CreateEntryTx(ctx, tx,
		ledger.SourceTypeInvoice, invoice.ID, e.currency, invoice.IssueDate,
		[]ledger.EntryLine{
			{AccountID: arID, Direction: ledger.DirectionDebit, Amount: invoice.Amount},
			{AccountID: revenueID, Direction: ledger.DirectionCredit, Amount: invoice.Amount},
		})
}
