package payment

import (
	"context"
	"errors"
	"strconv"
	"time"

	auditdomain "github.com/broadbill/broadbill/internal/audit/domain"
	"github.com/broadbill/broadbill/internal/auditcontext"
	"github.com/broadbill/broadbill/internal/billing"
	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/internal/config"
	"github.com/broadbill/broadbill/internal/ledger"
	"github.com/broadbill/broadbill/internal/payment/gateway"
	"github.com/broadbill/broadbill/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrTransactionNotFound   = errors.New("transaction_not_found")
	ErrMethodNotFound        = errors.New("payment_method_not_found")
	ErrMethodDisabled        = errors.New("payment_method_disabled")
	ErrInvalidAmount         = errors.New("invalid_payment_amount")
	ErrOverpayment           = errors.New("amount_exceeds_balance")
	ErrInvoiceAlreadyPaid    = errors.New("invoice_already_paid")
	ErrInvalidState          = errors.New("transaction_not_pending")
	ErrSignatureMismatch     = errors.New("gateway_signature_mismatch")
	ErrInternalInconsistency = errors.New("settlement_inconsistency")
)

// RecordManualPaymentRequest captures an offline payment taken at the
// counter or in the field.
type RecordManualPaymentRequest struct {
	InvoiceID       snowflake.ID
	Amount          int64
	PaymentMethodID snowflake.ID
	ReferenceNumber string
	TransactionDate *time.Time
	Note            string
}

// VerifyPaymentRequest carries the checkout callback fields.
type VerifyPaymentRequest struct {
	InvoiceID snowflake.ID
	OrderID   string
	PaymentID string
	Signature string
}

// Processor owns every write that moves money: manual recording, the
// approval queue, and gateway settlement. Invoice rows are only ever
// mutated here, under a row lock.
type Processor struct {
	database *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	ledger   *ledger.Service
	gateway  gateway.Client
	audit    auditdomain.Service
	currency string
	secret   string
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Ledger  *ledger.Service
	Gateway gateway.Client
	Audit   auditdomain.Service
	Config  config.Config
}

func NewProcessor(p Params) *Processor {
	return &Processor{
		database: p.DB,
		log:      p.Log.Named("payment.processor"),
		genID:    p.GenID,
		clock:    p.Clock,
		ledger:   p.Ledger,
		gateway:  p.Gateway,
		audit:    p.Audit,
		currency: p.Config.Gateway.Currency,
		secret:   p.Config.Gateway.KeySecret,
	}
}

// RecordManualPayment files an offline payment against an open
// invoice. Methods that require approval park the transaction in
// pending_approval; the rest settle immediately in the same
// transaction that records them.
func (p *Processor) RecordManualPayment(ctx context.Context, req RecordManualPaymentRequest) (Transaction, error) {
	if req.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	actor := actorID(ctx)
	now := p.clock.Now()

	var recorded Transaction
	err := p.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice billing.Invoice
		if err := db.LockForUpdate(tx).First(&invoice, "id = ?", req.InvoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}
		if !invoice.Open() {
			return ErrInvoiceAlreadyPaid
		}
		if req.Amount > invoice.AmountDue {
			return ErrOverpayment
		}

		var method struct {
			IsActive           bool
			IsApprovalRequired bool
		}
		result := tx.Table("payment_methods").
			Select("is_active", "is_approval_required").
			Where("id = ?", req.PaymentMethodID).
			Take(&method)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrMethodNotFound
			}
			return result.Error
		}
		if !method.IsActive {
			return ErrMethodDisabled
		}

		status := StatusApproved
		if method.IsApprovalRequired {
			status = StatusPendingApproval
		}

		recorded = Transaction{
			ID:              p.genID.Generate(),
			InvoiceID:       invoice.ID,
			Amount:          req.Amount,
			Status:          status,
			PaymentMethodID: &req.PaymentMethodID,
			RecordedBy:      actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if req.ReferenceNumber != "" {
			recorded.ReferenceNumber = &req.ReferenceNumber
		}
		if req.TransactionDate != nil {
			recorded.TransactionDate = req.TransactionDate
		} else {
			recorded.TransactionDate = &now
		}
		if err := tx.Create(&recorded).Error; err != nil {
			return err
		}

		note := req.Note
		if note == "" {
			note = "Manual payment recorded"
		}
		if err := p.appendNote(tx, recorded.ID, actor, "recorded", note, now); err != nil {
			return err
		}

		if status == StatusApproved {
			recorded.ApprovedBy = actor
			if err := tx.Model(&Transaction{}).
				Where("id = ?", recorded.ID).
				Update("approved_by", actor).Error; err != nil {
				return err
			}
			return p.settleTx(ctx, tx, &invoice, recorded, now)
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	p.auditAction(ctx, "payment.manual_recorded", recorded.ID, map[string]any{
		"invoice_id": recorded.InvoiceID.String(),
		"amount":     recorded.Amount,
		"status":     string(recorded.Status),
	})
	return recorded, nil
}

// GetPendingManualPayments returns the approval queue, newest first.
// Each row carries its rendered note trail so the reviewer sees who
// recorded the payment and why without another round trip.
func (p *Processor) GetPendingManualPayments(ctx context.Context) ([]PendingApproval, error) {
	var rows []PendingApproval
	err := p.database.WithContext(ctx).Raw(
		`SELECT t.id AS transaction_id, t.invoice_id, t.amount,
		        t.reference_number, t.transaction_date, t.created_at,
		        c.id AS customer_id, c.full_name AS customer_name,
		        i.amount AS invoice_amount, i.amount_due AS invoice_amount_due,
		        pm.name AS payment_method_name,
		        COALESCE(u.username, '') AS recorded_by_name,
		        a.username AS approved_by_name
		 FROM transactions t
		 JOIN invoices i ON t.invoice_id = i.id
		 JOIN customers c ON i.customer_id = c.id
		 LEFT JOIN payment_methods pm ON t.payment_method_id = pm.id
		 LEFT JOIN users u ON t.recorded_by = u.id
		 LEFT JOIN users a ON t.approved_by = a.id
		 WHERE t.status = 'pending_approval'
		 ORDER BY t.created_at DESC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.TransactionID)
	}
	var notes []TransactionNote
	err = p.database.WithContext(ctx).
		Where("transaction_id IN ?", ids).
		Order("created_at, id").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	trails := make(map[snowflake.ID][]TransactionNote, len(rows))
	for _, n := range notes {
		trails[n.TransactionID] = append(trails[n.TransactionID], n)
	}
	for i := range rows {
		rows[i].Notes = RenderNotes(trails[rows[i].TransactionID])
	}
	return rows, nil
}

// ApproveManualPayment settles a pending transaction against its
// invoice. The invoice row is locked for the duration so two
// approvals can never both read the same balance.
func (p *Processor) ApproveManualPayment(ctx context.Context, transactionID snowflake.ID, note string) error {
	actor := actorID(ctx)
	now := p.clock.Now()

	err := p.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trx Transaction
		if err := db.LockForUpdate(tx).First(&trx, "id = ?", transactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if trx.Status != StatusPendingApproval {
			return ErrInvalidState
		}

		var invoice billing.Invoice
		if err := db.LockForUpdate(tx).First(&invoice, "id = ?", trx.InvoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInternalInconsistency
			}
			return err
		}

		if err := tx.Model(&Transaction{}).
			Where("id = ?", trx.ID).
			Updates(map[string]any{
				"status":      StatusApproved,
				"approved_by": actor,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}

		text := note
		if text == "" {
			text = "Payment approved"
		}
		if err := p.appendNote(tx, trx.ID, actor, "approved", text, now); err != nil {
			return err
		}
		return p.settleTx(ctx, tx, &invoice, trx, now)
	})
	if err != nil {
		return err
	}

	p.auditAction(ctx, "payment.approved", transactionID, map[string]any{"note": note})
	return nil
}

// RejectManualPayment closes a pending transaction without touching
// the invoice balance.
func (p *Processor) RejectManualPayment(ctx context.Context, transactionID snowflake.ID, note string) error {
	actor := actorID(ctx)
	now := p.clock.Now()

	err := p.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trx Transaction
		if err := db.LockForUpdate(tx).First(&trx, "id = ?", transactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if trx.Status != StatusPendingApproval {
			return ErrInvalidState
		}

		if err := tx.Model(&Transaction{}).
			Where("id = ?", trx.ID).
			Updates(map[string]any{
				"status":      StatusRejected,
				"approved_by": actor,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}

		text := note
		if text == "" {
			text = "Payment rejected"
		}
		return p.appendNote(tx, trx.ID, actor, "rejected", text, now)
	})
	if err != nil {
		return err
	}

	p.auditAction(ctx, "payment.rejected", transactionID, map[string]any{"note": note})
	return nil
}

// CreateOrder opens a gateway order for an invoice's full amount.
// The gateway path settles in full, so only a strictly unpaid
// invoice qualifies; partial balances stay on the manual path.
// Amounts cross the boundary in minor units; everywhere else the
// platform stores major units.
func (p *Processor) CreateOrder(ctx context.Context, invoiceID snowflake.ID) (gateway.Order, error) {
	var invoice billing.Invoice
	err := p.database.WithContext(ctx).First(&invoice, "id = ?", invoiceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gateway.Order{}, ErrInvoiceNotFound
		}
		return gateway.Order{}, err
	}
	if invoice.Status != billing.StatusUnpaid {
		return gateway.Order{}, ErrInvoiceAlreadyPaid
	}

	return p.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		AmountMinor: invoice.Amount * 100,
		Currency:    p.currency,
		Receipt:     invoice.ID.String(),
		Notes: map[string]string{
			"invoice_id":  invoice.ID.String(),
			"customer_id": invoice.CustomerID.String(),
		},
	})
}

// VerifyPayment validates the checkout callback signature and, only
// on success, settles the invoice in full. A bad signature writes
// nothing.
func (p *Processor) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (Transaction, error) {
	if !gateway.VerifySignature(p.secret, req.OrderID, req.PaymentID, req.Signature) {
		p.log.Warn("gateway signature rejected",
			zap.String("order_id", req.OrderID),
			zap.Int64("invoice_id", int64(req.InvoiceID)))
		return Transaction{}, ErrSignatureMismatch
	}

	now := p.clock.Now()
	var settled Transaction
	err := p.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice billing.Invoice
		if err := db.LockForUpdate(tx).First(&invoice, "id = ?", req.InvoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}
		if invoice.Status != billing.StatusUnpaid {
			return ErrInvoiceAlreadyPaid
		}

		// Amount is read fresh under the lock, never from the request.
		settled = Transaction{
			ID:                   p.genID.Generate(),
			InvoiceID:            invoice.ID,
			Amount:               invoice.Amount,
			Status:               StatusSuccessful,
			TransactionDate:      &now,
			TransactionIDGateway: &req.PaymentID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := tx.Create(&settled).Error; err != nil {
			return err
		}
		if err := p.appendNote(tx, settled.ID, nil, "gateway_settled",
			"Online payment verified, order "+req.OrderID, now); err != nil {
			return err
		}
		return p.settleTx(ctx, tx, &invoice, settled, now)
	})
	if err != nil {
		return Transaction{}, err
	}

	p.auditAction(ctx, "payment.gateway_settled", settled.ID, map[string]any{
		"invoice_id": settled.InvoiceID.String(),
		"order_id":   req.OrderID,
		"payment_id": req.PaymentID,
	})
	return settled, nil
}

// NotesFor returns a transaction's note trail in insertion order.
func (p *Processor) NotesFor(ctx context.Context, transactionID snowflake.ID) ([]TransactionNote, error) {
	var notes []TransactionNote
	err := p.database.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at, id").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// settleTx reduces the locked invoice's balance by the transaction
// amount and posts the cash movement. Callers must already hold the
// invoice row lock.
func (p *Processor) settleTx(ctx context.Context, tx *gorm.DB, invoice *billing.Invoice, trx Transaction, now time.Time) error {
	remaining := invoice.AmountDue - trx.Amount
	updates := map[string]any{
		"amount_due": remaining,
		"updated_at": now,
	}
	if remaining <= 0 {
		updates["amount_due"] = int64(0)
		updates["status"] = billing.StatusPaid
		updates["paid_at"] = now
	} else {
		updates["status"] = billing.StatusPartiallyPaid
	}

	result := tx.Model(&billing.Invoice{}).Where("id = ?", invoice.ID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInternalInconsistency
	}

	cashID, err := p.ledger.EnsureAccountTx(ctx, tx, ledger.AccountCodeCashClearing, "Cash Clearing")
	if err != nil {
		return err
	}
	arID, err := p.ledger.EnsureAccountTx(ctx, tx, ledger.AccountCodeAccountsReceivable, "Accounts Receivable")
	if err != nil {
		return err
	}
	return p.ledger.CreateEntryTx(ctx, tx,
		ledger.SourceTypeTransaction, trx.ID, p.currency, now,
		[]ledger.EntryLine{
			{AccountID: cashID, Direction: ledger.DirectionDebit, Amount: trx.Amount},
			{AccountID: arID, Direction: ledger.DirectionCredit, Amount: trx.Amount},
		})
}

func (p *Processor) appendNote(tx *gorm.DB, transactionID snowflake.ID, actor *snowflake.ID, action, note string, now time.Time) error {
	return tx.Create(&TransactionNote{
		ID:            p.genID.Generate(),
		TransactionID: transactionID,
		ActorID:       actor,
		Action:        action,
		Note:          note,
		CreatedAt:     now,
	}).Error
}

func (p *Processor) auditAction(ctx context.Context, action string, transactionID snowflake.ID, metadata map[string]any) {
	target := transactionID.String()
	if err := p.audit.AuditLog(ctx, action, "transaction", &target, metadata); err != nil {
		p.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

// actorID parses the authenticated actor from context; nil when the
// caller is the system.
func actorID(ctx context.Context) *snowflake.ID {
	raw := auditcontext.ActorFromContext(ctx)
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	id := snowflake.ID(parsed)
	return &id
}
