package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	auditdomain "github.com/broadbill/broadbill/internal/audit/domain"
	auditservice "github.com/broadbill/broadbill/internal/audit/service"
	"github.com/broadbill/broadbill/internal/auditcontext"
	"github.com/broadbill/broadbill/internal/billing"
	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/internal/config"
	"github.com/broadbill/broadbill/internal/customer"
	"github.com/broadbill/broadbill/internal/ledger"
	"github.com/broadbill/broadbill/internal/payment/gateway"
	"github.com/broadbill/broadbill/internal/paymentmethod"
	"github.com/broadbill/broadbill/internal/user"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testSecret = "test-key-secret"

type stubGateway struct {
	lastRequest gateway.CreateOrderRequest
}

func (s *stubGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (gateway.Order, error) {
	s.lastRequest = req
	return gateway.Order{
		ID:          "order_test_1",
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Receipt:     req.Receipt,
		Status:      "created",
	}, nil
}

type processorFixture struct {
	processor *Processor
	conn      *gorm.DB
	node      *snowflake.Node
	gateway   *stubGateway
	now       time.Time
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = conn.AutoMigrate(
		&billing.Invoice{},
		&Transaction{},
		&TransactionNote{},
		&paymentmethod.PaymentMethod{},
		&customer.Customer{},
		&user.User{},
		&ledger.Account{},
		&ledger.Entry{},
		&ledger.EntryLine{},
		&auditdomain.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	gw := &stubGateway{}

	processor := NewProcessor(Params{
		DB:      conn,
		Log:     log,
		GenID:   node,
		Clock:   clock.Fixed{Instant: now},
		Ledger:  ledger.NewService(ledger.Params{Log: log, GenID: node}),
		Gateway: gw,
		Audit:   auditservice.NewService(auditservice.Params{DB: conn, Log: log, GenID: node}),
		Config: config.Config{
			Gateway: config.GatewayConfig{KeySecret: testSecret, Currency: "INR"},
		},
	})
	return &processorFixture{processor: processor, conn: conn, node: node, gateway: gw, now: now}
}

func (f *processorFixture) seedInvoice(t *testing.T, amountDue int64) billing.Invoice {
	t.Helper()
	invoice := billing.Invoice{
		ID:             f.node.Generate(),
		SubscriptionID: f.node.Generate(),
		CustomerID:     f.node.Generate(),
		Amount:         amountDue,
		AmountDue:      amountDue,
		Status:         billing.StatusUnpaid,
		IssueDate:      f.now.AddDate(0, 0, -3),
		DueDate:        f.now.AddDate(0, 0, 4),
	}
	if err := f.conn.Create(&invoice).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return invoice
}

func (f *processorFixture) seedMethod(t *testing.T, approvalRequired bool) paymentmethod.PaymentMethod {
	t.Helper()
	method := paymentmethod.PaymentMethod{
		ID:                 f.node.Generate(),
		Name:               "Cash " + f.node.Generate().String(),
		MethodType:         "offline",
		IsActive:           true,
		IsApprovalRequired: approvalRequired,
	}
	if err := f.conn.Create(&method).Error; err != nil {
		t.Fatalf("create method: %v", err)
	}
	return method
}

func (f *processorFixture) reloadInvoice(t *testing.T, id snowflake.ID) billing.Invoice {
	t.Helper()
	var invoice billing.Invoice
	if err := f.conn.First(&invoice, "id = ?", id).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	return invoice
}

func actorContext(id string) context.Context {
	return auditcontext.WithActor(context.Background(), id)
}

func TestRecordManualPaymentPendingApproval(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1000)
	method := f.seedMethod(t, true)

	recorded, err := f.processor.RecordManualPayment(actorContext("42"), RecordManualPaymentRequest{
		InvoiceID:       invoice.ID,
		Amount:          400,
		PaymentMethodID: method.ID,
		ReferenceNumber: "RCPT-100",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if recorded.Status != StatusPendingApproval {
		t.Fatalf("status = %q, want pending_approval", recorded.Status)
	}
	if recorded.RecordedBy == nil || int64(*recorded.RecordedBy) != 42 {
		t.Fatalf("recorded_by = %v, want 42", recorded.RecordedBy)
	}

	// The balance must not move until approval.
	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 1000 || got.Status != billing.StatusUnpaid {
		t.Fatalf("invoice = %d/%q, want untouched", got.AmountDue, got.Status)
	}
}

func TestApprovePartialThenFullSettlement(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1000)
	method := f.seedMethod(t, true)
	ctx := actorContext("7")

	first, err := f.processor.RecordManualPayment(ctx, RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 400, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := f.processor.ApproveManualPayment(ctx, first.ID, "counter receipt checked"); err != nil {
		t.Fatalf("approve first: %v", err)
	}

	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 600 || got.Status != billing.StatusPartiallyPaid {
		t.Fatalf("after partial: %d/%q, want 600/partially_paid", got.AmountDue, got.Status)
	}
	if got.PaidAt != nil {
		t.Fatalf("paid_at set on a partially paid invoice")
	}

	second, err := f.processor.RecordManualPayment(ctx, RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 600, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record second: %v", err)
	}
	if err := f.processor.ApproveManualPayment(ctx, second.ID, ""); err != nil {
		t.Fatalf("approve second: %v", err)
	}

	got = f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 0 || got.Status != billing.StatusPaid {
		t.Fatalf("after full: %d/%q, want 0/paid", got.AmountDue, got.Status)
	}
	if got.PaidAt == nil {
		t.Fatalf("paid_at missing on a settled invoice")
	}

	// Two settlements, two balanced ledger entries.
	var lines []ledger.EntryLine
	if err := f.conn.Find(&lines).Error; err != nil {
		t.Fatalf("load ledger lines: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("ledger lines = %d, want 4", len(lines))
	}
}

func TestApproveRequiresPendingState(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1000)
	method := f.seedMethod(t, true)
	ctx := actorContext("7")

	recorded, err := f.processor.RecordManualPayment(ctx, RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 1000, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := f.processor.ApproveManualPayment(ctx, recorded.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.processor.ApproveManualPayment(ctx, recorded.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second approve = %v, want ErrInvalidState", err)
	}

	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 0 {
		t.Fatalf("double settlement: amount_due = %d", got.AmountDue)
	}
}

func TestRejectLeavesInvoiceUntouched(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1000)
	method := f.seedMethod(t, true)
	ctx := actorContext("9")

	recorded, err := f.processor.RecordManualPayment(ctx, RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 300, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := f.processor.RejectManualPayment(ctx, recorded.ID, "reference does not match"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 1000 || got.Status != billing.StatusUnpaid {
		t.Fatalf("invoice changed by rejection: %d/%q", got.AmountDue, got.Status)
	}

	var trx Transaction
	if err := f.conn.First(&trx, "id = ?", recorded.ID).Error; err != nil {
		t.Fatalf("reload transaction: %v", err)
	}
	if trx.Status != StatusRejected {
		t.Fatalf("transaction status = %q, want rejected", trx.Status)
	}

	// A rejected transaction is final.
	if err := f.processor.ApproveManualPayment(ctx, recorded.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("approve after reject = %v, want ErrInvalidState", err)
	}
}

func TestRecordManualPaymentRejectsOverpayment(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 500)
	method := f.seedMethod(t, true)

	_, err := f.processor.RecordManualPayment(actorContext("7"), RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 600, PaymentMethodID: method.ID,
	})
	if !errors.Is(err, ErrOverpayment) {
		t.Fatalf("err = %v, want ErrOverpayment", err)
	}
}

func TestRecordManualPaymentAutoApproves(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 800)
	method := f.seedMethod(t, false)

	recorded, err := f.processor.RecordManualPayment(actorContext("7"), RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 800, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if recorded.Status != StatusApproved {
		t.Fatalf("status = %q, want approved", recorded.Status)
	}

	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 0 || got.Status != billing.StatusPaid {
		t.Fatalf("invoice = %d/%q, want settled in the same call", got.AmountDue, got.Status)
	}
}

func TestPendingQueueJoinsContext(t *testing.T) {
	f := newProcessorFixture(t)
	staff := user.User{ID: f.node.Generate(), Username: "clerk", PasswordHash: "x", IsActive: true}
	if err := f.conn.Create(&staff).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	payer := customer.Customer{ID: f.node.Generate(), FullName: "Asha Rao", PhoneNumber: "555", Address: "12 Hill Rd"}
	if err := f.conn.Create(&payer).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}

	invoice := f.seedInvoice(t, 900)
	if err := f.conn.Model(&billing.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("customer_id", payer.ID).Error; err != nil {
		t.Fatalf("bind customer: %v", err)
	}
	method := f.seedMethod(t, true)

	_, err := f.processor.RecordManualPayment(actorContext(staff.ID.String()), RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 250, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	rows, err := f.processor.GetPendingManualPayments(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("pending rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.CustomerName != "Asha Rao" || row.RecordedByName != "clerk" {
		t.Fatalf("join fields = %q/%q", row.CustomerName, row.RecordedByName)
	}
	if row.InvoiceAmountDue != 900 || row.Amount != 250 {
		t.Fatalf("amounts = %d/%d", row.InvoiceAmountDue, row.Amount)
	}
	if row.ApprovedByName != nil {
		t.Fatalf("approver = %q on a pending row", *row.ApprovedByName)
	}
	if row.Notes != "Manual payment recorded" {
		t.Fatalf("notes = %q, want the recording note", row.Notes)
	}
}

func TestConcurrentApprovalsSerializeSettlement(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1000)
	method := f.seedMethod(t, true)
	ctx := actorContext("7")

	first, err := f.processor.RecordManualPayment(ctx, RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 400, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record first: %v", err)
	}
	second, err := f.processor.RecordManualPayment(ctx, RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 600, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record second: %v", err)
	}

	// Both approvals race against the same invoice; neither decrement
	// may be computed from a stale balance.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []snowflake.ID{first.ID, second.ID} {
		wg.Add(1)
		go func(slot int, transactionID snowflake.ID) {
			defer wg.Done()
			errs[slot] = f.processor.ApproveManualPayment(ctx, transactionID, "")
		}(i, id)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
	}

	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 0 || got.Status != billing.StatusPaid {
		t.Fatalf("invoice = %d/%q, want 0/paid — a decrement was lost", got.AmountDue, got.Status)
	}
	var lines []ledger.EntryLine
	if err := f.conn.Find(&lines).Error; err != nil {
		t.Fatalf("load ledger lines: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("ledger lines = %d, want 4", len(lines))
	}
}

func signFor(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentRejectsTamperedSignature(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1200)

	_, err := f.processor.VerifyPayment(context.Background(), VerifyPaymentRequest{
		InvoiceID: invoice.ID,
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signFor("order_1", "pay_tampered"),
	})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}

	var count int64
	if err := f.conn.Model(&Transaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if count != 0 {
		t.Fatalf("tampered callback wrote %d transactions", count)
	}
	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 1200 || got.Status != billing.StatusUnpaid {
		t.Fatalf("invoice changed by tampered callback: %d/%q", got.AmountDue, got.Status)
	}
}

func TestVerifyPaymentSettlesInFull(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1200)

	settled, err := f.processor.VerifyPayment(context.Background(), VerifyPaymentRequest{
		InvoiceID: invoice.ID,
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signFor("order_1", "pay_1"),
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if settled.Status != StatusSuccessful || settled.Amount != 1200 {
		t.Fatalf("transaction = %q/%d, want successful/1200", settled.Status, settled.Amount)
	}
	if settled.TransactionIDGateway == nil || *settled.TransactionIDGateway != "pay_1" {
		t.Fatalf("gateway id = %v, want pay_1", settled.TransactionIDGateway)
	}

	got := f.reloadInvoice(t, invoice.ID)
	if got.AmountDue != 0 || got.Status != billing.StatusPaid {
		t.Fatalf("invoice = %d/%q, want 0/paid", got.AmountDue, got.Status)
	}

	// Replaying the callback must not settle twice.
	_, err = f.processor.VerifyPayment(context.Background(), VerifyPaymentRequest{
		InvoiceID: invoice.ID,
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signFor("order_1", "pay_1"),
	})
	if !errors.Is(err, ErrInvoiceAlreadyPaid) {
		t.Fatalf("replay = %v, want ErrInvoiceAlreadyPaid", err)
	}
}

func TestCreateOrderScalesToMinorUnits(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 750)

	order, err := f.processor.CreateOrder(context.Background(), invoice.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if f.gateway.lastRequest.AmountMinor != 75000 {
		t.Fatalf("gateway amount = %d, want 75000", f.gateway.lastRequest.AmountMinor)
	}
	if order.Receipt != invoice.ID.String() {
		t.Fatalf("receipt = %q, want invoice id", order.Receipt)
	}
}

func TestCreateOrderRequiresUnpaidInvoice(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 750)
	if err := f.conn.Model(&billing.Invoice{}).Where("id = ?", invoice.ID).
		Updates(map[string]any{"status": billing.StatusPaid, "amount_due": 0}).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	_, err := f.processor.CreateOrder(context.Background(), invoice.ID)
	if !errors.Is(err, ErrInvoiceAlreadyPaid) {
		t.Fatalf("err = %v, want ErrInvoiceAlreadyPaid", err)
	}
}

func TestGatewayPathRejectsPartialBalance(t *testing.T) {
	f := newProcessorFixture(t)
	invoice := f.seedInvoice(t, 1000)
	method := f.seedMethod(t, false)
	ctx := actorContext("7")

	// A partial manual settlement moves the invoice off the gateway
	// path; the remainder is collected manually.
	_, err := f.processor.RecordManualPayment(ctx, RecordManualPaymentRequest{
		InvoiceID: invoice.ID, Amount: 400, PaymentMethodID: method.ID,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	got := f.reloadInvoice(t, invoice.ID)
	if got.Status != billing.StatusPartiallyPaid {
		t.Fatalf("status = %q, want partially_paid", got.Status)
	}

	if _, err := f.processor.CreateOrder(context.Background(), invoice.ID); !errors.Is(err, ErrInvoiceAlreadyPaid) {
		t.Fatalf("create order = %v, want ErrInvoiceAlreadyPaid", err)
	}
	_, err = f.processor.VerifyPayment(context.Background(), VerifyPaymentRequest{
		InvoiceID: invoice.ID,
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signFor("order_1", "pay_1"),
	})
	if !errors.Is(err, ErrInvoiceAlreadyPaid) {
		t.Fatalf("verify = %v, want ErrInvoiceAlreadyPaid", err)
	}
	if got = f.reloadInvoice(t, invoice.ID); got.AmountDue != 600 {
		t.Fatalf("amount_due = %d, want 600 untouched", got.AmountDue)
	}
}

func TestRenderNotesKeepsOrder(t *testing.T) {
	notes := []TransactionNote{
		{Note: "Manual payment recorded"},
		{Note: "Payment approved"},
	}
	if got := RenderNotes(notes); got != "Manual payment recorded\nPayment approved" {
		t.Fatalf("rendered = %q", got)
	}
}
