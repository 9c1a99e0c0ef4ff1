package billing

import (
	"context"
	"testing"
	"time"

	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/internal/config"
	"github.com/broadbill/broadbill/internal/ledger"
	"github.com/broadbill/broadbill/internal/plan"
	"github.com/broadbill/broadbill/internal/subscription"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newEngineTestDB(t *testing.T) *gorm.DB {
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
		&plan.Plan{},
		&subscription.Subscription{},
		&Invoice{},
		&ledger.Account{},
		&ledger.Entry{},
		&ledger.EntryLine{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestEngine(t *testing.T, conn *gorm.DB, now time.Time) *Engine {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	return NewEngine(EngineParams{
		DB:     conn,
		Log:    log,
		GenID:  node,
		Clock:  clock.Fixed{Instant: now},
		Ledger: ledger.NewService(ledger.Params{Log: log, GenID: node}),
		Config: config.Config{
			Gateway: config.GatewayConfig{Currency: "INR"},
			Renewal: config.RenewalConfig{LookaheadDays: 7},
		},
	})
}

func seedSubscription(t *testing.T, conn *gorm.DB, node *snowflake.Node, status subscription.Status, endDate time.Time, price int64, durationDays int) subscription.Subscription {
	t.Helper()
	p := plan.Plan{
		ID:           node.Generate(),
		Name:         "Fiber " + node.Generate().String(),
		SpeedMbps:    100,
		Price:        price,
		DurationDays: durationDays,
		IsActive:     true,
	}
	if err := conn.Create(&p).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	sub := subscription.Subscription{
		ID:                    node.Generate(),
		CustomerID:            node.Generate(),
		PlanID:                p.ID,
		Status:                status,
		StartDate:             endDate.AddDate(0, 0, -durationDays),
		EndDate:               endDate,
		PriceAtSubscription:   price,
		BillingCycleStartDate: endDate.AddDate(0, 0, -durationDays),
		NextBillingDate:       endDate,
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func TestGenerateRenewalInvoices(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	conn := newEngineTestDB(t)
	engine := newTestEngine(t, conn, now)
	node, _ := snowflake.NewNode(2)

	endDate := now.AddDate(0, 0, 3)
	sub := seedSubscription(t, conn, node, subscription.StatusActive, endDate, 1000, 30)

	result, err := engine.GenerateRenewalInvoices(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Generated != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 1 generated", result)
	}

	var invoice Invoice
	if err := conn.First(&invoice, "subscription_id = ?", sub.ID).Error; err != nil {
		t.Fatalf("load invoice: %v", err)
	}
	if invoice.Amount != 1000 || invoice.AmountDue != 1000 {
		t.Fatalf("invoice amounts = %d/%d, want 1000/1000", invoice.Amount, invoice.AmountDue)
	}
	if invoice.Status != StatusUnpaid {
		t.Fatalf("invoice status = %q, want unpaid", invoice.Status)
	}
	if !invoice.DueDate.Equal(endDate) {
		t.Fatalf("due date = %v, want %v", invoice.DueDate, endDate)
	}

	var updated subscription.Subscription
	if err := conn.First(&updated, "id = ?", sub.ID).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	wantEnd := endDate.AddDate(0, 0, 30)
	if !updated.EndDate.Equal(wantEnd) {
		t.Fatalf("end date = %v, want %v", updated.EndDate, wantEnd)
	}

	var lines []ledger.EntryLine
	if err := conn.Find(&lines).Error; err != nil {
		t.Fatalf("load ledger lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("ledger lines = %d, want 2", len(lines))
	}
}

func TestGenerateRenewalInvoicesIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	conn := newEngineTestDB(t)
	engine := newTestEngine(t, conn, now)
	node, _ := snowflake.NewNode(2)

	sub := seedSubscription(t, conn, node, subscription.StatusActive, now.AddDate(0, 0, 2), 500, 30)

	for i := 0; i < 3; i++ {
		if _, err := engine.GenerateRenewalInvoices(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var count int64
	if err := conn.Model(&Invoice{}).Where("subscription_id = ?", sub.ID).Count(&count).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if count != 1 {
		t.Fatalf("invoices = %d, want 1", count)
	}
}

func TestGenerateRenewalInvoicesUnpaidInvoiceBlocksRegeneration(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	conn := newEngineTestDB(t)
	engine := newTestEngine(t, conn, now)
	node, _ := snowflake.NewNode(2)

	sub := seedSubscription(t, conn, node, subscription.StatusActive, now.AddDate(0, 0, 2), 500, 30)
	unpaid := Invoice{
		ID:             node.Generate(),
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		Amount:         500,
		AmountDue:      500,
		Status:         StatusUnpaid,
		IssueDate:      now.AddDate(0, 0, -30),
		DueDate:        now.AddDate(0, 0, 2),
	}
	if err := conn.Create(&unpaid).Error; err != nil {
		t.Fatalf("create unpaid invoice: %v", err)
	}

	result, err := engine.GenerateRenewalInvoices(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Candidates != 0 {
		t.Fatalf("candidates = %d, want 0 while an unpaid invoice exists", result.Candidates)
	}
}

func TestGenerateRenewalInvoicesPartiallyPaidDoesNotBlock(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	conn := newEngineTestDB(t)
	engine := newTestEngine(t, conn, now)
	node, _ := snowflake.NewNode(2)

	sub := seedSubscription(t, conn, node, subscription.StatusActive, now.AddDate(0, 0, 2), 500, 30)
	partial := Invoice{
		ID:             node.Generate(),
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		Amount:         500,
		AmountDue:      200,
		Status:         StatusPartiallyPaid,
		IssueDate:      now.AddDate(0, 0, -30),
		DueDate:        now.AddDate(0, 0, 2),
	}
	if err := conn.Create(&partial).Error; err != nil {
		t.Fatalf("create partial invoice: %v", err)
	}

	// Only a fully untouched invoice blocks the next cycle.
	result, err := engine.GenerateRenewalInvoices(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Generated != 1 {
		t.Fatalf("generated = %d, want 1 despite the partial balance", result.Generated)
	}

	var count int64
	if err := conn.Model(&Invoice{}).Where("subscription_id = ? AND status = ?", sub.ID, StatusUnpaid).Count(&count).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if count != 1 {
		t.Fatalf("unpaid invoices = %d, want 1", count)
	}
}

func TestGenerateRenewalInvoicesSkipsOutOfScope(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	conn := newEngineTestDB(t)
	engine := newTestEngine(t, conn, now)
	node, _ := snowflake.NewNode(2)

	seedSubscription(t, conn, node, subscription.StatusSuspended, now.AddDate(0, 0, 2), 500, 30)
	seedSubscription(t, conn, node, subscription.StatusActive, now.AddDate(0, 0, 20), 500, 30)

	result, err := engine.GenerateRenewalInvoices(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Generated != 0 {
		t.Fatalf("generated = %d, want 0", result.Generated)
	}
}
