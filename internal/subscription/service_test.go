package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/internal/customer"
	"github.com/broadbill/broadbill/internal/plan"
	"github.com/broadbill/broadbill/internal/user"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type invoiceRow struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID
	CustomerID     snowflake.ID
	Amount         int64
	AmountDue      int64
	Status         string
	DueDate        time.Time
}

func (invoiceRow) TableName() string { return "invoices" }

func newSubscriptionFixture(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
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

	err = conn.AutoMigrate(&plan.Plan{}, &customer.Customer{}, &user.User{}, &Subscription{}, &invoiceRow{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.Fixed{Instant: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	})
	return svc, conn, node
}

func seedPlanAndCustomer(t *testing.T, conn *gorm.DB, node *snowflake.Node, price int64, durationDays int) (plan.Plan, customer.Customer) {
	t.Helper()
	p := plan.Plan{
		ID:           node.Generate(),
		Name:         "Plan " + node.Generate().String(),
		SpeedMbps:    50,
		Price:        price,
		DurationDays: durationDays,
		IsActive:     true,
	}
	if err := conn.Create(&p).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	c := customer.Customer{ID: node.Generate(), FullName: "Dev Mehta", PhoneNumber: "555", Address: "4 Lake View"}
	if err := conn.Create(&c).Error; err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return p, c
}

func TestCreateSnapshotsPriceAndCycle(t *testing.T) {
	svc, conn, node := newSubscriptionFixture(t)
	p, c := seedPlanAndCustomer(t, conn, node, 1200, 30)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	created, err := svc.Create(context.Background(), CreateSubscriptionRequest{
		CustomerID:  c.ID,
		PlanID:      p.ID,
		StartDate:   start,
		ActivatedBy: node.Generate(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.PriceAtSubscription != 1200 {
		t.Fatalf("snapshot price = %d, want 1200", created.PriceAtSubscription)
	}
	wantEnd := start.AddDate(0, 0, 30)
	if !created.EndDate.Equal(wantEnd) || !created.NextBillingDate.Equal(wantEnd) {
		t.Fatalf("cycle end = %v/%v, want %v", created.EndDate, created.NextBillingDate, wantEnd)
	}
	if created.Status != StatusActive {
		t.Fatalf("status = %q, want active default", created.Status)
	}

	// A later plan price change must not touch the open cycle.
	if err := conn.Model(&plan.Plan{}).Where("id = ?", p.ID).Update("price", 9999).Error; err != nil {
		t.Fatalf("reprice plan: %v", err)
	}
	reloaded, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.PriceAtSubscription != 1200 {
		t.Fatalf("snapshot drifted to %d", reloaded.PriceAtSubscription)
	}
	if reloaded.CurrentPlanPrice != 9999 {
		t.Fatalf("current plan price = %d, want 9999", reloaded.CurrentPlanPrice)
	}
}

func TestCreateRejectsUnknownPlanAndCustomer(t *testing.T) {
	svc, conn, node := newSubscriptionFixture(t)
	p, c := seedPlanAndCustomer(t, conn, node, 800, 30)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), CreateSubscriptionRequest{
		CustomerID: c.ID, PlanID: node.Generate(), StartDate: start, ActivatedBy: node.Generate(),
	})
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}

	_, err = svc.Create(context.Background(), CreateSubscriptionRequest{
		CustomerID: node.Generate(), PlanID: p.ID, StartDate: start, ActivatedBy: node.Generate(),
	})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestUpdatePlanChangeResnapshotsPrice(t *testing.T) {
	svc, conn, node := newSubscriptionFixture(t)
	p, c := seedPlanAndCustomer(t, conn, node, 800, 30)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	created, err := svc.Create(context.Background(), CreateSubscriptionRequest{
		CustomerID: c.ID, PlanID: p.ID, StartDate: start, ActivatedBy: node.Generate(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	upgraded := plan.Plan{
		ID: node.Generate(), Name: "Upgrade " + node.Generate().String(),
		SpeedMbps: 200, Price: 1500, DurationDays: 30, IsActive: true,
	}
	if err := conn.Create(&upgraded).Error; err != nil {
		t.Fatalf("create upgrade plan: %v", err)
	}

	if err := svc.Update(context.Background(), created.ID, UpdateSubscriptionRequest{PlanID: &upgraded.ID}); err != nil {
		t.Fatalf("update: %v", err)
	}

	var reloaded Subscription
	if err := conn.First(&reloaded, "id = ?", created.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.PriceAtSubscription != 1500 {
		t.Fatalf("price after plan change = %d, want 1500", reloaded.PriceAtSubscription)
	}
}

func TestDeleteBlockedByInvoices(t *testing.T) {
	svc, conn, node := newSubscriptionFixture(t)
	p, c := seedPlanAndCustomer(t, conn, node, 800, 30)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	created, err := svc.Create(context.Background(), CreateSubscriptionRequest{
		CustomerID: c.ID, PlanID: p.ID, StartDate: start, ActivatedBy: node.Generate(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	invoice := invoiceRow{
		ID: node.Generate(), SubscriptionID: created.ID, CustomerID: c.ID,
		Amount: 800, AmountDue: 800, Status: "unpaid", DueDate: created.EndDate,
	}
	if err := conn.Create(&invoice).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID); !errors.Is(err, ErrSubscriptionInUse) {
		t.Fatalf("delete = %v, want ErrSubscriptionInUse", err)
	}

	if err := conn.Delete(&invoiceRow{}, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("drop invoice: %v", err)
	}
	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete after history removed = %v", err)
	}
}
