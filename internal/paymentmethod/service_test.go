package paymentmethod

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/broadbill/broadbill/internal/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMethodFixture(t *testing.T) (*Service, *gorm.DB) {
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

	if err := conn.AutoMigrate(&PaymentMethod{}); err != nil {
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
	return svc, conn
}

func boolPtr(v bool) *bool { return &v }

func TestCreateDefaultsToApprovalRequired(t *testing.T) {
	svc, conn := newMethodFixture(t)

	created, err := svc.Create(context.Background(), CreateMethodRequest{Name: "Cash"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var got PaymentMethod
	if err := conn.First(&got, "id = ?", created.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.IsActive || !got.IsApprovalRequired {
		t.Fatalf("flags = %v/%v, want true/true", got.IsActive, got.IsApprovalRequired)
	}
}

func TestCreatePersistsFalseFlags(t *testing.T) {
	svc, conn := newMethodFixture(t)

	created, err := svc.Create(context.Background(), CreateMethodRequest{
		Name:               "UPI Direct",
		IsActive:           boolPtr(false),
		IsApprovalRequired: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The row must carry the explicit false values, not column defaults.
	var got PaymentMethod
	if err := conn.First(&got, "id = ?", created.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.IsActive {
		t.Fatal("is_active persisted as true, want false")
	}
	if got.IsApprovalRequired {
		t.Fatal("is_approval_required persisted as true, want false")
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc, _ := newMethodFixture(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateMethodRequest{Name: "Cash"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateMethodRequest{Name: "Cash"}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
}
