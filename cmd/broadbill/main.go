package main

import (
	"os"
	"strconv"

	"github.com/broadbill/broadbill/internal/audit"
	"github.com/broadbill/broadbill/internal/auth"
	"github.com/broadbill/broadbill/internal/authorization"
	"github.com/broadbill/broadbill/internal/billing"
	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/internal/config"
	"github.com/broadbill/broadbill/internal/customer"
	"github.com/broadbill/broadbill/internal/ledger"
	"github.com/broadbill/broadbill/internal/migration"
	"github.com/broadbill/broadbill/internal/observability"
	"github.com/broadbill/broadbill/internal/payment"
	"github.com/broadbill/broadbill/internal/paymentmethod"
	"github.com/broadbill/broadbill/internal/plan"
	"github.com/broadbill/broadbill/internal/reporting"
	"github.com/broadbill/broadbill/internal/role"
	"github.com/broadbill/broadbill/internal/seed"
	"github.com/broadbill/broadbill/internal/server"
	"github.com/broadbill/broadbill/internal/subscription"
	"github.com/broadbill/broadbill/internal/user"
	"github.com/broadbill/broadbill/internal/zone"
	"github.com/broadbill/broadbill/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		fx.Provide(newSnowflakeNode),
		fx.Invoke(applyMigrations),
		fx.Invoke(seed.Run),

		auth.Module,
		authorization.Module,
		audit.Module,
		ledger.Module,
		zone.Module,
		customer.Module,
		plan.Module,
		paymentmethod.Module,
		subscription.Module,
		user.Module,
		role.Module,
		billing.Module,
		payment.Module,
		reporting.Module,

		server.Module,
	).Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("BROADBILL_NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}

func applyMigrations(conn *gorm.DB, log *zap.Logger) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := migration.RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("database schema up to date")
	return nil
}
