package seed

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/broadbill/broadbill/internal/auth/password"
	"github.com/broadbill/broadbill/internal/authorization"
	"github.com/broadbill/broadbill/internal/config"
	"github.com/broadbill/broadbill/internal/role"
	"github.com/broadbill/broadbill/internal/user"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const adminRoleName = "administrator"

// permissionCatalogue is every capability the access gate checks.
var permissionCatalogue = map[string]string{
	authorization.CanGenerateInvoices:     "Run renewal invoice generation",
	authorization.CanViewBilling:          "View invoices and billing reports",
	authorization.CanRecordManualPayments: "Record offline payments",
	authorization.CanViewPaymentApprovals: "View the payment approval queue",
	authorization.CanApprovePayments:      "Approve or reject pending payments",
	authorization.CanManageCustomers:      "Manage customer accounts",
	authorization.CanManagePlans:          "Manage pricing plans",
	authorization.CanManageZones:          "Manage service zones",
	authorization.CanManageSubscriptions:  "Manage subscriptions",
	authorization.CanManagePaymentMethods: "Manage payment methods",
	authorization.CanManageUsers:          "Manage staff users",
	authorization.CanManageRoles:          "Manage roles and permissions",
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Cfg   config.Config
}

// Run makes the permission catalogue, the administrator role and, when
// configured, a default admin account exist. It is idempotent and safe
// on every boot.
func Run(p Params) error {
	ctx := context.Background()
	log := p.Log.Named("seed")

	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permissionIDs, err := ensurePermissions(tx, p.GenID)
		if err != nil {
			return err
		}
		adminRoleID, err := ensureAdminRole(tx, p.GenID, permissionIDs)
		if err != nil {
			return err
		}
		if p.Cfg.Bootstrap.EnsureDefaultAdmin {
			return ensureAdminUser(tx, p.GenID, log, adminRoleID)
		}
		return nil
	})
}

func ensurePermissions(tx *gorm.DB, genID *snowflake.Node) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, 0, len(permissionCatalogue))
	for name, description := range permissionCatalogue {
		var existing role.Permission
		err := tx.Where("name = ?", name).First(&existing).Error
		if err == nil {
			ids = append(ids, existing.ID)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		created := role.Permission{
			ID:          genID.Generate(),
			Name:        name,
			Description: description,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&created).Error; err != nil {
			return nil, err
		}
		ids = append(ids, created.ID)
	}
	return ids, nil
}

func ensureAdminRole(tx *gorm.DB, genID *snowflake.Node, permissionIDs []snowflake.ID) (snowflake.ID, error) {
	var adminRole role.Role
	err := tx.Where("name = ?", adminRoleName).First(&adminRole).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		adminRole = role.Role{
			ID:          genID.Generate(),
			Name:        adminRoleName,
			Description: "Full access to every back-office operation",
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&adminRole).Error; err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	// Bind any permission the role does not carry yet, so catalogue
	// additions reach existing installs.
	for _, permID := range permissionIDs {
		var count int64
		if err := tx.Model(&role.RolePermission{}).
			Where("role_id = ? AND permission_id = ?", adminRole.ID, permID).
			Count(&count).Error; err != nil {
			return 0, err
		}
		if count > 0 {
			continue
		}
		if err := tx.Create(&role.RolePermission{RoleID: adminRole.ID, PermissionID: permID}).Error; err != nil {
			return 0, err
		}
	}
	return adminRole.ID, nil
}

func ensureAdminUser(tx *gorm.DB, genID *snowflake.Node, log *zap.Logger, roleID snowflake.ID) error {
	var count int64
	if err := tx.Model(&user.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	plain := os.Getenv("BROADBILL_BOOTSTRAP_ADMIN_PASSWORD")
	if plain == "" {
		plain = "change-me-on-first-login"
	}
	hashed, err := password.Hash(plain)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := user.User{
		ID:           genID.Generate(),
		Username:     "admin",
		PasswordHash: hashed,
		RoleID:       &roleID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Create(&admin).Error; err != nil {
		return err
	}
	log.Warn("default admin account created, rotate its password", zap.String("username", "admin"))
	return nil
}
