package role

import (
	"context"
	"errors"
	"strings"

	"github.com/broadbill/broadbill/internal/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("role_not_found")
	ErrDuplicateName      = errors.New("role_name_taken")
	ErrInvalidName        = errors.New("invalid_role_name")
	ErrPermissionNotFound = errors.New("permission_not_found")
	ErrRoleInUse          = errors.New("role_in_use")
)

// RoleWithPermissions is the read model for role detail views.
type RoleWithPermissions struct {
	Role
	Permissions []Permission `json:"permissions"`
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
		log:   p.Log.Named("role.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Create inserts a role and binds the named permissions to it.
func (s *Service) Create(ctx context.Context, name, description string, permissionIDs []snowflake.ID) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrInvalidName
	}

	created := Role{
		ID:          s.genID.Generate(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Role{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateName
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		return s.replacePermissionsTx(tx, created.ID, permissionIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

func (s *Service) List(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := s.db.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (RoleWithPermissions, error) {
	var found Role
	err := s.db.WithContext(ctx).First(&found, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleWithPermissions{}, ErrNotFound
		}
		return RoleWithPermissions{}, err
	}

	var perms []Permission
	err = s.db.WithContext(ctx).
		Table("permissions").
		Joins("JOIN role_permissions rp ON rp.permission_id = permissions.id").
		Where("rp.role_id = ?", id).
		Order("permissions.name").
		Find(&perms).Error
	if err != nil {
		return RoleWithPermissions{}, err
	}
	return RoleWithPermissions{Role: found, Permissions: perms}, nil
}

// Update renames a role and replaces its permission set when one is
// provided.
func (s *Service) Update(ctx context.Context, id snowflake.ID, name, description *string, permissionIDs *[]snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{}
		if name != nil {
			trimmed := strings.TrimSpace(*name)
			if trimmed == "" {
				return ErrInvalidName
			}
			updates["name"] = trimmed
		}
		if description != nil {
			updates["description"] = strings.TrimSpace(*description)
		}
		if len(updates) > 0 {
			result := tx.Model(&Role{}).Where("id = ?", id).Updates(updates)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrNotFound
			}
		} else {
			var count int64
			if err := tx.Model(&Role{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
		}
		if permissionIDs != nil {
			if err := tx.Where("role_id = ?", id).Delete(&RolePermission{}).Error; err != nil {
				return err
			}
			return s.replacePermissionsTx(tx, id, *permissionIDs)
		}
		return nil
	})
}

// Delete removes a role unless staff users still hold it.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inUse int64
		if err := tx.Table("users").Where("role_id = ?", id).Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return ErrRoleInUse
		}
		if err := tx.Where("role_id = ?", id).Delete(&RolePermission{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&Role{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListPermissions returns the full permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	var perms []Permission
	if err := s.db.WithContext(ctx).Order("name").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Service) replacePermissionsTx(tx *gorm.DB, roleID snowflake.ID, permissionIDs []snowflake.ID) error {
	for _, permID := range permissionIDs {
		var count int64
		if err := tx.Model(&Permission{}).Where("id = ?", permID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrPermissionNotFound
		}
		if err := tx.Create(&RolePermission{RoleID: roleID, PermissionID: permID}).Error; err != nil {
			return err
		}
	}
	return nil
}
