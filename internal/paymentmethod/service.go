package paymentmethod

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
	ErrNotFound      = errors.New("payment_method_not_found")
	ErrDuplicateName = errors.New("payment_method_name_taken")
	ErrInvalidName   = errors.New("invalid_payment_method_name")
	ErrMethodInUse   = errors.New("payment_method_in_use")
)

// CreateMethodRequest carries a new offline payment channel.
type CreateMethodRequest struct {
	Name               string
	IsActive           *bool
	IsApprovalRequired *bool
}

// UpdateMethodRequest is an explicit partial update; nil fields are
// left untouched.
type UpdateMethodRequest struct {
	Name               *string
	IsActive           *bool
	IsApprovalRequired *bool
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
		log:   p.Log.Named("paymentmethod.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req CreateMethodRequest) (PaymentMethod, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return PaymentMethod{}, ErrInvalidName
	}

	now := s.clock.Now()
	created := PaymentMethod{
		ID:                 s.genID.Generate(),
		Name:               name,
		MethodType:         "offline",
		IsActive:           true,
		IsApprovalRequired: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.IsActive != nil {
		created.IsActive = *req.IsActive
	}
	if req.IsApprovalRequired != nil {
		created.IsApprovalRequired = *req.IsApprovalRequired
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&PaymentMethod{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateName
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return PaymentMethod{}, err
	}
	return created, nil
}

// List returns offline methods ordered by name.
func (s *Service) List(ctx context.Context) ([]PaymentMethod, error) {
	var methods []PaymentMethod
	if err := s.db.WithContext(ctx).
		Where("method_type = ?", "offline").
		Order("name").
		Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdateMethodRequest) error {
	updates := map[string]any{}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return ErrInvalidName
		}
		updates["name"] = trimmed
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsApprovalRequired != nil {
		updates["is_approval_required"] = *req.IsApprovalRequired
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Name != nil {
			var count int64
			if err := tx.Model(&PaymentMethod{}).
				Where("name = ? AND id <> ?", updates["name"], id).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateName
			}
		}
		result := tx.Model(&PaymentMethod{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes a method unless transactions reference it.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inUse int64
		if err := tx.Table("transactions").Where("payment_method_id = ?", id).Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return ErrMethodInUse
		}
		result := tx.Delete(&PaymentMethod{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
