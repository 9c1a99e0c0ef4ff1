package customer

import (
	"context"
	"errors"
	"strings"

	"github.com/broadbill/broadbill/internal/auditcontext"
	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("customer_not_found")
	ErrMissingName    = errors.New("missing_full_name")
	ErrMissingPhone   = errors.New("missing_phone_number")
	ErrMissingAddress = errors.New("missing_address")
	ErrZoneNotFound   = errors.New("zone_not_found")
)

// CreateCustomerRequest carries a new subscriber account.
type CreateCustomerRequest struct {
	FullName    string
	Email       string
	PhoneNumber string
	Address     string
	ZoneID      *snowflake.ID
}

// UpdateCustomerRequest is an explicit partial update; nil fields are
// left untouched.
type UpdateCustomerRequest struct {
	FullName    *string
	Email       *string
	PhoneNumber *string
	Address     *string
	ZoneID      *snowflake.ID
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
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (Customer, error) {
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return Customer{}, ErrMissingName
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		return Customer{}, ErrMissingPhone
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return Customer{}, ErrMissingAddress
	}

	now := s.clock.Now()
	created := Customer{
		ID:          s.genID.Generate(),
		FullName:    fullName,
		Email:       strings.TrimSpace(req.Email),
		PhoneNumber: phone,
		Address:     address,
		ZoneID:      req.ZoneID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor := auditcontext.ActorFromContext(ctx); actor != "" {
		if id, err := snowflakeFromString(actor); err == nil {
			created.CreatedBy = &id
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.ZoneID != nil {
			var count int64
			if err := tx.Table("zones").Where("id = ?", *req.ZoneID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrZoneNotFound
			}
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return Customer{}, err
	}
	return created, nil
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) ([]Customer, pagination.PageInfo, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Customer{}).Count(&total).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}

	var customers []Customer
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Find(&customers).Error
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	info := pagination.PageInfo{
		NextPageToken: page.NextToken(len(customers)),
		TotalSize:     total,
	}
	return customers, info, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (Customer, error) {
	var found Customer
	err := s.db.WithContext(ctx).First(&found, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return found, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdateCustomerRequest) error {
	updates := map[string]any{}
	if req.FullName != nil {
		trimmed := strings.TrimSpace(*req.FullName)
		if trimmed == "" {
			return ErrMissingName
		}
		updates["full_name"] = trimmed
	}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.PhoneNumber != nil {
		trimmed := strings.TrimSpace(*req.PhoneNumber)
		if trimmed == "" {
			return ErrMissingPhone
		}
		updates["phone_number"] = trimmed
	}
	if req.Address != nil {
		trimmed := strings.TrimSpace(*req.Address)
		if trimmed == "" {
			return ErrMissingAddress
		}
		updates["address"] = trimmed
	}
	if req.ZoneID != nil {
		updates["zone_id"] = *req.ZoneID
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = s.clock.Now()

	result := s.db.WithContext(ctx).Model(&Customer{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	result := s.db.WithContext(ctx).Delete(&Customer{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func snowflakeFromString(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
