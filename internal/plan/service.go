package plan

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
	ErrNotFound        = errors.New("plan_not_found")
	ErrDuplicate       = errors.New("plan_name_or_code_taken")
	ErrInvalidName     = errors.New("invalid_plan_name")
	ErrInvalidPrice    = errors.New("invalid_plan_price")
	ErrInvalidDuration = errors.New("invalid_plan_duration")
	ErrInvalidSpeed    = errors.New("invalid_plan_speed")
	ErrPlanInUse       = errors.New("plan_in_use")
)

// CreatePlanRequest carries a new pricing template.
type CreatePlanRequest struct {
	Name         string
	PlanCode     *string
	SpeedMbps    int
	DataLimitGB  *int
	Price        int64
	DurationDays int
	IsActive     *bool
}

// UpdatePlanRequest is an explicit partial update; nil fields are left
// untouched.
type UpdatePlanRequest struct {
	Name         *string
	PlanCode     *string
	SpeedMbps    *int
	DataLimitGB  *int
	Price        *int64
	DurationDays *int
	IsActive     *bool
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
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req CreatePlanRequest) (Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Plan{}, ErrInvalidName
	}
	if req.Price <= 0 {
		return Plan{}, ErrInvalidPrice
	}
	if req.DurationDays <= 0 {
		return Plan{}, ErrInvalidDuration
	}
	if req.SpeedMbps <= 0 {
		return Plan{}, ErrInvalidSpeed
	}

	now := s.clock.Now()
	created := Plan{
		ID:           s.genID.Generate(),
		Name:         name,
		PlanCode:     normalizeCode(req.PlanCode),
		SpeedMbps:    req.SpeedMbps,
		DataLimitGB:  req.DataLimitGB,
		Price:        req.Price,
		DurationDays: req.DurationDays,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsActive != nil {
		created.IsActive = *req.IsActive
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkUniqueTx(tx, name, created.PlanCode, 0); err != nil {
			return err
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return Plan{}, err
	}
	return created, nil
}

func (s *Service) List(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	if err := s.db.WithContext(ctx).Order("name").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (Plan, error) {
	var found Plan
	err := s.db.WithContext(ctx).First(&found, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Plan{}, ErrNotFound
		}
		return Plan{}, err
	}
	return found, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdatePlanRequest) error {
	updates := map[string]any{}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return ErrInvalidName
		}
		updates["name"] = trimmed
	}
	if req.PlanCode != nil {
		updates["plan_code"] = normalizeCode(req.PlanCode)
	}
	if req.SpeedMbps != nil {
		if *req.SpeedMbps <= 0 {
			return ErrInvalidSpeed
		}
		updates["speed_mbps"] = *req.SpeedMbps
	}
	if req.DataLimitGB != nil {
		updates["data_limit_gb"] = *req.DataLimitGB
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			return ErrInvalidPrice
		}
		updates["price"] = *req.Price
	}
	if req.DurationDays != nil {
		if *req.DurationDays <= 0 {
			return ErrInvalidDuration
		}
		updates["duration_days"] = *req.DurationDays
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Name != nil {
			var count int64
			if err := tx.Model(&Plan{}).Where("name = ? AND id <> ?", updates["name"], id).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicate
			}
		}
		result := tx.Model(&Plan{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes a plan unless active subscriptions still reference it.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Table("subscriptions").
			Where("plan_id = ? AND status = ?", id, "active").
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrPlanInUse
		}
		result := tx.Delete(&Plan{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Service) checkUniqueTx(tx *gorm.DB, name string, code *string, excludeID snowflake.ID) error {
	var count int64
	query := tx.Model(&Plan{}).Where("name = ?", name)
	if code != nil {
		query = tx.Model(&Plan{}).Where("name = ? OR plan_code = ?", name, *code)
	}
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicate
	}
	return nil
}

func normalizeCode(code *string) *string {
	if code == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*code)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
