package zone

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
	ErrNotFound      = errors.New("zone_not_found")
	ErrDuplicateName = errors.New("zone_name_taken")
	ErrInvalidName   = errors.New("invalid_zone_name")
)

// UpdateZoneRequest is an explicit partial update; nil fields are left
// untouched.
type UpdateZoneRequest struct {
	Name        *string
	Description *string
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
		log:   p.Log.Named("zone.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, name, description string) (Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Zone{}, ErrInvalidName
	}

	now := s.clock.Now()
	created := Zone{
		ID:          s.genID.Generate(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Zone{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateName
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return Zone{}, err
	}
	return created, nil
}

func (s *Service) List(ctx context.Context) ([]Zone, error) {
	var zones []Zone
	if err := s.db.WithContext(ctx).Order("name").Find(&zones).Error; err != nil {
		return nil, err
	}
	return zones, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (Zone, error) {
	var found Zone
	err := s.db.WithContext(ctx).First(&found, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Zone{}, ErrNotFound
		}
		return Zone{}, err
	}
	return found, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdateZoneRequest) error {
	updates := map[string]any{}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return ErrInvalidName
		}
		updates["name"] = trimmed
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = s.clock.Now()

	result := s.db.WithContext(ctx).Model(&Zone{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	result := s.db.WithContext(ctx).Delete(&Zone{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
