package user

import (
	"context"
	"errors"
	"strings"

	"github.com/broadbill/broadbill/internal/auth/password"
	"github.com/broadbill/broadbill/internal/clock"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("user_not_found")
	ErrDuplicateName   = errors.New("username_taken")
	ErrInvalidUsername = errors.New("invalid_username")
	ErrInvalidPassword = errors.New("invalid_password")
	ErrRoleNotFound    = errors.New("role_not_found")
)

// CreateUserRequest carries a new staff account.
type CreateUserRequest struct {
	Username string
	Email    string
	Password string
	RoleID   *snowflake.ID
}

// UpdateUserRequest is an explicit partial update; nil fields are
// left untouched.
type UpdateUserRequest struct {
	Email    *string
	Password *string
	RoleID   *snowflake.ID
	IsActive *bool
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
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req CreateUserRequest) (User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return User{}, ErrInvalidUsername
	}
	if strings.TrimSpace(req.Password) == "" {
		return User{}, ErrInvalidPassword
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return User{}, err
	}

	now := s.clock.Now()
	created := User{
		ID:           s.genID.Generate(),
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hashed,
		RoleID:       req.RoleID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.RoleID != nil {
			var count int64
			if err := tx.Table("roles").Where("id = ?", *req.RoleID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrRoleNotFound
			}
		}
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateName
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return User{}, err
	}

	created.PasswordHash = ""
	return created, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (User, error) {
	var found User
	err := s.db.WithContext(ctx).First(&found, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	found.PasswordHash = ""
	return found, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdateUserRequest) error {
	updates := map[string]any{}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.Password != nil {
		if strings.TrimSpace(*req.Password) == "" {
			return ErrInvalidPassword
		}
		hashed, err := password.Hash(*req.Password)
		if err != nil {
			return err
		}
		updates["password_hash"] = hashed
	}
	if req.RoleID != nil {
		updates["role_id"] = *req.RoleID
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = s.clock.Now()

	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	result := s.db.WithContext(ctx).Delete(&User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
