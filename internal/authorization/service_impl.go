package authorization

import (
	"context"
	"strings"
	"time"

	"github.com/broadbill/broadbill/internal/cache"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const permissionCacheTTL = 30 * time.Second

// ServiceImpl resolves capabilities through the user's role.
type ServiceImpl struct {
	db    *gorm.DB
	log   *zap.Logger
	perms cache.Cache[snowflake.ID, map[string]struct{}]
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:    p.DB,
		log:   p.Log.Named("authorization.service"),
		perms: cache.NewTTLCache[snowflake.ID, map[string]struct{}](),
	}
}

// Authorize returns nil when the user's role grants the capability.
func (s *ServiceImpl) Authorize(ctx context.Context, userID snowflake.ID, capability string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return ErrInvalidCapability
	}

	granted, err := s.grantedPermissions(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := granted[capability]; !ok {
		s.log.Debug("capability denied",
			zap.String("user_id", userID.String()),
			zap.String("capability", capability),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) grantedPermissions(ctx context.Context, userID snowflake.ID) (map[string]struct{}, error) {
	if cached, ok := s.perms.Get(userID); ok {
		return cached, nil
	}

	var names []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT p.name
		 FROM users u
		 JOIN roles r ON u.role_id = r.id
		 JOIN role_permissions rp ON r.id = rp.role_id
		 JOIN permissions p ON rp.permission_id = p.id
		 WHERE u.id = ? AND u.is_active`,
		userID,
	).Scan(&names).Error
	if err != nil {
		return nil, err
	}

	granted := make(map[string]struct{}, len(names))
	for _, name := range names {
		granted[name] = struct{}{}
	}
	s.perms.Set(userID, granted, permissionCacheTTL)
	return granted, nil
}

// Invalidate drops cached grants, e.g. after a role change.
func (s *ServiceImpl) Invalidate(userID snowflake.ID) {
	s.perms.Delete(userID)
}
