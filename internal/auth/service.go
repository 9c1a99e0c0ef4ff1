package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/broadbill/broadbill/internal/auth/password"
	"github.com/broadbill/broadbill/internal/clock"
	"github.com/broadbill/broadbill/internal/config"
	userdomain "github.com/broadbill/broadbill/internal/user"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserDisabled       = errors.New("user_disabled")
)

// LoginResponse carries the issued token and the authenticated user.
type LoginResponse struct {
	Token    string          `json:"token"`
	User     userdomain.User `json:"user"`
	RoleName string          `json:"role_name,omitempty"`
}

// Service authenticates staff users and issues access tokens.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	issuer *TokenIssuer
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

func NewService(p Params) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("auth.service"),
		clock:  p.Clock,
		issuer: NewTokenIssuer(p.Cfg.TokenSecret, p.Cfg.TokenLifetime),
	}
}

// Issuer exposes the token issuer for the HTTP middleware.
func (s *Service) Issuer() *TokenIssuer { return s.issuer }

// Login verifies credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, username, plain string) (LoginResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || plain == "" {
		return LoginResponse{}, ErrInvalidCredentials
	}

	var user userdomain.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LoginResponse{}, ErrInvalidCredentials
		}
		return LoginResponse{}, err
	}
	if !user.IsActive {
		return LoginResponse{}, ErrUserDisabled
	}

	if err := password.Verify(plain, user.PasswordHash); err != nil {
		s.log.Warn("failed login attempt", zap.String("username", username))
		return LoginResponse{}, ErrInvalidCredentials
	}

	now := s.clock.Now()
	token, err := s.issuer.Issue(user.ID, now)
	if err != nil {
		return LoginResponse{}, err
	}

	var roleName string
	if user.RoleID != nil {
		if err := s.db.WithContext(ctx).
			Table("roles").
			Select("name").
			Where("id = ?", *user.RoleID).
			Scan(&roleName).Error; err != nil {
			return LoginResponse{}, err
		}
	}

	user.PasswordHash = ""
	return LoginResponse{Token: token, User: user, RoleName: roleName}, nil
}

// AuthenticatedUserID validates a bearer token.
func (s *Service) AuthenticatedUserID(raw string) (int64, error) {
	id, err := s.issuer.Validate(raw)
	if err != nil {
		return 0, err
	}
	return int64(id), nil
}
