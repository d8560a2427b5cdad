package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/dto"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/repository"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/jwt"
)

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailTaken         = errors.New("邮箱已被注册")
	ErrInvalidToken       = errors.New("token 无效或已过期")
	ErrOldPasswordWrong   = errors.New("原密码错误")
)

// TokenBlacklist 已注销 Token 的黑名单
type TokenBlacklist interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error)
	// Logout 注销当前 access token；refreshToken 非空时一并注销
	Logout(ctx context.Context, accessJTI string, accessExp time.Time, refreshToken string) error
	Me(ctx context.Context, userID string) (*dto.UserDetailResponse, error)
	CreateUser(ctx context.Context, req *dto.CreateUserRequest, callerID string) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error
}

type authService struct {
	cfg       *config.Config
	repo      *repository.Repository
	jwtMgr    *jwt.Manager
	blacklist TokenBlacklist
	logger    *zap.Logger
}

// NewAuthService 创建 AuthService 实例；blacklist 为 nil 时注销仅依赖 Token 过期
func NewAuthService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:       cfg,
		repo:      repo,
		jwtMgr:    jwtMgr,
		blacklist: blacklist,
		logger:    logger,
	}
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户
	user, err := s.repo.User.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. 生成 Token 对
	return s.issueTokens(user, req.RememberMe)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	claims, err := s.jwtMgr.ParseToken(refreshToken)
	if err != nil || claims.TokenType != "refresh" {
		return nil, ErrInvalidToken
	}
	if s.isRevoked(ctx, claims.ID) {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 旧 refresh token 作废，轮换为新的
	s.revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	return s.issueTokens(user, claims.RememberMe)
}

func (s *authService) Logout(ctx context.Context, accessJTI string, accessExp time.Time, refreshToken string) error {
	s.revoke(ctx, accessJTI, accessExp)
	if refreshToken != "" {
		if claims, err := s.jwtMgr.ParseToken(refreshToken); err == nil {
			s.revoke(ctx, claims.ID, claims.ExpiresAt.Time)
		}
	}
	return nil
}

func (s *authService) Me(ctx context.Context, userID string) (*dto.UserDetailResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &dto.UserDetailResponse{
		UserResponse: toUserResponse(user),
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *authService) CreateUser(ctx context.Context, req *dto.CreateUserRequest, callerID string) (*dto.UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.User.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码加密失败", zap.Error(err))
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = model.RoleEmployee
	}
	user := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Company:      strings.TrimSpace(req.Company),
		PasswordHash: string(hash),
		Role:         role,
	}
	if callerID != "" {
		user.CreatedBy = &callerID
		user.UpdatedBy = &callerID
	}

	if err := s.repo.User.Create(ctx, user); err != nil {
		s.logger.Error("创建用户失败", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *authService) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrOldPasswordWrong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码加密失败", zap.Error(err))
		return err
	}
	user.PasswordHash = string(hash)
	user.UpdatedBy = &userID
	return s.repo.User.Update(ctx, user)
}

// ── 辅助函数 ──

func (s *authService) issueTokens(user *model.User, rememberMe bool) (*dto.TokenResponse, error) {
	id := jwt.Identity{
		UserID:  user.UserID,
		Role:    user.Role,
		Email:   user.Email,
		Name:    user.Name,
		Company: user.Company,
	}

	accessToken, err := s.jwtMgr.GenerateAccessToken(id)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	refreshToken, err := s.jwtMgr.GenerateRefreshToken(id, rememberMe)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwtMgr.AccessTokenTTL().Seconds()),
		User:         toUserResponse(user),
	}, nil
}

func (s *authService) revoke(ctx context.Context, jti string, exp time.Time) {
	if s.blacklist == nil || jti == "" {
		return
	}
	if err := s.blacklist.BlacklistToken(ctx, jti, time.Until(exp)); err != nil {
		s.logger.Warn("写入 Token 黑名单失败", zap.String("jti", jti), zap.Error(err))
	}
}

func (s *authService) isRevoked(ctx context.Context, jti string) bool {
	if s.blacklist == nil {
		return false
	}
	revoked, err := s.blacklist.IsBlacklisted(ctx, jti)
	if err != nil {
		s.logger.Warn("查询 Token 黑名单失败", zap.String("jti", jti), zap.Error(err))
		return false
	}
	return revoked
}

func toUserResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:      u.UserID,
		Name:    u.Name,
		Email:   u.Email,
		Company: u.Company,
		Role:    u.Role,
	}
}
