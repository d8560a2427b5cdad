package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/dto"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/response"
)

const refreshCookieName = "refresh_token"

// CookieOptions Refresh Token Cookie 设置
type CookieOptions struct {
	Path   string
	Secure bool
	MaxAge int // 秒
}

var defaultCookieOptions = CookieOptions{Path: "/api/v1/auth", MaxAge: 7 * 24 * 3600}

// AuthHandler 认证模块 HTTP 处理器
type AuthHandler struct {
	authSvc service.AuthService
	cookie  CookieOptions
}

// NewAuthHandler 创建 AuthHandler；cookie 为 nil 时使用默认设置
func NewAuthHandler(authSvc service.AuthService, cookie *CookieOptions) *AuthHandler {
	opts := defaultCookieOptions
	if cookie != nil {
		opts = *cookie
	}
	return &AuthHandler{authSvc: authSvc, cookie: opts}
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		handleAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	response.OK(c, result)
}

// RefreshToken 刷新 Token
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshTokenRequest
	// 允许空 body（Cookie 模式）
	_ = c.ShouldBindJSON(&req)

	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(refreshCookieName)
	}
	if token == "" {
		response.BadRequest(c, 10001, "缺少 refresh_token")
		return
	}

	result, err := h.authSvc.Refresh(c.Request.Context(), token)
	if err != nil {
		handleAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	response.OK(c, result)
}

// Logout 用户登出：吊销当前 Access Token 与 Refresh Token
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	jti, exp := tokenMeta(c)

	var req dto.RefreshTokenRequest
	_ = c.ShouldBindJSON(&req)
	refresh := req.RefreshToken
	if refresh == "" {
		refresh, _ = c.Cookie(refreshCookieName)
	}

	if err := h.authSvc.Logout(c.Request.Context(), jti, exp, refresh); err != nil {
		handleAuthError(c, err)
		return
	}

	c.SetCookie(refreshCookieName, "", -1, h.cookie.Path, "", h.cookie.Secure, true)
	response.OK(c, nil)
}

// Me 当前用户信息
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.authSvc.Me(c.Request.Context(), userID)
	if err != nil {
		handleAuthError(c, err)
		return
	}

	response.OK(c, result)
}

// ChangePassword 修改密码
// PUT /api/v1/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	if err := h.authSvc.ChangePassword(c.Request.Context(), userID, &req); err != nil {
		handleAuthError(c, err)
		return
	}

	response.OK(c, nil)
}

// CreateUser 管理员创建账号
// POST /api/v1/users
func (h *AuthHandler) CreateUser(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.authSvc.CreateUser(c.Request.Context(), &req, userID)
	if err != nil {
		handleAuthError(c, err)
		return
	}

	response.Created(c, result)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	if token == "" {
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, h.cookie.MaxAge, h.cookie.Path, "", h.cookie.Secure, true)
}

// handleAuthError 认证模块错误映射
func handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, 11001, "邮箱或密码错误")
	case errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(c, 11002, "Token 无效或已过期")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 11003, "用户不存在")
	case errors.Is(err, service.ErrEmailTaken):
		response.Conflict(c, 11004, "邮箱已被注册")
	case errors.Is(err, service.ErrOldPasswordWrong):
		response.BadRequest(c, 11005, "原密码错误")
	default:
		response.InternalError(c)
	}
}
