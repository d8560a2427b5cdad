package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PierreCStars/stars-vacation-management-sub001/internal/service"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, "user_id")
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	return mustGetString(c, "role")
}

// MustGetActor 组装当前操作人；email 缺失视为未认证
func MustGetActor(c *gin.Context) (service.Actor, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return service.Actor{}, false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return service.Actor{}, false
	}
	email, ok := mustGetString(c, "email")
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{
		UserID:  userID,
		Role:    role,
		Email:   email,
		Name:    c.GetString("name"),
		Company: c.GetString("company"),
	}, true
}

// tokenMeta 当前 Access Token 的 jti 与过期时间，登出时使用
func tokenMeta(c *gin.Context) (string, time.Time) {
	return c.GetString("token_jti"), c.GetTime("token_exp")
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}
