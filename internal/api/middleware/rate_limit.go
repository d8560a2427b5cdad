package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/redis"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/response"
)

// RateLimit 基于 Redis 滑动窗口的速率限制中间件，按客户端 IP + 路由计数
// rdb 为 nil 或 Redis 出错时降级放行
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.FullPath())
		if !allow(c, rdb, key, limit, window) {
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserRateLimit 按已认证用户计数，需挂在 JWTAuth 之后（如日历同步、月报发送）
func UserRateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:user:%s:%s", c.GetString("user_id"), c.FullPath())
		if !allow(c, rdb, key, limit, window) {
			response.Error(c, http.StatusTooManyRequests, 10004, "操作过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}

func allow(c *gin.Context, rdb *redis.Client, key string, limit int, window time.Duration) bool {
	if rdb == nil {
		return true
	}
	ok, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
	if err != nil {
		return true
	}
	return ok
}
