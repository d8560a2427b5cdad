package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/api/handler"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/api/middleware"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/model"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/jwt"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/redis"
)

const maxBodyBytes = 1 << 20

// Setup 初始化并返回 Gin 路由引擎；rdb 可为 nil
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	admin := middleware.RoleAuth(model.RoleAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(rdb, 10, time.Minute), h.Auth.Login)
			auth.POST("/refresh", middleware.RateLimit(rdb, 30, time.Minute), h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.Me)
			authorized.PUT("/auth/password", h.Auth.ChangePassword)

			authorized.POST("/users", admin, h.Auth.CreateUser)

			// 假期申请
			vacations := authorized.Group("/vacations")
			{
				vacations.POST("", h.Vacation.Create)
				vacations.GET("/me", h.Vacation.ListMine)
				vacations.GET("", admin, h.Vacation.List)
				vacations.GET("/conflicts", admin, h.Vacation.ConflictsOverview)
				vacations.GET("/:id", h.Vacation.Get) // 本人或管理员（Service 层鉴权）
				vacations.PUT("/:id", h.Vacation.Update)
				vacations.DELETE("/:id", h.Vacation.Delete)
				vacations.PUT("/:id/review", admin, h.Vacation.Review)
				vacations.GET("/:id/conflicts", h.Vacation.Conflicts)
				vacations.POST("/:id/sync", admin, middleware.UserRateLimit(rdb, 20, time.Minute), h.Vacation.Sync)
				vacations.GET("/:id/calendar-event", admin, h.Calendar.LinkedEvent)
			}

			// 月度报表
			reports := authorized.Group("/reports", admin)
			{
				reports.GET("/monthly", h.Report.Monthly)
				reports.GET("/monthly.csv", h.Report.MonthlyCSV)
				reports.GET("/monthly.xlsx", h.Report.MonthlyXLSX)
				reports.POST("/monthly/send", middleware.UserRateLimit(rdb, 5, time.Hour), h.Report.SendMonthly)
			}

			authorized.POST("/reminders/send", admin, middleware.UserRateLimit(rdb, 5, time.Hour), h.Report.SendReminders)

			// 日历订阅
			authorized.GET("/calendar/feed.ics", h.Calendar.Feed)
		}
	}

	return r
}
