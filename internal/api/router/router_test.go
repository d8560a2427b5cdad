package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/internal/api/handler"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/jwt"
)

func setupTestRouter() *gin.Engine {
	cfg := &config.Config{}
	cfg.Auth = config.AuthConfig{
		JWTSecret:      "test-secret-key-at-least-32-characters",
		AccessTokenTTL: 15 * time.Minute,
	}
	h := &handler.Handler{
		Auth:     &handler.AuthHandler{},
		Vacation: &handler.VacationHandler{},
		Report:   &handler.ReportHandler{},
		Calendar: &handler.CalendarHandler{},
	}
	return Setup(cfg, h, jwt.NewManager(&cfg.Auth), nil, zap.NewNop())
}

func TestSetup_Routes(t *testing.T) {
	r := setupTestRouter()

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /health",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/refresh",
		"POST /api/v1/auth/logout",
		"GET /api/v1/auth/me",
		"POST /api/v1/vacations",
		"GET /api/v1/vacations/me",
		"GET /api/v1/vacations",
		"GET /api/v1/vacations/conflicts",
		"GET /api/v1/vacations/:id",
		"PUT /api/v1/vacations/:id",
		"DELETE /api/v1/vacations/:id",
		"PUT /api/v1/vacations/:id/review",
		"GET /api/v1/vacations/:id/conflicts",
		"POST /api/v1/vacations/:id/sync",
		"GET /api/v1/reports/monthly",
		"GET /api/v1/reports/monthly.csv",
		"GET /api/v1/reports/monthly.xlsx",
		"POST /api/v1/reports/monthly/send",
		"POST /api/v1/reminders/send",
		"GET /api/v1/calendar/feed.ics",
	}
	for _, e := range expected {
		if !registered[e] {
			t.Errorf("路由未注册: %s", e)
		}
	}
}

func TestSetup_Health(t *testing.T) {
	r := setupTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestSetup_RequiresAuth(t *testing.T) {
	r := setupTestRouter()

	for _, path := range []string{"/api/v1/vacations/me", "/api/v1/reports/monthly", "/api/v1/calendar/feed.ics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestSetup_AdminOnly(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "test-secret-key-at-least-32-characters", AccessTokenTTL: 15 * time.Minute}
	token, err := jwt.NewManager(&cfg).GenerateAccessToken(jwt.Identity{
		UserID: "u1", Role: "employee", Email: "alice@stars.mc", Company: "Stars",
	})
	if err != nil {
		t.Fatalf("生成 token 失败: %v", err)
	}

	r := setupTestRouter()
	for _, path := range []string{"/api/v1/vacations", "/api/v1/reports/monthly", "/api/v1/vacations/conflicts"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, w.Code)
		}
	}
}
