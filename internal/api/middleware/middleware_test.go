package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PierreCStars/stars-vacation-management-sub001/config"
	"github.com/PierreCStars/stars-vacation-management-sub001/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWTManager() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:               "test-secret-key-at-least-32-characters",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTLDefault:  24 * time.Hour,
		RefreshTokenTTLRemember: 7 * 24 * time.Hour,
	})
}

var testIdentity = jwt.Identity{
	UserID:  "user-1",
	Role:    "employee",
	Email:   "alice@stars.mc",
	Name:    "Alice",
	Company: "Stars",
}

func TestJWTAuth_InjectsIdentity(t *testing.T) {
	mgr := newJWTManager()
	token, err := mgr.GenerateAccessToken(testIdentity)
	if err != nil {
		t.Fatalf("生成 token 失败: %v", err)
	}

	var got map[string]string
	r := gin.New()
	r.GET("/p", JWTAuth(mgr, nil), func(c *gin.Context) {
		got = map[string]string{
			"user_id": c.GetString("user_id"),
			"email":   c.GetString("email"),
			"company": c.GetString("company"),
			"jti":     c.GetString("token_jti"),
		}
		if c.GetTime("token_exp").IsZero() {
			t.Error("token_exp 未注入")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/p", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got["user_id"] != "user-1" || got["email"] != "alice@stars.mc" || got["company"] != "Stars" {
		t.Errorf("身份注入错误: %+v", got)
	}
	if got["jti"] == "" {
		t.Error("token_jti 未注入")
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	mgr := newJWTManager()
	refresh, _ := mgr.GenerateRefreshToken(testIdentity, false)

	tests := []struct {
		name   string
		header string
	}{
		{"缺少认证头", ""},
		{"格式无效", "Token abc"},
		{"签名无效", "Bearer not-a-jwt"},
		{"refresh token 不能访问接口", "Bearer " + refresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/p", JWTAuth(mgr, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestRoleAuth(t *testing.T) {
	tests := []struct {
		role   string
		status int
	}{
		{"admin", http.StatusOK},
		{"employee", http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		r := gin.New()
		r.GET("/p", func(c *gin.Context) {
			if tt.role != "" {
				c.Set("role", tt.role)
			}
			c.Next()
		}, RoleAuth("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/p", nil))

		if w.Code != tt.status {
			t.Errorf("role=%q: expected %d, got %d", tt.role, tt.status, w.Code)
		}
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/p", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	// 合法的外部 ID 原样透传
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/p", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("expected abc-123, got %q", got)
	}

	// 含控制字符的 ID 被替换
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/p", nil)
	req.Header.Set(requestIDHeader, "bad id\tinjected")
	r.ServeHTTP(w, req)
	got := w.Header().Get(requestIDHeader)
	if got == "" || strings.Contains(got, " ") {
		t.Errorf("expected generated uuid, got %q", got)
	}
	if w.Body.String() != got {
		t.Errorf("上下文与响应头不一致: %q vs %q", w.Body.String(), got)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://vacations.stars.mc/"}))
	r.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/p", nil)
	req.Header.Set("Origin", "https://vacations.stars.mc")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://vacations.stars.mc" {
		t.Error("expected origin to be allowed")
	}
	if !strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition") {
		t.Error("expected Content-Disposition to be exposed")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/p", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unexpected CORS header for unknown origin")
	}
}

func TestBodyLimit_ContentLength(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/p", strings.NewReader(strings.Repeat("x", 64))))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestRateLimit_NoRedisAllows(t *testing.T) {
	r := gin.New()
	r.GET("/p", RateLimit(nil, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/p", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次请求: expected 200, got %d", i+1, w.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/p", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if !strings.Contains(w.Header().Get("Content-Security-Policy"), "default-src 'none'") {
		t.Error("unexpected CSP")
	}
}
