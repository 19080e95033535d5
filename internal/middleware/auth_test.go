package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"foamcrm/internal/config"

	"github.com/gin-gonic/gin"
)

func mintTestToken(t *testing.T, secret string, claims map[string]interface{}) string {
	t.Helper()
	token, err := SignHS256(secret, claims)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret"},
	}

	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	expired := mintTestToken(t, "test-secret", map[string]interface{}{
		"user_id": 1,
		"iat":     time.Now().Add(-2 * time.Hour).Unix(),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := mintTestToken(t, "other-secret", map[string]interface{}{
		"user_id": 1,
	})

	tests := []struct {
		name           string
		authHeader     string
		wantStatusCode int
	}{
		{
			name:           "missing authorization header",
			authHeader:     "",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid bearer format",
			authHeader:     "Basic token-value",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "only bearer prefix",
			authHeader:     "Bearer ",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "malformed jwt",
			authHeader:     "Bearer not.a.valid.jwt",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer " + expired,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "signed with another secret",
			authHeader:     "Bearer " + wrongKey,
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatusCode)
			}
		})
	}
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "test-secret"
	cfg := &config.Config{JWT: config.JWTConfig{Secret: secret}}

	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/whoami", func(c *gin.Context) {
		uid, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"user_id": uid})
	})

	now := time.Now()
	token := mintTestToken(t, secret, map[string]interface{}{
		"user_id": 7,
		"roles":   []string{"admin"},
		"iat":     now.Unix(),
		"exp":     now.Add(10 * time.Minute).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
}

// TestAuthMiddleware_BuiltinRoles exercises the default FoamCRM role
// expansion used when no RBAC mapping is configured: office staff write
// the CRM but only read automations, crew read jobs and customers.
func TestAuthMiddleware_BuiltinRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "test-secret"
	cfg := &config.Config{JWT: config.JWTConfig{Secret: secret}}

	newRouter := func(resource string) *gin.Engine {
		r := gin.New()
		r.Use(AuthMiddleware(cfg))
		r.Use(RequireResourcePermission(resource))
		handle := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
		r.GET("/r", handle)
		r.POST("/r", handle)
		return r
	}
	mint := func(role string) string {
		now := time.Now()
		return mintTestToken(t, secret, map[string]interface{}{
			"user_id": 1,
			"roles":   []string{role},
			"iat":     now.Unix(),
			"exp":     now.Add(10 * time.Minute).Unix(),
		})
	}

	tests := []struct {
		name     string
		role     string
		resource string
		method   string
		want     int
	}{
		{"office writes jobs", "office", "jobs", http.MethodPost, http.StatusOK},
		{"office reads automations", "office", "automations", http.MethodGet, http.StatusOK},
		{"office cannot write automations", "office", "automations", http.MethodPost, http.StatusForbidden},
		{"office runs cloud sync", "office", "cloudsync", http.MethodPost, http.StatusOK},
		{"crew reads jobs", "crew", "jobs", http.MethodGet, http.StatusOK},
		{"crew cannot write jobs", "crew", "jobs", http.MethodPost, http.StatusForbidden},
		{"crew cannot touch company settings", "crew", "company", http.MethodGet, http.StatusForbidden},
		{"admin does everything", "admin", "automations", http.MethodPost, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(tt.resource)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, "/r", nil)
			req.Header.Set("Authorization", "Bearer "+mint(tt.role))
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body=%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_RBACRoleExpansion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "test-secret"
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: secret},
		Security: config.SecurityConfig{
			RBAC: config.RBACConfig{
				Enabled: true,
				Roles: map[string][]string{
					"estimator": {"jobs.read", "customers.read"},
				},
			},
		},
	}

	now := time.Now()
	token := mintTestToken(t, secret, map[string]interface{}{
		"user_id": 1,
		"roles":   []string{"estimator"},
		"iat":     now.Unix(),
		"exp":     now.Add(10 * time.Minute).Unix(),
	})

	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.Use(RequireResourcePermission("jobs"))
	r.GET("/jobs", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	r.POST("/jobs", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	// 映射给出 jobs.read，GET 放行
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	// estimator 没有 jobs.write，POST 拒绝
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodPost, "/jobs", nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusForbidden {
		t.Fatalf("POST expected 403 got %d body=%s", w2.Code, w2.Body.String())
	}

	// RBAC 开启后内建角色不再生效
	officeToken := mintTestToken(t, secret, map[string]interface{}{
		"user_id": 2,
		"roles":   []string{"office"},
		"iat":     now.Unix(),
		"exp":     now.Add(10 * time.Minute).Unix(),
	})
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodGet, "/jobs", nil)
	req3.Header.Set("Authorization", "Bearer "+officeToken)
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusForbidden {
		t.Fatalf("unmapped role expected 403 got %d body=%s", w3.Code, w3.Body.String())
	}
}
