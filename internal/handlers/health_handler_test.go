package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := newHandlerTestDB(t)
	h := NewHealthHandler(db, stubConn{connected: false}, nil, quietLogger())

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d body=%s", w.Code, w.Body.String())
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Services["database"].Status != "healthy" {
		t.Errorf("database service = %+v", resp.Services["database"])
	}
	// 连接器按需握手，未连接只是空闲，不降级
	if resp.Services["cloudtools"].Status != "idle" {
		t.Errorf("cloudtools service = %+v", resp.Services["cloudtools"])
	}
	if resp.Version == "" || resp.System.GoVersion == "" {
		t.Errorf("missing build identity: %+v", resp)
	}

	// Ready 只看数据库
	w = doJSON(t, r, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ready status=%d body=%s", w.Code, w.Body.String())
	}
	var ready struct {
		Ready    bool              `json:"ready"`
		Services map[string]string `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ready); err != nil {
		t.Fatalf("unmarshal ready: %v", err)
	}
	if !ready.Ready || ready.Services["database"] != "ready" {
		t.Fatalf("unexpected ready payload: %+v", ready)
	}
}

func TestHealthHandler_CloudToolsStates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerTestDB(t)

	// 没装连接器
	h := NewHealthHandler(db, nil, nil, quietLogger())
	r := gin.New()
	r.GET("/health", h.Health)
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if resp.Services["cloudtools"].Status != "disabled" {
		t.Errorf("cloudtools without connector = %+v", resp.Services["cloudtools"])
	}

	// 已建立会话
	h = NewHealthHandler(db, stubConn{connected: true}, nil, quietLogger())
	r = gin.New()
	r.GET("/health", h.Health)
	w = doJSON(t, r, http.MethodGet, "/health", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if resp.Services["cloudtools"].Status != "connected" {
		t.Errorf("cloudtools with live session = %+v", resp.Services["cloudtools"])
	}
}
