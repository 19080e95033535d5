package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"foamcrm/internal/services"
	"foamcrm/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db     *gorm.DB
	conn   ConnectionChecker
	feed   *services.StatusFeed
	logger *logrus.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(db *gorm.DB, conn ConnectionChecker, feed *services.StatusFeed, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthHandler{db: db, conn: conn, feed: feed, logger: logger}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    time.Duration `json:"uptime"`
	Version   string        `json:"version"`
	GoVersion string        `json:"go_version"`
}

var startTime = time.Now()

// Health 健康检查端点
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   version.Version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime),
			Version:   version.Version,
			GoVersion: runtime.Version(),
		},
	}

	// 数据库不可用时整个 CRM 都不可用
	if !h.checkDatabase(ctx, &response) {
		response.Status = "unhealthy"
	}

	// 云端连接器按需握手，未连接属于正常状态，只展示不降级
	h.checkCloudTools(&response)

	if h.feed != nil {
		response.Services["feed"] = ServiceInfo{
			Status:  "healthy",
			Details: map[string]interface{}{"subscribers": h.feed.GetClientCount()},
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// Ready 就绪检查端点：只看核心依赖
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]string)

	if err := h.pingDatabase(ctx); err != nil {
		checks["database"] = "not_ready"
		ready = false
	} else {
		checks["database"] = "ready"
	}

	response := map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now(),
		"services":  checks,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// pingDatabase 对底层连接池做一次握手
func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// checkDatabase 检查数据库状态
func (h *HealthHandler) checkDatabase(ctx context.Context, response *HealthResponse) bool {
	start := time.Now()

	if err := h.pingDatabase(ctx); err != nil {
		h.logger.Errorf("Database health check failed: %v", err)
		response.Services["database"] = ServiceInfo{
			Status:  "unhealthy",
			Latency: time.Since(start).String(),
			Error:   err.Error(),
		}
		return false
	}

	response.Services["database"] = ServiceInfo{
		Status:  "healthy",
		Latency: time.Since(start).String(),
	}
	return true
}

// checkCloudTools 展示云端工具连接状态
func (h *HealthHandler) checkCloudTools(response *HealthResponse) {
	if h.conn == nil {
		response.Services["cloudtools"] = ServiceInfo{Status: "disabled"}
		return
	}
	status := "idle"
	if h.conn.IsConnected() {
		status = "connected"
	}
	response.Services["cloudtools"] = ServiceInfo{Status: status}
}
