package handlers

import (
	"net/http"

	"foamcrm/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConnectionChecker reports whether the workspace connector holds a live
// session. *cloudtools.Connector satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// CloudSyncHandler 云同步处理器：四个一键操作加状态查询和推送
type CloudSyncHandler struct {
	syncService *services.CloudSyncService
	feed        *services.StatusFeed
	conn        ConnectionChecker
	logger      *logrus.Logger
}

// NewCloudSyncHandler 创建云同步处理器。feed 与 conn 可为 nil。
func NewCloudSyncHandler(syncService *services.CloudSyncService, feed *services.StatusFeed, conn ConnectionChecker, logger *logrus.Logger) *CloudSyncHandler {
	return &CloudSyncHandler{
		syncService: syncService,
		feed:        feed,
		conn:        conn,
		logger:      logger,
	}
}

// BackupToDrive 备份客户和工单到 Google Drive
// @Summary 备份到 Google Drive
// @Description 导出客户和工单两份带日期戳的 JSON 文件
// @Tags 云同步
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/cloudsync/backup [post]
func (h *CloudSyncHandler) BackupToDrive(c *gin.Context) {
	msg, err := h.syncService.BackupToDrive(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "Backup failed", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: msg})
}

// ExportToSheets 导出工单到 Google Sheets
// @Summary 导出到 Google Sheets
// @Description 把全部工单摊平成电子表格行
// @Tags 云同步
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/cloudsync/export [post]
func (h *CloudSyncHandler) ExportToSheets(c *gin.Context) {
	msg, err := h.syncService.ExportToSheets(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "Export failed", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: msg})
}

// CreateDocReport 生成 Google Docs 业务报告
// @Summary 生成业务报告文档
// @Tags 云同步
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/cloudsync/report [post]
func (h *CloudSyncHandler) CreateDocReport(c *gin.Context) {
	msg, err := h.syncService.CreateDocReport(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "Report failed", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: msg})
}

// EmailReport 把业务报告发送到公司邮箱
// @Summary 邮件发送业务报告
// @Tags 云同步
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/cloudsync/email-report [post]
func (h *CloudSyncHandler) EmailReport(c *gin.Context) {
	msg, err := h.syncService.EmailReport(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "Email report failed", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: msg})
}

// GetStatus 查询云同步当前状态
// @Summary 云同步状态
// @Description 返回状态栏消息、正在运行的操作和连接状态
// @Tags 云同步
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/cloudsync/status [get]
func (h *CloudSyncHandler) GetStatus(c *gin.Context) {
	connected := false
	if h.conn != nil {
		connected = h.conn.IsConnected()
	}
	subscribers := 0
	if h.feed != nil {
		subscribers = h.feed.GetClientCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      h.syncService.Board().Current(),
		"active_op":   h.syncService.ActiveOp(),
		"connected":   connected,
		"subscribers": subscribers,
	})
}

// Feed 升级为 websocket 并订阅状态事件
// @Summary 云同步状态推送
// @Tags 云同步
// @Router /api/v1/cloudsync/feed [get]
func (h *CloudSyncHandler) Feed(c *gin.Context) {
	if h.feed == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "Feed unavailable",
			Message: "status feed is not configured",
		})
		return
	}
	h.feed.HandleFeed(c)
}

// RegisterCloudSyncRoutes 注册云同步相关路由
func RegisterCloudSyncRoutes(r *gin.RouterGroup, handler *CloudSyncHandler) {
	sync := r.Group("/cloudsync")
	{
		sync.POST("/backup", handler.BackupToDrive)
		sync.POST("/export", handler.ExportToSheets)
		sync.POST("/report", handler.CreateDocReport)
		sync.POST("/email-report", handler.EmailReport)
		sync.GET("/status", handler.GetStatus)
		sync.GET("/feed", handler.Feed)
	}
}
