package handlers

import (
	"net/http"

	"foamcrm/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CompanyHandler 公司设置处理器
type CompanyHandler struct {
	companyService *services.CompanyService
	logger         *logrus.Logger
}

// NewCompanyHandler 创建公司设置处理器
func NewCompanyHandler(companyService *services.CompanyService, logger *logrus.Logger) *CompanyHandler {
	return &CompanyHandler{
		companyService: companyService,
		logger:         logger,
	}
}

// GetSettings 获取公司设置
// @Summary 获取公司设置
// @Description 读取唯一的公司信息行，首次访问时自动创建空行
// @Tags 公司设置
// @Accept json
// @Produce json
// @Success 200 {object} models.CompanySettings
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/company [get]
func (h *CompanyHandler) GetSettings(c *gin.Context) {
	settings, err := h.companyService.GetSettings(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "Failed to get company settings", err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings 更新公司设置
// @Summary 更新公司设置
// @Description 更新公司信息，未出现的字段保持不变
// @Tags 公司设置
// @Accept json
// @Produce json
// @Param settings body services.CompanyUpdateRequest true "公司信息"
// @Success 200 {object} models.CompanySettings
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/company [put]
func (h *CompanyHandler) UpdateSettings(c *gin.Context) {
	var req services.CompanyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	settings, err := h.companyService.UpdateSettings(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to update company settings", err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// RegisterCompanyRoutes 注册公司设置相关路由
func RegisterCompanyRoutes(r *gin.RouterGroup, handler *CompanyHandler) {
	company := r.Group("/company")
	{
		company.GET("", handler.GetSettings)
		company.PUT("", handler.UpdateSettings)
	}
}
