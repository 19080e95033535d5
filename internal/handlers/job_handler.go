package handlers

import (
	"net/http"

	"foamcrm/internal/models"
	"foamcrm/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// JobHandler 工单管理处理器
type JobHandler struct {
	jobService *services.JobService
	logger     *logrus.Logger
}

// NewJobHandler 创建工单处理器
func NewJobHandler(jobService *services.JobService, logger *logrus.Logger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		logger:     logger,
	}
}

// CreateJob 创建工单
// @Summary 创建工单
// @Description 创建新的工单，报价单号全局唯一
// @Tags 工单管理
// @Accept json
// @Produce json
// @Param job body services.JobCreateRequest true "工单信息"
// @Success 201 {object} models.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/jobs [post]
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req services.JobCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	job, err := h.jobService.CreateJob(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to create job", err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob 获取工单详情
// @Summary 获取工单详情
// @Description 根据ID获取工单及其客户信息
// @Tags 工单管理
// @Accept json
// @Produce json
// @Param id path int true "工单ID"
// @Success 200 {object} models.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/jobs/{id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := h.jobService.GetJob(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs 获取工单列表
// @Summary 获取工单列表
// @Description 获取工单列表，支持分页和按状态/客户过滤
// @Tags 工单管理
// @Accept json
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页大小"
// @Param status query string false "状态过滤"
// @Param customer_id query int false "客户过滤"
// @Success 200 {object} PaginatedResponse{data=[]models.Job}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req services.JobListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	jobs, total, err := h.jobService.ListJobs(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to list jobs", err)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     jobs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// UpdateJob 更新工单
// @Summary 更新工单
// @Description 更新工单字段，未出现的字段保持不变
// @Tags 工单管理
// @Accept json
// @Produce json
// @Param id path int true "工单ID"
// @Param job body services.JobUpdateRequest true "更新信息"
// @Success 200 {object} models.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/jobs/{id} [put]
func (h *JobHandler) UpdateJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.JobUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	job, err := h.jobService.UpdateJob(c.Request.Context(), id, &req)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to update job", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// UpdateJobStatus 更新工单状态
// @Summary 更新工单状态
// @Description 推进工单生命周期状态
// @Tags 工单管理
// @Accept json
// @Produce json
// @Param id path int true "工单ID"
// @Param status body object true "目标状态"
// @Success 200 {object} models.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/jobs/{id}/status [patch]
func (h *JobHandler) UpdateJobStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status models.JobStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	job, err := h.jobService.UpdateJobStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to update job status", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// DeleteJob 删除工单
// @Summary 删除工单
// @Description 软删除工单
// @Tags 工单管理
// @Accept json
// @Produce json
// @Param id path int true "工单ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/jobs/{id} [delete]
func (h *JobHandler) DeleteJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.jobService.DeleteJob(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.logger, "Failed to delete job", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Job deleted"})
}

// RegisterJobRoutes 注册工单管理相关路由
func RegisterJobRoutes(r *gin.RouterGroup, handler *JobHandler) {
	jobs := r.Group("/jobs")
	{
		jobs.POST("", handler.CreateJob)
		jobs.GET("", handler.ListJobs)
		jobs.GET("/:id", handler.GetJob)
		jobs.PUT("/:id", handler.UpdateJob)
		jobs.PATCH("/:id/status", handler.UpdateJobStatus)
		jobs.DELETE("/:id", handler.DeleteJob)
	}
}
