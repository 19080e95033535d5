package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"foamcrm/internal/models"
	"foamcrm/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler 自动化规则处理器：直接 CRUD 加编辑会话两组端点。
// 编辑会话持有服务端草稿，提交前的修改不会触碰已保存的规则。
type AutomationHandler struct {
	automationService *services.AutomationService
	editors           *services.EditorManager
	logger            *logrus.Logger
}

// NewAutomationHandler 创建自动化规则处理器
func NewAutomationHandler(automationService *services.AutomationService, editors *services.EditorManager, logger *logrus.Logger) *AutomationHandler {
	return &AutomationHandler{
		automationService: automationService,
		editors:           editors,
		logger:            logger,
	}
}

// editorStateResponse is the wire shape of one editor session.
type editorStateResponse struct {
	SessionID string             `json:"session_id"`
	SourceID  uint               `json:"source_id"`
	Dirty     bool               `json:"dirty"`
	Draft     *models.Automation `json:"draft"`
}

func editorState(session *services.EditorSession, draft *models.Automation) editorStateResponse {
	return editorStateResponse{
		SessionID: session.ID(),
		SourceID:  session.SourceID(),
		Dirty:     session.Dirty(),
		Draft:     draft,
	}
}

// editorPatchRequest carries exactly one edit per call, selected by op.
// The config payloads stay raw until the op tells us which variant to
// decode them into.
type editorPatchRequest struct {
	Op            string             `json:"op" binding:"required"`
	Name          *string            `json:"name"`
	Enabled       *bool              `json:"enabled"`
	TriggerType   models.TriggerType `json:"trigger_type"`
	TriggerConfig json.RawMessage    `json:"trigger_config"`
	ActionID      int64              `json:"action_id"`
	ActionType    models.ActionType  `json:"action_type"`
	ActionConfig  json.RawMessage    `json:"action_config"`
}

// ListAutomations 获取自动化规则列表
// @Summary 获取自动化规则列表
// @Description 返回全部自动化规则，新建的排在前面
// @Tags 自动化
// @Accept json
// @Produce json
// @Success 200 {array} models.Automation
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/automations [get]
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	automations, err := h.automationService.ListAutomations(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "Failed to list automations", err)
		return
	}
	c.JSON(http.StatusOK, automations)
}

// GetAutomation 获取自动化规则详情
// @Summary 获取自动化规则详情
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path int true "规则ID"
// @Success 200 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/{id} [get]
func (h *AutomationHandler) GetAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	automation, err := h.automationService.GetAutomation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to get automation", err)
		return
	}
	c.JSON(http.StatusOK, automation)
}

// CreateAutomation 直接创建自动化规则（不经编辑会话）
// @Summary 创建自动化规则
// @Description 创建并校验一条完整的自动化规则
// @Tags 自动化
// @Accept json
// @Produce json
// @Param automation body models.Automation true "规则"
// @Success 201 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/automations [post]
func (h *AutomationHandler) CreateAutomation(c *gin.Context) {
	var automation models.Automation
	if err := c.ShouldBindJSON(&automation); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	saved, err := h.automationService.CreateAutomation(c.Request.Context(), &automation)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to create automation", err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// UpdateAutomation 直接更新自动化规则（不经编辑会话）
// @Summary 更新自动化规则
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path int true "规则ID"
// @Param automation body models.Automation true "规则"
// @Success 200 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/{id} [put]
func (h *AutomationHandler) UpdateAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var automation models.Automation
	if err := c.ShouldBindJSON(&automation); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	saved, err := h.automationService.UpdateAutomation(c.Request.Context(), id, &automation)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to update automation", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// ToggleAutomation 启用/停用自动化规则
// @Summary 启用/停用自动化规则
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path int true "规则ID"
// @Success 200 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/{id}/toggle [post]
func (h *AutomationHandler) ToggleAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	automation, err := h.automationService.ToggleAutomation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, "Failed to toggle automation", err)
		return
	}
	c.JSON(http.StatusOK, automation)
}

// DeleteAutomation 删除自动化规则
// @Summary 删除自动化规则
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path int true "规则ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/{id} [delete]
func (h *AutomationHandler) DeleteAutomation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.automationService.DeleteAutomation(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.logger, "Failed to delete automation", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Automation deleted"})
}

// OpenEditor 打开编辑会话
// @Summary 打开自动化编辑会话
// @Description 不带 automation_id 打开新建草稿；带 automation_id 打开该规则的编辑副本
// @Tags 自动化编辑
// @Accept json
// @Produce json
// @Param body body object false "{automation_id}"
// @Success 201 {object} editorStateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/editor [post]
func (h *AutomationHandler) OpenEditor(c *gin.Context) {
	var req struct {
		AutomationID *uint `json:"automation_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request body",
				Message: err.Error(),
			})
			return
		}
	}

	var source *models.Automation
	if req.AutomationID != nil {
		automation, err := h.automationService.GetAutomation(c.Request.Context(), *req.AutomationID)
		if err != nil {
			respondServiceError(c, h.logger, "Failed to open editor", err)
			return
		}
		source = automation
	}

	session := h.editors.Open(source)
	c.JSON(http.StatusCreated, editorState(session, session.Snapshot()))
}

// GetEditorState 获取编辑会话当前草稿
// @Summary 获取编辑会话状态
// @Tags 自动化编辑
// @Accept json
// @Produce json
// @Param sid path string true "会话ID"
// @Success 200 {object} editorStateResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/editor/{sid} [get]
func (h *AutomationHandler) GetEditorState(c *gin.Context) {
	session, err := h.editors.Get(c.Param("sid"))
	if err != nil {
		respondServiceError(c, h.logger, "Failed to get editor session", err)
		return
	}
	c.JSON(http.StatusOK, editorState(session, session.Snapshot()))
}

// EditDraft 对草稿应用一次编辑
// @Summary 编辑会话草稿
// @Description 每次调用携带一个 op：set_name、set_enabled、set_trigger_type、set_trigger_config、add_action、update_action_type、update_action_config、remove_action
// @Tags 自动化编辑
// @Accept json
// @Produce json
// @Param sid path string true "会话ID"
// @Param patch body editorPatchRequest true "编辑操作"
// @Success 200 {object} editorStateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/editor/{sid} [patch]
func (h *AutomationHandler) EditDraft(c *gin.Context) {
	session, err := h.editors.Get(c.Param("sid"))
	if err != nil {
		respondServiceError(c, h.logger, "Failed to get editor session", err)
		return
	}

	var req editorPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	var draft *models.Automation
	switch req.Op {
	case "set_name":
		if req.Name == nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request body",
				Message: "name is required for set_name",
			})
			return
		}
		draft = session.SetName(*req.Name)

	case "set_enabled":
		if req.Enabled == nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid request body",
				Message: "enabled is required for set_enabled",
			})
			return
		}
		draft = session.SetEnabled(*req.Enabled)

	case "set_trigger_type":
		draft, err = session.SetTriggerType(req.TriggerType)

	case "set_trigger_config":
		// 按草稿当前触发器类型解码变体
		cfg, cerr := models.UnmarshalTriggerConfig(session.Snapshot().TriggerType, req.TriggerConfig)
		if cerr != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid trigger config",
				Message: cerr.Error(),
			})
			return
		}
		draft, err = session.SetTriggerConfig(cfg)

	case "add_action":
		draft = session.AddAction()

	case "update_action_type":
		draft, err = session.UpdateActionType(req.ActionID, req.ActionType)

	case "update_action_config":
		snapshot := session.Snapshot()
		idx := snapshot.Actions.IndexOf(req.ActionID)
		if idx < 0 {
			respondServiceError(c, h.logger, "Failed to edit draft",
				fmt.Errorf("action %d: %w", req.ActionID, services.ErrActionNotFound))
			return
		}
		cfg, cerr := models.UnmarshalActionConfig(snapshot.Actions[idx].Type, req.ActionConfig)
		if cerr != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid action config",
				Message: cerr.Error(),
			})
			return
		}
		draft, err = session.UpdateActionConfig(req.ActionID, cfg)

	case "remove_action":
		draft, err = session.RemoveAction(req.ActionID)

	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: fmt.Sprintf("unknown op %q", req.Op),
		})
		return
	}

	if err != nil {
		respondServiceError(c, h.logger, "Failed to edit draft", err)
		return
	}
	c.JSON(http.StatusOK, editorState(session, draft))
}

// SubmitEditor 校验并保存草稿
// @Summary 提交编辑会话
// @Description 校验草稿并持久化；成功后会话继续持有已保存的规则
// @Tags 自动化编辑
// @Accept json
// @Produce json
// @Param sid path string true "会话ID"
// @Success 200 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/editor/{sid}/submit [post]
func (h *AutomationHandler) SubmitEditor(c *gin.Context) {
	session, err := h.editors.Get(c.Param("sid"))
	if err != nil {
		respondServiceError(c, h.logger, "Failed to get editor session", err)
		return
	}

	saved, err := session.Submit(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, "Failed to submit draft", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// CancelEditor 取消编辑会话，丢弃草稿
// @Summary 取消编辑会话
// @Tags 自动化编辑
// @Accept json
// @Produce json
// @Param sid path string true "会话ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/automations/editor/{sid} [delete]
func (h *AutomationHandler) CancelEditor(c *gin.Context) {
	if err := h.editors.Discard(c.Param("sid")); err != nil {
		respondServiceError(c, h.logger, "Failed to cancel editor session", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Editor session discarded"})
}

// RegisterAutomationRoutes 注册自动化相关路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.ListAutomations)
		auto.POST("", handler.CreateAutomation)
		auto.POST("/editor", handler.OpenEditor)
		auto.GET("/editor/:sid", handler.GetEditorState)
		auto.PATCH("/editor/:sid", handler.EditDraft)
		auto.POST("/editor/:sid/submit", handler.SubmitEditor)
		auto.DELETE("/editor/:sid", handler.CancelEditor)
		auto.GET("/:id", handler.GetAutomation)
		auto.PUT("/:id", handler.UpdateAutomation)
		auto.POST("/:id/toggle", handler.ToggleAutomation)
		auto.DELETE("/:id", handler.DeleteAutomation)
	}
}
