package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"foamcrm/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// parseID reads a positive uint path parameter.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid " + name,
			Message: name + " must be a positive number",
		})
		return 0, false
	}
	return uint(id), true
}

// respondServiceError translates service sentinels to HTTP statuses: a
// busy sync slot conflicts, missing records 404, rejected input and
// pre-flight short-circuits 400, workspace connect/tool trouble 502,
// everything else 500. Only unclassified errors are logged as server
// faults.
func respondServiceError(c *gin.Context, logger *logrus.Logger, title string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrActionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrDuplicate),
		errors.Is(err, services.ErrInvalidDraft),
		errors.Is(err, services.ErrLastAction),
		errors.Is(err, services.ErrTriggerMismatch),
		errors.Is(err, services.ErrConfigMismatch),
		errors.Is(err, services.ErrNoJobs),
		errors.Is(err, services.ErrNoCompanyEmail):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotConnected),
		errors.Is(err, services.ErrToolCall):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError && logger != nil {
		logger.Errorf("%s: %v", title, err)
	}
	c.JSON(status, ErrorResponse{Error: title, Message: err.Error()})
}
