package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foamcrm/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JobService 工单管理服务
type JobService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewJobService 创建工单服务
func NewJobService(db *gorm.DB, logger *logrus.Logger) *JobService {
	if logger == nil {
		logger = logrus.New()
	}
	return &JobService{db: db, logger: logger}
}

// JobCreateRequest 创建工单请求
type JobCreateRequest struct {
	EstimateNumber string           `json:"estimate_number" binding:"required"`
	CustomerID     uint             `json:"customer_id" binding:"required"`
	Status         models.JobStatus `json:"status"`
	CostsData      models.CostsData `json:"costs_data"`
	CalcData       models.CalcData  `json:"calc_data"`
}

// JobUpdateRequest 更新工单请求
type JobUpdateRequest struct {
	EstimateNumber   *string           `json:"estimate_number"`
	CustomerID       *uint             `json:"customer_id"`
	Status           *models.JobStatus `json:"status"`
	CostsData        *models.CostsData `json:"costs_data"`
	CalcData         *models.CalcData  `json:"calc_data"`
	EstimatePDF      *string           `json:"estimate_pdf"`
	MaterialOrderPDF *string           `json:"material_order_pdf"`
	InvoicePDF       *string           `json:"invoice_pdf"`
}

// JobListRequest 工单列表请求
type JobListRequest struct {
	Page       int    `form:"page,default=1"`
	PageSize   int    `form:"page_size,default=20"`
	Status     string `form:"status"`
	CustomerID uint   `form:"customer_id"`
}

// leanJobColumns are the job columns loaded for sync payloads. The three
// PDF columns hold large base64 blobs and must never reach a sync
// payload, so they are left unselected.
var leanJobColumns = []string{
	"id", "estimate_number", "customer_id", "status",
	"costs_data", "calc_data", "created_at", "updated_at",
}

// CreateJob 创建工单
func (s *JobService) CreateJob(ctx context.Context, req *JobCreateRequest) (*models.Job, error) {
	estimateNumber := strings.TrimSpace(req.EstimateNumber)
	if estimateNumber == "" {
		return nil, fmt.Errorf("%w: estimate number is required", ErrValidation)
	}

	status := req.Status
	if status == "" {
		status = models.JobStatusEstimate
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown job status %q", ErrValidation, status)
	}

	// 客户必须存在
	var customer models.Customer
	if err := s.db.WithContext(ctx).First(&customer, req.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %d: %w", req.CustomerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	// 报价单号唯一
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("estimate_number = ?", estimateNumber).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check estimate number: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("estimate number %q: %w", estimateNumber, ErrDuplicate)
	}

	job := &models.Job{
		EstimateNumber: estimateNumber,
		CustomerID:     req.CustomerID,
		Status:         status,
		CostsData:      req.CostsData,
		CalcData:       req.CalcData,
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Infof("Created job %d (%s) for customer %d", job.ID, job.EstimateNumber, job.CustomerID)
	return job, nil
}

// GetJob 根据ID获取工单（带客户信息）
func (s *JobService) GetJob(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).Preload("Customer").First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &job, nil
}

// ListJobs 获取工单列表（分页，支持按状态/客户过滤）
func (s *JobService) ListJobs(ctx context.Context, req *JobListRequest) ([]models.Job, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Job{})
	if req.Status != "" {
		if !models.JobStatus(req.Status).IsValid() {
			return nil, 0, fmt.Errorf("%w: unknown job status %q", ErrValidation, req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.CustomerID != 0 {
		query = query.Where("customer_id = ?", req.CustomerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	var jobs []models.Job
	offset := (req.Page - 1) * req.PageSize
	if err := query.Select(leanJobColumns).Order("created_at DESC").
		Offset(offset).Limit(req.PageSize).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, total, nil
}

// ListAllJobs returns every job in id order with the PDF columns
// unloaded. Sync operations build their payloads from this.
func (s *JobService) ListAllJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := s.db.WithContext(ctx).Select(leanJobColumns).Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJob 更新工单
func (s *JobService) UpdateJob(ctx context.Context, id uint, req *JobUpdateRequest) (*models.Job, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.EstimateNumber != nil {
		estimateNumber := strings.TrimSpace(*req.EstimateNumber)
		if estimateNumber == "" {
			return nil, fmt.Errorf("%w: estimate number is required", ErrValidation)
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Job{}).
			Where("estimate_number = ? AND id <> ?", estimateNumber, id).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check estimate number: %w", err)
		}
		if count > 0 {
			return nil, fmt.Errorf("estimate number %q: %w", estimateNumber, ErrDuplicate)
		}
		updates["estimate_number"] = estimateNumber
	}
	if req.CustomerID != nil {
		var customer models.Customer
		if err := s.db.WithContext(ctx).First(&customer, *req.CustomerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("customer %d: %w", *req.CustomerID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to load customer: %w", err)
		}
		updates["customer_id"] = *req.CustomerID
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, fmt.Errorf("%w: unknown job status %q", ErrValidation, *req.Status)
		}
		updates["status"] = *req.Status
	}
	if req.CostsData != nil {
		updates["costs_data"] = *req.CostsData
	}
	if req.CalcData != nil {
		updates["calc_data"] = *req.CalcData
	}
	if req.EstimatePDF != nil {
		updates["estimate_pdf"] = *req.EstimatePDF
	}
	if req.MaterialOrderPDF != nil {
		updates["material_order_pdf"] = *req.MaterialOrderPDF
	}
	if req.InvoicePDF != nil {
		updates["invoice_pdf"] = *req.InvoicePDF
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update job: %w", err)
		}
	}

	s.logger.Infof("Updated job %d", id)
	return s.GetJob(ctx, id)
}

// UpdateJobStatus 更新工单状态（已校验的生命周期枚举）
func (s *JobService) UpdateJobStatus(ctx context.Context, id uint, status models.JobStatus) (*models.Job, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown job status %q", ErrValidation, status)
	}

	result := s.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}

	s.logger.Infof("Job %d status -> %s", id, status)
	return s.GetJob(ctx, id)
}

// DeleteJob 删除工单（软删除）
func (s *JobService) DeleteJob(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Job{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d: %w", id, ErrNotFound)
	}

	s.logger.Infof("Deleted job %d", id)
	return nil
}
