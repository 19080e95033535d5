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

// CustomerService 客户管理服务
type CustomerService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewCustomerService 创建客户服务
func NewCustomerService(db *gorm.DB, logger *logrus.Logger) *CustomerService {
	if logger == nil {
		logger = logrus.New()
	}
	return &CustomerService{db: db, logger: logger}
}

// CustomerCreateRequest 创建客户请求
type CustomerCreateRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// CustomerUpdateRequest 更新客户请求
type CustomerUpdateRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Notes   *string `json:"notes"`
}

// CustomerListRequest 客户列表请求
type CustomerListRequest struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
	Search   string `form:"search"`
}

// CreateCustomer 创建客户
func (s *CustomerService) CreateCustomer(ctx context.Context, req *CustomerCreateRequest) (*models.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrValidation)
	}

	customer := &models.Customer{
		Name:    name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		Notes:   req.Notes,
	}

	if err := s.db.WithContext(ctx).Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.logger.Infof("Created customer %d (%s)", customer.ID, customer.Name)
	return customer, nil
}

// GetCustomer 根据ID获取客户
func (s *CustomerService) GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).First(&customer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return &customer, nil
}

// ListCustomers 获取客户列表（分页，支持按姓名/邮箱搜索）
func (s *CustomerService) ListCustomers(ctx context.Context, req *CustomerListRequest) ([]models.Customer, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Customer{})
	if req.Search != "" {
		searchTerm := "%" + req.Search + "%"
		query = query.Where("name LIKE ? OR email LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	var customers []models.Customer
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.PageSize).Find(&customers).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}

	return customers, total, nil
}

// ListAllCustomers returns every customer in id order. Cloud sync uses
// this for backups and for resolving names on exported jobs.
func (s *CustomerService) ListAllCustomers(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}
	return customers, nil
}

// UpdateCustomer 更新客户信息
func (s *CustomerService) UpdateCustomer(ctx context.Context, id uint, req *CustomerUpdateRequest) (*models.Customer, error) {
	if _, err := s.GetCustomer(ctx, id); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: customer name is required", ErrValidation)
		}
		updates["name"] = name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update customer: %w", err)
		}
	}

	s.logger.Infof("Updated customer %d", id)
	return s.GetCustomer(ctx, id)
}

// DeleteCustomer 删除客户（软删除）
func (s *CustomerService) DeleteCustomer(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Customer{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete customer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}

	s.logger.Infof("Deleted customer %d", id)
	return nil
}
