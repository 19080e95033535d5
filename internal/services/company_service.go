package services

import (
	"context"
	"errors"
	"fmt"

	"foamcrm/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CompanyService 公司设置服务，维护唯一的一行公司信息
type CompanyService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewCompanyService 创建公司设置服务
func NewCompanyService(db *gorm.DB, logger *logrus.Logger) *CompanyService {
	if logger == nil {
		logger = logrus.New()
	}
	return &CompanyService{db: db, logger: logger}
}

// CompanyUpdateRequest 更新公司设置请求
type CompanyUpdateRequest struct {
	CompanyName *string `json:"company_name"`
	OwnerName   *string `json:"owner_name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
}

// GetSettings returns the company settings row, creating the empty
// singleton on first read.
func (s *CompanyService) GetSettings(ctx context.Context) (*models.CompanySettings, error) {
	var settings models.CompanySettings
	err := s.db.WithContext(ctx).Order("id ASC").First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load company settings: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create company settings: %w", err)
	}
	s.logger.Info("Created empty company settings row")
	return &settings, nil
}

// UpdateSettings 更新公司设置
func (s *CompanyService) UpdateSettings(ctx context.Context, req *CompanyUpdateRequest) (*models.CompanySettings, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.CompanyName != nil {
		updates["company_name"] = *req.CompanyName
	}
	if req.OwnerName != nil {
		updates["owner_name"] = *req.OwnerName
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

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.CompanySettings{}).
			Where("id = ?", settings.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update company settings: %w", err)
		}
	}

	s.logger.Info("Updated company settings")
	return s.GetSettings(ctx)
}
