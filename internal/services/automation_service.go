package services

import (
	"context"
	"errors"
	"fmt"

	"foamcrm/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AutomationService 自动化规则管理服务
type AutomationService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewAutomationService 创建自动化规则服务
func NewAutomationService(db *gorm.DB, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{db: db, logger: logger}
}

// ListAutomations 返回所有自动化规则
func (s *AutomationService) ListAutomations(ctx context.Context) ([]models.Automation, error) {
	var automations []models.Automation
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&automations).Error; err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	return automations, nil
}

// GetAutomation 根据ID获取自动化规则
func (s *AutomationService) GetAutomation(ctx context.Context, id uint) (*models.Automation, error) {
	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("automation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load automation: %w", err)
	}
	return &automation, nil
}

// CreateAutomation 新建自动化规则
func (s *AutomationService) CreateAutomation(ctx context.Context, automation *models.Automation) (*models.Automation, error) {
	automation.ID = 0
	return s.Save(ctx, automation)
}

// UpdateAutomation 更新自动化规则
func (s *AutomationService) UpdateAutomation(ctx context.Context, id uint, automation *models.Automation) (*models.Automation, error) {
	automation.ID = id
	return s.Save(ctx, automation)
}

// Save persists an automation, creating when ID is zero and updating
// otherwise. The draft is validated the same way the editor validates
// before submit; persistence rejects what the editor would reject.
func (s *AutomationService) Save(ctx context.Context, automation *models.Automation) (*models.Automation, error) {
	if automation == nil {
		return nil, fmt.Errorf("%w: automation is required", ErrValidation)
	}
	if err := automation.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	if automation.ID == 0 {
		if err := s.db.WithContext(ctx).Create(automation).Error; err != nil {
			return nil, fmt.Errorf("failed to create automation: %w", err)
		}
		s.logger.Infof("Created automation %d (%s)", automation.ID, automation.Name)
		return s.GetAutomation(ctx, automation.ID)
	}

	existing, err := s.GetAutomation(ctx, automation.ID)
	if err != nil {
		return nil, err
	}

	existing.Name = automation.Name
	existing.TriggerType = automation.TriggerType
	existing.TriggerConfig = automation.TriggerConfig
	existing.Actions = automation.Actions
	existing.IsEnabled = automation.IsEnabled

	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("failed to update automation: %w", err)
	}
	s.logger.Infof("Updated automation %d (%s)", existing.ID, existing.Name)
	return s.GetAutomation(ctx, existing.ID)
}

// ToggleAutomation 启用/停用自动化规则
func (s *AutomationService) ToggleAutomation(ctx context.Context, id uint) (*models.Automation, error) {
	automation, err := s.GetAutomation(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", id).Update("is_enabled", !automation.IsEnabled).Error; err != nil {
		return nil, fmt.Errorf("failed to toggle automation: %w", err)
	}

	s.logger.Infof("Automation %d enabled -> %t", id, !automation.IsEnabled)
	return s.GetAutomation(ctx, id)
}

// DeleteAutomation 删除自动化规则
func (s *AutomationService) DeleteAutomation(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Automation{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete automation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("automation %d: %w", id, ErrNotFound)
	}

	s.logger.Infof("Deleted automation %d", id)
	return nil
}
