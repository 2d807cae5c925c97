package repository

import (
	"context"
	"fmt"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"gorm.io/gorm"
)

// GormTenantRepository implements TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GORM tenant repository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// Create creates a new dealer voice line
func (r *GormTenantRepository) Create(ctx context.Context, tenant *domain.TenantConfig) error {
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return fmt.Errorf("failed to create dealer voice line: %w", err)
	}
	return nil
}

// GetByID retrieves a dealer voice line by ID
func (r *GormTenantRepository) GetByID(ctx context.Context, id string) (*domain.TenantConfig, error) {
	var tenant domain.TenantConfig
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("dealer voice line not found: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dealer voice line: %w", err)
	}
	return &tenant, nil
}

// FindActiveByPhone retrieves the active line registered for a canonical number
func (r *GormTenantRepository) FindActiveByPhone(ctx context.Context, phone string) (*domain.TenantConfig, error) {
	var tenant domain.TenantConfig
	err := r.db.WithContext(ctx).
		Where("phone_number = ? AND is_active = ?", phone, true).
		First(&tenant).Error
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("no active line for %s: %w", phone, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dealer voice line by phone: %w", err)
	}
	return &tenant, nil
}

// CompareAndSetMinutes updates minutes_used guarded by its previously read value
func (r *GormTenantRepository) CompareAndSetMinutes(ctx context.Context, id string, expectedUsed, newUsed int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.TenantConfig{}).
		Where("id = ? AND minutes_used = ?", id, expectedUsed).
		Update("minutes_used", newUsed)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update minutes used: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
