package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStaffRepository implements StaffRepository using GORM
type GormStaffRepository struct {
	db *gorm.DB
}

// NewGormStaffRepository creates a new GORM staff repository
func NewGormStaffRepository(db *gorm.DB) *GormStaffRepository {
	return &GormStaffRepository{db: db}
}

// Create creates a new staff credential
func (r *GormStaffRepository) Create(ctx context.Context, staff *domain.StaffCredential) error {
	if staff.ID == "" {
		staff.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(staff).Error; err != nil {
		return fmt.Errorf("failed to create staff credential: %w", err)
	}
	return nil
}

// GetByID retrieves a staff credential by ID
func (r *GormStaffRepository) GetByID(ctx context.Context, id string) (*domain.StaffCredential, error) {
	var staff domain.StaffCredential
	if err := r.db.WithContext(ctx).First(&staff, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("staff credential not found: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get staff credential: %w", err)
	}
	return &staff, nil
}

// FindActiveByPIN retrieves every active credential of the tenant holding the PIN
func (r *GormStaffRepository) FindActiveByPIN(ctx context.Context, tenantID, pin string) ([]*domain.StaffCredential, error) {
	var staff []*domain.StaffCredential
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND pin = ? AND is_active = ?", tenantID, pin, true).
		Order("created_at ASC").
		Find(&staff).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get staff by pin: %w", err)
	}
	return staff, nil
}

// RecordFailure is a single UPDATE so concurrent failures on the same row cannot lose increments.
// Postgres evaluates the CASE against the pre-update failed_attempts.
func (r *GormStaffRepository) RecordFailure(ctx context.Context, id string, threshold int, now, lockUntil time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.StaffCredential{}).
		Where("id = ? AND (locked_until IS NULL OR locked_until <= ?)", id, now).
		Updates(map[string]interface{}{
			"failed_attempts": gorm.Expr("failed_attempts + 1"),
			"locked_until":    gorm.Expr("CASE WHEN failed_attempts + 1 >= ? THEN CAST(? AS timestamptz) ELSE locked_until END", threshold, lockUntil),
			"updated_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record staff auth failure: %w", err)
	}
	return nil
}

// RecordSuccess resets lockout state after a verified PIN
func (r *GormStaffRepository) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.StaffCredential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"failed_attempts": 0,
			"locked_until":    nil,
			"last_access_at":  now,
			"access_count":    gorm.Expr("access_count + 1"),
			"updated_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record staff auth success: %w", err)
	}
	return nil
}

// GormAccessLogRepository implements AccessLogRepository using GORM
type GormAccessLogRepository struct {
	db *gorm.DB
}

// NewGormAccessLogRepository creates a new GORM access log repository
func NewGormAccessLogRepository(db *gorm.DB) *GormAccessLogRepository {
	return &GormAccessLogRepository{db: db}
}

// Append inserts an audit entry
func (r *GormAccessLogRepository) Append(ctx context.Context, entry *domain.AccessLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

// ListBySession returns the audit trail of one call in insertion order
func (r *GormAccessLogRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.AccessLogEntry, error) {
	var entries []*domain.AccessLogEntry
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	return entries, nil
}
