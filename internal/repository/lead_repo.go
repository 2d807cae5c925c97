package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLeadRepository implements LeadRepository using GORM
type GormLeadRepository struct {
	db *gorm.DB
}

// NewGormLeadRepository creates a new GORM lead repository
func NewGormLeadRepository(db *gorm.DB) *GormLeadRepository {
	return &GormLeadRepository{db: db}
}

// Create inserts a lead, assigning an ID when missing
func (r *GormLeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// GetByID retrieves a lead by ID
func (r *GormLeadRepository) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	var lead domain.Lead
	if err := r.db.WithContext(ctx).First(&lead, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("lead not found: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return &lead, nil
}

// UpdateRecording attaches the call recording to a lead
func (r *GormLeadRepository) UpdateRecording(ctx context.Context, id, recordingURL string, durationSeconds int) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"recording_url":              recordingURL,
			"recording_duration_seconds": durationSeconds,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update lead recording: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("lead not found: %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRecent returns the newest leads of a tenant
func (r *GormLeadRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, nil
}

// GormCallLogRepository implements CallLogRepository using GORM
type GormCallLogRepository struct {
	db *gorm.DB
}

// NewGormCallLogRepository creates a new GORM call log repository
func NewGormCallLogRepository(db *gorm.DB) *GormCallLogRepository {
	return &GormCallLogRepository{db: db}
}

// Create inserts the in-progress call log
func (r *GormCallLogRepository) Create(ctx context.Context, log *domain.CallLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create call log: %w", err)
	}
	return nil
}

// GetByID retrieves a call log by ID
func (r *GormCallLogRepository) GetByID(ctx context.Context, id string) (*domain.CallLog, error) {
	var log domain.CallLog
	if err := r.db.WithContext(ctx).First(&log, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("call log not found: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get call log: %w", err)
	}
	return &log, nil
}

// Finalize writes the end-of-call fields
func (r *GormCallLogRepository) Finalize(ctx context.Context, id string, update domain.CallLogUpdate) error {
	result := r.db.WithContext(ctx).
		Model(&domain.CallLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"caller_name":      update.CallerName,
			"interest":         update.Interest,
			"equipment_type":   update.EquipmentType,
			"intent":           update.Intent,
			"lead_id":          domain.StringPtr(update.LeadID),
			"staff_id":         domain.StringPtr(update.StaffID),
			"transferred_to":   update.TransferredTo,
			"status":           update.Status,
			"recording_url":    update.RecordingURL,
			"duration_seconds": update.DurationSeconds,
			"billable_minutes": update.BillableMinutes,
			"ended_at":         update.EndedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize call log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call log not found: %s: %w", id, ErrNotFound)
	}
	return nil
}
