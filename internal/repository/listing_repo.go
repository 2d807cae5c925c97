package repository

import (
	"context"
	"fmt"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormListingRepository implements ListingRepository using GORM
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GORM listing repository
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// Create inserts a listing
func (r *GormListingRepository) Create(ctx context.Context, listing *domain.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// GetByID retrieves a listing by ID. Ids that are not UUIDs cannot match a row.
func (r *GormListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("listing not found: %s: %w", id, ErrNotFound)
	}
	var listing domain.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("listing not found: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// GetByStockNumber retrieves a dealer's listing by stock number
func (r *GormListingRepository) GetByStockNumber(ctx context.Context, dealerID, stockNumber string) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.db.WithContext(ctx).
		Where("dealer_id = ? AND stock_number = ?", dealerID, stockNumber).
		First(&listing).Error
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("listing not found for stock number %s: %w", stockNumber, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing by stock number: %w", err)
	}
	return &listing, nil
}

// Search returns active listings matching the filter, newest first
func (r *GormListingRepository) Search(ctx context.Context, filter ListingFilter) ([]*domain.Listing, error) {
	query := r.db.WithContext(ctx).Where("status = ?", domain.ListingStatusActive)

	if filter.DealerID != "" {
		query = query.Where("dealer_id = ?", filter.DealerID)
	}
	if filter.CategorySlug != "" {
		query = query.Where("category_slug ILIKE ?", "%"+filter.CategorySlug+"%")
	}
	if filter.Make != "" {
		query = query.Where("make ILIKE ?", "%"+filter.Make+"%")
	}
	if filter.Condition != "" {
		query = query.Where("condition ILIKE ?", filter.Condition)
	}
	if filter.MinPrice != nil {
		query = query.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var listings []*domain.Listing
	if err := query.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return listings, nil
}

// Summarize aggregates a dealer's active inventory
func (r *GormListingRepository) Summarize(ctx context.Context, dealerID string) (*InventorySummary, error) {
	var summary InventorySummary
	err := r.db.WithContext(ctx).
		Model(&domain.Listing{}).
		Select(`COUNT(*) AS active_count,
			COALESCE(SUM(price), 0) AS asking_total,
			COALESCE(SUM(cost), 0) AS cost_total,
			COALESCE(SUM(CASE WHEN cost IS NOT NULL THEN price END), 0) AS costed_asking_total`).
		Where("dealer_id = ? AND status = ?", dealerID, domain.ListingStatusActive).
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize inventory: %w", err)
	}
	return &summary, nil
}
