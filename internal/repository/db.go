package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"gorm.io/gorm"
)

// Sentinel errors shared by the GORM and in-memory stores.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("concurrent update conflict")
)

// TenantRepository reads dealer voice lines and accrues their minute counters.
type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.TenantConfig) error
	GetByID(ctx context.Context, id string) (*domain.TenantConfig, error)
	// FindActiveByPhone matches the canonical dialed number exactly.
	FindActiveByPhone(ctx context.Context, phone string) (*domain.TenantConfig, error)
	// CompareAndSetMinutes writes newUsed only if minutes_used still equals expectedUsed.
	// It returns false when another writer won the race.
	CompareAndSetMinutes(ctx context.Context, id string, expectedUsed, newUsed int) (bool, error)
}

// StaffRepository reads staff credentials and applies lockout bookkeeping.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffCredential) error
	GetByID(ctx context.Context, id string) (*domain.StaffCredential, error)
	// FindActiveByPIN is always tenant scoped.
	FindActiveByPIN(ctx context.Context, tenantID, pin string) ([]*domain.StaffCredential, error)
	// RecordFailure increments failed_attempts on an unlocked credential and sets
	// locked_until when the new count reaches threshold. Locked rows are left untouched.
	RecordFailure(ctx context.Context, id string, threshold int, now, lockUntil time.Time) error
	// RecordSuccess resets the failure counter, clears the lock and bumps the access counter.
	RecordSuccess(ctx context.Context, id string, now time.Time) error
}

// AccessLogRepository is append-only.
type AccessLogRepository interface {
	Append(ctx context.Context, entry *domain.AccessLogEntry) error
	ListBySession(ctx context.Context, sessionID string) ([]*domain.AccessLogEntry, error)
}

// LeadRepository stores captured leads.
type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, id string) (*domain.Lead, error)
	UpdateRecording(ctx context.Context, id, recordingURL string, durationSeconds int) error
	ListRecent(ctx context.Context, tenantID string, limit int) ([]*domain.Lead, error)
}

// CallLogRepository stores one durable record per call.
type CallLogRepository interface {
	Create(ctx context.Context, log *domain.CallLog) error
	GetByID(ctx context.Context, id string) (*domain.CallLog, error)
	Finalize(ctx context.Context, id string, update domain.CallLogUpdate) error
}

// ListingFilter narrows an inventory search. Zero values are ignored.
type ListingFilter struct {
	DealerID     string
	CategorySlug string
	Make         string
	Condition    string
	MinPrice     *int64
	MaxPrice     *int64
	Limit        int
}

// InventorySummary aggregates the active listings of one dealer.
type InventorySummary struct {
	ActiveCount       int64
	AskingTotal       int64
	CostTotal         int64
	CostedAskingTotal int64 // asking total over listings that carry a cost
}

// ListingRepository reads marketplace inventory.
type ListingRepository interface {
	Create(ctx context.Context, listing *domain.Listing) error
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
	GetByStockNumber(ctx context.Context, dealerID, stockNumber string) (*domain.Listing, error)
	Search(ctx context.Context, filter ListingFilter) ([]*domain.Listing, error)
	Summarize(ctx context.Context, dealerID string) (*InventorySummary, error)
}

// RepositoryManager combines all repositories
type RepositoryManager interface {
	Tenants() TenantRepository
	Staff() StaffRepository
	AccessLogs() AccessLogRepository
	Leads() LeadRepository
	CallLogs() CallLogRepository
	Listings() ListingRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM
type GormRepositoryManager struct {
	db          *gorm.DB
	tenantRepo  *GormTenantRepository
	staffRepo   *GormStaffRepository
	accessRepo  *GormAccessLogRepository
	leadRepo    *GormLeadRepository
	callLogRepo *GormCallLogRepository
	listingRepo *GormListingRepository
}

// NewGormRepositoryManager creates a new GORM repository manager
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:          db,
		tenantRepo:  NewGormTenantRepository(db),
		staffRepo:   NewGormStaffRepository(db),
		accessRepo:  NewGormAccessLogRepository(db),
		leadRepo:    NewGormLeadRepository(db),
		callLogRepo: NewGormCallLogRepository(db),
		listingRepo: NewGormListingRepository(db),
	}
}

func (m *GormRepositoryManager) Tenants() TenantRepository       { return m.tenantRepo }
func (m *GormRepositoryManager) Staff() StaffRepository          { return m.staffRepo }
func (m *GormRepositoryManager) AccessLogs() AccessLogRepository { return m.accessRepo }
func (m *GormRepositoryManager) Leads() LeadRepository           { return m.leadRepo }
func (m *GormRepositoryManager) CallLogs() CallLogRepository     { return m.callLogRepo }
func (m *GormRepositoryManager) Listings() ListingRepository     { return m.listingRepo }

// Ping checks the database connection
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
