package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepositoryManager keeps every collection in process memory.
// It backs PERSISTENCE_MODE=memory and the service tests.
type MemoryRepositoryManager struct {
	mu sync.Mutex

	tenants  map[string]domain.TenantConfig
	staff    map[string]domain.StaffCredential
	access   []domain.AccessLogEntry
	leads    map[string]domain.Lead
	callLogs map[string]domain.CallLog
	listings map[string]domain.Listing

	// seq orders inserts whose timestamps collide
	seq      int
	leadSeq  map[string]int
	staffSeq map[string]int
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		tenants:  map[string]domain.TenantConfig{},
		staff:    map[string]domain.StaffCredential{},
		leads:    map[string]domain.Lead{},
		callLogs: map[string]domain.CallLog{},
		listings: map[string]domain.Listing{},
		leadSeq:  map[string]int{},
		staffSeq: map[string]int{},
	}
}

func (m *MemoryRepositoryManager) Tenants() TenantRepository       { return memoryTenants{m} }
func (m *MemoryRepositoryManager) Staff() StaffRepository          { return memoryStaff{m} }
func (m *MemoryRepositoryManager) AccessLogs() AccessLogRepository { return memoryAccess{m} }
func (m *MemoryRepositoryManager) Leads() LeadRepository           { return memoryLeads{m} }
func (m *MemoryRepositoryManager) CallLogs() CallLogRepository     { return memoryCallLogs{m} }
func (m *MemoryRepositoryManager) Listings() ListingRepository     { return memoryListings{m} }

func (m *MemoryRepositoryManager) Ping(ctx context.Context) error { return nil }
func (m *MemoryRepositoryManager) Close() error                   { return nil }

func (m *MemoryRepositoryManager) next() int {
	m.seq++
	return m.seq
}

type memoryTenants struct{ m *MemoryRepositoryManager }

func (r memoryTenants) Create(ctx context.Context, tenant *domain.TenantConfig) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	for _, t := range r.m.tenants {
		if t.PhoneNumber == tenant.PhoneNumber && t.ID != tenant.ID {
			return fmt.Errorf("phone number %s already registered: %w", tenant.PhoneNumber, ErrConflict)
		}
	}
	now := time.Now().UTC()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	r.m.tenants[tenant.ID] = *tenant
	return nil
}

func (r memoryTenants) GetByID(ctx context.Context, id string) (*domain.TenantConfig, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("dealer voice line not found: %s: %w", id, ErrNotFound)
	}
	return &t, nil
}

func (r memoryTenants) FindActiveByPhone(ctx context.Context, phone string) (*domain.TenantConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.tenants {
		if t.IsActive && t.PhoneNumber == phone {
			out := t
			return &out, nil
		}
	}
	return nil, fmt.Errorf("no active line for %s: %w", phone, ErrNotFound)
}

func (r memoryTenants) CompareAndSetMinutes(ctx context.Context, id string, expectedUsed, newUsed int) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tenants[id]
	if !ok {
		return false, fmt.Errorf("dealer voice line not found: %s: %w", id, ErrNotFound)
	}
	if t.MinutesUsed != expectedUsed {
		return false, nil
	}
	t.MinutesUsed = newUsed
	t.UpdatedAt = time.Now().UTC()
	r.m.tenants[id] = t
	return true, nil
}

type memoryStaff struct{ m *MemoryRepositoryManager }

func (r memoryStaff) Create(ctx context.Context, staff *domain.StaffCredential) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if staff.ID == "" {
		staff.ID = uuid.New().String()
	}
	r.m.staff[staff.ID] = *staff
	r.m.staffSeq[staff.ID] = r.m.next()
	return nil
}

func (r memoryStaff) GetByID(ctx context.Context, id string) (*domain.StaffCredential, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.staff[id]
	if !ok {
		return nil, fmt.Errorf("staff credential not found: %s: %w", id, ErrNotFound)
	}
	return &s, nil
}

func (r memoryStaff) FindActiveByPIN(ctx context.Context, tenantID, pin string) ([]*domain.StaffCredential, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*domain.StaffCredential, 0)
	for _, s := range r.m.staff {
		if s.IsActive && s.TenantID == tenantID && s.PIN == pin {
			cp := s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.m.staffSeq[out[i].ID] < r.m.staffSeq[out[j].ID] })
	return out, nil
}

func (r memoryStaff) RecordFailure(ctx context.Context, id string, threshold int, now, lockUntil time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.staff[id]
	if !ok || s.IsLocked(now) {
		return nil
	}
	s.FailedAttempts++
	if s.FailedAttempts >= threshold {
		lu := lockUntil
		s.LockedUntil = &lu
	}
	s.UpdatedAt = now
	r.m.staff[id] = s
	return nil
}

func (r memoryStaff) RecordSuccess(ctx context.Context, id string, now time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.staff[id]
	if !ok {
		return fmt.Errorf("staff credential not found: %s: %w", id, ErrNotFound)
	}
	s.FailedAttempts = 0
	s.LockedUntil = nil
	at := now
	s.LastAccessAt = &at
	s.AccessCount++
	s.UpdatedAt = now
	r.m.staff[id] = s
	return nil
}

type memoryAccess struct{ m *MemoryRepositoryManager }

func (r memoryAccess) Append(ctx context.Context, entry *domain.AccessLogEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.m.access = append(r.m.access, *entry)
	return nil
}

func (r memoryAccess) ListBySession(ctx context.Context, sessionID string) ([]*domain.AccessLogEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*domain.AccessLogEntry, 0)
	for _, e := range r.m.access {
		if e.SessionID == sessionID {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memoryLeads struct{ m *MemoryRepositoryManager }

func (r memoryLeads) Create(ctx context.Context, lead *domain.Lead) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	r.m.leads[lead.ID] = *lead
	r.m.leadSeq[lead.ID] = r.m.next()
	return nil
}

func (r memoryLeads) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.leads[id]
	if !ok {
		return nil, fmt.Errorf("lead not found: %s: %w", id, ErrNotFound)
	}
	return &l, nil
}

func (r memoryLeads) UpdateRecording(ctx context.Context, id, recordingURL string, durationSeconds int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.leads[id]
	if !ok {
		return fmt.Errorf("lead not found: %s: %w", id, ErrNotFound)
	}
	l.RecordingURL = recordingURL
	d := durationSeconds
	l.RecordingDurationSeconds = &d
	r.m.leads[id] = l
	return nil
}

func (r memoryLeads) ListRecent(ctx context.Context, tenantID string, limit int) ([]*domain.Lead, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*domain.Lead, 0)
	for _, l := range r.m.leads {
		if domain.StringValue(l.TenantID) == tenantID {
			cp := l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.m.leadSeq[out[i].ID] > r.m.leadSeq[out[j].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryCallLogs struct{ m *MemoryRepositoryManager }

func (r memoryCallLogs) Create(ctx context.Context, log *domain.CallLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	for _, existing := range r.m.callLogs {
		if existing.SessionID == log.SessionID {
			return fmt.Errorf("call log for session %s exists: %w", log.SessionID, ErrConflict)
		}
	}
	r.m.callLogs[log.ID] = *log
	return nil
}

func (r memoryCallLogs) GetByID(ctx context.Context, id string) (*domain.CallLog, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.callLogs[id]
	if !ok {
		return nil, fmt.Errorf("call log not found: %s: %w", id, ErrNotFound)
	}
	return &l, nil
}

func (r memoryCallLogs) Finalize(ctx context.Context, id string, update domain.CallLogUpdate) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.callLogs[id]
	if !ok {
		return fmt.Errorf("call log not found: %s: %w", id, ErrNotFound)
	}
	l.CallerName = update.CallerName
	l.Interest = update.Interest
	l.EquipmentType = update.EquipmentType
	l.Intent = update.Intent
	l.LeadID = domain.StringPtr(update.LeadID)
	l.StaffID = domain.StringPtr(update.StaffID)
	l.TransferredTo = update.TransferredTo
	l.Status = update.Status
	l.RecordingURL = update.RecordingURL
	l.DurationSeconds = update.DurationSeconds
	l.BillableMinutes = update.BillableMinutes
	ended := update.EndedAt
	l.EndedAt = &ended
	r.m.callLogs[id] = l
	return nil
}

type memoryListings struct{ m *MemoryRepositoryManager }

func (r memoryListings) Create(ctx context.Context, listing *domain.Listing) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now().UTC()
	}
	r.m.listings[listing.ID] = *listing
	return nil
}

func (r memoryListings) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing not found: %s: %w", id, ErrNotFound)
	}
	return &l, nil
}

func (r memoryListings) GetByStockNumber(ctx context.Context, dealerID, stockNumber string) (*domain.Listing, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, l := range r.m.listings {
		if l.DealerID == dealerID && l.StockNumber == stockNumber {
			out := l
			return &out, nil
		}
	}
	return nil, fmt.Errorf("listing not found for stock number %s: %w", stockNumber, ErrNotFound)
}

func (r memoryListings) Search(ctx context.Context, filter ListingFilter) ([]*domain.Listing, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*domain.Listing, 0)
	for _, l := range r.m.listings {
		if !matchesFilter(l, filter) {
			continue
		}
		cp := l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memoryListings) Summarize(ctx context.Context, dealerID string) (*InventorySummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var s InventorySummary
	for _, l := range r.m.listings {
		if l.DealerID != dealerID || l.Status != domain.ListingStatusActive {
			continue
		}
		s.ActiveCount++
		if l.Price != nil {
			s.AskingTotal += *l.Price
		}
		if l.Cost != nil {
			s.CostTotal += *l.Cost
			if l.Price != nil {
				s.CostedAskingTotal += *l.Price
			}
		}
	}
	return &s, nil
}

func matchesFilter(l domain.Listing, f ListingFilter) bool {
	if l.Status != domain.ListingStatusActive {
		return false
	}
	if f.DealerID != "" && l.DealerID != f.DealerID {
		return false
	}
	if f.CategorySlug != "" && !containsFold(l.CategorySlug, f.CategorySlug) {
		return false
	}
	if f.Make != "" && !containsFold(l.Make, f.Make) {
		return false
	}
	if f.Condition != "" && !strings.EqualFold(l.Condition, f.Condition) {
		return false
	}
	if f.MinPrice != nil && (l.Price == nil || *l.Price < *f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && (l.Price == nil || *l.Price > *f.MaxPrice) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
