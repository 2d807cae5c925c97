package domain

import (
	"time"
)

// StaffCredential is one staff member of one dealer. PINs are only unique per tenant.
type StaffCredential struct {
	ID              string     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID        string     `json:"tenant_id" gorm:"type:uuid;not null;index:idx_dealer_staff_tenant_pin"`
	Name            string     `json:"name" gorm:"type:varchar(255);not null"`
	PIN             string     `json:"-" gorm:"column:pin;type:varchar(16);not null;index:idx_dealer_staff_tenant_pin"`
	CanViewCosts    bool       `json:"can_view_costs" gorm:"default:false"`
	CanViewMargins  bool       `json:"can_view_margins" gorm:"default:false"`
	CanViewAllLeads bool       `json:"can_view_all_leads" gorm:"default:false"`
	FailedAttempts  int        `json:"failed_attempts" gorm:"not null;default:0"`
	LockedUntil     *time.Time `json:"locked_until,omitempty"`
	LastAccessAt    *time.Time `json:"last_access_at,omitempty"`
	AccessCount     int        `json:"access_count" gorm:"not null;default:0"`
	IsActive        bool       `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for StaffCredential
func (StaffCredential) TableName() string {
	return "dealer_staff"
}

// IsLocked reports whether the credential is locked out at the given instant.
func (s *StaffCredential) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// Permissions returns the visibility flags of the credential.
func (s *StaffCredential) Permissions() StaffPermissions {
	return StaffPermissions{
		CanViewCosts:    s.CanViewCosts,
		CanViewMargins:  s.CanViewMargins,
		CanViewAllLeads: s.CanViewAllLeads,
	}
}

// StaffPermissions gate field visibility in internal data replies.
type StaffPermissions struct {
	CanViewCosts    bool `json:"can_view_costs"`
	CanViewMargins  bool `json:"can_view_margins"`
	CanViewAllLeads bool `json:"can_view_all_leads"`
}

// Access log actions
const (
	AccessActionPINVerify     = "pin_verify"
	AccessActionInternalQuery = "internal_query"
)

// AccessLogEntry is an append-only audit record of a staff authentication attempt or query.
type AccessLogEntry struct {
	ID          string    `json:"id" gorm:"type:uuid;primary_key"`
	TenantID    *string   `json:"tenant_id" gorm:"type:uuid;index"`
	StaffID     *string   `json:"staff_id" gorm:"type:uuid;index"`
	SessionID   string    `json:"session_id" gorm:"type:varchar(255);index"`
	CallerPhone string    `json:"caller_phone" gorm:"type:varchar(32)"`
	Action      string    `json:"action" gorm:"type:varchar(32);not null"`
	Success     bool      `json:"success"`
	Detail      string    `json:"detail" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName sets the table name for AccessLogEntry
func (AccessLogEntry) TableName() string {
	return "staff_access_logs"
}
