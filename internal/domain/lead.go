package domain

import (
	"time"
)

// Lead is a prospective customer captured during a call. A nil TenantID is a marketplace-wide lead.
type Lead struct {
	ID                       string    `json:"id" gorm:"type:uuid;primary_key"`
	TenantID                 *string   `json:"tenant_id" gorm:"type:uuid;index"`
	ListingID                *string   `json:"listing_id" gorm:"type:uuid"`
	Name                     string    `json:"name" gorm:"type:varchar(255)"`
	Phone                    string    `json:"phone" gorm:"type:varchar(32)"`
	Email                    string    `json:"email" gorm:"type:varchar(255)"`
	Message                  string    `json:"message" gorm:"type:text"`
	EquipmentType            string    `json:"equipment_type" gorm:"type:varchar(128)"`
	Source                   string    `json:"source" gorm:"type:varchar(32)"`
	Status                   string    `json:"status" gorm:"type:varchar(32)"`
	SessionID                string    `json:"session_id" gorm:"type:varchar(255);index"`
	RecordingURL             string    `json:"recording_url" gorm:"type:text"`
	RecordingDurationSeconds *int      `json:"recording_duration_seconds"`
	CreatedAt                time.Time `json:"created_at"`
}

// TableName sets the table name for Lead
func (Lead) TableName() string {
	return "leads"
}

// CallLog is the durable record of one call, independent of lead capture.
type CallLog struct {
	ID              string     `json:"id" gorm:"type:uuid;primary_key"`
	SessionID       string     `json:"session_id" gorm:"type:varchar(255);uniqueIndex"`
	TenantID        *string    `json:"tenant_id" gorm:"type:uuid;index"`
	CallerPhone     string     `json:"caller_phone" gorm:"type:varchar(32)"`
	DialedNumber    string     `json:"dialed_number" gorm:"type:varchar(32)"`
	CallerName      string     `json:"caller_name" gorm:"type:varchar(255)"`
	Interest        string     `json:"interest" gorm:"type:text"`
	EquipmentType   string     `json:"equipment_type" gorm:"type:varchar(128)"`
	Intent          string     `json:"intent" gorm:"type:varchar(64)"`
	LeadID          *string    `json:"lead_id" gorm:"type:uuid"`
	StaffID         *string    `json:"staff_id" gorm:"type:uuid"`
	TransferredTo   string     `json:"transferred_to" gorm:"type:varchar(32)"`
	Status          string     `json:"status" gorm:"type:varchar(32)"`
	RecordingURL    string     `json:"recording_url" gorm:"type:text"`
	DurationSeconds float64    `json:"duration_seconds"`
	BillableMinutes int        `json:"billable_minutes"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for CallLog
func (CallLog) TableName() string {
	return "call_logs"
}

// CallLogUpdate carries the end-of-call fields written onto an existing call log.
type CallLogUpdate struct {
	CallerName      string
	Interest        string
	EquipmentType   string
	Intent          string
	LeadID          string
	StaffID         string
	TransferredTo   string
	Status          string
	RecordingURL    string
	DurationSeconds float64
	BillableMinutes int
	EndedAt         time.Time
}
