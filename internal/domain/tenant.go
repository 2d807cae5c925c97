package domain

import (
	"time"
)

// TenantConfig is a dealer phone line. The global marketplace line has no row.
type TenantConfig struct {
	ID                     string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PhoneNumber            string    `json:"phone_number" gorm:"type:varchar(32);uniqueIndex:uni_dealer_voice_lines_phone;not null"`
	DisplayName            string    `json:"display_name" gorm:"type:varchar(255);not null"`
	Voice                  string    `json:"voice" gorm:"type:varchar(64)"`
	Temperature            float64   `json:"temperature" gorm:"default:0.7"`
	Greeting               string    `json:"greeting" gorm:"type:text"`
	AfterHoursGreeting     string    `json:"after_hours_greeting" gorm:"type:text"`
	Instructions           string    `json:"instructions" gorm:"type:text"`
	AfterHoursInstructions string    `json:"after_hours_instructions" gorm:"type:text"`
	TransferEnabled        bool      `json:"transfer_enabled" gorm:"default:false"`
	TransferNumber         string    `json:"transfer_number" gorm:"type:varchar(32)"`
	BusinessHours          JSONB     `json:"business_hours" gorm:"type:jsonb"`
	MinutesUsed            int       `json:"minutes_used" gorm:"not null;default:0"`
	MinutesIncluded        int       `json:"minutes_included" gorm:"not null;default:0"`
	IsActive               bool      `json:"is_active" gorm:"default:true;index"`
	CreatedAt              time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt              time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for TenantConfig
func (TenantConfig) TableName() string {
	return "dealer_voice_lines"
}
