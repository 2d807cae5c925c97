package domain

import (
	"time"
)

// Listing is a piece of equipment for sale. Cost is internal and only read by staff queries.
type Listing struct {
	ID           string    `json:"id" gorm:"type:uuid;primary_key"`
	DealerID     string    `json:"dealer_id" gorm:"type:uuid;index"`
	Title        string    `json:"title"`
	Description  string    `json:"description" gorm:"type:text"`
	Price        *int64    `json:"price"`
	Cost         *int64    `json:"-"`
	Year         int       `json:"year"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Condition    string    `json:"condition"`
	Mileage      *int64    `json:"mileage"`
	Hours        *int64    `json:"hours"`
	VIN          string    `json:"vin" gorm:"column:vin"`
	StockNumber  string    `json:"stock_number" gorm:"index"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	CategorySlug string    `json:"category_slug" gorm:"index"`
	Status       string    `json:"status" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName sets the table name for Listing
func (Listing) TableName() string {
	return "listings"
}

// RecordingHandle references an in-progress call recording (a LiveKit egress).
type RecordingHandle struct {
	EgressID  string    `json:"egress_id"`
	RoomName  string    `json:"room_name"`
	Filepath  string    `json:"filepath"`
	StartedAt time.Time `json:"started_at"`
}
