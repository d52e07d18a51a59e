package models

import (
	"time"

	"gorm.io/gorm"
)

// Invoice statuses
const (
	InvoiceDraft   = "draft"
	InvoiceSent    = "sent"
	InvoicePaid    = "paid"
	InvoiceOverdue = "overdue"
)

type Expense struct {
	gorm.Model
	PumpID      uint      `gorm:"index" json:"pump_id"`
	RecordedBy  uint      `gorm:"not null;index" json:"recorded_by"`
	Category    string    `gorm:"size:50;not null" json:"category"` // fuel, maintenance, wages, other
	Amount      float64   `gorm:"not null" json:"amount"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	IncurredAt  time.Time `gorm:"not null" json:"incurred_at"`

	Pump *Pump `gorm:"foreignKey:PumpID" json:"pump,omitempty"`
	User *User `gorm:"foreignKey:RecordedBy" json:"user,omitempty"`
}

type Invoice struct {
	gorm.Model
	Number     string     `gorm:"size:64;not null;uniqueIndex" json:"number"`
	ScheduleID uint       `gorm:"index" json:"schedule_id"`
	ClientName string     `gorm:"size:255;not null" json:"client_name"`
	Amount     float64    `gorm:"not null" json:"amount"`
	Status     string     `gorm:"size:20;not null;default:draft" json:"status"`
	DueDate    time.Time  `gorm:"not null" json:"due_date"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`

	Schedule *Schedule `gorm:"foreignKey:ScheduleID" json:"schedule,omitempty"`
}
