package models

import (
	"time"

	"gorm.io/gorm"
)

// Pump statuses
const (
	PumpAvailable   = "available"
	PumpOnJob       = "on_job"
	PumpMaintenance = "maintenance"
)

type Pump struct {
	gorm.Model
	Name         string  `gorm:"size:100;not null" json:"name"`
	Registration string  `gorm:"size:50;not null;uniqueIndex" json:"registration"`
	PumpType     string  `gorm:"size:50;not null" json:"pump_type"` // boom, line, mixer
	BoomLength   float64 `gorm:"default:0" json:"boom_length"`
	Status       string  `gorm:"size:20;not null;default:available" json:"status"`
	Notes        string  `gorm:"type:text" json:"notes,omitempty"`
}

type Schedule struct {
	gorm.Model
	PumpID     uint      `gorm:"not null;index" json:"pump_id"`
	OperatorID uint      `gorm:"not null;index" json:"operator_id"`
	ClientName string    `gorm:"size:255;not null" json:"client_name"`
	Site       string    `gorm:"size:255;not null" json:"site"`
	StartTime  time.Time `gorm:"not null" json:"start_time"`
	EndTime    time.Time `gorm:"not null" json:"end_time"`
	Volume     float64   `gorm:"default:0" json:"volume"` // cubic meters booked
	Status     string    `gorm:"size:20;not null;default:scheduled" json:"status"` // scheduled, in_progress, completed, cancelled
	Notes      string    `gorm:"type:text" json:"notes,omitempty"`

	Pump     *Pump `gorm:"foreignKey:PumpID" json:"pump,omitempty"`
	Operator *User `gorm:"foreignKey:OperatorID" json:"operator,omitempty"`
}
